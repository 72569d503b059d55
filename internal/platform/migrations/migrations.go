// Package migrations applies the relational schema on startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS app_profiles (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		languages JSONB NOT NULL DEFAULT '[]',
		contact_email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		suspended BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS app_connections (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL REFERENCES app_profiles(id) ON DELETE CASCADE,
		addressee_id TEXT NOT NULL REFERENCES app_profiles(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending',
		message TEXT NOT NULL DEFAULT '',
		requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		responded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS app_syncs (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL REFERENCES app_connections(id) ON DELETE CASCADE,
		initiator_id TEXT NOT NULL,
		peer_id TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		initiator_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		peer_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS app_references (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		connection_id TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL,
		sync_id TEXT NOT NULL DEFAULT '',
		event_id TEXT NOT NULL DEFAULT '',
		sentiment TEXT NOT NULL,
		body TEXT NOT NULL,
		rating INTEGER CHECK (rating IS NULL OR (rating >= 1 AND rating <= 5)),
		in_reply_to TEXT NOT NULL DEFAULT '',
		edit_count INTEGER NOT NULL DEFAULT 0,
		published BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS app_references_author_sync
		ON app_references (author_id, sync_id)
		WHERE in_reply_to = '' AND sync_id <> ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS app_references_author_event
		ON app_references (author_id, event_id)
		WHERE in_reply_to = '' AND event_id <> ''`,
	`CREATE TABLE IF NOT EXISTS app_trips (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL REFERENCES app_profiles(id) ON DELETE CASCADE,
		destination TEXT NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		public BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS app_events (
		id TEXT PRIMARY KEY,
		host_id TEXT NOT NULL REFERENCES app_profiles(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		canceled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS app_event_attendance (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES app_events(id) ON DELETE CASCADE,
		profile_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'going',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (event_id, profile_id)
	)`,
	`CREATE TABLE IF NOT EXISTS app_reports (
		id TEXT PRIMARY KEY,
		reporter_id TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS app_moderation_log (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		report_id TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Apply runs every schema statement in order. Statements are idempotent.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
