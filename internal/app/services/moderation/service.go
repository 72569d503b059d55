// Package moderation handles member reports and moderator actions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wayfarernet/community_layer/internal/app/domain/moderation"
	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

var (
	// ErrNotModerator is returned when the actor lacks moderation powers.
	ErrNotModerator = errors.New("actor is not a moderator")
	// ErrReportClosed is returned when acting on a resolved or dismissed
	// report.
	ErrReportClosed = errors.New("report is already closed")
	// ErrUnknownAction is returned for an unrecognized moderator action.
	ErrUnknownAction = errors.New("unknown moderation action")
)

// Moderator actions applied when resolving a report.
const (
	ActionNone               = "none"
	ActionSuspendProfile     = "suspend_profile"
	ActionReinstateProfile   = "reinstate_profile"
	ActionCancelEvent        = "cancel_event"
	ActionUnpublishReference = "unpublish_reference"
)

// ReferenceModeration is the slice of the reference service moderation acts
// through. Unpublishing must go through the service so derived trust scores
// refresh with the change.
type ReferenceModeration interface {
	Get(ctx context.Context, id string) (reference.Reference, error)
	SetPublished(ctx context.Context, id string, published bool) (reference.Reference, error)
}

// Service manages reports and the moderation log.
type Service struct {
	profiles   storage.ProfileStore
	events     storage.EventStore
	references ReferenceModeration
	store      storage.ModerationStore
	log        *logger.Logger
}

// New constructs a moderation service.
func New(profiles storage.ProfileStore, events storage.EventStore, references ReferenceModeration, store storage.ModerationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("moderation")
	}
	return &Service{
		profiles:   profiles,
		events:     events,
		references: references,
		store:      store,
		log:        log,
	}
}

// Report files a complaint about a profile, event or reference.
func (s *Service) Report(ctx context.Context, reporterID string, kind moderation.TargetKind, targetID, reason string) (moderation.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return moderation.Report{}, fmt.Errorf("reason is required")
	}
	if !kind.Valid() {
		return moderation.Report{}, fmt.Errorf("unknown target kind %q", kind)
	}
	reporter, err := s.profiles.GetProfile(ctx, reporterID)
	if err != nil {
		return moderation.Report{}, fmt.Errorf("reporter validation failed: %w", err)
	}
	if reporter.Suspended {
		return moderation.Report{}, fmt.Errorf("reporter account is suspended")
	}
	if err := s.checkTarget(ctx, kind, targetID); err != nil {
		return moderation.Report{}, fmt.Errorf("target validation failed: %w", err)
	}

	report := moderation.Report{
		ReporterID: reporterID,
		TargetKind: kind,
		TargetID:   targetID,
		Reason:     reason,
		Status:     moderation.ReportOpen,
	}
	report, err = s.store.CreateReport(ctx, report)
	if err != nil {
		return moderation.Report{}, err
	}
	s.log.WithField("report_id", report.ID).
		WithField("target_kind", string(kind)).
		WithField("target_id", targetID).
		Info("report filed")
	return report, nil
}

func (s *Service) checkTarget(ctx context.Context, kind moderation.TargetKind, targetID string) error {
	switch kind {
	case moderation.TargetProfile:
		_, err := s.profiles.GetProfile(ctx, targetID)
		return err
	case moderation.TargetEvent:
		_, err := s.events.GetEvent(ctx, targetID)
		return err
	case moderation.TargetReference:
		_, err := s.references.Get(ctx, targetID)
		return err
	}
	return fmt.Errorf("unknown target kind %q", kind)
}

func (s *Service) requireModerator(ctx context.Context, actorID string) error {
	actor, err := s.profiles.GetProfile(ctx, actorID)
	if err != nil {
		return fmt.Errorf("actor validation failed: %w", err)
	}
	if !actor.Role.CanModerate() {
		return ErrNotModerator
	}
	return nil
}

// Resolve closes a report, applies the chosen action and appends a log entry.
func (s *Service) Resolve(ctx context.Context, reportID, actorID, action, note string) (moderation.Report, error) {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return moderation.Report{}, err
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return moderation.Report{}, err
	}
	if report.Status != moderation.ReportOpen {
		return moderation.Report{}, ErrReportClosed
	}

	if err := s.applyAction(ctx, report, action); err != nil {
		return moderation.Report{}, err
	}

	report.Status = moderation.ReportResolved
	report, err = s.store.UpdateReport(ctx, report)
	if err != nil {
		return moderation.Report{}, err
	}

	if _, err := s.store.AppendModerationLog(ctx, moderation.LogEntry{
		ActorID:    actorID,
		Action:     action,
		TargetKind: report.TargetKind,
		TargetID:   report.TargetID,
		ReportID:   report.ID,
		Note:       strings.TrimSpace(note),
	}); err != nil {
		return moderation.Report{}, err
	}

	s.log.WithField("report_id", report.ID).
		WithField("actor_id", actorID).
		WithField("action", action).
		Info("report resolved")
	return report, nil
}

// Dismiss closes a report without action and appends a log entry.
func (s *Service) Dismiss(ctx context.Context, reportID, actorID, note string) (moderation.Report, error) {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return moderation.Report{}, err
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return moderation.Report{}, err
	}
	if report.Status != moderation.ReportOpen {
		return moderation.Report{}, ErrReportClosed
	}

	report.Status = moderation.ReportDismissed
	report, err = s.store.UpdateReport(ctx, report)
	if err != nil {
		return moderation.Report{}, err
	}

	if _, err := s.store.AppendModerationLog(ctx, moderation.LogEntry{
		ActorID:    actorID,
		Action:     "dismiss",
		TargetKind: report.TargetKind,
		TargetID:   report.TargetID,
		ReportID:   report.ID,
		Note:       strings.TrimSpace(note),
	}); err != nil {
		return moderation.Report{}, err
	}

	s.log.WithField("report_id", report.ID).
		WithField("actor_id", actorID).
		Info("report dismissed")
	return report, nil
}

func (s *Service) applyAction(ctx context.Context, report moderation.Report, action string) error {
	switch action {
	case ActionNone:
		return nil
	case ActionSuspendProfile, ActionReinstateProfile:
		if report.TargetKind != moderation.TargetProfile {
			return fmt.Errorf("%s requires a profile target", action)
		}
		p, err := s.profiles.GetProfile(ctx, report.TargetID)
		if err != nil {
			return err
		}
		p.Suspended = action == ActionSuspendProfile
		_, err = s.profiles.UpdateProfile(ctx, p)
		return err
	case ActionCancelEvent:
		if report.TargetKind != moderation.TargetEvent {
			return fmt.Errorf("%s requires an event target", action)
		}
		e, err := s.events.GetEvent(ctx, report.TargetID)
		if err != nil {
			return err
		}
		e.Canceled = true
		_, err = s.events.UpdateEvent(ctx, e)
		return err
	case ActionUnpublishReference:
		if report.TargetKind != moderation.TargetReference {
			return fmt.Errorf("%s requires a reference target", action)
		}
		_, err := s.references.SetPublished(ctx, report.TargetID, false)
		return err
	}
	return ErrUnknownAction
}

// Suspend marks a profile as suspended and appends a log entry.
func (s *Service) Suspend(ctx context.Context, actorID, profileID, note string) error {
	return s.setSuspended(ctx, actorID, profileID, note, true)
}

// Reinstate lifts a profile suspension and appends a log entry.
func (s *Service) Reinstate(ctx context.Context, actorID, profileID, note string) error {
	return s.setSuspended(ctx, actorID, profileID, note, false)
}

func (s *Service) setSuspended(ctx context.Context, actorID, profileID, note string, suspended bool) error {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return err
	}
	p, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return err
	}
	p.Suspended = suspended
	if _, err := s.profiles.UpdateProfile(ctx, p); err != nil {
		return err
	}

	action := ActionSuspendProfile
	if !suspended {
		action = ActionReinstateProfile
	}
	if _, err := s.store.AppendModerationLog(ctx, moderation.LogEntry{
		ActorID:    actorID,
		Action:     action,
		TargetKind: moderation.TargetProfile,
		TargetID:   profileID,
		Note:       strings.TrimSpace(note),
	}); err != nil {
		return err
	}

	s.log.WithField("profile_id", profileID).
		WithField("actor_id", actorID).
		WithField("action", action).
		Info("profile suspension updated")
	return nil
}

// Get retrieves a report by identifier.
func (s *Service) Get(ctx context.Context, id string) (moderation.Report, error) {
	return s.store.GetReport(ctx, id)
}

// ListReports returns reports, optionally filtered by status.
func (s *Service) ListReports(ctx context.Context, status moderation.ReportStatus) ([]moderation.Report, error) {
	return s.store.ListReports(ctx, status)
}

// Log returns moderation log entries for a target. Moderators only.
func (s *Service) Log(ctx context.Context, actorID string, kind moderation.TargetKind, targetID string) ([]moderation.LogEntry, error) {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return nil, err
	}
	return s.store.ListModerationLog(ctx, kind, targetID)
}
