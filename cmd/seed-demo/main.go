// Package main seeds a database with demo community data for local runs.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/wayfarernet/community_layer/internal/app"
	"github.com/wayfarernet/community_layer/internal/app/domain/reference"
	"github.com/wayfarernet/community_layer/internal/app/storage/postgres"
	"github.com/wayfarernet/community_layer/internal/platform/migrations"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env with DATABASE_URL")
	flag.Parse()

	_ = godotenv.Load(*envFile)

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	if err := migrations.Apply(ctx, db.DB); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	pg := postgres.New(db)
	application, err := app.New(app.Stores{
		Profiles:    pg,
		Connections: pg,
		Syncs:       pg,
		References:  pg,
		Trips:       pg,
		Events:      pg,
		Moderation:  pg,
	}, nil)
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	alice, err := application.Profiles.Register(ctx, "alice", "Alice", "alice@example.com")
	if err != nil {
		log.Fatalf("seed alice: %v", err)
	}
	bob, err := application.Profiles.Register(ctx, "bob", "Bob", "bob@example.com")
	if err != nil {
		log.Fatalf("seed bob: %v", err)
	}

	conn, err := application.Connections.Request(ctx, alice.ID, bob.ID, "met at the meetup")
	if err != nil {
		log.Fatalf("seed connection: %v", err)
	}
	if _, err := application.Connections.Respond(ctx, conn.ID, bob.ID, true); err != nil {
		log.Fatalf("accept connection: %v", err)
	}

	sync, err := application.Syncs.Log(ctx, conn.ID, alice.ID, time.Now().UTC().Add(-48*time.Hour), "coffee downtown")
	if err != nil {
		log.Fatalf("seed sync: %v", err)
	}
	if _, err := application.Syncs.Confirm(ctx, sync.ID, bob.ID); err != nil {
		log.Fatalf("confirm sync: %v", err)
	}

	rating := 5
	if _, err := application.References.WriteForSync(ctx, alice.ID, sync.ID, reference.SentimentPositive, "great company, highly recommended", &rating); err != nil {
		log.Fatalf("seed reference: %v", err)
	}

	start := time.Now().UTC().AddDate(0, 1, 0)
	if _, err := application.Trips.Plan(ctx, alice.ID, "Lisbon", start, start.AddDate(0, 0, 7), "first visit", true); err != nil {
		log.Fatalf("seed trip: %v", err)
	}

	if _, err := application.Events.Host(ctx, bob.ID, "city walk", "casual walking tour", "old town", start, start.Add(3*time.Hour), 10); err != nil {
		log.Fatalf("seed event: %v", err)
	}

	log.Printf("seeded demo data: profiles %s, %s", alice.Handle, bob.Handle)
}
