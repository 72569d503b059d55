package app

import (
	"context"
	"fmt"

	"github.com/wayfarernet/community_layer/internal/app/metrics"
	connectionssvc "github.com/wayfarernet/community_layer/internal/app/services/connections"
	eventssvc "github.com/wayfarernet/community_layer/internal/app/services/events"
	moderationsvc "github.com/wayfarernet/community_layer/internal/app/services/moderation"
	profilessvc "github.com/wayfarernet/community_layer/internal/app/services/profiles"
	referencessvc "github.com/wayfarernet/community_layer/internal/app/services/references"
	syncssvc "github.com/wayfarernet/community_layer/internal/app/services/syncs"
	tripssvc "github.com/wayfarernet/community_layer/internal/app/services/trips"
	"github.com/wayfarernet/community_layer/internal/app/storage"
	"github.com/wayfarernet/community_layer/internal/app/storage/memory"
	"github.com/wayfarernet/community_layer/internal/app/system"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation. TrustCache is optional; without it trust scores
// are computed on demand.
type Stores struct {
	Profiles    storage.ProfileStore
	Connections storage.ConnectionStore
	Syncs       storage.SyncStore
	References  storage.ReferenceStore
	Trips       storage.TripStore
	Events      storage.EventStore
	Moderation  storage.ModerationStore

	TrustCache referencessvc.ScoreCache
}

// Options tunes application behavior.
type Options struct {
	// TrustRecalcSchedule is the cron expression for the nightly trust
	// score recompute. Empty selects the recalculator's default.
	TrustRecalcSchedule string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	recalc  *referencessvc.Recalculator

	Profiles    *profilessvc.Service
	Connections *connectionssvc.Service
	Syncs       *syncssvc.Service
	References  *referencessvc.Service
	Trips       *tripssvc.Service
	Events      *eventssvc.Service
	Moderation  *moderationsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) (*Application, error) {
	return NewWithOptions(stores, Options{}, log)
}

// NewWithOptions builds an application with explicit behavior options.
func NewWithOptions(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Connections == nil {
		stores.Connections = mem
	}
	if stores.Syncs == nil {
		stores.Syncs = mem
	}
	if stores.References == nil {
		stores.References = mem
	}
	if stores.Trips == nil {
		stores.Trips = mem
	}
	if stores.Events == nil {
		stores.Events = mem
	}
	if stores.Moderation == nil {
		stores.Moderation = mem
	}

	manager := system.NewManager()

	profileService := profilessvc.New(stores.Profiles, stores.Connections, log)
	connectionService := connectionssvc.New(stores.Profiles, stores.Connections, log)
	syncService := syncssvc.New(stores.Profiles, stores.Connections, stores.Syncs, log)
	referenceService := referencessvc.New(stores.Profiles, stores.Connections, stores.Syncs, stores.Events, stores.References, stores.TrustCache, log)
	tripService := tripssvc.New(stores.Profiles, stores.Trips, log)
	eventService := eventssvc.New(stores.Profiles, stores.Events, log)
	moderationService := moderationsvc.New(stores.Profiles, stores.Events, referenceService, stores.Moderation, log)

	for _, name := range []string{"profiles", "connections", "syncs", "trips", "events", "moderation"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	recalculator := referencessvc.NewRecalculator(stores.Profiles, referenceService, opts.TrustRecalcSchedule, log)
	recalculator.OnRecompute = metrics.RecordTrustRecompute
	if err := manager.Register(recalculator); err != nil {
		return nil, fmt.Errorf("register %s: %w", recalculator.Name(), err)
	}

	return &Application{
		manager:     manager,
		log:         log,
		recalc:      recalculator,
		Profiles:    profileService,
		Connections: connectionService,
		Syncs:       syncService,
		References:  referenceService,
		Trips:       tripService,
		Events:      eventService,
		Moderation:  moderationService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
