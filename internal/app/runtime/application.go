// Package runtime wires configuration, storage and the HTTP server into a
// runnable process.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/wayfarernet/community_layer/internal/app"
	"github.com/wayfarernet/community_layer/internal/app/auth"
	"github.com/wayfarernet/community_layer/internal/app/httpapi"
	"github.com/wayfarernet/community_layer/internal/app/metrics"
	referencessvc "github.com/wayfarernet/community_layer/internal/app/services/references"
	"github.com/wayfarernet/community_layer/internal/app/storage/postgres"
	"github.com/wayfarernet/community_layer/internal/app/storage/supabase"
	"github.com/wayfarernet/community_layer/internal/config"
	"github.com/wayfarernet/community_layer/internal/middleware"
	"github.com/wayfarernet/community_layer/internal/platform/migrations"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sqlx.DB
	redis      *redis.Client
}

// NewApplication constructs a runnable application from configuration.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig constructs a runnable application from an
// already-loaded configuration.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, db, redisClient, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.NewWithOptions(stores, app.Options{
		TrustRecalcSchedule: cfg.Trust.RecalcSchedule,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}

	var manager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		users := make([]auth.User, 0, len(cfg.Auth.Users))
		for _, u := range cfg.Auth.Users {
			users = append(users, auth.User{
				ID:           u.ID,
				Handle:       u.Handle,
				PasswordHash: u.PasswordHash,
				Role:         u.Role,
			})
		}
		manager, err = auth.NewManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Second, users)
		if err != nil {
			return nil, fmt.Errorf("configure auth: %w", err)
		}
	}

	handler, err := buildHandler(cfg, application, manager, log)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpServer,
		db:         db,
		redis:      redisClient,
	}, nil
}

// Run starts background services and the HTTP server, blocking until the
// context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server and background services.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := time.Duration(a.cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sqlx.DB, *redis.Client, error) {
	var stores app.Stores
	var db *sqlx.DB

	if cfg.Database.DSN != "" {
		opened, err := openDatabase(cfg.Database)
		if err != nil {
			return app.Stores{}, nil, nil, err
		}
		db = opened

		if err := migrations.Apply(context.Background(), db.DB); err != nil {
			db.Close()
			return app.Stores{}, nil, nil, fmt.Errorf("apply migrations: %w", err)
		}

		pg := postgres.New(db)
		stores = app.Stores{
			Profiles:    pg,
			Connections: pg,
			Syncs:       pg,
			References:  pg,
			Trips:       pg,
			Events:      pg,
			Moderation:  pg,
		}
	} else {
		log.Warn("no database configured, using in-memory storage")
	}

	if cfg.Supabase.URL != "" {
		client, err := supabase.NewClient(supabase.Config{
			URL:        cfg.Supabase.URL,
			ServiceKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			if db != nil {
				db.Close()
			}
			return app.Stores{}, nil, nil, fmt.Errorf("configure supabase: %w", err)
		}
		refStore := supabase.NewReferenceStore(client)
		refStore.Observe = metrics.RecordReferenceWrite
		stores.References = refStore
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		stores.TrustCache = referencessvc.NewRedisScoreCache(redisClient)
	}

	return stores, db, redisClient, nil
}

func buildHandler(cfg *config.Config, application *app.Application, manager *auth.Manager, log *logger.Logger) (http.Handler, error) {
	handler, err := httpapi.NewAPIHandler(application, manager, cfg.Auth.Tokens, cfg.Audit.MaxEntries, cfg.Audit.FilePath)
	if err != nil {
		return nil, fmt.Errorf("build handler: %w", err)
	}

	router := mux.NewRouter()
	router.Use(middleware.Tracing(log))
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		limiter.StartCleanup(10 * time.Minute)
		router.Use(limiter.Middleware())
	}
	router.PathPrefix("/").Handler(handler)

	return metrics.InstrumentHandler(router), nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
