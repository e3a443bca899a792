package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"herbal-store/internal/auth"
	"herbal-store/internal/clientstate"
	"herbal-store/internal/config"
	"herbal-store/internal/csrf"
	"herbal-store/internal/db"
	"herbal-store/internal/fingerprint"
	"herbal-store/internal/lockout"
	"herbal-store/internal/maintenance"
	"herbal-store/internal/observability"
	"herbal-store/internal/tokens"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations forces migrations regardless of RUN_MIGRATIONS_ON_STARTUP.
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Addr    string
	Logger  *observability.Logger
	Close   func() error
}

type healthCheck func(ctx context.Context) error

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(config.Options{LoadDotEnv: options.LoadDotEnv})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.LogLevel)
	for _, warning := range cfg.Warnings {
		logger.Warn("insecure_config", map[string]any{"detail": warning})
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	var (
		closers []func() error
		checks  = map[string]healthCheck{}
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		observability.FlushSentry()
		_ = logger.Sync()
		return errors.Join(errs...)
	}
	fail := func(err error) (*Runtime, error) {
		_ = closeAll()
		return nil, err
	}

	var database *sql.DB
	if cfg.DatabaseURL != "" {
		database, err = openDatabase(cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, database.Close)
		checks["database"] = database.PingContext

		if options.RunMigrations || cfg.RunMigrationsOnStartup {
			if err := db.RunMigrations(context.Background(), database); err != nil {
				return fail(fmt.Errorf("run migrations: %w", err))
			}
		}
	}

	state, sweeper, err := openState(cfg, database, &closers, checks)
	if err != nil {
		return fail(err)
	}

	var directory interface {
		auth.Directory
		auth.Provisioner
	}
	if database != nil {
		directory = auth.NewRepository(database)
	} else {
		logger.Warn("memory_user_directory", map[string]any{"detail": "DATABASE_URL unset, users live in process memory"})
		directory = auth.NewMemoryDirectory()
	}
	if err := auth.BootstrapFromEnv(context.Background(), directory, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fail(fmt.Errorf("bootstrap admin: %w", err))
	}

	tokenManager, err := tokens.NewManager(tokens.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	if err != nil {
		return fail(fmt.Errorf("init token manager: %w", err))
	}

	csrfService := csrf.NewService(state, nil).WithTTL(cfg.RefreshTTL()).WithLogger(logger)
	authService := auth.NewService(auth.Dependencies{
		Directory:     directory,
		Tokens:        tokenManager,
		Fingerprinter: fingerprint.New(fingerprint.SHA256Hasher{}, logger),
		Machine:       lockout.NewMachine(),
		State:         state,
		CSRF:          csrfService,
		Logger:        logger,
	})
	authHandler := auth.NewHandler(authService, tokenManager, auth.Cookies{Secure: cfg.CookieSecure}, cfg.RefreshThresholdMinutes, logger)
	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow())
	cleanupHandler := maintenance.NewCleanupHandler(sweeper, logger, cfg.CronSecret, cfg.StateRetention(), cfg.CleanupBatchSize)

	mux := http.NewServeMux()
	authHandler.Register(mux, csrfService, loginLimiter)
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(checks))
	mux.Handle("GET /metrics", observability.MetricsHandler())

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	logger.Info("runtime_ready", map[string]any{
		"env":           cfg.AppEnv,
		"state_backend": cfg.StateBackend,
		"directory":     fmt.Sprintf("%T", directory),
	})

	return &Runtime{
		Handler: handler,
		Addr:    ":" + cfg.Port,
		Logger:  logger,
		Close:   closeAll,
	}, nil
}

func openDatabase(databaseURL string) (*sql.DB, error) {
	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(30 * time.Minute)
	database.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return database, nil
}

// openState picks the client-state backend. Redis expires keys itself and
// so has no sweeper; the cleanup route then answers 404.
func openState(cfg *config.Config, database *sql.DB, closers *[]func() error, checks map[string]healthCheck) (clientstate.Store, clientstate.Sweeper, error) {
	switch cfg.StateBackend {
	case config.BackendRedis:
		store, err := clientstate.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis state: %w", err)
		}
		*closers = append(*closers, store.Close)
		checks["redis"] = store.Ping
		return store, nil, nil
	case config.BackendPostgres:
		if database == nil {
			return nil, nil, errors.New("postgres state backend needs DATABASE_URL")
		}
		store := clientstate.NewPostgres(database)
		return store, store, nil
	default:
		store := clientstate.NewMemory()
		return store, store, nil
	}
}

func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		failing := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failing[name] = err.Error()
			}
		}
		if len(failing) > 0 {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["failing"] = failing
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
