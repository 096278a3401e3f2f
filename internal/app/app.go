package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tunnelkit/support/internal/config"
	"github.com/tunnelkit/support/internal/crypto"
	dbpkg "github.com/tunnelkit/support/internal/db"
	"github.com/tunnelkit/support/internal/logbundle"
	"github.com/tunnelkit/support/internal/mailer"
	"github.com/tunnelkit/support/internal/metrics"
	"github.com/tunnelkit/support/internal/store"
	"github.com/tunnelkit/support/internal/support"
)

const (
	sweepInterval = time.Minute
	pruneInterval = time.Hour
)

type App struct {
	config   *config.Config
	logger   *slog.Logger
	db       *sql.DB
	accounts *store.AccountStore
	bundles  *logbundle.Collector
	mailer   *mailer.Mailer
	sessions *support.Registry
	metrics  *prometheus.Registry
}

func (app *App) Close() {
	app.db.Close()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := newLogger(cfg)

	db, err := dbpkg.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	key, err := crypto.DeriveKey(cfg.SettingsEncryptionKey, "support/account")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("derive account key: %w", err)
	}
	crypter, err := crypto.New(key)
	if err != nil {
		db.Close()
		return nil, err
	}
	accounts := store.NewAccountStore(db, dbpkg.DriverFor(cfg.DatabaseURL), crypter)

	bundles, err := logbundle.New(cfg.LogDir, cfg.BundleDir, cfg.MaxLogBytes)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("log bundles: %w", err)
	}

	pgpKey, err := cfg.PGPPublicKey()
	if err != nil {
		db.Close()
		return nil, err
	}
	m := mailer.New(mailerConfig(cfg, pgpKey), bundles)
	if err := m.CanEncrypt(); err != nil {
		logger.Warn("reports will be sent unencrypted", "reason", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	sessions := support.NewRegistry(func() *support.Workflow {
		return support.NewWorkflow(accounts, bundles, m,
			support.WithLogger(logger),
			support.WithRecorder(recorder),
			support.WithAttemptTimeout(cfg.AttemptTimeout),
		)
	}, cfg.SessionTTL)
	metrics.RegisterSessions(reg, sessions.Len)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		accounts: accounts,
		bundles:  bundles,
		mailer:   m,
		sessions: sessions,
		metrics:  reg,
	}, nil
}

func (app *App) Start(ctx context.Context) error {
	// Create an errgroup derived from the parent context
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.sessions.Run(gctx, sweepInterval)
		return nil
	})

	g.Go(func() error {
		app.pruneBundles(gctx)
		return nil
	})

	// Start shutdown listener
	g.Go(func() error {
		<-gctx.Done() // Wait for OS signal or a failed sibling

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

// pruneBundles deletes expired bundles on start and then every pruneInterval.
func (app *App) pruneBundles(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := app.bundles.Prune(ctx, app.config.BundleRetention)
		if err != nil && ctx.Err() == nil {
			app.logger.Warn("bundle prune failed", "error", err)
		} else if n > 0 {
			app.logger.Info("pruned log bundles", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func mailerConfig(cfg *config.Config, pgpKey string) *mailer.Config {
	mc := &mailer.Config{
		Host:         cfg.SMTPHost,
		Port:         cfg.SMTPPort,
		User:         cfg.SMTPUser,
		Pass:         cfg.SMTPPass,
		FromAddress:  cfg.SMTPFromEmail,
		FromName:     cfg.SMTPFromName,
		PGPPublicKey: pgpKey,
	}
	if cfg.DestinationEmail != "" {
		mc.To = []string{cfg.DestinationEmail}
	}
	return mc
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo

	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// NewSession returns a workflow wired like the ones served over HTTP but not
// tracked by the session registry. Command-line reports use it.
func (app *App) NewSession() *support.Workflow {
	return app.sessions.New()
}

// PruneBundles deletes bundles older than olderThan.
func (app *App) PruneBundles(ctx context.Context, olderThan time.Duration) (int, error) {
	return app.bundles.Prune(ctx, olderThan)
}

// Config returns the loaded configuration.
func (app *App) Config() *config.Config {
	return app.config
}
