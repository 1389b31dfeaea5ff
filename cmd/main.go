// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/intent"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/campus-ticketing/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		driver     string
		dbPath     string
		port       string
	)

	flagSet := pflag.NewFlagSet("ticketing", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVar(&driver, "driver", "", "storage driver: sqlite, postgres or memory")
	flagSet.StringVar(&dbPath, "db-path", "", "shared SQLite database file")
	flagSet.StringVarP(&port, "port", "p", "", "HTTP listen port")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Flags win over file and environment.
	cfg, err := config.Load(configPath, func(c *config.Config) {
		if flagSet.Changed("driver") {
			c.Storage.Driver = driver
		}
		if flagSet.Changed("db-path") {
			c.Storage.Path = dbPath
		}
		if flagSet.Changed("port") {
			c.Server.Port = port
		}
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ───────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Wire up layers ────────────────────────────────────────────────
	eventSvc := service.NewEventService(store, logger)
	eventHandler := handler.NewEventHandler(eventSvc, logger)
	if cfg.Parser.APIKey == "" {
		logger.Info("no OPENAI_API_KEY set, using keyword intent parser and no chat assistant")
	} else {
		llm := intent.NewOpenAI(intent.OpenAIConfig{
			APIKey:  cfg.Parser.APIKey,
			BaseURL: cfg.Parser.BaseURL,
			Model:   cfg.Parser.Model,
			Timeout: cfg.Parser.Timeout,
			Logger:  logger,
		})
		eventHandler.WithParser(llm).WithAssistant(llm)
	}

	staticDir := cfg.Server.StaticDir
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
			logger.Warn("static directory not found, browser client disabled", "dir", staticDir)
			staticDir = ""
		}
	}

	router := handler.NewRouter(eventHandler, handler.RouterOptions{
		Logger:    logger,
		CORS:      handler.DefaultCORSConfig(),
		StaticDir: staticDir,
	})

	// ── 3. Serve until a signal arrives ──────────────────────────────────
	srv := &http.Server{
		Addr:         net.JoinHostPort("", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening",
			"addr", srv.Addr,
			"driver", cfg.Storage.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openStore connects the configured backend and applies its schema. The
// returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.EventStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		pool, err := database.OpenSQLite(database.SQLiteConfig{
			Path:     cfg.Storage.Path,
			PoolSize: cfg.Storage.PoolSize,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			_ = pool.Close()
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("using shared SQLite database", "path", cfg.Storage.Path)
		return repository.NewSQLiteStore(pool), func() {
			if err := pool.Close(); err != nil {
				logger.Error("closing sqlite pool", "error", err)
			}
		}, nil

	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, database.PoolConfig{
			DSN:      cfg.Postgres.DSN(),
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return repository.NewPostgresStore(pool), pool.Close, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
