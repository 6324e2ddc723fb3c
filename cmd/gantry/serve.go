package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gantryio/gantry"
	"github.com/gantryio/gantry/internal/adapters/file"
	httpadapter "github.com/gantryio/gantry/internal/adapters/http"
	"github.com/gantryio/gantry/internal/adapters/memory"
	redisadapter "github.com/gantryio/gantry/internal/adapters/redis"
	"github.com/gantryio/gantry/internal/config"
	"github.com/gantryio/gantry/internal/engine"
	"github.com/gantryio/gantry/internal/logging"
	"github.com/gantryio/gantry/internal/metrics"
	"github.com/gantryio/gantry/internal/notify"
	"github.com/gantryio/gantry/internal/presentation/tui"
	"github.com/gantryio/gantry/pkg/domain"
	"github.com/gantryio/gantry/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gantry HTTP server",
	Long: `Starts the gantry engine in server mode, exposing the JSON API, the SSE
event feed and the prometheus scrape endpoint.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}

		if err := runServe(cfg); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides config)")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.LogFormat == "json" {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}

func runServe(cfg config.Config) error {
	logger := newLogger(cfg)

	templates := memory.NewTemplateStore()
	var instances ports.InstanceStore
	var audit ports.AuditLog
	var coreOpts []engine.Option

	if cfg.Redis.Addr != "" {
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		instances = redisadapter.NewInstanceStore(client, cfg.Redis.Prefix)
		audit = redisadapter.NewAuditLog(client, cfg.Redis.Prefix)
		coreOpts = append(coreOpts, engine.WithLocker(redisadapter.NewLocker(client, cfg.Redis.Prefix)))
		logger.Info("using redis stores", "addr", cfg.Redis.Addr)
	} else {
		instances = memory.NewInstanceStore()
		audit = memory.NewAuditLog()
		logger.Info("using in-memory stores")
	}

	bus := notify.NewBus()
	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	eng := engine.New(templates, instances, audit,
		append(coreOpts,
			engine.WithLogger(logger),
			engine.WithNotifier(notify.Multi{bus, &notify.Log{Logger: logger}}),
			engine.WithHooks(collector.Hooks()),
		)...,
	)

	if cfg.PlanDir != "" {
		if err := loadPlans(eng, cfg.PlanDir, logger); err != nil {
			return err
		}
	}

	tui.PrintBanner(gantry.Version)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpadapter.NewHandler(eng, bus, registry, logger),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting gantry server", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err

	case sig := <-shutdown:
		logger.Info("starting shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown did not complete", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("failed to stop server: %w", err)
			}
		}
		logger.Info("gantry server stopped")
	}
	return nil
}

// loadPlans stores every *.yaml plan in the directory at startup.
func loadPlans(eng *engine.Engine, dir string, logger *slog.Logger) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, path := range paths {
		tmpls, err := file.LoadPlan(path)
		if err != nil {
			return fmt.Errorf("failed to load plan %s: %w", path, err)
		}
		for _, tmpl := range tmpls {
			if err := eng.CreateTemplate(ctx, tmpl, domain.System); err != nil {
				return fmt.Errorf("failed to store template %s from %s: %w", tmpl.ID, path, err)
			}
		}
		logger.Info("loaded plan", "path", path, "templates", len(tmpls))
	}
	return nil
}
