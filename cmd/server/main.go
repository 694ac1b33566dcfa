/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the planning server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, PLANNING_* environment, flags)
  2. Initialize SQLite store
  3. Build the state store and the planning services
  4. Load dispatch data and start the reload scheduler
  5. Configure HTTP router and serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  --config  YAML or JSON config file (optional)
  --port    HTTP server port, overrides server.port
  --db      SQLite database path, overrides database.path
            Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reload scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  planning-server --config=./config.yaml
  planning-server --db=":memory:" --port=3000
  APP_ENV=dev PLANNING_LOGGING__LEVEL=debug planning-server

SEE ALSO:
  - config/config.go: Configuration sections
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/planning-engine/api"
	"github.com/warp/planning-engine/config"
	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/metrics"
	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/store/sqlite"
)

var (
	cfgPath string
	port    string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:          "planning-server",
	Short:        "Planning and dispatch consistency server",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.Flags().StringVar(&port, "port", "", "HTTP server port")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = dbPath
	}
	workingHours, err := cfg.Planning.WorkingHours()
	if err != nil {
		return fmt.Errorf("planning config: %w", err)
	}

	log := logger.New("server", cfg.Logging.Level)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("database close")
		}
	}()

	recorder, err := metrics.NewPromRecorder(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Wire the engine
	state := planning.NewStateStore(planning.State{}, logger.New("state", cfg.Logging.Level))
	dispatch := planning.NewDispatchService(state, store, logger.New("dispatch", cfg.Logging.Level))
	plans := planning.NewPlanningService(state, store, logger.New("planning", cfg.Logging.Level))

	confirm := planning.NewConfirmService(state, store, logger.New("confirm", cfg.Logging.Level))
	confirm.WorkingHours = workingHours
	confirm.Recorder = recorder
	confirm.Reload = dispatch.Reload

	resolver := planning.NewResolver(state)
	resolver.Recorder = recorder

	if err := dispatch.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("initial dispatch load failed")
	}

	scheduler := api.NewReloadScheduler(dispatch, cfg.Reload.IntervalDuration(), logger.New("scheduler", cfg.Logging.Level))
	scheduler.Enabled = cfg.Reload.IsEnabled()
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(plans, confirm, resolver, dispatch, store, logger.New("http", cfg.Logging.Level))
	router := api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("db", cfg.Database.Path).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
