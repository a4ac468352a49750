// ClimaLink Core - Air Conditioning Control Platform
//
// This is the main entry point for the ClimaLink Core service. It wires
// together the device registry, adapter registry, control manager,
// schedule runner, alert monitor, and HTTP/WebSocket API, then blocks
// until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/climalink/climalink-core/migrations"

	"github.com/climalink/climalink-core/internal/adapter"
	"github.com/climalink/climalink-core/internal/alert"
	"github.com/climalink/climalink-core/internal/api"
	"github.com/climalink/climalink-core/internal/auth"
	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/control"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/infrastructure/config"
	"github.com/climalink/climalink-core/internal/infrastructure/database"
	"github.com/climalink/climalink-core/internal/infrastructure/influxdb"
	"github.com/climalink/climalink-core/internal/infrastructure/logging"
	"github.com/climalink/climalink-core/internal/schedule"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds adapter disconnects during shutdown.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting ClimaLink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Repositories
	deviceRepo := device.NewSQLiteRepository(db.DB)
	modelRepo := device.NewSQLiteModelRepository(db.DB)
	locationRepo := device.NewSQLiteLocationRepository(db.DB)
	commandRepo := command.NewSQLiteRepository(db.DB)
	scheduleRepo := schedule.NewSQLiteRepository(db.DB)
	alertRepo := alert.NewSQLiteRepository(db.DB)
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)

	// Device registry with warm cache
	registry := device.NewRegistry(deviceRepo, modelRepo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised")

	// Adapter registry: one live adapter per device, created on demand
	factory := adapter.NewFactory(cfg.MQTT, log)
	adapters := adapter.NewRegistry(factory.New, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("disconnecting adapters")
		if shutdownErr := adapters.ShutdownAll(shutdownCtx); shutdownErr != nil {
			log.Error("adapter shutdown", "error", shutdownErr)
		}
	}()

	// InfluxDB telemetry (optional)
	var telemetry control.Telemetry = control.NoopTelemetry{}
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = &influxTelemetry{client: influxClient}
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Auth service and first-boot admin seed
	authService := auth.NewService(userRepo, tokenRepo, cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.AccessTokenTTL)*time.Minute,
		time.Duration(cfg.Security.JWT.RefreshTokenTTL)*time.Minute,
	)
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// WebSocket hub and alert monitor observe control events
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	monitor := alert.NewMonitor(alertRepo, log, hub.PublishAlert)
	notifier := &eventFanout{hub: hub, monitor: monitor}

	// Control manager drives commands and the reconciliation loop
	manager := control.NewManager(registry, commandRepo, adapters, cfg.Control,
		control.WithNotifier(notifier),
		control.WithTelemetry(telemetry),
		control.WithLogger(log),
	)

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Devices:   registry,
		Models:    modelRepo,
		Locations: locationRepo,
		Commands:  commandRepo,
		Control:   manager,
		Schedules: scheduleRepo,
		Alerts:    alertRepo,
		Auth:      authService,
		Users:     userRepo,
		Hub:       hub,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Reconciliation loop: startup sweep of abandoned commands, then the
	// periodic status refresh.
	go func() {
		if runErr := manager.Run(ctx); runErr != nil {
			log.Error("control loop stopped", "error", runErr)
		}
	}()

	// Schedule runner submits due schedules as the system user
	runner := schedule.NewRunner(scheduleRepo, manager, cfg.Control.ScheduleCheckInterval(), log)
	go func() {
		if runErr := runner.Run(ctx); runErr != nil {
			log.Error("schedule runner stopped", "error", runErr)
		}
	}()

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if healthErr := db.HealthCheck(ctx); healthErr != nil {
		return fmt.Errorf("health check failed: %w", healthErr)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CLIMALINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CLIMALINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// eventFanout relays control events to the WebSocket hub and lets the
// alert monitor raise and resolve unreachable alerts.
type eventFanout struct {
	hub     *api.Hub
	monitor *alert.Monitor
}

func (f *eventFanout) CommandUpdated(cmd *command.Command) {
	f.hub.CommandUpdated(cmd)
}

func (f *eventFanout) StatusUpdated(deviceID string, status *device.Status) {
	f.hub.StatusUpdated(deviceID, status)
	f.monitor.DeviceRecovered(context.Background(), status)
}

func (f *eventFanout) DeviceUnreachable(deviceID string, err error) {
	f.hub.DeviceUnreachable(deviceID, err)
	f.monitor.DeviceUnreachable(context.Background(), deviceID, err)
}

// influxTelemetry writes merged climate status samples to InfluxDB.
type influxTelemetry struct {
	client *influxdb.Client
}

func (t *influxTelemetry) RecordClimate(deviceID string, status *device.Status) {
	if status == nil || status.Temperature == nil {
		return
	}

	humidity := -1.0
	if status.Humidity != nil {
		humidity = *status.Humidity
	}
	target := 0.0
	if status.TargetTemperature != nil {
		target = *status.TargetTemperature
	}
	mode := ""
	if status.Mode != nil {
		mode = string(*status.Mode)
	}
	fanSpeed := ""
	if status.FanSpeed != nil {
		fanSpeed = string(*status.FanSpeed)
	}

	t.client.WriteClimateSample(deviceID, *status.Temperature, humidity, target,
		status.PowerState, mode, fanSpeed)
}
