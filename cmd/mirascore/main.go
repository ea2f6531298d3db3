// Miras Core - Broadcast Device Control
//
// This is the main entry point for the Miras Core application.
// Miras Core is the device connection and command dispatch service for
// broadcast production automation:
//   - Persistent connections to playout and production hardware
//   - Uniform command dispatch across device families
//   - Live state for control surfaces over WebSocket and MQTT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/miras-broadcast/miras-core/migrations"

	"github.com/miras-broadcast/miras-core/internal/api"
	"github.com/miras-broadcast/miras-core/internal/command"
	"github.com/miras-broadcast/miras-core/internal/device"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/config"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/database"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/influxdb"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/logging"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/mqtt"
	"github.com/miras-broadcast/miras-core/internal/project"
	"github.com/miras-broadcast/miras-core/internal/protocols/amcp"
	"github.com/miras-broadcast/miras-core/internal/state"
	"github.com/miras-broadcast/miras-core/internal/status"
	"github.com/miras-broadcast/miras-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Miras Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to InfluxDB (optional). Connected before the registry so
	// sessions can record telemetry from their first command.
	var influxClient *influxdb.Client
	var metrics device.Metrics
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		metrics = telemetry.NewRecorder(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// System state aggregator feeds the API, the status bus, and the
	// WebSocket hub with one consistent picture.
	aggregator := state.New()

	// Device registry with the supported protocol families
	registry := device.NewRegistry(device.RegistryOptions{
		Logger:  log.With("component", "registry"),
		Metrics: metrics,
	})
	amcp.Register(registry)
	unsubState := registry.Subscribe(aggregator.HandleEvent)
	defer unsubState()
	defer func() {
		log.Info("disconnecting devices")
		registry.Shutdown()
	}()

	// Register configured devices. A device that fails registration is a
	// configuration error worth stopping over; connection failures are
	// runtime conditions handled by the session's reconnect loop.
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if _, regErr := registry.Register(deviceConfig(d)); regErr != nil {
			return fmt.Errorf("registering device %q: %w", d.ID, regErr)
		}
	}
	log.Info("devices registered", "count", len(cfg.Devices))

	// Mirror device and system state onto the MQTT status bus
	if mqttClient != nil {
		publisher := status.NewPublisher(mqttClient, log.With("component", "status"))
		detach := publisher.Attach(registry, aggregator)
		defer detach()
	}

	// Project persistence and command dispatch
	projects := project.NewManager(project.NewRepository(db), aggregator, log.With("component", "project"))
	dispatcher := command.NewDispatcher(registry, projects, aggregator, log.With("component", "command"))

	// HTTP API and WebSocket hub
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.With("component", "api"),
		Registry:   registry,
		Dispatcher: dispatcher,
		Projects:   projects,
		Aggregator: aggregator,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Disconnect devices while the status publisher and MQTT client are
	// still attached, so the final disconnect events reach monitoring.
	// Shutdown is idempotent; the deferred call covers early-error paths.
	registry.Shutdown()

	// Deferred calls run in reverse order:
	// 1. API server (stop accepting requests)
	// 2. Status publisher detach
	// 3. MQTT
	// 4. InfluxDB (flushes pending telemetry)
	// 5. Database

	log.Info("Miras Core stopped")
	return nil
}

// deviceConfig maps one configured device onto the registry's config,
// filling in the family's well-known port when the file omits it.
func deviceConfig(d *config.DeviceConfig) device.Config {
	port := d.Port
	if port == 0 && d.Family == amcp.Family {
		port = amcp.DefaultPort
	}
	return device.Config{
		ID:                   d.ID,
		Name:                 d.Name,
		Family:               d.Family,
		Host:                 d.Host,
		Port:                 port,
		Enabled:              d.Enabled,
		CommandTimeout:       d.GetCommandTimeout(),
		ReconnectInterval:    d.GetReconnectInterval(),
		MaxReconnectAttempts: d.Reconnect.MaxAttempts,
		Options:              d.Options,
	}
}

// getConfigPath returns the configuration file path.
// Uses the MIRAS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MIRAS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled in config.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
