// Twinsync - device-twin reconciliation operator
//
// This is the main entry point for the Twinsync operator. It keeps the
// twin-side representation of every registered device converged with
// its device registry record: provisioning the sensor facet Thing from
// a template, annotating the device facet, and tearing both down under
// a finalizer when the device goes away.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/twinsync-io/twinsync/migrations"

	"github.com/twinsync-io/twinsync/internal/api"
	"github.com/twinsync-io/twinsync/internal/apiclient"
	"github.com/twinsync-io/twinsync/internal/infrastructure/config"
	"github.com/twinsync-io/twinsync/internal/infrastructure/database"
	"github.com/twinsync-io/twinsync/internal/infrastructure/influxdb"
	"github.com/twinsync-io/twinsync/internal/infrastructure/logging"
	"github.com/twinsync-io/twinsync/internal/infrastructure/mqtt"
	"github.com/twinsync-io/twinsync/internal/journal"
	"github.com/twinsync-io/twinsync/internal/operator"
	"github.com/twinsync-io/twinsync/internal/reconciler"
	"github.com/twinsync-io/twinsync/internal/registry"
	"github.com/twinsync-io/twinsync/internal/template"
	"github.com/twinsync-io/twinsync/internal/twin"
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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting twinsync",
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

	// Load the thing template. A template that does not load or whose
	// referenced script files are missing is fatal: there is nothing
	// meaningful to reconcile against.
	tmpl, err := template.Load(cfg.Reconciler.TemplatePath)
	if err != nil {
		return fmt.Errorf("loading thing template: %w", err)
	}
	log.Info("thing template loaded",
		"path", cfg.Reconciler.TemplatePath,
		"synthetics", tmpl.Synthetics.Len(),
	)

	// Open journal database
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

	journalRepo := journal.NewSQLiteRepository(db.DB)

	// Registry and twin API clients
	registryClient, err := registry.NewClient(cfg.Registry.URL, apiclient.Auth{
		User:  cfg.Registry.Auth.User,
		Token: cfg.Registry.Auth.Token,
	}, time.Duration(cfg.Registry.TimeoutSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("creating registry client: %w", err)
	}

	twinClient, err := twin.NewClient(cfg.Twin.URL, apiclient.Auth{
		User:  cfg.Twin.Auth.User,
		Token: cfg.Twin.Auth.Token,
	}, time.Duration(cfg.Twin.TimeoutSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("creating twin client: %w", err)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
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

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics operator.MetricsWriter
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
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Reconciler
	rec := reconciler.New(twinClient, registryClient, tmpl, reconciler.Config{
		Application:   cfg.Application,
		LabelSelector: cfg.Reconciler.LabelSelector,
		Group:         cfg.Reconciler.Group,
	}, log.With("component", "reconciler"))

	// Operational HTTP API
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		Logger:      log.With("component", "api"),
		Journal:     journalRepo,
		Application: cfg.Application,
		Version:     version,
		Components: map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
			"influxdb": influxHealth(influxClient),
		},
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Operator: event loop plus periodic scan
	op := operator.New(rec, registryClient, mqttClient, journalRepo, metrics, operator.Config{
		Application:  cfg.Application,
		Topic:        mqtt.Topics{}.EventSubscription(cfg.MQTT.GroupID, cfg.Application),
		QoS:          byte(cfg.MQTT.QoS),
		ScanInterval: cfg.ScanInterval(),
	}, log.With("component", "operator"))

	log.Info("initialisation complete")

	if err := op.Run(ctx); err != nil {
		return fmt.Errorf("operator stopped: %w", err)
	}

	log.Info("twinsync stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TWINSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TWINSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// influxHealth adapts an optional InfluxDB client to the API's health
// checker; a nil client reports disabled rather than failing.
func influxHealth(client *influxdb.Client) api.HealthChecker {
	if client == nil {
		return healthFunc(func(context.Context) error { return nil })
	}
	return client
}

// healthFunc adapts a function to the api.HealthChecker interface.
type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }
