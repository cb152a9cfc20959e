// printrelay turns 3D printer host events into delayed, cancellable on/off
// commands for smart lights, plugs and cameras.
//
// The root command runs the service. See configs/config.yaml for settings
// and configs/devices.yaml for the device inventory format.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/printrelay/internal/api"
	"github.com/nerrad567/printrelay/internal/audit"
	"github.com/nerrad567/printrelay/internal/automation"
	"github.com/nerrad567/printrelay/internal/bridges/octoprint"
	"github.com/nerrad567/printrelay/internal/device"
	"github.com/nerrad567/printrelay/internal/infrastructure/config"
	"github.com/nerrad567/printrelay/internal/infrastructure/database"
	"github.com/nerrad567/printrelay/internal/infrastructure/influxdb"
	"github.com/nerrad567/printrelay/internal/infrastructure/logging"
	"github.com/nerrad567/printrelay/internal/infrastructure/mqtt"
	"github.com/nerrad567/printrelay/migrations"
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

var configPath string

var rootCmd = &cobra.Command{
	Use:   "printrelay",
	Short: "Delayed smart-device actions driven by 3D printer events",
	Long: `printrelay listens for OctoPrint events over MQTT (or a webhook) and
runs delayed on/off commands for smart lights, plugs and cameras.

Rules are managed through the HTTP API; pending actions are streamed over
WebSocket.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx, getConfigPath())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $PRINTRELAY_CONFIG or "+defaultConfigPath+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(encryptSecretCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the service together and blocks until ctx is cancelled.
// Components are closed in reverse start order by the defer chain.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting printrelay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
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

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, log.Component("audit"))
	defer func() {
		log.Info("flushing audit trail")
		auditWriter.Close()
	}()

	topics := mqtt.Topics{Prefix: cfg.Devices.TopicPrefix}
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	devices := device.NewRegistry(cfg.Devices.File, topics, mqttClient)
	devices.SetLogger(log.Component("devices"))
	count, err := devices.Reload(ctx)
	if err != nil {
		return fmt.Errorf("loading device inventory: %w", err)
	}
	log.Info("device inventory loaded", "path", cfg.Devices.File, "devices", count)

	repo := automation.NewSQLiteRepository(db.DB)
	rules := automation.NewRules(repo, cfg.Scheduler.MaxDelayMinutes)
	rules.SetLogger(log.Component("rules"))

	dispatcher := automation.NewDispatcher(repo, automation.DispatcherConfig{
		PollInterval:  cfg.PollInterval(),
		InvokeTimeout: cfg.Scheduler.InvokeTimeout,
	}, log.Component("scheduler"))
	defer func() {
		log.Info("stopping scheduler")
		dispatcher.Close()
	}()
	recorders := multiRecorder{auditWriter}
	if influxClient != nil {
		recorders = append(recorders, &outcomeRecorder{client: influxClient})
	}
	dispatcher.SetRecorder(recorders)

	bridge, err := octoprint.NewBridge(octoprint.Options{
		BaseTopic:  cfg.OctoPrint.BaseTopic,
		Topics:     topics,
		MQTT:       mqttClient,
		Dispatcher: dispatcher,
		Devices:    devices,
		Logger:     log.Component("octoprint"),
	})
	if err != nil {
		return fmt.Errorf("creating OctoPrint bridge: %w", err)
	}
	if cfg.OctoPrint.Enabled {
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting OctoPrint bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping OctoPrint bridge")
			bridge.Stop()
		}()
		log.Info("OctoPrint bridge started", "base_topic", cfg.OctoPrint.BaseTopic)
	} else {
		log.Info("OctoPrint MQTT events disabled, webhook only")
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	dispatcher.SetBroadcaster(hub)

	checks := []api.HealthCheck{
		{Name: "database", Check: db.HealthCheck},
		{Name: "mqtt", Check: mqttClient.HealthCheck},
	}
	if influxClient != nil {
		checks = append(checks, api.HealthCheck{Name: "influxdb", Check: influxClient.HealthCheck})
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Rules:       rules,
		Dispatcher:  dispatcher,
		Devices:     devices,
		Events:      bridge,
		Checks:      checks,
		Audit:       auditWriter,
		AuditLogs:   auditRepo,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	if cfg.Security.JWT.Secret == "" {
		log.Warn("API authentication disabled, set security.jwt.secret to enable it")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns the --config flag, then PRINTRELAY_CONFIG, then
// the default path.
func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("PRINTRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux connects when telemetry is enabled and returns nil otherwise.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// healthCheck runs every component check once, failing on the first error.
func healthCheck(ctx context.Context, checks []api.HealthCheck) error {
	for _, c := range checks {
		if err := c.Check(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}
