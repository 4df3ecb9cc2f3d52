package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/rxportal/rxcore/internal/api"
	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/authevents"
	"github.com/rxportal/rxcore/internal/infrastructure/config"
	"github.com/rxportal/rxcore/internal/infrastructure/influxdb"
	"github.com/rxportal/rxcore/internal/infrastructure/logging"
	"github.com/rxportal/rxcore/internal/infrastructure/mqtt"
	"github.com/rxportal/rxcore/internal/infrastructure/tracing"
	"github.com/rxportal/rxcore/internal/prescription"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

// runServe is the service lifecycle, separated from the command for
// testability. It returns nil on a clean shutdown.
func runServe(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting rxcore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"environment", cfg.Environment,
		"level", cfg.Logging.Level,
	)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Error("error shutting down tracing", "error", err)
		}
	}()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", db.Path())

	users := auth.NewUserRepository(db.DB)
	tokens := auth.NewTokenRepository(db.DB)
	hasher := auth.NewPasswordHasher(cfg.Security.Password.BcryptCost)

	if cfg.Seed.Enabled {
		if _, err := auth.SeedDemo(ctx, users, hasher, log.Logger); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
	}

	signer, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.Security.JWT.AccessSecret,
		RefreshSecret: cfg.Security.JWT.RefreshSecret,
		AccessTTL:     cfg.Security.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.Security.JWT.RefreshTokenTTL,
		Issuer:        cfg.Security.JWT.Issuer,
	})
	if err != nil {
		return fmt.Errorf("configuring token signing: %w", err)
	}

	// Background workers run on their own context so they can drain after
	// the HTTP server has stopped accepting requests.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	var workers sync.WaitGroup

	var sinks []auth.EventSink

	var telemetry *api.Telemetry
	if cfg.Metrics.Enabled {
		telemetry = api.NewTelemetry()
		promSink, err := authevents.NewPrometheusSink(telemetry.Registry)
		if err != nil {
			stopWorkers()
			return fmt.Errorf("registering auth event metrics: %w", err)
		}
		sinks = append(sinks, promSink)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, log.Logger)
	workers.Go(func() { auditWriter.Run(workerCtx) })
	sinks = append(sinks, authevents.NewAuditSink(auditWriter))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			stopWorkers()
			workers.Wait()
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttSink := authevents.NewAsync("mqtt",
			authevents.NewMQTTSink(mqttClient, mqttClient.Topics(), mqttClient.QoS(), log.Logger),
			0, log.Logger)
		workers.Go(func() { mqttSink.Run(workerCtx) })
		sinks = append(sinks, mqttSink)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			stopWorkers()
			workers.Wait()
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, authevents.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Stop workers before the clients and database they write to are closed.
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	authSvc := auth.NewService(auth.ServiceDeps{
		Users:  users,
		Tokens: tokens,
		Signer: signer,
		Hasher: hasher,
		Events: authevents.NewFanout(log.Logger, sinks...),
		Logger: log.Logger,
	})

	sweeper := auth.NewSweeper(tokens, cfg.Security.SweepInterval, log.Logger)
	workers.Go(func() { sweeper.Run(workerCtx) })

	deps := api.Deps{
		Config:        cfg.API,
		Security:      cfg.Security,
		Metrics:       cfg.Metrics,
		Production:    cfg.IsProduction(),
		Tracing:       cfg.Tracing.Enabled,
		Logger:        log,
		Auth:          authSvc,
		Prescriptions: prescription.NewService(prescription.NewSQLiteRepository(db.DB), log.Logger),
		AuditRepo:     auditRepo,
		AuditWriter:   auditWriter,
		Telemetry:     telemetry,
		Database:      db,
		Version:       version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"port", cfg.API.Port,
		"prefix", cfg.API.Prefix,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}
