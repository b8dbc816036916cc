// Package app wires configuration, clients and the pipeline together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/whois-cat/ETL/config"
	"github.com/whois-cat/ETL/pkg/checkpoint"
	"github.com/whois-cat/ETL/pkg/database"
	"github.com/whois-cat/ETL/pkg/events"
	"github.com/whois-cat/ETL/pkg/extractor"
	"github.com/whois-cat/ETL/pkg/health"
	"github.com/whois-cat/ETL/pkg/models"
	"github.com/whois-cat/ETL/pkg/pipeline"
	"github.com/whois-cat/ETL/pkg/redis"
	"github.com/whois-cat/ETL/pkg/retry"
	"github.com/whois-cat/ETL/pkg/search"
	"github.com/whois-cat/ETL/pkg/startup"
	"github.com/whois-cat/ETL/pkg/tracing"
	"github.com/whois-cat/ETL/pkg/transform"
)

const Version = "1.0.0"

const instanceLockKey = "etl:instance"

// App owns every long-lived dependency of the process.
type App struct {
	Config *config.Config
	Logger ectologger.Logger

	DB          database.DB
	Redis       *redis.Client
	Indexer     *search.ElasticIndexer
	Store       checkpoint.Store
	Producer    *events.Producer
	Coordinator *pipeline.Coordinator
	Health      *health.Checker

	startup         *startup.Startup
	shutdownTracing func(context.Context) error
}

func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger,
		Health:  health.NewChecker(Version),
		startup: startup.New(logger, cfg.StartupMaxAttempts),
	}
}

// SourcePolicy is the retry policy for source database calls.
func (a *App) SourcePolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     a.Config.SourceRetryMaxAttempts,
		InitialInterval: a.Config.SourceRetryInitialInterval,
		MaxInterval:     a.Config.SourceRetryMaxInterval,
	}
}

// SinkPolicy is the retry policy for index upserts.
func (a *App) SinkPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     a.Config.SinkRetryMaxAttempts,
		InitialInterval: a.Config.SinkRetryInitialInterval,
		MaxInterval:     a.Config.SinkRetryMaxInterval,
	}
}

// Entries is the kind table the coordinator runs, with the configured index prefix.
func (a *App) Entries() []pipeline.Entry {
	return pipeline.DefaultEntries(a.Config.IndexName)
}

func (a *App) addRedis() {
	if !a.Config.RedisEnabled {
		return
	}
	a.startup.Add(&startup.Func{
		Name: "redis",
		StartFn: func(ctx context.Context) error {
			client, err := redis.NewClient(ctx, redis.Config{
				Host:     a.Config.RedisHost,
				Port:     a.Config.RedisPort,
				Password: a.Config.RedisPassword,
				DB:       a.Config.RedisDB,
			}, a.Logger)
			if err != nil {
				return err
			}
			a.Redis = client
			a.Health.AddCheck("redis", client.Ping)
			return nil
		},
		StopFn: func(context.Context) error { return a.Redis.Close() },
	})
}

// addKafka registers the event producer. Kafka being down only degrades health:
// events are best effort.
func (a *App) addKafka() {
	if !a.Config.KafkaEnabled {
		return
	}
	a.startup.Add(&startup.Func{
		Name: "kafka",
		StartFn: func(context.Context) error {
			a.Producer = events.NewProducer(events.ProducerConfig{
				Brokers:      a.Config.KafkaBrokers,
				Topic:        a.Config.KafkaTopic,
				BatchTimeout: time.Duration(a.Config.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.Config.KafkaRequiredAcks,
				Compression:  a.Config.KafkaCompression,
			}, a.Logger)
			a.Health.AddOptionalCheck("kafka", a.Producer.Ping)
			return nil
		},
		StopFn: func(context.Context) error { return a.Producer.Close() },
	})
}

func (a *App) addCheckpointStore() {
	var requires []string
	if a.Config.RedisEnabled {
		requires = []string{"redis"}
	}
	a.startup.Add(&startup.Func{
		Name:     "checkpoint",
		Requires: requires,
		StartFn: func(ctx context.Context) error {
			var client checkpoint.HashClient
			if a.Redis != nil {
				client = a.Redis
			}
			store, err := checkpoint.NewStore(a.Config, client, a.Logger)
			if err != nil {
				return err
			}
			a.Store = store
			return nil
		},
	})
}

// OpenCheckpoints starts only what the checkpoint commands need.
func (a *App) OpenCheckpoints(ctx context.Context) error {
	a.addRedis()
	a.addCheckpointStore()
	return a.startup.Start(ctx)
}

// Start brings up every dependency and builds the coordinator.
func (a *App) Start(ctx context.Context) error {
	cfg := a.Config

	a.startup.Add(&startup.Func{
		Name: "tracing",
		StartFn: func(ctx context.Context) error {
			shutdown, err := tracing.Setup(ctx, tracing.Config{
				ServiceName: cfg.AppName,
				Enabled:     cfg.OTLPEnabled,
				OTLP: tracing.OTLP{
					Endpoint: cfg.OTLPEndpoint,
					Protocol: cfg.OTLPProtocol,
					Insecure: cfg.OTLPInsecure,
				},
			}, a.Logger)
			if err != nil {
				return err
			}
			a.shutdownTracing = shutdown
			return nil
		},
		StopFn: func(ctx context.Context) error { return a.shutdownTracing(ctx) },
	})

	a.startup.Add(&startup.Func{
		Name: "postgres",
		StartFn: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.Options{
				DSN:             cfg.DatabaseDSN(),
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, a.Logger)
			if err != nil {
				return err
			}
			a.DB = db
			a.Health.AddCheck("postgres", db.PingContext)
			return nil
		},
		StopFn: func(context.Context) error { return a.DB.Close() },
	})

	a.startup.Add(&startup.Func{
		Name: "elasticsearch",
		StartFn: func(ctx context.Context) error {
			indexer, err := search.NewElasticIndexer(search.ElasticConfig{
				URLs:  cfg.ElasticHosts,
				Sniff: cfg.ElasticSniff,
			}, a.Logger)
			if err != nil {
				return err
			}
			if err := indexer.Ping(ctx); err != nil {
				return fmt.Errorf("elasticsearch is not reachable: %w", err)
			}
			if cfg.ElasticCreateIndices {
				indices := make(map[string]models.Kind)
				for _, e := range a.Entries() {
					indices[e.Index] = e.Kind
				}
				if err := search.EnsureIndices(ctx, indexer, indices, a.Logger); err != nil {
					return err
				}
			}
			a.Indexer = indexer
			a.Health.AddCheck("elasticsearch", indexer.Ping)
			return nil
		},
	})

	a.addRedis()
	a.addCheckpointStore()

	a.addKafka()

	requires := []string{"tracing", "postgres", "elasticsearch", "checkpoint"}
	if cfg.KafkaEnabled {
		requires = append(requires, "kafka")
	}
	a.startup.Add(&startup.Func{
		Name:     "pipeline",
		Requires: requires,
		StartFn: func(context.Context) error {
			a.Coordinator = a.newCoordinator()
			a.Health.SetStatusFunc(func() any { return a.Coordinator.Status() })
			return nil
		},
	})

	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.Health.SetReady(true)
	return nil
}

func (a *App) newCoordinator() *pipeline.Coordinator {
	deps := pipeline.Dependencies{
		Source:      extractor.NewExtractor(extractor.NewPostgresOpener(a.DB, a.Logger), a.Config.ExtractChunkSize, a.SourcePolicy(), a.Logger),
		Transformer: transform.NewTransformer(),
		Loader:      search.NewLoader(a.Indexer, a.SinkPolicy(), a.Logger),
		Store:       a.Store,
	}
	if a.Producer != nil {
		deps.Publisher = a.Producer
	}
	if a.Config.InstanceLockEnabled && a.Redis != nil {
		locker := redis.NewLocker(a.Redis, "")
		deps.Guard = redis.NewInstanceGuard(locker, instanceLockKey, a.Config.InstanceLockTTL)
	}

	return pipeline.NewCoordinator(deps, pipeline.Config{
		PollInterval: a.Config.PollInterval,
		Entries:      a.Entries(),
	}, a.Logger)
}

// Stop shuts dependencies down in reverse order.
func (a *App) Stop(ctx context.Context) error {
	a.Health.SetReady(false)
	return a.startup.Stop(ctx)
}
