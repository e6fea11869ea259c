package main

import (
	"context"
	"os"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/config"
	"github.com/Ramsey-B/sortinghat/internal/repositories"
	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/events"
	"github.com/Ramsey-B/sortinghat/pkg/genderize"
	"github.com/Ramsey-B/sortinghat/pkg/graph"
	"github.com/Ramsey-B/sortinghat/pkg/kafka"
	"github.com/Ramsey-B/sortinghat/pkg/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/redis"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/routes/health"
	"github.com/Ramsey-B/sortinghat/pkg/scheduler"
	"github.com/Ramsey-B/sortinghat/pkg/startup"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
	"github.com/Ramsey-B/sortinghat/pkg/tracing/exporters"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

type appOptions struct {
	// recovery journals unification runs to the recovery file.
	recovery bool
}

// app owns the process wide services. Each backing system is a startup
// dependency so it is retried while it comes up and closed in reverse order.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client
	recovery *unify.RecoveryFile

	registry    *registry.Service
	recommender *recommendation.Recommender
	unifier     *unify.Unifier
	locker      scheduler.Locker
	checks      []health.Check

	shutdownTracing func(context.Context) error
}

func newApp(cfg *config.Config, logger ectologger.Logger, opts appOptions) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		locker:  scheduler.NewLocalLocker(),
	}

	a.startup.AddDependency(startup.Dependency{Name: "tracing", OnStart: a.startTracing, OnStop: a.stopTracing})
	a.startup.AddDependency(startup.Dependency{Name: "database", OnStart: a.startDatabase, OnStop: a.stopDatabase})
	if cfg.RedisEnabled {
		a.startup.AddDependency(startup.Dependency{Name: "redis", OnStart: a.startRedis, OnStop: a.stopRedis})
	}
	if cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Dependency{Name: "kafka", OnStart: a.startKafka, OnStop: a.stopKafka})
	}
	if cfg.GraphDBEnabled {
		a.startup.AddDependency(startup.Dependency{Name: "graph", OnStart: a.startGraph, OnStop: a.stopGraph})
	}

	requires := []string{"tracing", "database"}
	for _, name := range []string{"redis", "kafka", "graph"} {
		if a.enabled(name) {
			requires = append(requires, name)
		}
	}
	a.startup.AddDependency(startup.Dependency{
		Name:     "registry",
		Requires: requires,
		OnStart: func(ctx context.Context) error {
			return a.startRegistry(ctx, opts)
		},
		OnStop: a.stopRegistry,
	})
	return a
}

func (a *app) enabled(name string) bool {
	switch name {
	case "redis":
		return a.cfg.RedisEnabled
	case "kafka":
		return a.cfg.KafkaEnabled
	case "graph":
		return a.cfg.GraphDBEnabled
	}
	return true
}

func (a *app) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) Stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

func (a *app) startTracing(ctx context.Context) error {
	switch a.cfg.TracingExporter {
	case "console":
		a.shutdownTracing = tracing.Init(a.cfg.AppName, exporters.NewConsoleExporter(a.logger))
	case "otlp":
		exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLP{
			Endpoint: a.cfg.OTLPEndpoint,
			Protocol: a.cfg.OTLPProtocol,
			Insecure: a.cfg.OTLPInsecure,
			Headers:  a.cfg.OTLPHeaders,
		})
		if err != nil {
			return err
		}
		a.shutdownTracing = tracing.Init(a.cfg.AppName, exporter)
	}
	return nil
}

func (a *app) stopTracing(ctx context.Context) error {
	if a.shutdownTracing == nil {
		return nil
	}
	return a.shutdownTracing(ctx)
}

func (a *app) openDatabase(ctx context.Context) error {
	db, err := database.Open(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseDSN(), a.logger)
	if err != nil {
		return err
	}
	db.SQL().SetMaxOpenConns(a.cfg.DatabaseMaxOpenConns)
	db.SQL().SetMaxIdleConns(a.cfg.DatabaseMaxIdleConns)
	db.SQL().SetConnMaxLifetime(a.cfg.DatabaseConnMaxLifetime)
	a.db = db
	return nil
}

func (a *app) migrate() error {
	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             a.cfg.DatabaseMigrationVersion,
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.Migrate(a.db, a.cfg.DatabaseName)
}

func (a *app) startDatabase(ctx context.Context) error {
	if a.db == nil {
		if err := a.openDatabase(ctx); err != nil {
			return err
		}
	}
	if a.cfg.DatabaseMigrateOnStart {
		if err := a.migrate(); err != nil {
			return err
		}
	}
	a.checks = append(a.checks, health.Check{Name: "database", Required: true, Ping: a.db.PingContext})
	return nil
}

func (a *app) stopDatabase(_ context.Context) error {
	return a.db.Close()
}

func (a *app) startRedis(_ context.Context) error {
	client, err := redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.locker = redis.NewLocker(client, "")
	a.checks = append(a.checks, health.Check{Name: "redis", Ping: client.Ping})
	return nil
}

func (a *app) stopRedis(_ context.Context) error {
	return a.redis.Close()
}

func (a *app) startKafka(_ context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	return nil
}

func (a *app) stopKafka(_ context.Context) error {
	return a.producer.Close()
}

func (a *app) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return err
	}
	a.graph = client
	a.checks = append(a.checks, health.Check{Name: "graph", Ping: client.VerifyConnectivity})
	return nil
}

func (a *app) stopGraph(ctx context.Context) error {
	return a.graph.Close(ctx)
}

func (a *app) startRegistry(_ context.Context, opts appOptions) error {
	var hooks []registry.CommitHook
	if a.producer != nil {
		hooks = append(hooks, events.NewPublisher(a.producer, a.logger))
	}
	if a.graph != nil {
		hooks = append(hooks, graph.NewProjector(a.graph, a.logger))
	}
	a.registry = registry.NewService(repositories.NewStore(a.db, a.logger), a.logger, registry.WithHooks(hooks...))

	recOpts := []recommendation.Option{recommendation.WithCacheSize(a.cfg.RecommendationCacheSize)}
	if a.cfg.GenderizeEnabled {
		recOpts = append(recOpts, recommendation.WithGuesser(genderize.NewClient(genderize.Config{
			Endpoint:   a.cfg.GenderizeEndpoint,
			APIKey:     a.cfg.GenderizeAPIKey,
			Timeout:    a.cfg.GenderizeTimeout,
			MaxRetries: a.cfg.GenderizeMaxRetries,
		}, a.logger)))
	}
	a.recommender = recommendation.NewRecommender(a.registry, a.logger, recOpts...)

	if opts.recovery {
		path, err := a.recoveryPath()
		if err != nil {
			return err
		}
		if a.recovery, err = unify.OpenRecoveryFile(path); err != nil {
			return err
		}
	}
	a.unifier = unify.NewUnifier(a.registry, a.recovery, a.logger)
	return nil
}

func (a *app) stopRegistry(_ context.Context) error {
	if a.recovery == nil {
		return nil
	}
	return a.recovery.Close()
}

func (a *app) recoveryPath() (string, error) {
	home := a.cfg.UnifyRecoveryHome
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", err
		}
	}
	return unify.RecoveryPath(home, a.cfg.DatabaseName, a.cfg.DatabaseHost, a.cfg.DatabasePort), nil
}
