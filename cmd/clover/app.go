package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/groundtruth"
	"github.com/Ramsey-B/clover/pkg/linkage"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// app holds the process wiring shared by every command.
type app struct {
	cfg    config.Config
	recipe *config.Recipe
	logger ectologger.Logger
	runID  string

	startup         *startup.Startup
	shutdownTracing func(context.Context) error

	db       *sqlx.DB
	store    *graph.LinkStore
	producer *events.Producer
}

type needs struct {
	sql   bool
	graph bool
	kafka bool
}

// newApp loads configuration and the recipe, builds the logger and tracer, and starts the
// dependencies the command needs.
func newApp(ctx context.Context, n needs) (*app, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, err
	}

	recipe, err := config.LoadRecipe(recipePath)
	if err != nil {
		return nil, err
	}

	shutdown, err := tracing.Setup(ctx, cfg.AppName, cfg.OtelExporterEndpoint)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:             cfg,
		recipe:          recipe,
		logger:          logger,
		runID:           uuid.NewString(),
		startup:         startup.New(logger, cfg.StartupMaxAttempts),
		shutdownTracing: shutdown,
	}
	a.logger = logger.WithFields(map[string]any{
		"run_id": a.runID,
		"recipe": recipe.Name,
	})

	if n.sql {
		a.startup.Add(startup.Func{
			DependencyName: "sql",
			StartFunc:      a.startSQL,
			StopFunc: func(context.Context) error {
				return a.db.Close()
			},
		})
	}
	if n.graph && cfg.GraphEnabled {
		a.startup.Add(startup.Func{
			DependencyName: "graph",
			StartFunc:      a.startGraph,
			StopFunc: func(ctx context.Context) error {
				if a.store == nil {
					return nil
				}
				return a.store.Close(ctx)
			},
		})
	}
	if n.kafka && cfg.KafkaEnabled {
		a.startup.Add(startup.Func{
			DependencyName: "kafka",
			StartFunc:      a.startKafka,
			StopFunc: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}

	if err := a.startup.Start(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) startSQL(ctx context.Context) error {
	if a.db == nil {
		db, err := sqlx.Open(a.cfg.DatabaseDriver, a.cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
	}
	return a.db.PingContext(ctx)
}

func (a *app) startGraph(ctx context.Context) error {
	if a.store == nil {
		store, err := graph.Open(a.cfg.GraphConfig(), a.runID, a.logger)
		if err != nil {
			return err
		}
		a.store = store
	}
	return a.store.VerifyConnectivity(ctx)
}

func (a *app) startKafka(ctx context.Context) error {
	if len(a.cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", a.cfg.KafkaBrokers[0])
	if err != nil {
		return fmt.Errorf("failed to reach kafka broker %s: %w", a.cfg.KafkaBrokers[0], err)
	}
	if err := conn.Close(); err != nil {
		return err
	}
	if a.producer == nil {
		a.producer = events.NewProducer(a.cfg.ProducerConfig(a.runID), a.logger)
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to stop dependencies")
	}
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to flush traces")
	}
}

// linkWriters returns the configured link sinks: the graph store and the event stream.
func (a *app) linkWriters() []linkage.LinkWriter {
	var writers []linkage.LinkWriter
	if a.store != nil {
		writers = append(writers, a.store)
	}
	if a.producer != nil {
		writers = append(writers, a.producer)
	}
	return writers
}

// linkageRecipe binds the YAML recipe to the SQL record table.
func (a *app) linkageRecipe() (linkage.Recipe, error) {
	storedFields, queryFields, err := a.recipe.FieldIDs()
	if err != nil {
		return linkage.Recipe{}, err
	}
	oracle, err := a.recipe.Oracle()
	if err != nil {
		return linkage.Recipe{}, err
	}
	trueLinks, err := a.recipe.TrueLinks()
	if err != nil {
		return linkage.Recipe{}, err
	}

	storedSchema, querySchema := a.recipe.Schemas()
	r := linkage.Recipe{
		Name:           a.recipe.Name,
		LinkType:       a.recipe.LinkType,
		Stored:         records.NewSQLSource(a.db, storedSchema, a.cfg.SourceConfig(storedSchema.Type, 0), a.logger),
		StoredRole:     a.recipe.StoredRole,
		QueryRole:      a.recipe.QueryRole,
		Symmetric:      a.recipe.Symmetric,
		StoredFields:   storedFields,
		QueryFields:    queryFields,
		RequiredFields: a.recipe.RequiredFields,
		Limit:          a.recipe.Limit,
		Measure:        a.recipe.MeasureFactory(),
		Oracle:         oracle,
		TrueLinks:      trueLinks,
		Writers:        a.linkWriters(),
	}
	if !a.recipe.Symmetric {
		r.Query = records.NewSQLSource(a.db, querySchema, a.cfg.SourceConfig(querySchema.Type, 0), a.logger)
	}
	return r, r.Validate()
}

// truthFunc judges graph nodes by looking their records up and asking the oracle. Pairs with an
// unknown record are Unknown.
func truthFunc(oracle groundtruth.Oracle, stored, query []records.Record) func(a, b string) groundtruth.Status {
	storedIdx := records.NewIndex(stored)
	queryIdx := records.NewIndex(query)
	return func(a, b string) groundtruth.Status {
		if ra, ok := storedIdx.Resolve(a); ok {
			if rb, ok := queryIdx.Resolve(b); ok {
				return oracle.IsTrueMatch(ra, rb)
			}
		}
		if rb, ok := storedIdx.Resolve(b); ok {
			if ra, ok := queryIdx.Resolve(a); ok {
				return oracle.IsTrueMatch(rb, ra)
			}
		}
		return groundtruth.Unknown
	}
}

// distanceFunc measures graph nodes by their records. Like truthFunc it keeps the stored and query
// id spaces apart and tries the stored-first orientation before the reverse.
func distanceFunc(metric linkage.Metric, stored, query []records.Record) func(a, b string) (float64, bool) {
	storedIdx := records.NewIndex(stored)
	queryIdx := records.NewIndex(query)
	measure := func(rs, rq records.Record) (float64, bool) {
		d, err := metric.Distance(rs, rq)
		if err != nil {
			return 0, false
		}
		return d, true
	}
	return func(a, b string) (float64, bool) {
		if ra, ok := storedIdx.Resolve(a); ok {
			if rb, ok := queryIdx.Resolve(b); ok {
				return measure(ra, rb)
			}
		}
		if rb, ok := storedIdx.Resolve(b); ok {
			if ra, ok := queryIdx.Resolve(a); ok {
				return measure(rb, ra)
			}
		}
		return 0, false
	}
}
