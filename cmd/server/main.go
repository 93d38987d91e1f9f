package main

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/eternis-tender/tender-pipeline/pkg/aggregator"
	"github.com/eternis-tender/tender-pipeline/pkg/alerting"
	"github.com/eternis-tender/tender-pipeline/pkg/api"
	"github.com/eternis-tender/tender-pipeline/pkg/blob"
	"github.com/eternis-tender/tender-pipeline/pkg/bootstrap"
	"github.com/eternis-tender/tender-pipeline/pkg/config"
	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/events"
	"github.com/eternis-tender/tender-pipeline/pkg/expander"
	"github.com/eternis-tender/tender-pipeline/pkg/extractor"
	"github.com/eternis-tender/tender-pipeline/pkg/finalizer"
	"github.com/eternis-tender/tender-pipeline/pkg/logging"
	"github.com/eternis-tender/tender-pipeline/pkg/queue"
	"github.com/eternis-tender/tender-pipeline/pkg/worker"
)

func provideConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithAutoDetection()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *log.Logger {
	return bootstrap.NewLogger(cfg)
}

func provideLoggingFactory(cfg *config.Config, logger *log.Logger) *logging.Factory {
	return logging.NewFactoryWithConfig(logger, cfg.ComponentLogLevels)
}

func provideStore(lc fx.Lifecycle, cfg *config.Config, lf *logging.Factory) (*db.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := db.NewStore(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, lf.ForDatabase("store"))
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func provideBlobStore(cfg *config.Config) (blob.Store, error) {
	store, err := blob.New(context.Background(), blob.Backend(cfg.BlobBackend), cfg.BlobRoot)
	if err != nil {
		return nil, errors.Wrap(err, "open blob store")
	}
	return store, nil
}

func provideRedisClient(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opt)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func provideQueue(cfg *config.Config, client *redis.Client) queue.Queue {
	return queue.NewRedisQueue(client, cfg.QueueKey)
}

func provideEventBus(logger *log.Logger) *events.EventBus {
	events.SetGlobalEventBusLogger(logger)
	return events.GetGlobalEventBus()
}

func provideAlertingSubscriber(bus *events.EventBus, store *db.Store, lf *logging.Factory) *alerting.Subscriber {
	return alerting.NewSubscriber(bus, store, lf.ForComponent("alerting"))
}

func provideTextExtractor() extractor.TextExtractor {
	return extractor.NewDocumentTextExtractor()
}

func provideStructuredExtractor(cfg *config.Config) extractor.StructuredExtractor {
	return extractor.NewOpenAIStructuredExtractor(cfg.CompletionsAPIKey, cfg.CompletionsAPIURL, cfg.CompletionsModel)
}

func provideExpander(store *db.Store, blobStore blob.Store, q queue.Queue, cfg *config.Config, lf *logging.Factory) *expander.Expander {
	return expander.New(store, blobStore, q, lf.ForExpander("expander"), cfg.MaxArchiveDepth, cfg.SupportedExtensions)
}

func provideFinalizer(store *db.Store, q queue.Queue, lf *logging.Factory) *finalizer.Finalizer {
	return finalizer.New(store, q, lf.ForFinalizer("finalizer"))
}

func provideAggregator(store *db.Store, lf *logging.Factory) *aggregator.Aggregator {
	return aggregator.New(store, lf.ForAggregator("aggregator"))
}

func provideWorker(
	cfg *config.Config,
	store *db.Store,
	blobStore blob.Store,
	q queue.Queue,
	textExt extractor.TextExtractor,
	structExt extractor.StructuredExtractor,
	fin *finalizer.Finalizer,
	agg *aggregator.Aggregator,
	bus *events.EventBus,
	lf *logging.Factory,
) *worker.Worker {
	return worker.New(cfg, store, blobStore, q, textExt, structExt, fin, agg, bus, lf.ForWorker("worker"))
}

func provideRouter(cfg *config.Config, store *db.Store, blobStore blob.Store, exp *expander.Expander, fin *finalizer.Finalizer, lf *logging.Factory) http.Handler {
	return api.NewRouter(cfg, store, blobStore, exp, fin, lf.ForAPI("api"))
}

// runServices starts the worker's consume/reap loops and the HTTP API
// server under fx's lifecycle. Depending on the alerting subscriber
// ensures it has registered its event handlers before the worker starts
// publishing events.
func runServices(lc fx.Lifecycle, cfg *config.Config, logger *log.Logger, w *worker.Worker, router http.Handler, _ *alerting.Subscriber) {
	bootstrap.RegisterRunnable(lc, logger, "worker", w)
	bootstrap.StartHTTPServer(lc, logger, ":"+cfg.HTTPPort, router)
}

func main() {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLoggingFactory,
			provideStore,
			provideBlobStore,
			provideRedisClient,
			provideQueue,
			provideEventBus,
			provideAlertingSubscriber,
			provideTextExtractor,
			provideStructuredExtractor,
			provideExpander,
			provideFinalizer,
			provideAggregator,
			provideWorker,
			provideRouter,
		),
		fx.Invoke(runServices),
		fx.WithLogger(func(logger *log.Logger) fxevent.Logger {
			return bootstrap.NewFxLogger(logger)
		}),
	)

	app.Run()
}
