package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ankit-pn/video-ocr-service/internal/dispatch"
	"github.com/ankit-pn/video-ocr-service/internal/event"
	"github.com/ankit-pn/video-ocr-service/internal/feed"
	"github.com/ankit-pn/video-ocr-service/internal/ffmpeg"
	"github.com/ankit-pn/video-ocr-service/internal/ingest"
	"github.com/ankit-pn/video-ocr-service/internal/metrics"
	"github.com/ankit-pn/video-ocr-service/internal/notification"
	"github.com/ankit-pn/video-ocr-service/internal/ocr"
	"github.com/ankit-pn/video-ocr-service/internal/stats"
	"github.com/ankit-pn/video-ocr-service/internal/store"
	"github.com/ankit-pn/video-ocr-service/internal/task"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

var log = logger.Get("Core")

var ErrStoreNotConfigured = errors.New("store API domain (REDIS_API_DOMAIN) is not configured")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// TextExtractor is a task.TextExtractor which holds resources that
	// must be released at shutdown.
	TextExtractor interface {
		task.TextExtractor
		Close() error
	}
)

// videoOCRService represents the top-level object for the server, and is
// responsible for initialising the services, stores, event handling, et
// cetera...
type videoOCRService struct {
	eventBus event.EventCoordinator
	config   ServiceConfig
	counters *stats.Counters

	store      *store.Client
	extractor  TextExtractor
	dispatcher *dispatch.Dispatcher

	ingestService   *ingest.Service
	scheduler       *notification.Scheduler
	activityService *activityService
	metricsServer   *metrics.Server
	feedHub         *feed.Hub
}

// New constructs every service using the configuration given, but does not
// start any of them. Tesseract clients are created here, so an invalid OCR
// language configuration is reported as an error.
func New(config ServiceConfig) (*videoOCRService, error) {
	extractor, err := ocr.NewExtractor(config.OCR, config.Dispatch.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to construct OCR extractor: %w", err)
	}

	return newWithExtractor(config, extractor)
}

func newWithExtractor(config ServiceConfig, extractor TextExtractor) (*videoOCRService, error) {
	log.Emit(logger.DEBUG, "Bootstrapping services using config: %#v\n", config)
	if config.Store.Domain == "" {
		return nil, ErrStoreNotConfigured
	}

	srv := &videoOCRService{
		eventBus:  event.New(),
		config:    config,
		counters:  stats.New(),
		store:     store.New(config.Store),
		extractor: extractor,
	}

	processor := task.NewProcessor(srv.store, ffmpeg.NewSampler(config.Ffmpeg), extractor, srv.counters, config.SampleStride())
	srv.dispatcher = dispatch.New(config.Dispatch, processor, srv.eventBus)

	if serv, err := ingest.New(config.Ingest, srv.dispatcher, srv.counters); err == nil {
		srv.ingestService = serv
	} else {
		return nil, fmt.Errorf("failed to construct ingest service: %w", err)
	}

	notifier := notification.NewHTTPNotifier(config.Notification.BaseURL(), config.Store.Timeout)
	srv.scheduler = notification.NewScheduler(srv.store, notifier, srv.counters, srv.eventBus, config.Notification.Interval)
	srv.activityService = newActivityService(srv.eventBus)

	if config.Metrics.HostAddr != "" {
		collector := metrics.NewCollector(srv.eventBus, srv.dispatcher)
		srv.metricsServer = metrics.NewServer(config.Metrics, collector, srv.counters, srv.dispatcher)

		srv.feedHub = feed.New(srv.eventBus)
		srv.feedHub.WithConnectionCallback(srv.feedState)
		srv.metricsServer.WithFeed(srv.feedHub.UpgradeToSocket)
	}

	return srv, nil
}

// Run will start all of the services: the worker pool, the ingest service
// (initial scan and directory watch), the notification scheduler and the
// optional metrics server.
//
// This function will not return until the services are stopped.
// To stop, the provided context must be cancelled. Errors from which a
// service cannot recover will also cause every service to stop.
func (srv *videoOCRService) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var crashErr error
	crashOnce := sync.Once{}
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		crashOnce.Do(func() { crashErr = fmt.Errorf("%s: %w", label, err) })
		cancel()
	}

	// Tasks already running when the service is stopped are allowed to
	// complete, so they must not observe the cancellation.
	if err := srv.dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	wg := &sync.WaitGroup{}
	srv.spawnAsyncService(ctx, wg, srv.activityService, "activity-service", crashHandler)
	if srv.metricsServer != nil {
		srv.spawnAsyncService(ctx, wg, srv.metricsServer, "metrics-server", crashHandler)
		srv.spawnAsyncService(ctx, wg, srv.feedHub, "event-feed", crashHandler)
	}
	srv.spawnAsyncService(ctx, wg, srv.ingestService, "ingest-service", crashHandler)
	srv.spawnAsyncService(ctx, wg, srv.scheduler, "notification-scheduler", crashHandler)
	log.Emit(logger.SUCCESS, "Started monitoring %s with %d threads.\n", srv.ingestService.Root(), srv.config.Dispatch.Workers)

	wg.Wait()

	log.Emit(logger.STOP, "Waiting for in-flight tasks to complete...\n")
	if abandoned := srv.dispatcher.Close(); abandoned > 0 {
		log.Emit(logger.WARNING, "%d queued videos were not processed and will be picked up by the next scan\n", abandoned)
	}
	if err := srv.extractor.Close(); err != nil {
		log.Emit(logger.WARNING, "Failed to release OCR resources: %v\n", err)
	}

	return crashErr
}

// feedState is the state sent to feed clients when they first connect.
func (srv *videoOCRService) feedState() map[string]any {
	snapshot := srv.counters.Snapshot()
	return map[string]any{
		"processed": snapshot.Processed,
		"eligible":  snapshot.Eligible,
		"pending":   srv.dispatcher.Pending(),
		"running":   srv.dispatcher.Running(),
	}
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the service waitgroup is updated correctly
func (srv *videoOCRService) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
