package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ankit-pn/video-ocr-service/internal/stats"
	"github.com/ankit-pn/video-ocr-service/internal/task"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("IngestServ")

// notify drops events rather than blocking when the receiving channel
// is full, so the channel is buffered generously.
const watchBufferSize = 256

type (
	Submitter interface {
		Submit(ctx context.Context, d task.Descriptor) error
	}

	// Service is responsible for detecting eligible videos on the
	// host file system and submitting a task for each of them:
	// - An initial scan of the tree submits every existing video
	// - A recursive watch submits every video created afterwards
	// - The eligible counter is kept up to date with the tree
	Service struct {
		config    Config
		root      string
		filter    Filter
		keyer     task.Keyer
		submitter Submitter
		counters  *stats.Counters
		recounts  chan struct{}
	}
)

// New creates a new ingest Service.
//
// The configs 'Path' is validated to be an existing directory.
// If the directory is missing it will be created, if the path
// provided points to an existing FILE, an error is returned.
func New(config Config, submitter Submitter, counters *stats.Counters) (*Service, error) {
	root, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("videos path '%s' could not be resolved: %w", config.Path, err)
	}

	if info, err := os.Stat(root); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("videos path '%s' is not a directory", root)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(root, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("videos path '%s' could not be created: %w", root, err)
		}
	} else {
		return nil, fmt.Errorf("videos path '%s' could not be accessed: %w", root, err)
	}

	return &Service{
		config:    config,
		root:      root,
		filter:    NewFilter(config.Extensions),
		keyer:     task.NewKeyer(root, config.KeyStrategy),
		submitter: submitter,
		counters:  counters,
		recounts:  make(chan struct{}, 1),
	}, nil
}

// Root returns the absolute path of the directory being monitored.
func (service *Service) Root() string { return service.root }

// Run is the main entry point of this service. The watch on the
// directory is established before the initial scan so that a file
// created during the scan is at worst submitted twice, and never missed.
//
// Draining the watch never waits on a submission: created paths are moved
// to an unbounded backlog which is submitted from its own goroutine, and
// the initial scan runs on another.
//
// To stop the service, the calling code should cancel the context
// provided. Run returns once the scan and the backlog goroutines have
// stopped.
func (service *Service) Run(ctx context.Context) error {
	events := make(chan notify.EventInfo, watchBufferSize)
	if err := notify.Watch(filepath.Join(service.root, "..."), events, notify.Create); err != nil {
		return fmt.Errorf("failed to watch %s: %w", service.root, err)
	}
	defer notify.Stop(events)

	created := newBacklog()
	wg := &sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		service.recountLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		if _, err := service.Scan(ctx); err != nil && ctx.Err() == nil {
			log.Emit(logger.ERROR, "Initial scan of %s failed: %v\n", service.root, err)
		}
		service.requestRecount()
	}()
	go func() {
		defer wg.Done()
		for {
			path, ok := created.Pop(ctx)
			if !ok {
				return
			}

			service.handleCreate(ctx, path)
		}
	}()

	for {
		select {
		case ev := <-events:
			created.Push(ev.Path())
		case <-ctx.Done():
			wg.Wait()
			if n := created.Len(); n > 0 {
				log.Emit(logger.WARNING, "%d created paths were not submitted and will be picked up by the next scan\n", n)
			}
			log.Emit(logger.STOP, "No longer monitoring %s\n", service.root)
			return nil
		}
	}
}

// Scan walks the monitored tree once, submitting a task for every eligible
// video found and incrementing the eligible counter for each. The walk stops
// when the context is cancelled. The number of videos submitted is returned.
func (service *Service) Scan(ctx context.Context) (int, error) {
	submitted := 0
	err := Walk(service.root, service.filter, func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := service.submit(ctx, path); err != nil {
			return err
		}

		service.counters.AddEligible(1)
		submitted++
		return nil
	})

	if ctx.Err() != nil {
		log.Emit(logger.STOP, "Initial scan of %s cancelled after submitting %d videos\n", service.root, submitted)
	} else {
		log.Emit(logger.INFO, "Initial scan of %s submitted %d videos\n", service.root, submitted)
	}
	return submitted, err
}

// handleCreate submits a task for a newly created path if it is an
// eligible video, and then requests a recount of the eligible files.
func (service *Service) handleCreate(ctx context.Context, path string) {
	if !service.filter.Matches(path) {
		log.Emit(logger.VERBOSE, "Ignoring created path %s\n", path)
		return
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}

	if err := service.submit(ctx, path); err != nil {
		if ctx.Err() == nil {
			log.Emit(logger.ERROR, "Failed to submit %s: %v\n", path, err)
		}
		return
	}

	service.requestRecount()
}

func (service *Service) submit(ctx context.Context, path string) error {
	d := service.keyer.Descriptor(path)
	if err := service.submitter.Submit(ctx, d); err != nil {
		return err
	}

	log.Emit(logger.NEW, "Submitted %s\n", d)
	return nil
}

// requestRecount asks the recount goroutine to recount the eligible files.
// Requests made while one is already pending are coalesced.
func (service *Service) requestRecount() {
	select {
	case service.recounts <- struct{}{}:
	default:
	}
}

// recountLoop performs full recounts of the eligible files on request,
// replacing the eligible counter with the fresh count.
func (service *Service) recountLoop(ctx context.Context) {
	for {
		select {
		case <-service.recounts:
			count, err := CountEligible(service.root, service.filter)
			if err != nil {
				log.Emit(logger.WARNING, "Recount of eligible videos failed: %v\n", err)
				continue
			}

			service.counters.SetEligible(count)
			log.Emit(logger.DEBUG, "Eligible video count is now %d\n", count)
		case <-ctx.Done():
			return
		}
	}
}
