// Package notification periodically reports aggregate processing counts to
// an external notification endpoint.
package notification

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ankit-pn/video-ocr-service/internal/event"
	"github.com/ankit-pn/video-ocr-service/internal/stats"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

var log = logger.Get("NotifyServ")

const DefaultInterval = time.Hour

type (
	State int32

	Config struct {
		Domain   string        `yaml:"domain" env:"NOTIFICATION_API_DOMAIN" env-default:"host.docker.internal"`
		Port     int           `yaml:"port" env:"NOTIFICATION_API_PORT" env-default:"8117" validate:"gt=0,lte=65535"`
		Interval time.Duration `yaml:"interval" env:"NOTIFY_INTERVAL" env-default:"1h" validate:"gt=0"`
	}

	// SizeReader reports the total number of entries held by the result store.
	SizeReader interface {
		Size(ctx context.Context) (int64, error)
	}

	Notifier interface {
		Notify(ctx context.Context, summary Summary) error
	}

	// Scheduler fires a notification every interval. Each firing takes (and
	// resets) the processed counter, so every successful task is reported in
	// exactly one cycle.
	Scheduler struct {
		sync.Mutex
		sizer    SizeReader
		notifier Notifier
		counters *stats.Counters
		eventBus event.EventDispatcher
		interval time.Duration
		state    atomic.Int32
	}
)

const (
	Idle State = iota
	Reporting
)

func (config Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", config.Domain, config.Port)
}

func NewScheduler(sizer SizeReader, notifier Notifier, counters *stats.Counters, eventBus event.EventDispatcher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		sizer:    sizer,
		notifier: notifier,
		counters: counters,
		eventBus: eventBus,
		interval: interval,
	}
}

// Run fires a notification every interval until the context is cancelled.
// The first notification is sent one full interval after Run is called.
func (scheduler *Scheduler) Run(ctx context.Context) error {
	log.Emit(logger.INFO, "Sending notifications every %s\n", scheduler.interval)
	ticker := time.NewTicker(scheduler.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Emit(logger.STOP, "Notification scheduler stopped\n")
			return nil
		case <-ticker.C:
			scheduler.Fire(ctx)
		}
	}
}

// Fire performs a single notification cycle and returns the summary that was
// (or was attempted to be) delivered. Failures to read the store size or to
// deliver the notification are logged and never returned.
func (scheduler *Scheduler) Fire(ctx context.Context) Summary {
	scheduler.Lock()
	defer scheduler.Unlock()

	scheduler.state.Store(int32(Reporting))
	defer scheduler.state.Store(int32(Idle))

	total, err := scheduler.sizer.Size(ctx)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to read store size, reporting zero: %v\n", err)
		total = 0
	}

	summary := Summary{
		ProcessedVideos:      scheduler.counters.TakeProcessed(),
		TotalVideos:          scheduler.counters.Eligible(),
		TotalProcessedVideos: total,
	}

	deliveryErr := scheduler.notifier.Notify(ctx, summary)
	if deliveryErr != nil {
		log.Emit(logger.ERROR, "Failed to send notification: %v\n", deliveryErr)
	} else {
		log.Emit(logger.SUCCESS, "Notification sent successfully (%d processed, %d total, %d stored)\n",
			summary.ProcessedVideos, summary.TotalVideos, summary.TotalProcessedVideos)
	}

	if scheduler.eventBus != nil {
		scheduler.eventBus.Dispatch(event.NOTIFICATION_SENT, event.NotificationPayload{
			Processed:   summary.ProcessedVideos,
			Eligible:    summary.TotalVideos,
			StoreTotal:  summary.TotalProcessedVideos,
			Delivered:   deliveryErr == nil,
			DeliveryErr: deliveryErr,
		})
	}

	return summary
}

func (scheduler *Scheduler) State() State {
	return State(scheduler.state.Load())
}

func (s State) String() string {
	if s == Reporting {
		return "reporting"
	}

	return "idle"
}
