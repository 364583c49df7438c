// Package metrics exposes Prometheus metrics and a small status API describing
// the progress of the service.
package metrics

import (
	"github.com/ankit-pn/video-ocr-service/internal/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	// QueueObserver reports the state of the dispatcher queue.
	QueueObserver interface {
		Pending() int
		Running() int
	}

	// Collector owns a registry of every metric the service reports. Task
	// and notification metrics are driven entirely by the event bus.
	Collector struct {
		registry *prometheus.Registry

		tasksTotal         *prometheus.CounterVec
		framesSampledTotal prometheus.Counter
		notificationsTotal *prometheus.CounterVec
	}
)

func NewCollector(eventBus event.EventHandler, queue QueueObserver) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	collector := &Collector{
		registry: registry,
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videoocr_tasks_total",
			Help: "Total number of video tasks, by outcome",
		}, []string{"outcome"}),
		framesSampledTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "videoocr_frames_sampled_total",
			Help: "Total number of frames decoded and passed to OCR",
		}),
		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "videoocr_notifications_total",
			Help: "Total number of notification cycles, by delivery result",
		}, []string{"result"}),
	}

	if queue != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "videoocr_queue_depth",
			Help: "Number of tasks waiting to be claimed by a worker",
		}, func() float64 { return float64(queue.Pending()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "videoocr_active_workers",
			Help: "Number of workers currently processing a task",
		}, func() float64 { return float64(queue.Running()) })
	}

	eventBus.RegisterHandlerFunction(event.TASK_QUEUED, collector.handleTaskEvent)
	eventBus.RegisterHandlerFunction(event.TASK_STORED, collector.handleTaskEvent)
	eventBus.RegisterHandlerFunction(event.TASK_SKIPPED, collector.handleTaskEvent)
	eventBus.RegisterHandlerFunction(event.TASK_FAILED, collector.handleTaskEvent)
	eventBus.RegisterHandlerFunction(event.NOTIFICATION_SENT, collector.handleNotificationEvent)

	return collector
}

// Registry returns the registry holding every metric of this collector.
func (collector *Collector) Registry() *prometheus.Registry {
	return collector.registry
}

func (collector *Collector) handleTaskEvent(ev event.Event, payload event.Payload) {
	p, ok := payload.(event.TaskPayload)
	if !ok {
		return
	}

	switch ev {
	case event.TASK_QUEUED:
		collector.tasksTotal.WithLabelValues("queued").Inc()
		return
	case event.TASK_STORED:
		collector.tasksTotal.WithLabelValues("stored").Inc()
	case event.TASK_SKIPPED:
		collector.tasksTotal.WithLabelValues("skipped").Inc()
	case event.TASK_FAILED:
		collector.tasksTotal.WithLabelValues("failed").Inc()
	}

	collector.framesSampledTotal.Add(float64(p.Frames))
}

func (collector *Collector) handleNotificationEvent(_ event.Event, payload event.Payload) {
	p, ok := payload.(event.NotificationPayload)
	if !ok {
		return
	}

	if p.Delivered {
		collector.notificationsTotal.WithLabelValues("delivered").Inc()
	} else {
		collector.notificationsTotal.WithLabelValues("failed").Inc()
	}
}
