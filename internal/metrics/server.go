package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/ankit-pn/video-ocr-service/internal/stats"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logger.Get("Metrics")

type (
	Config struct {
		// HostAddr is the address the metrics server listens on. The
		// server is disabled when empty.
		HostAddr string `yaml:"host_address" env:"METRICS_ADDR"`
	}

	Status struct {
		stats.Snapshot
		Pending int `json:"pending"`
		Running int `json:"running"`
	}

	// Server is a thin wrapper around the Echo router, exposing the
	// Prometheus metrics of a Collector along with a JSON status summary.
	Server struct {
		config   Config
		ec       *echo.Echo
		counters *stats.Counters
		queue    QueueObserver
	}
)

func NewServer(config Config, collector *Collector, counters *stats.Counters, queue QueueObserver) *Server {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.Use(middleware.Recover())

	server := &Server{config: config, ec: ec, counters: counters, queue: queue}
	ec.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{})))
	ec.GET("/healthz", server.health)
	ec.GET("/status", server.status)

	return server
}

// WithFeed exposes the live event feed handler given on GET /events.
func (server *Server) WithFeed(handler http.HandlerFunc) {
	server.ec.GET("/events", echo.WrapHandler(handler))
}

// Handler returns the HTTP handler serving every route of this server.
func (server *Server) Handler() http.Handler { return server.ec }

func (server *Server) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Emit(logger.INFO, "Serving metrics on %s\n", server.config.HostAddr)
		if err := server.ec.Start(server.config.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(server.ec)

	wg.Wait()
	ctxCancel(nil)

	// Return the cause of the cancellation if the server failed, otherwise
	// nil as parent context cancellation is not an error case.
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	return nil
}

func (server *Server) health(ec echo.Context) error {
	return ec.String(http.StatusOK, "ok")
}

func (server *Server) status(ec echo.Context) error {
	status := Status{Snapshot: server.counters.Snapshot()}
	if server.queue != nil {
		status.Pending = server.queue.Pending()
		status.Running = server.queue.Running()
	}

	return ec.JSON(http.StatusOK, status)
}
