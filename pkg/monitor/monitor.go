// Package monitor serves the headset status indicator mode and stream
// statistics over HTTP.
//
// Routes:
//
//	GET /health        liveness and current status mode
//	GET /status        sample rate, per-direction format, gain and activity
//	GET /stats         per-direction histograms
//	GET /metrics       Prometheus text exposition of the status
//	GET /debug/pprof/  runtime profiles, when enabled with WithProfiling
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ardnew/usbheadset/pkg"
)

// Stream describes one streaming direction.
type Stream struct {
	Active     bool     `json:"active"`
	Alternate  uint8    `json:"alternate"`
	BytesPerMs int      `json:"bytes_per_ms"`
	Mute       [3]bool  `json:"mute"`
	Volume     [3]int16 `json:"volume"`
}

// Status is a point-in-time view of the device.
type Status struct {
	Mode          string `json:"mode"`
	BlinkPeriodMs int64  `json:"blink_period_ms"`
	SampleRate    uint32 `json:"sample_rate"`
	Speaker       Stream `json:"speaker"`
	Mic           Stream `json:"mic"`
}

// Source supplies the data served by the monitor. Implementations must be
// safe for concurrent use.
type Source interface {
	Status() Status
	Histograms() map[string][]uint32
}

// Server is the HTTP status monitor.
type Server struct {
	app       *fiber.App
	source    Source
	address   string
	startTime time.Time
}

// Option configures a Server.
type Option func(*options)

type options struct {
	profile bool
}

// WithProfiling mounts the runtime pprof handlers.
func WithProfiling(enabled bool) Option {
	return func(o *options) { o.profile = enabled }
}

// New creates a monitor serving source on address.
func New(address string, source Source, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := fiber.New(fiber.Config{
		AppName:               "usbheadset",
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestLogger())
	if o.profile {
		app.Use(pprof.New())
		pkg.LogDebug(pkg.ComponentMonitor, "pprof handlers enabled")
	}

	s := &Server{
		app:       app,
		source:    source,
		address:   address,
		startTime: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.healthHandler)
	s.app.Get("/status", s.statusHandler)
	s.app.Get("/stats", s.statsHandler)
	s.app.Get("/metrics", s.metricsHandler)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		pkg.LogInfo(pkg.ComponentMonitor, "starting monitor", "address", s.address)
		errc <- s.app.Listen(s.address)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		pkg.LogInfo(pkg.ComponentMonitor, "stopping monitor")
		if err := s.app.ShutdownWithTimeout(2 * time.Second); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	if s.source == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no device",
		})
	}
	st := s.source.Status()
	return c.JSON(fiber.Map{
		"status":         "ok",
		"mode":           st.Mode,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) statusHandler(c *fiber.Ctx) error {
	if s.source == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no device",
		})
	}
	return c.JSON(s.source.Status())
}

func (s *Server) statsHandler(c *fiber.Ctx) error {
	if s.source == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no device",
		})
	}
	return c.JSON(s.source.Histograms())
}

func (s *Server) metricsHandler(c *fiber.Ctx) error {
	if s.source == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("# no device\n")
	}
	st := s.source.Status()

	var b strings.Builder
	gauge(&b, "usbheadset_sample_rate_hz", "Current sample rate", float64(st.SampleRate))
	gauge(&b, "usbheadset_blink_period_ms", "Status indicator blink period", float64(st.BlinkPeriodMs))
	gauge(&b, "usbheadset_speaker_active", "Speaker streaming (1=active)", boolToFloat(st.Speaker.Active))
	gauge(&b, "usbheadset_mic_active", "Microphone streaming (1=active)", boolToFloat(st.Mic.Active))
	gauge(&b, "usbheadset_speaker_volume_db", "Speaker master volume", float64(st.Speaker.Volume[0])/256)
	gauge(&b, "usbheadset_mic_volume_db", "Microphone master volume", float64(st.Mic.Volume[0])/256)
	gauge(&b, "usbheadset_uptime_seconds", "Monitor uptime", float64(int64(time.Since(s.startTime).Seconds())))

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.SendString(b.String())
}

func gauge(b *strings.Builder, name, help string, v float64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, v)
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Path()
		if path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/debug/") {
			return err
		}
		pkg.LogDebug(pkg.ComponentMonitor, "http request",
			"method", c.Method(),
			"path", path,
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds())
		return err
	}
}
