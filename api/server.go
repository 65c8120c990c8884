// Package api serves the answering pipeline and its transcripts over HTTP.
package api

import (
	"context"
	"errors"
	"net"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/pkg/llm"
	"github.com/papercomputeco/verity/pkg/metrics"
	"github.com/papercomputeco/verity/pkg/pipeline"
	"github.com/papercomputeco/verity/pkg/transcript"
)

var validate = validator.New()

// Asker answers one request. *pipeline.Pipeline implements it.
type Asker interface {
	Ask(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Config is the server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// Settings applied when a request does not override them.
	Settings pipeline.Settings

	// Debug lets clients request the draft and raw validator output.
	Debug bool
}

// Server exposes the pipeline over HTTP. It holds no per-request state; each
// chat request is answered independently and recorded as a transcript.
type Server struct {
	config   Config
	asker    Asker
	recorder *transcript.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	app      *fiber.App
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a Server. recorder may be nil, which disables transcript
// recording and the /transcripts routes.
func NewServer(config Config, asker Asker, recorder *transcript.Recorder, logger *zap.Logger, opts ...Option) (*Server, error) {
	if asker == nil {
		return nil, errors.New("api server requires a pipeline")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		asker:    asker,
		recorder: recorder,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Post("/api/chat", s.handleChat)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	if s.recorder != nil {
		app.Get("/transcripts", s.handleListTranscripts)
		app.Get("/transcripts/stats", s.handleStats)
		app.Get("/transcripts/nodes/:hash", s.handleGetNode)
		app.Post("/transcripts/nodes", s.handleImportNodes)
		app.Get("/transcripts/:hash", s.handleGetTranscript)
	}

	s.app = app
	return s, nil
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting verity server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("model", s.config.Settings.Model),
		zap.Bool("debug", s.config.Debug),
	)

	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting verity server", zap.String("listen", ln.Addr().String()))

	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorJSON writes an error body with the given status.
func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(llm.ErrorResponse{Error: msg})
}
