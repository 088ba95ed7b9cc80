// Package server exposes the chat pipeline and indexing jobs over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"book-rag/internal/models"
	"book-rag/internal/rag"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// APIKeyHeader carries the optional shared secret
const APIKeyHeader = "X-API-Key"

// ChatService answers turns and lists the interaction log
type ChatService interface {
	Chat(ctx context.Context, turn models.Turn) (rag.ChatResponse, error)
	Logs(ctx context.Context, q models.LogQuery) (models.LogPage, error)
}

// IndexService starts and reports on indexing jobs
type IndexService interface {
	Start(ctx context.Context, dir string) (models.EmbeddingJob, error)
	Job(ctx context.Context, id string) (models.EmbeddingJob, error)
	Count(ctx context.Context) (int, error)
}

// Check probes one dependency for the health endpoint
type Check func(ctx context.Context) error

// Options configures the HTTP surface
type Options struct {
	APIKey         string
	CORSOrigins    []string
	BodyLimit      string
	RateLimit      int
	EmbedRateLimit int
	Collection     string
	// SourceRoot limits /api/embed to directories below it
	SourceRoot   string
	MetricsPath  string
	Gatherer     prometheus.Gatherer
	Checks       map[string]Check
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server is the echo application
type Server struct {
	e      *echo.Echo
	chat   ChatService
	index  IndexService
	opts   Options
	logger *slog.Logger
}

func New(chat ChatService, index IndexService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BodyLimit == "" {
		opts.BodyLimit = "64K"
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = opts.ReadTimeout
	e.Server.WriteTimeout = opts.WriteTimeout

	s := &Server{e: e, chat: chat, index: index, opts: opts, logger: opts.Logger}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				s.logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, APIKeyHeader},
	}))
	e.Use(middleware.BodyLimit(opts.BodyLimit))

	e.GET("/health", s.health)
	if opts.Gatherer != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	if opts.RateLimit > 0 {
		api.Use(rateLimiter(opts.RateLimit))
	}
	if opts.APIKey != "" {
		api.Use(s.requireAPIKey)
	}

	api.POST("/chat", s.postChat)
	api.GET("/logs", s.getLogs)
	api.GET("/embeddings/count", s.getCount)
	api.GET("/embed/jobs/:id", s.getJob)
	if opts.EmbedRateLimit > 0 {
		api.POST("/embed", s.postEmbed, rateLimiter(opts.EmbedRateLimit))
	} else {
		api.POST("/embed", s.postEmbed)
	}

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves until Shutdown is called
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "address", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// rateLimiter allows perMinute requests per client IP
func rateLimiter(perMinute int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     perMinute,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(APIKeyHeader)
		if key == "" {
			s.logger.Warn("missing api key", "remote_ip", c.RealIP())
			return echo.NewHTTPError(http.StatusUnauthorized, "API key is missing")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) != 1 {
			s.logger.Warn("invalid api key", "remote_ip", c.RealIP())
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
		}
		return next(c)
	}
}

// handleError writes every error as {"error": msg, "request_id": id}.
// Internal errors are logged and replaced with a generic message.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "Internal server error"

	var he *echo.HTTPError
	var ve *models.ValidationError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	case errors.As(err, &ve):
		code = http.StatusUnprocessableEntity
		msg = ve.Error()
	case errors.Is(err, models.ErrNotFound):
		code = http.StatusNotFound
		msg = "not found"
	}

	req := c.Request()
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request error",
			"status", code,
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", requestID,
			"error", err)
	}

	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]any{"error": msg, "request_id": requestID})
}
