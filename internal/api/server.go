// Package api exposes the worker over HTTP: the push ingestion and
// control-message channels, the SSE window stream, metrics, and the
// catch-all fetch pipeline serving same-origin requests through the
// caching strategies.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prochepro/edgeworker/internal/conf"
	"github.com/prochepro/edgeworker/internal/datastore/repository"
	"github.com/prochepro/edgeworker/internal/logger"
	"github.com/prochepro/edgeworker/internal/observability/metrics"
	"github.com/prochepro/edgeworker/internal/push"
	"github.com/prochepro/edgeworker/internal/windows"
	"github.com/prochepro/edgeworker/internal/worker"
)

const (
	// maxPushPayload bounds how much of a push body is read.
	maxPushPayload = 64 << 10
	// shutdownTimeout bounds graceful server shutdown.
	shutdownTimeout = 10 * time.Second

	// Rate limits for SSE stream connections.
	rateLimitRequestsPerWindow = 10
	rateLimitBurst             = 15
	rateLimitWindow            = 1 * time.Minute
)

// Server is the worker's HTTP surface.
type Server struct {
	echo       *echo.Echo
	worker     *worker.Worker
	registry   *windows.Registry
	settings   *conf.Settings
	deliveries repository.PushDeliveryRepository
	log        logger.Logger
	metrics    *metrics.Metrics
}

// NewServer creates the HTTP server and registers all routes. The
// deliveries repository may be nil, in which case the history endpoint
// reports service unavailable.
func NewServer(w *worker.Worker, registry *windows.Registry, settings *conf.Settings, deliveries repository.PushDeliveryRepository, promRegistry *prometheus.Registry, log logger.Logger, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		worker:     w,
		registry:   registry,
		settings:   settings,
		deliveries: deliveries,
		log:        log,
		metrics:    m,
	}

	e.Use(middleware.Recover())
	s.registerRoutes(promRegistry)
	return s
}

func (s *Server) registerRoutes(promRegistry *prometheus.Registry) {
	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rateLimitRequestsPerWindow,
				Burst:     rateLimitBurst,
				ExpiresIn: rateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "too many stream connection attempts, please wait",
			})
		},
	})

	wg := s.echo.Group("/worker")
	wg.GET("/windows/stream", s.StreamWindow, limiter)
	wg.POST("/push", s.HandlePush)
	wg.POST("/message", s.HandleControlMessage)
	wg.POST("/notification-click", s.HandleNotificationClick)
	wg.GET("/status", s.GetStatus)
	wg.GET("/deliveries", s.ListDeliveries)
	wg.GET("/deliveries/stats", s.GetDeliveryStats)
	wg.GET("/deliveries/:id", s.GetDelivery)

	if promRegistry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))
	}

	// Everything else is an intercepted fetch.
	s.echo.Any("/*", s.HandleFetch)
}

// Start runs the server until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("edge worker listening", logger.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// HandlePush ingests one push payload. The worker handles malformed
// payloads itself, so the endpoint only fails on transport errors.
func (s *Server) HandlePush(ctx echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxPushPayload))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read push payload",
		})
	}

	ev := worker.PushEvent(body)
	if err := s.worker.Dispatch(ctx.Request().Context(), ev); err != nil {
		// The notification may still have been shown via the fallback
		// descriptor; report the failure without hiding it.
		s.log.Error("push event failed", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "push delivery failed",
		})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"status": "delivered"})
}

// controlMessage is the JSON body of a control-channel request.
type controlMessage struct {
	Message string `json:"message"`
}

// HandleControlMessage processes skipWaiting / clearCache messages posted
// by the application.
func (s *Server) HandleControlMessage(ctx echo.Context) error {
	var msg controlMessage
	if err := ctx.Bind(&msg); err != nil || msg.Message == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "message is required",
		})
	}

	switch msg.Message {
	case worker.MessageSkipWaiting, worker.MessageClearCache:
	default:
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown control message %q", msg.Message),
		})
	}

	if err := s.worker.Dispatch(ctx.Request().Context(), worker.MessageEvent(msg.Message)); err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "control message failed",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// notificationClick is the JSON body of a notification click report.
type notificationClick struct {
	Tag string `json:"tag"`
	URL string `json:"url"`
}

// HandleNotificationClick reacts to a platform notification click: focus
// an existing window at the stored target URL or open a new one.
func (s *Server) HandleNotificationClick(ctx echo.Context) error {
	var click notificationClick
	if err := ctx.Bind(&click); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid click payload",
		})
	}

	descriptor := &push.Descriptor{Tag: click.Tag, TargetURL: click.URL}
	if err := s.worker.Dispatch(ctx.Request().Context(), worker.NotificationClickEvent(descriptor)); err != nil {
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to handle notification click",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus reports worker state for the application UI.
func (s *Server) GetStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"active":  s.worker.Active(),
		"windows": s.registry.Count(),
		"version": s.settings.Cache.Version,
	})
}

// HandleFetch routes an intercepted request through the worker's caching
// strategies and serves the result. Network failures with no cached
// fallback surface as 502; the offline page path never reaches here
// because the executor serves it as a normal result.
func (s *Server) HandleFetch(ctx echo.Context) error {
	ev := worker.FetchEvent(ctx.Request())
	if err := s.worker.Dispatch(ctx.Request().Context(), ev); err != nil {
		s.log.Debug("fetch failed with no fallback", logger.Error(err))
		return ctx.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream unreachable",
		})
	}

	resp := ev.FetchResult.Response
	defer func() { _ = resp.Body.Close() }()

	header := ctx.Response().Header()
	for k, vals := range resp.Header {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	header.Set("X-Served-From", ev.FetchResult.Source)

	ctx.Response().WriteHeader(resp.StatusCode)
	_, err := io.Copy(ctx.Response(), resp.Body)
	return err
}
