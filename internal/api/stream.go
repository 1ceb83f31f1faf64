package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/prochepro/edgeworker/internal/logger"
)

// StreamWindow registers the calling tab as a connected window and streams
// worker messages (notifications, navigate commands, control events) to it
// over SSE until it disconnects or the maximum stream duration elapses.
func (s *Server) StreamWindow(ctx echo.Context) error {
	setSSEHeaders(ctx)

	w := s.registry.Register()
	defer s.registry.Unregister(w.ID)

	if err := s.sendSSEMessage(ctx, "connected", map[string]string{
		"windowId": w.ID,
	}); err != nil {
		return err
	}
	s.metrics.RecordSSEMessage("connected")
	s.log.Debug("window stream opened",
		logger.String("window_id", w.ID),
		logger.String("remote", ctx.RealIP()))

	heartbeat := s.settings.Windows.HeartbeatInterval.Std()
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	maxDuration := s.settings.Windows.MaxStreamDuration.Std()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-w.Done:
			return nil

		case msg := <-w.Ch:
			if err := s.sendSSEMessage(ctx, msg.Type, msg.Data); err != nil {
				s.log.Debug("window stream write failed",
					logger.String("window_id", w.ID),
					logger.Error(err))
				return nil
			}
			s.metrics.RecordSSEMessage(msg.Type)

		case <-ticker.C:
			if maxDuration > 0 && time.Since(start) > maxDuration {
				s.log.Debug("window stream exceeded max duration",
					logger.String("window_id", w.ID))
				return nil
			}
			if err := s.sendSSEHeartbeat(ctx); err != nil {
				return nil
			}
			s.metrics.RecordSSEMessage("heartbeat")

		case <-ctx.Request().Context().Done():
			return nil
		}
	}
}

// setSSEHeaders prepares the response for server-sent events.
func setSSEHeaders(ctx echo.Context) {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	ctx.Response().WriteHeader(http.StatusOK)
}

// sendSSEMessage writes one event and flushes it to the client.
func (s *Server) sendSSEMessage(ctx echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	ctx.Response().Flush()
	return nil
}

// sendSSEHeartbeat writes an SSE comment line to keep the connection open.
func (s *Server) sendSSEHeartbeat(ctx echo.Context) error {
	if _, err := fmt.Fprint(ctx.Response(), ": heartbeat\n\n"); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}
