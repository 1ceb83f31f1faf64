package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/prochepro/edgeworker/internal/datastore/repository"
	"github.com/prochepro/edgeworker/internal/logger"
	"github.com/prochepro/edgeworker/internal/observability/metrics"
)

const (
	defaultDeliveryPageSize = 50
	maxDeliveryPageSize     = 500
)

// ListDeliveries returns push delivery history, newest first.
// GET /worker/deliveries?tag=&outcome=&limit=&offset=
func (s *Server) ListDeliveries(ctx echo.Context) error {
	if s.deliveries == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "delivery history not available",
		})
	}

	filter := repository.PushDeliveryFilter{
		Tag:     ctx.QueryParam("tag"),
		Outcome: ctx.QueryParam("outcome"),
		Limit:   defaultDeliveryPageSize,
	}
	if raw := ctx.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
		}
		filter.Limit = min(limit, maxDeliveryPageSize)
	}
	if raw := ctx.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "offset must be a non-negative integer",
			})
		}
		filter.Offset = offset
	}

	items, total, err := s.deliveries.ListDeliveries(ctx.Request().Context(), filter)
	if err != nil {
		s.log.Error("failed to list push deliveries", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list deliveries",
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"deliveries": items,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

// GetDelivery returns one push delivery record.
// GET /worker/deliveries/:id
func (s *Server) GetDelivery(ctx echo.Context) error {
	if s.deliveries == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "delivery history not available",
		})
	}

	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "id must be a positive integer",
		})
	}

	delivery, err := s.deliveries.GetDelivery(ctx.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrDeliveryNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": "delivery not found",
			})
		}
		s.log.Error("failed to get push delivery", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to get delivery",
		})
	}
	return ctx.JSON(http.StatusOK, delivery)
}

// GetDeliveryStats returns delivery counts per outcome.
// GET /worker/deliveries/stats
func (s *Server) GetDeliveryStats(ctx echo.Context) error {
	if s.deliveries == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "delivery history not available",
		})
	}

	outcomes := []string{
		metrics.DeliveryDisplayed,
		metrics.DeliveryFallback,
		metrics.DeliveryFailed,
	}
	counts := make(map[string]int64, len(outcomes))
	for _, outcome := range outcomes {
		n, err := s.deliveries.CountByOutcome(ctx.Request().Context(), outcome)
		if err != nil {
			s.log.Error("failed to count push deliveries", logger.Error(err))
			return ctx.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to count deliveries",
			})
		}
		counts[outcome] = n
	}
	return ctx.JSON(http.StatusOK, map[string]any{"outcomes": counts})
}
