package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/prochepro/edgeworker/internal/logger"
	"github.com/prochepro/edgeworker/internal/observability/metrics"
	"github.com/prochepro/edgeworker/internal/windows"
)

// Broadcaster posts a message to every connected application window.
type Broadcaster interface {
	Broadcast(msg windows.Message) int
}

// HistoryRecorder persists the outcome of one handled push event.
// Recording is best-effort; implementations log their own failures.
type HistoryRecorder interface {
	RecordDelivery(ctx context.Context, d *Descriptor, outcome string, windowCount int)
}

// Handler processes push events. Each event is independent; the handler
// keeps no per-event state.
type Handler struct {
	notifier Notifier
	windows  Broadcaster
	history  HistoryRecorder
	defaults Defaults
	log      logger.Logger
	metrics  *metrics.Metrics
}

// NewHandler creates a push Handler. history may be nil.
func NewHandler(notifier Notifier, broadcaster Broadcaster, history HistoryRecorder, defaults Defaults, log logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		notifier: notifier,
		windows:  broadcaster,
		history:  history,
		defaults: defaults,
		log:      log,
		metrics:  m,
	}
}

// HandlePush parses the raw payload, displays a platform notification and
// broadcasts the same data to every open window. Display and broadcast run
// concurrently and independently: a broadcast failure never delays or
// prevents the notification, and both complete before HandlePush returns.
// Returned is the descriptor that was shown, for the caller's bookkeeping.
func (h *Handler) HandlePush(ctx context.Context, data []byte) (*Descriptor, error) {
	payload := ParsePayload(data, h.defaults)
	descriptor := NewDescriptor(payload)

	var (
		wg          sync.WaitGroup
		outcome     string
		displayErr  error
		windowCount int
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, displayErr = h.displayWithFallback(ctx, descriptor)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				h.log.Error("window broadcast panicked", logger.Any("panic", r))
			}
		}()
		windowCount = h.windows.Broadcast(windows.Message{
			Type: windows.MessageNotification,
			Data: descriptor,
		})
		h.metrics.RecordBroadcast(windowCount)
	}()

	wg.Wait()

	h.metrics.RecordPushDelivery(outcome)
	if h.history != nil {
		h.history.RecordDelivery(ctx, descriptor, outcome, windowCount)
	}

	if displayErr != nil {
		return descriptor, displayErr
	}
	return descriptor, nil
}

// displayWithFallback shows the notification, retrying once with the
// minimal descriptor if the platform rejects the full one.
func (h *Handler) displayWithFallback(ctx context.Context, d *Descriptor) (string, error) {
	if err := h.display(ctx, d); err == nil {
		return metrics.DeliveryDisplayed, nil
	} else {
		h.log.Warn("notification display failed, retrying with minimal descriptor",
			logger.String("tag", d.Tag),
			logger.Error(err))
	}

	if err := h.display(ctx, d.Minimal()); err != nil {
		h.log.Error("notification display failed even with minimal descriptor",
			logger.String("tag", d.Tag),
			logger.Error(err))
		return metrics.DeliveryFailed, err
	}
	return metrics.DeliveryFallback, nil
}

// display performs one display attempt. A panicking notifier counts as a
// rejected attempt so the fallback chain still runs.
func (h *Handler) display(ctx context.Context, d *Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	return h.notifier.Display(ctx, d)
}
