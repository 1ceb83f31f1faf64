// Package worker is the edge worker itself: it owns the cache lifecycle,
// routes every event kind to its handler, and enforces the
// wait-until-complete contract for asynchronous event work.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prochepro/edgeworker/internal/cachestore"
	"github.com/prochepro/edgeworker/internal/logger"
	"github.com/prochepro/edgeworker/internal/push"
	"github.com/prochepro/edgeworker/internal/strategy"
	"github.com/prochepro/edgeworker/internal/windows"
)

// Worker states.
const (
	stateNew int32 = iota
	stateInstalled
	stateActive
)

// Worker coordinates the cache manager, fetch executor, push handler and
// window registry behind a single event dispatch surface.
type Worker struct {
	manager     *cachestore.Manager
	executor    *strategy.Executor
	pushHandler *push.Handler
	windows     *windows.Registry
	log         logger.Logger

	state atomic.Int32
}

// New creates a Worker.
func New(manager *cachestore.Manager, executor *strategy.Executor, pushHandler *push.Handler, registry *windows.Registry, log logger.Logger) *Worker {
	return &Worker{
		manager:     manager,
		executor:    executor,
		pushHandler: pushHandler,
		windows:     registry,
		log:         log,
	}
}

// Active reports whether the worker has been activated.
func (w *Worker) Active() bool {
	return w.state.Load() == stateActive
}

// Startup installs and immediately activates the worker. The skip-waiting
// policy: a new version takes control without waiting for open windows to
// reload, trading a possible mid-session behavior change for a minimal
// staleness window.
func (w *Worker) Startup(ctx context.Context) error {
	if err := w.Dispatch(ctx, InstallEvent()); err != nil {
		return err
	}
	return w.Dispatch(ctx, ActivateEvent())
}

// Dispatch routes one event to its handler. Every Kind is matched; an
// unknown kind is a programming error.
func (w *Worker) Dispatch(ctx context.Context, ev *Event) error {
	switch ev.Kind {
	case KindInstall:
		return w.handleInstall(ctx)
	case KindActivate:
		return w.handleActivate(ctx)
	case KindFetch:
		return w.handleFetch(ctx, ev)
	case KindPush:
		return w.handlePush(ctx, ev)
	case KindNotificationClick:
		return w.handleNotificationClick(ctx, ev)
	case KindMessage:
		return w.handleMessage(ctx, ev)
	case KindSync:
		return w.handleSync(ctx, ev)
	default:
		return fmt.Errorf("unhandled event kind %d", ev.Kind)
	}
}

// handleInstall precaches the static manifest. Per-asset failures are
// already isolated inside Install; installation itself never fails.
func (w *Worker) handleInstall(ctx context.Context) error {
	w.manager.Install(ctx)
	w.state.CompareAndSwap(stateNew, stateInstalled)
	return nil
}

// handleActivate purges stale-version namespaces and claims the connected
// windows so the new version controls them without a reload.
func (w *Worker) handleActivate(ctx context.Context) error {
	w.manager.Activate(ctx)
	w.state.Store(stateActive)

	claimed := w.windows.Broadcast(windows.Message{
		Type: windows.MessageControl,
		Data: map[string]string{"event": "controllerchange"},
	})
	if claimed > 0 {
		w.log.Info("claimed connected windows", logger.Int("windows", claimed))
	}
	return nil
}

// handleFetch executes the caching strategy for the request and stores the
// result on the event for the transport layer to serve.
func (w *Worker) handleFetch(ctx context.Context, ev *Event) error {
	if ev.Request == nil {
		return fmt.Errorf("fetch event without request")
	}
	res, err := w.executor.Execute(ctx, ev.Request)
	if err != nil {
		return err
	}
	ev.FetchResult = res
	return nil
}

// handlePush runs the push handler inside a lifetime so the event is not
// considered done until both the display chain and the window broadcast
// have settled.
func (w *Worker) handlePush(ctx context.Context, ev *Event) error {
	lt := NewLifetime(w.log)
	lt.Go("display-and-broadcast", func() error {
		_, err := w.pushHandler.HandlePush(ctx, ev.Data)
		return err
	})
	return lt.Wait()
}

// handleNotificationClick dismisses the notification and focuses an
// existing window at the target URL, opening a new one only when no
// window is connected.
func (w *Worker) handleNotificationClick(ctx context.Context, ev *Event) error {
	target := "/"
	if ev.Notification != nil && ev.Notification.TargetURL != "" {
		target = ev.Notification.TargetURL
	}
	if ev.Notification != nil {
		w.log.Debug("notification dismissed", logger.String("tag", ev.Notification.Tag))
	}
	return w.windows.FocusOrOpen(target)
}

// handleMessage processes a control message from the application.
func (w *Worker) handleMessage(ctx context.Context, ev *Event) error {
	switch ev.Message {
	case MessageSkipWaiting:
		// Force this worker version active immediately.
		return w.handleActivate(ctx)
	case MessageClearCache:
		w.manager.ClearAll()
		return nil
	default:
		w.log.Warn("unknown control message", logger.String("message", ev.Message))
		return nil
	}
}

// handleSync revalidates the precache in the background: a sync event
// means connectivity is back, so missing or failed precache assets get
// another chance.
func (w *Worker) handleSync(ctx context.Context, ev *Event) error {
	w.log.Debug("sync event", logger.String("tag", ev.Tag))
	lt := NewLifetime(w.log)
	lt.Go("revalidate-precache", func() error {
		w.manager.Install(ctx)
		return nil
	})
	return lt.Wait()
}
