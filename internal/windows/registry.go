// Package windows tracks connected application windows. Each open tab of
// the web application holds an SSE stream to the worker; the registry is
// how push data and navigation commands reach them.
package windows

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prochepro/edgeworker/internal/logger"
)

// Message types posted to windows.
const (
	MessageNotification = "notification"
	MessageNavigate     = "navigate"
	MessageControl      = "control"
)

// Message is one payload posted to a window.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Window is one connected application window. Ch carries messages to the
// window's stream; Done is closed when the window is unregistered. Ch
// itself is never closed, so in-flight senders cannot race a close.
type Window struct {
	ID          string
	Ch          chan Message
	Done        chan struct{}
	ConnectedAt time.Time
}

// OpenFunc opens a brand-new window at the given URL when no window is
// connected (e.g. by asking the host shell to launch the app).
type OpenFunc func(targetURL string) error

// Registry is the set of currently connected windows. Safe for concurrent
// use; sends never block (slow windows drop messages).
type Registry struct {
	mu      sync.RWMutex
	windows map[string]*Window
	opener  OpenFunc
	log     logger.Logger
	buffer  int
}

// NewRegistry creates a Registry. Opener may be nil, in which case
// FocusOrOpen with no connected windows only logs.
func NewRegistry(buffer int, opener OpenFunc, log logger.Logger) *Registry {
	if buffer <= 0 {
		buffer = 10
	}
	return &Registry{
		windows: make(map[string]*Window),
		opener:  opener,
		log:     log,
		buffer:  buffer,
	}
}

// Register adds a new window and returns it. The caller must Unregister
// when the stream closes.
func (r *Registry) Register() *Window {
	w := &Window{
		ID:          uuid.New().String(),
		Ch:          make(chan Message, r.buffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}
	r.mu.Lock()
	r.windows[w.ID] = w
	r.mu.Unlock()

	r.log.Debug("window connected", logger.String("window_id", w.ID))
	return w
}

// Unregister removes a window and closes its Done channel. Ch stays open:
// a broadcast that snapshotted the window before removal may still be
// sending on it.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	w, ok := r.windows[id]
	if ok {
		delete(r.windows, id)
	}
	r.mu.Unlock()

	if ok {
		close(w.Done)
		r.log.Debug("window disconnected", logger.String("window_id", w.ID))
	}
}

// Count returns the number of connected windows.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.windows)
}

// Broadcast posts a message to every connected window without blocking.
// A window whose buffer is full misses the message. Returns how many
// windows received it.
func (r *Registry) Broadcast(msg Message) int {
	r.mu.RLock()
	targets := make([]*Window, 0, len(r.windows))
	for _, w := range r.windows {
		targets = append(targets, w)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, w := range targets {
		select {
		case w.Ch <- msg:
			delivered++
		default:
			r.log.Warn("window message dropped, buffer full",
				logger.String("window_id", w.ID),
				logger.String("type", msg.Type))
		}
	}
	return delivered
}

// FocusOrOpen navigates an existing window to the target URL, preferring
// the most recently connected one, or opens a new window when none is
// connected. Never opens a duplicate while a window exists.
func (r *Registry) FocusOrOpen(targetURL string) error {
	if w := r.newest(); w != nil {
		select {
		case w.Ch <- Message{Type: MessageNavigate, Data: map[string]string{"url": targetURL}}:
			r.log.Debug("focused existing window",
				logger.String("window_id", w.ID),
				logger.String("url", targetURL))
			return nil
		default:
			// Window is wedged; fall through to opening a fresh one.
			r.log.Warn("existing window unresponsive, opening new",
				logger.String("window_id", w.ID))
		}
	}

	if r.opener == nil {
		r.log.Info("no window connected and no opener configured",
			logger.String("url", targetURL))
		return nil
	}
	return r.opener(targetURL)
}

// newest returns the most recently connected window, or nil.
func (r *Registry) newest() *Window {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.windows) == 0 {
		return nil
	}
	all := make([]*Window, 0, len(r.windows))
	for _, w := range r.windows {
		all = append(all, w)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ConnectedAt.Equal(all[j].ConnectedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].ConnectedAt.After(all[j].ConnectedAt)
	})
	return all[0]
}
