package worker

import (
	"net/http"

	"github.com/prochepro/edgeworker/internal/push"
	"github.com/prochepro/edgeworker/internal/strategy"
)

// Kind enumerates every event the worker handles. Dispatch matches
// exhaustively, so adding a kind without a handler fails fast.
type Kind int

const (
	KindInstall Kind = iota
	KindActivate
	KindFetch
	KindPush
	KindNotificationClick
	KindMessage
	KindSync
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindInstall:
		return "install"
	case KindActivate:
		return "activate"
	case KindFetch:
		return "fetch"
	case KindPush:
		return "push"
	case KindNotificationClick:
		return "notificationclick"
	case KindMessage:
		return "message"
	case KindSync:
		return "sync"
	default:
		return "unknown"
	}
}

// Control messages accepted on the message channel.
const (
	MessageSkipWaiting = "skipWaiting"
	MessageClearCache  = "clearCache"
)

// Event is one unit of work dispatched to the worker. Only the fields for
// its kind are set.
type Event struct {
	Kind Kind

	// Request is the intercepted request (fetch events).
	Request *http.Request
	// Data is the raw push payload (push events).
	Data []byte
	// Message is the control message body (message events).
	Message string
	// Notification is the clicked notification (notificationclick events).
	Notification *push.Descriptor
	// Tag identifies the sync registration (sync events).
	Tag string

	// FetchResult is populated by Dispatch for fetch events.
	FetchResult *strategy.Result
}

// InstallEvent builds an install event.
func InstallEvent() *Event { return &Event{Kind: KindInstall} }

// ActivateEvent builds an activate event.
func ActivateEvent() *Event { return &Event{Kind: KindActivate} }

// FetchEvent builds a fetch event for the given request.
func FetchEvent(req *http.Request) *Event {
	return &Event{Kind: KindFetch, Request: req}
}

// PushEvent builds a push event carrying the raw payload.
func PushEvent(data []byte) *Event {
	return &Event{Kind: KindPush, Data: data}
}

// NotificationClickEvent builds a click event for the given notification.
func NotificationClickEvent(d *push.Descriptor) *Event {
	return &Event{Kind: KindNotificationClick, Notification: d}
}

// MessageEvent builds a control message event.
func MessageEvent(msg string) *Event {
	return &Event{Kind: KindMessage, Message: msg}
}

// SyncEvent builds a background sync event.
func SyncEvent(tag string) *Event {
	return &Event{Kind: KindSync, Tag: tag}
}
