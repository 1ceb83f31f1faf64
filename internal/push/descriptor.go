package push

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Descriptor is the platform notification derived from one push payload.
// The tag is the platform's coalescing key: two notifications sharing a
// tag replace each other instead of stacking.
type Descriptor struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	Image string `json:"image,omitempty"`
	Tag   string `json:"tag"`
	// RequireInteraction keeps the notification visible until the user
	// dismisses it. Always on: marketplace offers are time-sensitive.
	RequireInteraction bool `json:"requireInteraction"`
	// Silent is always false for the same reason.
	Silent    bool      `json:"silent"`
	Timestamp time.Time `json:"timestamp"`
	// TargetURL is where a click navigates. Defaults to "/".
	TargetURL string   `json:"url"`
	Actions   []Action `json:"actions,omitempty"`
}

// NewDescriptor builds a Descriptor from a parsed payload. Payloads that
// share an explicit tag coalesce (e.g. successive messages in one chat
// room); payloads without one get a synthesized unique tag so unrelated
// notifications are never merged.
func NewDescriptor(p *Payload) *Descriptor {
	tag := p.Tag
	if tag == "" {
		tag = synthesizeTag()
	}

	ts := time.Now()
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}

	return &Descriptor{
		Title:              p.Title,
		Body:               p.Body,
		Icon:               p.Icon,
		Badge:              p.Badge,
		Image:              p.Image,
		Tag:                tag,
		RequireInteraction: true,
		Silent:             false,
		Timestamp:          ts,
		TargetURL:          p.URL,
		Actions:            p.Actions,
	}
}

// Minimal strips the descriptor down to the fields every platform accepts,
// for the retry after a failed display.
func (d *Descriptor) Minimal() *Descriptor {
	return &Descriptor{
		Title:              d.Title,
		Body:               d.Body,
		Icon:               d.Icon,
		Badge:              d.Badge,
		Tag:                d.Tag,
		RequireInteraction: true,
		Timestamp:          d.Timestamp,
		TargetURL:          d.TargetURL,
	}
}

// synthesizeTag combines the current timestamp with a random suffix.
// Adequate for human-scale notification rates; not collision-free under
// bursty delivery.
func synthesizeTag() string {
	return fmt.Sprintf("prochepro-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
