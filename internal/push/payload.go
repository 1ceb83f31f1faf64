// Package push handles incoming push events: payload parsing, notification
// descriptor construction, platform delivery with fallback, and fan-out to
// connected application windows.
package push

import "encoding/json"

// Action is one interactive button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Payload is the wire format of a push message. Every field is optional;
// parsing supplies defaults so a malformed or empty payload still yields a
// displayable notification.
type Payload struct {
	Title     string   `json:"title,omitempty"`
	Body      string   `json:"body,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Badge     string   `json:"badge,omitempty"`
	Image     string   `json:"image,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	URL       string   `json:"url,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
}

// Defaults are the substitute values for absent payload fields.
type Defaults struct {
	Title string
	Body  string
	Icon  string
	Badge string
}

// ParsePayload decodes a push payload, substituting defaults for anything
// missing. A payload that cannot be parsed at all is replaced wholesale
// with the defaults rather than failing the event.
func ParsePayload(data []byte, d Defaults) *Payload {
	var p Payload
	if len(data) == 0 || json.Unmarshal(data, &p) != nil {
		p = Payload{}
	}

	if p.Title == "" {
		p.Title = d.Title
	}
	if p.Body == "" {
		p.Body = d.Body
	}
	if p.Icon == "" {
		p.Icon = d.Icon
	}
	if p.Badge == "" {
		p.Badge = d.Badge
	}
	if p.URL == "" {
		p.URL = "/"
	}
	return &p
}
