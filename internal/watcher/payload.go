package watcher

import (
	"encoding/json"
	"strings"

	"spot/internal/domain/service"
)

// PushPayload is the decoded body of a platform push delivery. Senders are
// not trusted to produce well-formed JSON, so parsing is best-effort.
type PushPayload struct {
	Zone      string `json:"zone,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	Icon      string `json:"icon,omitempty"`
	URL       string `json:"url,omitempty"`
	Tag       string `json:"tag,omitempty"`
}

// ParsePushPayload decodes a push body. Raw text that is not JSON becomes
// the notification title so the delivery is still user-visible.
func ParsePushPayload(raw []byte) PushPayload {
	var payload PushPayload
	if len(raw) == 0 {
		return payload
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return PushPayload{Title: strings.TrimSpace(string(raw))}
	}

	return payload
}

// Notification builds the user-visible alert for this payload, filling in a
// title when the sender supplied none.
func (p PushPayload) Notification() service.Notification {
	title := p.Title
	if title == "" {
		if p.Zone != "" {
			title = "New prices available for " + p.Zone
		} else {
			title = "Spot"
		}
	}

	return service.Notification{
		Title: title,
		Body:  p.Body,
		Icon:  p.Icon,
		URL:   p.URL,
		Tag:   p.Tag,
	}
}
