// Package notify pushes attendance events to a Discord webhook.
//
// Delivery is best-effort: failures are logged by the caller and never
// affect the session state machine.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EventKind tags the notification type.
type EventKind string

const (
	// TapIn is a member signing in by card or manual entry.
	TapIn EventKind = "in"
	// TapOut is a member signing out.
	TapOut EventKind = "out"
	// AutoClose is a session force-closed by the daily sweep.
	AutoClose EventKind = "auto"
)

// Event is one attendance notification.
type Event struct {
	Kind     EventKind
	Name     string
	Position string
	At       time.Time
	// Duration is set for TapOut and AutoClose.
	Duration *time.Duration
}

const (
	colorGreen = 0x00FF00
	colorRed   = 0xFF0000
)

// Webhook sends Discord embed notifications.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook constructs a notifier for the given webhook URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Fields      []embedField `json:"fields"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Send posts one event to the webhook. Discord acknowledges with 204.
func (w *Webhook) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(payload{Embeds: []embed{buildEmbed(ev)}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func buildEmbed(ev Event) embed {
	e := embed{
		Description: fmt.Sprintf("**%s** (%s)", ev.Name, ev.Position),
		Timestamp:   ev.At.UTC().Format(time.RFC3339),
		Fields: []embedField{
			{Name: "Time", Value: ev.At.Format("03:04 PM"), Inline: true},
		},
	}
	if ev.Position == "" {
		e.Description = fmt.Sprintf("**%s**", ev.Name)
	}

	switch ev.Kind {
	case TapIn:
		e.Title = "Member Tap In"
		e.Color = colorGreen
	case TapOut:
		e.Title = "Member Tap Out"
		e.Color = colorRed
	case AutoClose:
		e.Title = "Member Auto Sign-Out"
		e.Color = colorRed
	}

	if ev.Duration != nil {
		d := *ev.Duration
		e.Fields = append(e.Fields, embedField{
			Name:   "Duration",
			Value:  fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60),
			Inline: true,
		})
	}

	return e
}
