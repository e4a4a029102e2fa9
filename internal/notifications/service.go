package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"tmdbsync/internal/config"
)

const userAgent = "tmdbsync/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventRunCompleted Event = "run_completed"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries event-specific values. Recognised keys:
//
//	kind, succeeded, skipped, failed, duration, delivered, error, context
type Payload map[string]any

// Service defines the notification surface exposed to the sync runner.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		runCompleted: cfg.Notifications.RunCompleted,
		errors:       cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	runCompleted bool
	errors       bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	var (
		msg message
		ok  bool
	)
	switch event {
	case EventRunCompleted:
		if !n.runCompleted {
			return nil
		}
		msg, ok = runCompletedMessage(payload), true
	case EventRunFailed:
		if !n.errors {
			return nil
		}
		msg, ok = runFailedMessage(payload), true
	case EventTest:
		msg = message{
			title:    "tmdbsync - Test",
			body:     "Notification system test",
			tags:     []string{"tmdbsync", "test"},
			priority: "low",
		}
		ok = true
	}
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func runCompletedMessage(p Payload) message {
	kind := p.text("kind")
	if kind == "" {
		kind = "items"
	}
	failed := p.number("failed")
	var b strings.Builder
	fmt.Fprintf(&b, "Synced %s: %d delivered, %d skipped, %d failed",
		kind, p.number("succeeded"), p.number("skipped"), failed)
	if d := p.duration("duration"); d > 0 {
		fmt.Fprintf(&b, " in %s", d)
	}
	if delivered, ok := p["delivered"].(map[string]int); ok && len(delivered) > 0 {
		names := make([]string, 0, len(delivered))
		for name := range delivered {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "\n%s: %d", name, delivered[name])
		}
	}
	title := "tmdbsync - Run Complete"
	if failed > 0 {
		title = "tmdbsync - Run Complete (with errors)"
	}
	return message{
		title: title,
		body:  b.String(),
		tags:  []string{"tmdbsync", kind, "completed"},
	}
}

func runFailedMessage(p Payload) message {
	var b strings.Builder
	b.WriteString("Run failed")
	if label := p.text("context"); label != "" {
		b.WriteString(" during ")
		b.WriteString(label)
	}
	b.WriteString(": ")
	if text := p.text("error"); text != "" {
		b.WriteString(text)
	} else {
		b.WriteString("unknown")
	}
	return message{
		title:    "tmdbsync - Error",
		body:     b.String(),
		tags:     []string{"tmdbsync", "error", "alert"},
		priority: "high",
	}
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return ""
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func (p Payload) duration(key string) time.Duration {
	d, _ := p[key].(time.Duration)
	return d.Round(time.Second)
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
