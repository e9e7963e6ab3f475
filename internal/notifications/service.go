package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"synthbridge/internal/config"
)

const userAgent = "synthbridge/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventRunCompleted   Event = "run_completed"
	EventRunFailed      Event = "run_failed"
	EventBatchCompleted Event = "batch_completed"
	EventTest           Event = "test"
)

// Payload carries event fields. Recognised keys depend on the event:
//
//	run_completed    tool, job, duration (time.Duration)
//	run_failed       tool, job, kind, error
//	batch_completed  succeeded, failed, skipped (int), duration
type Payload map[string]any

// Service publishes events.
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunCompleted:
		if !n.settings.Runs {
			return message{}, false
		}
		duration := payload.duration("duration")
		if min := time.Duration(n.settings.MinRunSeconds) * time.Second; duration < min {
			return message{}, false
		}
		tool := payload.text("tool", "tool")
		return message{
			title: "synthbridge - Run Complete",
			body:  fmt.Sprintf("%s finished %s in %s", tool, payload.text("job", "job"), formatDuration(duration)),
			tags:  []string{"synthbridge", tool, "completed"},
		}, true
	case EventRunFailed:
		if !n.settings.Errors {
			return message{}, false
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s failed on %s", payload.text("tool", "tool"), payload.text("job", "job"))
		if kind := payload.text("kind", ""); kind != "" {
			fmt.Fprintf(&b, " [%s]", kind)
		}
		b.WriteString(": ")
		b.WriteString(payload.text("error", "unknown"))
		return message{
			title:    "synthbridge - Run Failed",
			body:     b.String(),
			tags:     []string{"synthbridge", "error", "alert"},
			priority: "high",
		}, true
	case EventBatchCompleted:
		if !n.settings.Batches {
			return message{}, false
		}
		succeeded := payload.number("succeeded")
		failed := payload.number("failed")
		skipped := payload.number("skipped")
		duration := formatDuration(payload.duration("duration"))
		if failed == 0 && skipped == 0 {
			return message{
				title: "synthbridge - Batch Complete",
				body:  fmt.Sprintf("Batch complete: %d jobs in %s", succeeded, duration),
				tags:  []string{"synthbridge", "batch", "completed"},
			}, true
		}
		return message{
			title:    "synthbridge - Batch Complete (with errors)",
			body:     fmt.Sprintf("Batch complete: %d succeeded, %d failed, %d skipped in %s", succeeded, failed, skipped, duration),
			tags:     []string{"synthbridge", "batch", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "synthbridge - Test",
			body:     "Notification system test",
			tags:     []string{"synthbridge", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
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

func (p Payload) text(key, fallback string) string {
	switch v := p[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	case error:
		if v != nil {
			return strings.TrimSpace(v.Error())
		}
	case fmt.Stringer:
		return v.String()
	}
	return fallback
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
	if v, ok := p[key].(time.Duration); ok && v > 0 {
		return v
	}
	return 0
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
