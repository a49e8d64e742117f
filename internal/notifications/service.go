package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tonearm/internal/config"
	"tonearm/internal/version"
)

var userAgent = "Tonearm/" + version.Version

// Event identifies a notable moment in a run's lifecycle.
type Event string

const (
	EventRunCompleted Event = "run_completed"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries the event-specific fields used to format a message.
type Payload map[string]string

// Service defines the notification surface exposed to the daemon and CLI.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		notifyCompleted: cfg.Notifications.RunCompleted,
		notifyFailed:    cfg.Notifications.RunFailed,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	notifyCompleted bool
	notifyFailed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, err := format(event, payload)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventRunCompleted:
		return n.notifyCompleted
	case EventRunFailed:
		return n.notifyFailed
	default:
		return true
	}
}

func format(event Event, payload Payload) (message, error) {
	track := strings.TrimSpace(payload["track"])
	if track == "" {
		track = "unknown track"
	}

	switch event {
	case EventRunCompleted:
		body := fmt.Sprintf("✅ Analysis complete: %s", track)
		if duration := strings.TrimSpace(payload["duration"]); duration != "" {
			body = fmt.Sprintf("%s in %s", body, duration)
		}
		if failures := strings.TrimSpace(payload["failures"]); failures != "" {
			body = fmt.Sprintf("%s\nFailed stages: %s", body, failures)
		}
		return message{
			title: "Tonearm - Analysis Complete",
			body:  body,
			tags:  []string{"tonearm", "analysis", "completed"},
		}, nil
	case EventRunFailed:
		reason := strings.TrimSpace(payload["error"])
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Tonearm - Analysis Failed",
			body:     fmt.Sprintf("❌ Analysis failed: %s: %s", track, reason),
			tags:     []string{"tonearm", "analysis", "failed"},
			priority: "high",
		}, nil
	case EventTest:
		return message{
			title:    "Tonearm - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"tonearm", "test"},
			priority: "low",
		}, nil
	default:
		return message{}, fmt.Errorf("unknown notification event %q", event)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
