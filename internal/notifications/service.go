package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"constellation/internal/config"
)

const userAgent = "Constellation/1.0"

// RunSummary is the subset of a run's manifest worth pushing.
type RunSummary struct {
	Topic     string
	Outcome   string
	Completed []string
	Failed    []string
	Duration  time.Duration
	Manifest  string
}

// Service defines the notification surface used by the runner and CLI.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyRunFailed(ctx context.Context, topic string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	topic := strings.TrimSpace(summary.Topic)
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s finished in %s", topic, duration)
	if len(summary.Completed) > 0 {
		fmt.Fprintf(&b, "\nReady: %s", strings.Join(summary.Completed, ", "))
	}
	if len(summary.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed: %s (rerun to retry)", strings.Join(summary.Failed, ", "))
	}
	if summary.Manifest != "" {
		fmt.Fprintf(&b, "\nManifest: %s", summary.Manifest)
	}

	data := payload{
		title:   "Constellation - Episode Ready",
		message: b.String(),
		tags:    []string{"constellation", "episode", "completed"},
	}
	switch summary.Outcome {
	case "succeeded_with_caveats":
		data.title = "Constellation - Episode Ready (with gaps)"
		data.tags = []string{"constellation", "episode", "partial"}
	case "failed":
		data.title = "Constellation - Episode Failed"
		data.tags = []string{"constellation", "episode", "failed"}
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, topic string, err error) error {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Constellation - Run Error",
		message:  fmt.Sprintf("Generation for %s stopped: %s", strings.TrimSpace(topic), reason),
		tags:     []string{"constellation", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Constellation - Test",
		message:  "Notification system test",
		tags:     []string{"constellation", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
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

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
