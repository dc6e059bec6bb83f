package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"artstudio/internal/config"
)

const userAgent = "artstudio/0.1.0"

// Service defines the notification surface exposed to the studio.
type Service interface {
	NotifyGenerationCompleted(ctx context.Context, sessionID, style string, frames int, elapsed time.Duration) error
	NotifyGenerationFailed(ctx context.Context, sessionID string, err error, reauth bool) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
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
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		generation: cfg.Notifications.Generation,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	generation bool
	errors     bool
}

func (n *ntfyService) NotifyGenerationCompleted(ctx context.Context, sessionID, style string, frames int, elapsed time.Duration) error {
	if !n.generation {
		return nil
	}
	style = strings.TrimSpace(style)
	if style == "" {
		style = "custom style"
	}
	elapsed = elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	noun := "frames"
	if frames == 1 {
		noun = "frame"
	}
	data := payload{
		title:   "Art Studio - Artwork Ready",
		message: fmt.Sprintf("🎨 %d %s painted as %s in %s\nSession: %s", frames, noun, style, elapsed, shortID(sessionID)),
		tags:    []string{"artstudio", "generate", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGenerationFailed(ctx context.Context, sessionID string, err error, reauth bool) error {
	if !n.errors {
		return nil
	}
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Art Studio - Generation Failed",
		message:  fmt.Sprintf("❌ Session %s: %s", shortID(sessionID), reason),
		tags:     []string{"artstudio", "generate", "failed"},
		priority: "high",
	}
	if reauth {
		data.title = "Art Studio - API Key Required"
		data.message = fmt.Sprintf("🔑 Session %s lost API authorization; supply a new key", shortID(sessionID))
		data.tags = []string{"artstudio", "auth", "alert"}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Art Studio - Error",
		message:  builder.String(),
		tags:     []string{"artstudio", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Art Studio - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"artstudio", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

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
	if data.priority != "" && data.priority != "default" {
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

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyGenerationCompleted(context.Context, string, string, int, time.Duration) error {
	return nil
}
func (noopService) NotifyGenerationFailed(context.Context, string, error, bool) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                  { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
