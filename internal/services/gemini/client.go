package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"artstudio/internal/services"
	"artstudio/internal/session"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel          = "gemini-3-pro-image-preview"
	defaultAPIVersion     = "v1beta"
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
)

var apiVersionSegment = regexp.MustCompile(`^v\d+(alpha|beta)?\d*$`)

// Config captures the runtime settings required to talk to the API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	AspectRatio    string
	ImageSize      string
	TimeoutSeconds int
}

// Client wraps the generateContent endpoint of one image model.
type Client struct {
	cfg        Config
	httpClient *http.Client
	genai      *genai.Client
	initErr    error

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts sets the total number of attempts per call (defaults to 1).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client using the supplied configuration. Without an
// API key no SDK client is built and every call fails with ErrMissingAPIKey.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			AspectRatio:    strings.TrimSpace(cfg.AspectRatio),
			ImageSize:      strings.TrimSpace(cfg.ImageSize),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: 1,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.cfg.APIKey != "" {
		client.genai, client.initErr = client.newSDKClient()
	}
	return client
}

func (c *Client) newSDKClient() (*genai.Client, error) {
	baseURL, version, err := splitBaseURL(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	transport := c.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	hc := *c.httpClient
	hc.Transport = retryAfterTransport{base: transport}

	sdk, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     c.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &hc,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: version,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return sdk, nil
}

// splitBaseURL separates a trailing API version segment ("/v1beta") from
// base, which is how the SDK expects them.
func splitBaseURL(base string) (string, string, error) {
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("invalid base url %q", base)
	}
	trimmed := strings.TrimRight(parsed.Path, "/")
	version := defaultAPIVersion
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && apiVersionSegment.MatchString(trimmed[idx+1:]) {
		version = trimmed[idx+1:]
		trimmed = trimmed[:idx]
	}
	parsed.Path = trimmed + "/"
	return parsed.String(), version, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// ApplyStyle restyles one frame. The returned frame keeps the source index.
func (c *Client) ApplyStyle(ctx context.Context, frame session.Frame, style string) (session.Frame, error) {
	style = strings.TrimSpace(style)
	if style == "" {
		return session.Frame{}, errors.New("gemini style: style required")
	}
	return c.transform(ctx, frame, StylePrompt(style, c.cfg.ImageSize), "gemini style")
}

// Refine applies follow-up instructions to one frame.
func (c *Client) Refine(ctx context.Context, frame session.Frame, instructions string) (session.Frame, error) {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return session.Frame{}, errors.New("gemini refine: instructions required")
	}
	return c.transform(ctx, frame, RefinePrompt(instructions), "gemini refine")
}

// HealthCheck fetches the model resource to verify the key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.withRetry(ctx, "gemini health", func(ctx context.Context) error {
		_, err := c.genai.Models.Get(ctx, c.cfg.Model, nil)
		return err
	})
}

func (c *Client) ready() error {
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	return c.initErr
}

func (c *Client) transform(ctx context.Context, frame session.Frame, prompt, op string) (session.Frame, error) {
	if err := c.ready(); err != nil {
		return session.Frame{}, err
	}
	if len(frame.Data) == 0 {
		return session.Frame{}, fmt.Errorf("%s: source frame is empty", op)
	}
	mime := frame.MimeType
	if mime == "" {
		mime = "image/png"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(frame.Data, mime),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: c.cfg.AspectRatio,
			ImageSize:   c.cfg.ImageSize,
		},
	}

	var result session.Frame
	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
		if err != nil {
			return err
		}
		result, err = firstImage(resp)
		return err
	})
	if err != nil {
		return session.Frame{}, err
	}
	result.Index = frame.Index
	return result, nil
}

func firstImage(resp *genai.GenerateContentResponse) (session.Frame, error) {
	if resp == nil {
		return session.Frame{}, ErrNoImage
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return session.Frame{}, &BlockedError{Reason: string(fb.BlockReason)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return session.Frame{}, ErrNoImage
	}
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, p := range candidate.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			mime := p.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return session.Frame{MimeType: mime, Data: p.InlineData.Data}, nil
		}
	}
	switch reason := string(candidate.FinishReason); reason {
	case "SAFETY", "PROHIBITED_CONTENT", "IMAGE_SAFETY", "BLOCKLIST":
		return session.Frame{}, &BlockedError{Reason: reason}
	}
	return session.Frame{}, ErrNoImage
}

// withRetry runs call until it succeeds, fails permanently, or attempts run
// out. SDK errors are converted to *APIError before classification.
func (c *Client) withRetry(ctx context.Context, op string, call func(ctx context.Context) error) error {
	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var retryAfter time.Duration
		err := convertError(call(context.WithValue(ctx, retryAfterKey{}, &retryAfter)), retryAfter)
		if err == nil {
			return nil
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt > 1 {
				return fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
			}
			return err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, ErrNoImage) {
		return c.backoffDelay(attempt), true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if !errors.Is(apiErr, services.ErrTransient) && !errors.Is(apiErr, services.ErrTimeout) {
			return 0, false
		}
		if apiErr.RetryAfter > 0 {
			return c.capDelay(apiErr.RetryAfter), true
		}
		return c.backoffDelay(attempt), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retryAfterKey struct{}

// retryAfterTransport records the Retry-After header of a response into the
// slot withRetry placed on the request context; the SDK's APIError does not
// carry response headers.
type retryAfterTransport struct {
	base http.RoundTripper
}

func (t retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if slot, ok := req.Context().Value(retryAfterKey{}).(*time.Duration); ok && slot != nil {
		*slot, _ = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return resp, nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
