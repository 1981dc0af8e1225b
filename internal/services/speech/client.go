package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"constellation/internal/services"
)

const (
	defaultBaseURL     = "https://api.elevenlabs.io/v1"
	defaultHTTPTimeout = 180 * time.Second
	defaultBitrateKbps = 128
	maxTextRunes       = 5000
)

// Config captures connection settings for an ElevenLabs style text-to-speech API.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
	BitrateKbps    int
}

// VoiceSettings are forwarded verbatim to the provider.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Request is one synthesis call for a single voice.
type Request struct {
	Text     string
	VoiceID  string
	ModelID  string
	Settings VoiceSettings
}

// Audio is an MP3 clip returned by the provider.
type Audio struct {
	Bytes           []byte
	DurationSeconds float64
}

// Client talks to the text-to-speech endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
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

// NewClient constructs a speech client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = defaultBitrateKbps
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Synthesize renders text with one voice.
func (c *Client) Synthesize(ctx context.Context, req Request) (Audio, error) {
	text := strings.TrimSpace(req.Text)
	voice := strings.TrimSpace(req.VoiceID)
	switch {
	case c.cfg.APIKey == "":
		return Audio{}, services.Wrap(services.ErrConfiguration, "speech", "synthesize", "api key required", nil)
	case text == "":
		return Audio{}, services.Wrap(services.ErrValidation, "speech", "synthesize", "text required", nil)
	case voice == "":
		return Audio{}, services.Wrap(services.ErrValidation, "speech", "synthesize", "voice id required", nil)
	case len([]rune(text)) > maxTextRunes:
		return Audio{}, services.Wrap(services.ErrValidation, "speech", "synthesize",
			fmt.Sprintf("text exceeds %d characters", maxTextRunes), nil)
	}

	body, err := json.Marshal(synthesisPayload{Text: text, ModelID: req.ModelID, VoiceSettings: req.Settings})
	if err != nil {
		return Audio{}, fmt.Errorf("speech request: encode body: %w", err)
	}
	endpoint := c.cfg.BaseURL + "/text-to-speech/" + url.PathEscape(voice)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("speech request: new request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Audio{}, classifyTransport(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, services.Wrap(services.ErrTransient, "speech", "synthesize", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Audio{}, classifyStatus(resp.StatusCode, resp.Header.Get("Retry-After"), data)
	}
	if len(data) == 0 {
		return Audio{}, services.Wrap(services.ErrTransient, "speech", "synthesize", "empty audio response", nil)
	}
	return Audio{Bytes: data, DurationSeconds: c.Duration(len(data))}, nil
}

// Duration estimates clip length from its size at the configured constant bitrate.
func (c *Client) Duration(size int) float64 {
	if size <= 0 {
		return 0
	}
	return float64(size) * 8 / float64(c.cfg.BitrateKbps*1000)
}

// HealthCheck verifies the API key against the user endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "speech", "health", "api key required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/user", nil)
	if err != nil {
		return fmt.Errorf("speech health: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("speech health: %w", classifyTransport(err))
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("speech health: %w", classifyStatus(resp.StatusCode, resp.Header.Get("Retry-After"), data))
	}
	return nil
}

type synthesisPayload struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

func classifyStatus(status int, retryAfter string, body []byte) error {
	msg := fmt.Sprintf("status %d: %s", status, snippet(body))
	switch {
	case status == http.StatusTooManyRequests:
		err := services.Wrap(services.ErrRateLimited, "speech", "synthesize", msg, nil)
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(retryAfter)); convErr == nil && seconds > 0 {
			return &services.RetryAfterError{Delay: time.Duration(seconds) * time.Second, Err: err}
		}
		return err
	case status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "speech", "synthesize", msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusPaymentRequired || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "speech", "synthesize", msg, nil)
	default:
		return services.Wrap(services.ErrRejected, "speech", "synthesize", msg, nil)
	}
}

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return services.Wrap(services.ErrTimeout, "speech", "synthesize", "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrTransient, "speech", "synthesize", "http error", err)
}

func snippet(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
