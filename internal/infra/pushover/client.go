package pushover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-bridge/internal/infra"
)

const (
	DefaultEndpoint = "https://api.pushover.net/1/messages.json"
	DefaultTitle    = "Voice Bridge"

	// maxMessageRunes is the API's message length limit.
	maxMessageRunes = 1024
)

type Config struct {
	Token    string
	UserKey  string
	Title    string
	Device   string // empty sends to all of the user's devices
	Endpoint string
}

// Client pushes assistant replies to a phone. Without credentials it is
// silent.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.Token != "" && c.cfg.UserKey != ""
}

type apiResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

func (c *Client) Notify(ctx context.Context, message string) error {
	if !c.Enabled() || strings.TrimSpace(message) == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", c.cfg.Token)
	form.Set("user", c.cfg.UserKey)
	form.Set("title", c.cfg.Title)
	form.Set("message", truncate(message, maxMessageRunes))
	if c.cfg.Device != "" {
		form.Set("device", c.cfg.Device)
	}
	body := form.Encode()

	return infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(body))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}

		var parsed apiResponse
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
		apiErr := fmt.Errorf("pushover error %d: %s", resp.StatusCode, strings.Join(parsed.Errors, "; "))
		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return apiErr
		}
		return infra.Permanent(apiErr)
	})
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
