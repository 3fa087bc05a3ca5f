package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"voice-bridge/internal/domain"
)

const DefaultRequestTimeout = 5 * time.Second

// maxErrorBody bounds how much of a failed response is kept in RemoteError.
const maxErrorBody = 2048

// Client talks to the Home Assistant REST API. It does not retry; callers
// decide whether a failure is worth repeating.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// state is an entity as /api/states reports it.
type state struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed"`
}

func (s state) toEntity() domain.Entity {
	name, _ := s.Attributes["friendly_name"].(string)
	return domain.Entity{
		ID:          s.EntityID,
		DisplayName: name,
		State:       s.State,
		Attributes:  s.Attributes,
	}
}

func toEntities(states []state) []domain.Entity {
	entities := make([]domain.Entity, 0, len(states))
	for _, s := range states {
		if s.EntityID == "" {
			continue
		}
		entities = append(entities, s.toEntity())
	}
	return entities
}

// FetchStates returns every entity the hub reports, in the hub's order.
func (c *Client) FetchStates(ctx context.Context) ([]domain.Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching states: %w", err)
	}

	var states []state
	if err := json.Unmarshal(resp, &states); err != nil {
		return nil, fmt.Errorf("parsing states: %w", err)
	}
	return toEntities(states), nil
}

// FetchState looks up a single entity. An unknown id yields a NotFoundError.
func (c *Client) FetchState(ctx context.Context, entityID string) (*domain.Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		var remote *domain.RemoteError
		if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
			return nil, &domain.NotFoundError{EntityID: entityID}
		}
		return nil, fmt.Errorf("fetching state of %s: %w", entityID, err)
	}

	var st state
	if err := json.Unmarshal(resp, &st); err != nil {
		return nil, fmt.Errorf("parsing state of %s: %w", entityID, err)
	}
	entity := st.toEntity()
	return &entity, nil
}

// CallService invokes category.operation with payload and returns the states
// the hub reports as changed.
func (c *Client) CallService(ctx context.Context, category, operation string, payload map[string]any) ([]domain.Entity, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(category), url.PathEscape(operation))
	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, fmt.Errorf("calling %s.%s: %w", category, operation, err)
	}

	// Some hubs answer with an object or nothing at all; only a list carries
	// changed states.
	resp = bytes.TrimSpace(resp)
	if len(resp) == 0 || resp[0] != '[' {
		return toEntities(nil), nil
	}
	var changed []state
	if err := json.Unmarshal(resp, &changed); err != nil {
		c.logger.Debug("ignoring unreadable service response",
			"service", category+"."+operation,
			"error", err,
		)
		return toEntities(nil), nil
	}
	return toEntities(changed), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.TimeoutError{Op: method + " " + path, Err: err}
		}
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.TimeoutError{Op: method + " " + path, Err: err}
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, &domain.RemoteError{Status: resp.StatusCode, Body: truncateBody(respBody)}
	}

	return respBody, nil
}

// truncateBody keeps at most maxErrorBody bytes without splitting a rune.
func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut])
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
