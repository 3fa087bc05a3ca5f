package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voice-bridge/internal/application"
	"voice-bridge/internal/infra"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024

	apiVersion = "2023-06-01"
)

// ClaudeClient is a ChatModel backed by the Messages API with tool use.
type ClaudeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	maxTokens  int
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return NewClaudeClientWithURL(apiKey, model, DefaultBaseURL)
}

func NewClaudeClientWithURL(apiKey, model, baseURL string) *ClaudeClient {
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		maxTokens:  DefaultMaxTokens,
	}
}

type property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type inputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema inputSchema `json:"input_schema"`
}

type block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Tools     []tool    `json:"tools,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content    []block `json:"content"`
	StopReason string  `json:"stop_reason"`
}

func (c *ClaudeClient) Next(ctx context.Context, req application.ChatRequest) (*application.ChatResponse, error) {
	body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	var result response
	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", apiVersion)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			apiErr := fmt.Errorf("claude API error %d: %s", resp.StatusCode, string(respBody))
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return apiErr
			}
			return infra.Permanent(apiErr)
		}

		result = response{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return parseResponse(result)
}

func (c *ClaudeClient) buildRequest(req application.ChatRequest) ([]byte, error) {
	r := request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    req.System,
		Tools:     make([]tool, 0, len(req.Tools)),
		Messages:  make([]message, 0, len(req.Messages)),
	}

	for _, spec := range req.Tools {
		props := make(map[string]property, len(spec.Params))
		for name, p := range spec.Params {
			props[name] = property{Type: p.Type, Description: p.Description, Enum: p.Enum}
		}
		r.Tools = append(r.Tools, tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: inputSchema{Type: "object", Properties: props, Required: spec.Required},
		})
	}

	for _, m := range req.Messages {
		msg, err := toMessage(m)
		if err != nil {
			return nil, err
		}
		r.Messages = append(r.Messages, msg)
	}

	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return body, nil
}

func toMessage(m application.ChatMessage) (message, error) {
	msg := message{Role: string(m.Role)}

	if m.Text != "" {
		msg.Content = append(msg.Content, block{Type: "text", Text: m.Text})
	}

	for _, call := range m.ToolCalls {
		input, err := json.Marshal(call.Input)
		if err != nil {
			return message{}, fmt.Errorf("encoding input of %s: %w", call.Name, err)
		}
		if call.Input == nil {
			input = json.RawMessage(`{}`)
		}
		msg.Content = append(msg.Content, block{Type: "tool_use", ID: call.ID, Name: call.Name, Input: input})
	}

	for _, res := range m.ToolResults {
		msg.Content = append(msg.Content, block{
			Type:      "tool_result",
			ToolUseID: res.CallID,
			Content:   res.Content,
			IsError:   res.IsError,
		})
	}

	return msg, nil
}

func parseResponse(r response) (*application.ChatResponse, error) {
	if len(r.Content) == 0 {
		return nil, fmt.Errorf("empty response from claude")
	}

	var out application.ChatResponse
	var texts []string
	for _, b := range r.Content {
		switch b.Type {
		case "text":
			if t := strings.TrimSpace(b.Text); t != "" {
				texts = append(texts, t)
			}
		case "tool_use":
			input := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return nil, fmt.Errorf("parsing input of %s: %w", b.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, application.ToolCall{ID: b.ID, Name: b.Name, Input: input})
		}
	}
	out.Text = strings.Join(texts, " ")
	return &out, nil
}
