package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"voice-bridge/internal/application"
	"voice-bridge/internal/infra"
)

const DefaultModel = "gemini-2.0-flash"

// Client is a ChatModel backed by Gemini function calling.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient connects to the Gemini API. baseURL is optional and only
// overridden in tests.
func NewClient(ctx context.Context, apiKey, model, baseURL string) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{genai: client, model: model}, nil
}

func (c *Client) Next(ctx context.Context, req application.ChatRequest) (*application.ChatResponse, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations(req.Tools)}}
	}

	contents := toContents(req.Messages)

	var resp *genai.GenerateContentResponse
	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		var err error
		resp, err = c.genai.Models.GenerateContent(ctx, c.model, contents, config)
		if err == nil {
			return nil
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && !infra.IsRetryableHTTPStatus(apiErr.Code) {
			return infra.Permanent(fmt.Errorf("gemini API error %d: %s", apiErr.Code, apiErr.Message))
		}
		return fmt.Errorf("generating content: %w", err)
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return parseResponse(resp)
}

func declarations(specs []application.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		props := make(map[string]*genai.Schema, len(spec.Params))
		for name, p := range spec.Params {
			props[name] = &genai.Schema{
				Type:        schemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   spec.Required,
			},
		})
	}
	return decls
}

func schemaType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func toContents(messages []application.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == application.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		if m.Text != "" {
			parts = append(parts, &genai.Part{Text: m.Text})
		}
		for _, call := range m.ToolCalls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Input,
			}})
		}
		for _, res := range m.ToolResults {
			key := "output"
			if res.IsError {
				key = "error"
			}
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       res.CallID,
				Name:     res.Name,
				Response: map[string]any{key: res.Content},
			}})
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func parseResponse(resp *genai.GenerateContentResponse) (*application.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from gemini")
	}

	var out application.ChatResponse
	var texts []string
	for i, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, application.ToolCall{ID: id, Name: part.FunctionCall.Name, Input: args})
			continue
		}
		if t := strings.TrimSpace(part.Text); t != "" {
			texts = append(texts, t)
		}
	}
	out.Text = strings.Join(texts, " ")
	return &out, nil
}
