package adapter

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GoogleAdapter implements the Adapter interface for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(apiKey string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
	}, nil
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// Models returns the list of supported Gemini models.
func (a *GoogleAdapter) Models() []string {
	return []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
	}
}

// Invoke sends the conversation to Gemini and maps function calls to tool calls.
func (a *GoogleAdapter) Invoke(ctx context.Context, req *Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, def := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:                 def.Name,
				Description:          def.Description,
				ParametersJsonSchema: def.Schema(),
			})
		}
		cfg.Tools = []*genai.Tool{tool}
	}

	resp, err := a.client.Models.GenerateContent(ctx, req.Model, toGenaiContents(req.Messages), cfg)
	if err != nil {
		return nil, a.wrapError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &AdapterError{Adapter: a.Name(), Temporary: true, Err: fmt.Errorf("google returned no candidates")}
	}

	var text string
	var calls []ToolCall
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" && !part.Thought {
				text += part.Text
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", len(calls)+1)
				}
				calls = append(calls, ToolCall{ID: id, Name: fc.Name, Arguments: fc.Args})
			}
		}
	}

	var usage *Usage
	if md := resp.UsageMetadata; md != nil {
		usage = &Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}
	return newResponse(a.Name(), req.Model, text, calls, usage), nil
}

func (a *GoogleAdapter) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &AdapterError{Adapter: a.Name(), Status: apiErr.Code, Err: err}
	}
	return &AdapterError{Adapter: a.Name(), Err: fmt.Errorf("google API error: %w", err)}
}

func toGenaiContents(history []Message) []*genai.Content {
	var out []*genai.Content
	var pending []*genai.Part

	flush := func() {
		if len(pending) > 0 {
			out = append(out, genai.NewContentFromParts(pending, genai.RoleUser))
			pending = nil
		}
	}

	for _, msg := range history {
		switch msg.Role {
		case RoleTool:
			part := genai.NewPartFromFunctionResponse(msg.Name, map[string]any{"output": msg.Content})
			part.FunctionResponse.ID = msg.ToolCallID
			pending = append(pending, part)
		case RoleAssistant:
			flush()
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				part := genai.NewPartFromFunctionCall(call.Name, call.Arguments)
				part.FunctionCall.ID = call.ID
				parts = append(parts, part)
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case RoleSystem:
			// carried by SystemInstruction
		default:
			flush()
			out = append(out, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	flush()
	return out
}
