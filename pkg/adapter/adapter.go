package adapter

import "context"

// Adapter is a generation oracle backed by an LLM provider. A single Invoke
// is one model turn: the response is either final text or a list of tool
// calls the caller is expected to execute.
type Adapter interface {
	// Invoke sends the request to the model and returns its next turn.
	Invoke(ctx context.Context, req *Request) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// AdapterInfo holds metadata about an adapter.
type AdapterInfo struct {
	Name   string
	Models []ModelInfo
}

// ModelInfo holds metadata about a model.
type ModelInfo struct {
	ID          string
	Description string
}

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 8192

func maxTokens(req *Request) int {
	if req == nil || req.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return req.MaxTokens
}
