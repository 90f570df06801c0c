package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockAdapter returns deterministic responses for local runs and tests.
// Responses are keyed by a substring of the request's system prompt.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	Usage           *Usage
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Invoke returns a final response chosen by matching the system prompt.
func (a *MockAdapter) Invoke(_ context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = "mock-1"
	}
	for key, response := range a.responses {
		if key != "" && strings.Contains(req.System, key) {
			return newResponse(a.Name(), model, response, nil, a.Usage), nil
		}
	}
	content := fmt.Sprintf("%s\n%s", a.defaultResponse, lastUserMessage(req.Messages))
	return newResponse(a.Name(), model, content, nil, a.Usage), nil
}

func lastUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// Turn is one scripted oracle reply: a response or an error.
type Turn struct {
	Response *Response
	Err      error
}

// Final builds a scripted final-text turn.
func Final(text string) Turn {
	return Turn{Response: &Response{Kind: KindFinal, Text: text}}
}

// Calls builds a scripted tool-call turn.
func Calls(calls ...ToolCall) Turn {
	return Turn{Response: &Response{Kind: KindToolCalls, ToolCalls: calls}}
}

// Fail builds a scripted error turn.
func Fail(err error) Turn {
	return Turn{Err: err}
}

// ScriptedAdapter replays queued turns per model. The last queued turn for a
// model is sticky: once the queue drains to one entry it is repeated.
// Requests are recorded for assertions.
type ScriptedAdapter struct {
	mu       sync.Mutex
	name     string
	scripts  map[string][]Turn
	requests []Request
}

// NewScriptedAdapter creates an empty scripted adapter.
func NewScriptedAdapter() *ScriptedAdapter {
	return &ScriptedAdapter{name: "mock", scripts: make(map[string][]Turn)}
}

// Script appends turns for model. An empty model matches requests whose
// model has no script of its own.
func (a *ScriptedAdapter) Script(model string, turns ...Turn) *ScriptedAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[model] = append(a.scripts[model], turns...)
	return a
}

// Name returns the adapter identifier.
func (a *ScriptedAdapter) Name() string {
	return a.name
}

// Models returns the models that have scripts.
func (a *ScriptedAdapter) Models() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	models := make([]string, 0, len(a.scripts))
	for model := range a.scripts {
		if model != "" {
			models = append(models, model)
		}
	}
	return models
}

// Requests returns a copy of every request received so far.
func (a *ScriptedAdapter) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Request(nil), a.requests...)
}

// CallsFor reports how many requests were received for model.
func (a *ScriptedAdapter) CallsFor(model string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, req := range a.requests {
		if req.Model == model {
			n++
		}
	}
	return n
}

// Invoke pops the next turn for the request's model.
func (a *ScriptedAdapter) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	recorded := *req
	recorded.Messages = append([]Message(nil), req.Messages...)
	a.requests = append(a.requests, recorded)

	key := req.Model
	if _, ok := a.scripts[key]; !ok {
		key = ""
	}
	queue := a.scripts[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("scripted adapter: no turns for model %q", req.Model)
	}

	turn := queue[0]
	if len(queue) > 1 {
		a.scripts[key] = queue[1:]
	}
	if turn.Err != nil {
		return nil, turn.Err
	}

	resp := *turn.Response
	resp.Adapter = a.name
	resp.Model = req.Model
	resp.ToolCalls = append([]ToolCall(nil), turn.Response.ToolCalls...)
	if resp.Kind == "" {
		resp.Kind = KindFinal
		if len(resp.ToolCalls) > 0 {
			resp.Kind = KindToolCalls
		}
	}
	return &resp, nil
}
