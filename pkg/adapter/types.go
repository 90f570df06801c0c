package adapter

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Cost captures normalized cost estimates.
type Cost struct {
	Currency     string  `json:"currency"`
	Amount       float64 `json:"amount"`
	IsEstimate   bool    `json:"is_estimate"`
	PricingModel string  `json:"pricing_model,omitempty"`
}

// CallReport captures adapter call metadata.
type CallReport struct {
	Stage        string `json:"stage,omitempty"`
	Adapter      string `json:"adapter"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	Cost         Cost   `json:"cost"`
	Retries      int    `json:"retries"`
	FallbackUsed bool   `json:"fallback_used"`
	Error        string `json:"error,omitempty"`
}

// Kind distinguishes a final answer from a tool-call turn.
type Kind string

const (
	KindFinal     Kind = "final"
	KindToolCalls Kind = "tool_calls"
)

// Response is a single model turn.
type Response struct {
	Kind      Kind       `json:"kind"`
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	Adapter   string     `json:"adapter"`
	Model     string     `json:"model"`
}

// IsFinal reports whether the turn carries no tool calls.
func (r *Response) IsFinal() bool {
	return r == nil || len(r.ToolCalls) == 0
}

func newResponse(adapterName, model, text string, calls []ToolCall, usage *Usage) *Response {
	kind := KindFinal
	if len(calls) > 0 {
		kind = KindToolCalls
	}
	return &Response{
		Kind:      kind,
		Text:      text,
		ToolCalls: calls,
		Usage:     usage,
		Adapter:   adapterName,
		Model:     model,
	}
}
