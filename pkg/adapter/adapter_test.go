package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"rate limited", &AdapterError{Status: 429}, true},
		{"server error", &AdapterError{Status: 503}, true},
		{"auth", &AdapterError{Status: 401}, false},
		{"temporary flag", &AdapterError{Temporary: true}, true},
		{"wrapped", fmt.Errorf("call: %w", &AdapterError{Status: 500}), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestUnavailableWrapsOnce(t *testing.T) {
	base := &AdapterError{Adapter: "openai", Status: 401, Err: errors.New("bad key")}
	err := Unavailable(base)
	require.ErrorIs(t, err, ErrOracleUnavailable)

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, 401, adapterErr.Status)

	assert.Equal(t, err, Unavailable(err))
	assert.Nil(t, Unavailable(nil))
}

func TestToolDefinitionSchema(t *testing.T) {
	def := ToolDefinition{
		Name:       "search_docs",
		Properties: map[string]any{"query": map[string]any{"type": "string"}},
		Required:   []string{"query"},
	}
	schema := def.Schema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"query"}, schema["required"])

	empty := ToolDefinition{Name: "noop"}.Schema()
	assert.NotNil(t, empty["properties"])
	_, hasRequired := empty["required"]
	assert.False(t, hasRequired)
}

func toolHistory() []Message {
	call1 := ToolCall{ID: "t1", Name: "search_docs", Arguments: map[string]any{"query": "sprites"}}
	call2 := ToolCall{ID: "t2", Name: "validate_html", Arguments: map[string]any{"html": "<html>"}}
	return []Message{
		SystemMessage("ignored"),
		UserMessage("build a game"),
		AssistantMessage("", call1, call2),
		ToolResultMessage(call1, "docs"),
		ToolResultMessage(call2, "valid"),
		UserMessage("continue"),
	}
}

func TestToAnthropicMessagesGroupsToolResults(t *testing.T) {
	msgs := toAnthropicMessages(toolHistory())
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Len(t, msgs[2].Content, 2)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "t1", msgs[2].Content[0].OfToolResult.ToolUseID)
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := toOpenAIMessages(&Request{System: "sys", Messages: toolHistory()})
	// system from request, system from history, user, assistant, two tool, user
	require.Len(t, msgs, 7)
	require.NotNil(t, msgs[3].OfAssistant)
	require.Len(t, msgs[3].OfAssistant.ToolCalls, 2)
	assert.Equal(t, "search_docs", msgs[3].OfAssistant.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"query":"sprites"}`, msgs[3].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[4].OfTool)
	assert.Equal(t, "t1", msgs[4].OfTool.ToolCallID)
}

func TestToGenaiContents(t *testing.T) {
	contents := toGenaiContents(toolHistory())
	require.Len(t, contents, 4)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "t1", contents[1].Parts[0].FunctionCall.ID)
	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "validate_html", contents[2].Parts[1].FunctionResponse.Name)
	assert.Equal(t, "valid", contents[2].Parts[1].FunctionResponse.Response["output"])
}

func TestScriptedAdapterStickyLastTurn(t *testing.T) {
	scripted := NewScriptedAdapter().
		Script("evaluator", Final("DECISION: REVISE"), Final("DECISION: PASS"))

	ctx := context.Background()
	texts := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := scripted.Invoke(ctx, &Request{Model: "evaluator"})
		require.NoError(t, err)
		assert.Equal(t, KindFinal, resp.Kind)
		texts = append(texts, resp.Text)
	}
	assert.Equal(t, []string{"DECISION: REVISE", "DECISION: PASS", "DECISION: PASS"}, texts)
	assert.Equal(t, 3, scripted.CallsFor("evaluator"))
}

func TestScriptedAdapterFallbackAndErrors(t *testing.T) {
	boom := errors.New("boom")
	scripted := NewScriptedAdapter().
		Script("", Final("default")).
		Script("coder", Fail(boom), Calls(ToolCall{ID: "1", Name: "search_docs"}))

	ctx := context.Background()
	resp, err := scripted.Invoke(ctx, &Request{Model: "planner"})
	require.NoError(t, err)
	assert.Equal(t, "default", resp.Text)

	_, err = scripted.Invoke(ctx, &Request{Model: "coder"})
	require.ErrorIs(t, err, boom)

	resp, err = scripted.Invoke(ctx, &Request{Model: "coder"})
	require.NoError(t, err)
	assert.Equal(t, KindToolCalls, resp.Kind)
	assert.False(t, resp.IsFinal())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = scripted.Invoke(cancelled, &Request{Model: "coder"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockAdapterMatchesSystemPrompt(t *testing.T) {
	mock := NewMockAdapterWithResponses(map[string]string{"game designer": "GAME_TYPE: maze"}, "")
	resp, err := mock.Invoke(context.Background(), &Request{System: "You are a game designer."})
	require.NoError(t, err)
	assert.Equal(t, "GAME_TYPE: maze", resp.Text)

	resp, err = mock.Invoke(context.Background(), &Request{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "mock response:\nhi", resp.Text)
	assert.Equal(t, "mock-1", resp.Model)
}
