package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/docs"
	"github.com/zen-systems/gameforge/pkg/runtimecheck"
)

func echoTool(name string) Tool {
	return Tool{
		Definition: adapter.ToolDefinition{Name: name},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			v, _ := stringArg(args, "value")
			return name + ":" + v, nil
		},
	}
}

func TestRegistryInvoke(t *testing.T) {
	boom := errors.New("boom")
	reg, err := NewRegistry(echoTool("b"), echoTool("a"), Tool{
		Definition: adapter.ToolDefinition{Name: "fails"},
		Handler:    func(context.Context, map[string]any) (string, error) { return "", boom },
	})
	require.NoError(t, err)

	ctx := context.Background()
	out, err := reg.Invoke(ctx, "a", map[string]any{"value": "x"})
	require.NoError(t, err)
	assert.Equal(t, "a:x", out)

	_, err = reg.Invoke(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = reg.Invoke(ctx, "fails", nil)
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "fails", invErr.Tool)
	assert.ErrorIs(t, err, boom)

	_, err = reg.Invoke(ctx, "", nil)
	assert.ErrorIs(t, err, ErrToolNameEmpty)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = reg.Invoke(cancelled, "a", nil)
	assert.ErrorIs(t, err, context.Canceled)

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "a", defs[0].Name)
}

func TestRegistryRegisterValidation(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Register(Tool{}), ErrToolNameEmpty)
	assert.ErrorIs(t, reg.Register(Tool{Definition: adapter.ToolDefinition{Name: "x"}}), ErrNilHandler)
	require.NoError(t, reg.Register(echoTool("x")))
	assert.Error(t, reg.Register(echoTool("x")))

	_, err = NewRegistry(echoTool("dup"), echoTool("dup"))
	assert.Error(t, err)
}

func TestRegistrySubset(t *testing.T) {
	reg, err := NewRegistry(echoTool("a"), echoTool("b"))
	require.NoError(t, err)
	sub := reg.Subset("b", "unknown")
	assert.Equal(t, 1, sub.Len())
	_, err = sub.Invoke(context.Background(), "a", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

type fakeSearcher struct {
	hits  []docs.Hit
	err   error
	query string
	k     int
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]docs.Hit, error) {
	f.query, f.k = query, k
	return f.hits, f.err
}

func TestSearchDocsTool(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{hits: []docs.Hit{{Title: "Sprites", Source: "sprites.mdx", Content: "loadSprite()"}}}
	tool := SearchDocs(searcher, "Kaplay")
	assert.Contains(t, tool.Definition.Description, "Kaplay")

	out, err := tool.Handler(ctx, map[string]any{"query": "sprites", "limit": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, "[Sprites] (sprites.mdx)\nloadSprite()", out)
	assert.Equal(t, 2, searcher.k)

	_, err = tool.Handler(ctx, map[string]any{})
	assert.Error(t, err)

	searcher.hits = nil
	out, err = tool.Handler(ctx, map[string]any{"query": "lasers"})
	require.NoError(t, err)
	assert.Contains(t, out, "No documentation found")
	assert.Equal(t, 5, searcher.k)

	unconfigured := SearchDocs(nil, "")
	out, err = unconfigured.Handler(ctx, map[string]any{"query": "jump"})
	require.NoError(t, err)
	assert.Equal(t, "[docs not configured] Query: jump", out)
}

func TestValidateHTMLTool(t *testing.T) {
	tool := ValidateHTML(runtimecheck.NewStaticChecker("kaplay"))
	out, err := tool.Handler(context.Background(), map[string]any{"html": "<p>x</p>"})
	require.NoError(t, err)
	assert.Contains(t, out, "ISSUES FOUND")

	_, err = tool.Handler(context.Background(), map[string]any{})
	assert.Error(t, err)
}
