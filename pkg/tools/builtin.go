package tools

import (
	"context"
	"fmt"

	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/docs"
)

const (
	SearchDocsTool   = "search_docs"
	ValidateHTMLTool = "validate_html"
)

// DocsSearcher is the subset of docs.Index used by the search tool.
type DocsSearcher interface {
	Search(ctx context.Context, query string, k int) ([]docs.Hit, error)
}

// HTMLValidator is the subset of runtimecheck.StaticChecker used by the
// validation tool.
type HTMLValidator interface {
	Describe(code string) string
}

// SearchDocs exposes the documentation index. A nil index yields a tool
// that reports it is not configured, so prompts stay identical either way.
func SearchDocs(index DocsSearcher, engine string) Tool {
	if engine == "" {
		engine = "game engine"
	}
	return Tool{
		Definition: adapter.ToolDefinition{
			Name:        SearchDocsTool,
			Description: fmt.Sprintf("Search the %s documentation for API references and usage patterns.", engine),
			Properties: map[string]any{
				"query": map[string]any{"type": "string", "description": "What to look up"},
				"limit": map[string]any{"type": "integer", "description": "Maximum number of passages (default 5)"},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, ok := stringArg(args, "query")
			if !ok || query == "" {
				return "", fmt.Errorf("missing required argument: query")
			}
			if index == nil {
				return fmt.Sprintf("[docs not configured] Query: %s", query), nil
			}
			hits, err := index.Search(ctx, query, intArg(args, "limit", 5))
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return fmt.Sprintf("No documentation found for %q.", query), nil
			}
			return docs.FormatHits(hits), nil
		},
	}
}

// ValidateHTML exposes structural HTML checks.
func ValidateHTML(validator HTMLValidator) Tool {
	return Tool{
		Definition: adapter.ToolDefinition{
			Name:        ValidateHTMLTool,
			Description: "Run basic validation checks on a complete single-file HTML game.",
			Properties: map[string]any{
				"html": map[string]any{"type": "string", "description": "The full HTML document"},
			},
			Required: []string{"html"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			html, ok := stringArg(args, "html")
			if !ok {
				return "", fmt.Errorf("missing required argument: html")
			}
			return validator.Describe(html), nil
		},
	}
}
