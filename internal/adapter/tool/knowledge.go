package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

const defaultKnowledgeLimit = 5

// KnowledgeTool searches the knowledge base.
type KnowledgeTool struct {
	kb     domain.KnowledgeBase
	logger *slog.Logger
}

// NewKnowledgeTool creates the search_knowledge_base tool.
func NewKnowledgeTool(kb domain.KnowledgeBase, logger *slog.Logger) *KnowledgeTool {
	return &KnowledgeTool{kb: kb, logger: logger}
}

func (t *KnowledgeTool) Name() string { return "search_knowledge_base" }
func (t *KnowledgeTool) Description() string {
	return "Search the internal knowledge base for documents relevant to a query"
}

func (t *KnowledgeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "What to look for"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Maximum number of results (default 5)"}
			},
			"required": ["query"]
		}`),
	}
}

type knowledgeParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type knowledgeResult struct {
	Query   string                   `json:"query"`
	Count   int                      `json:"count"`
	Results []domain.KnowledgeResult `json:"results"`
}

func (t *KnowledgeTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_knowledge_base", t.logger, params,
		func(ctx context.Context, span trace.Span, p knowledgeParams) (any, error) {
			if err := RequireField("query", p.Query); err != nil {
				return ErrResult("%v", err), nil
			}
			if p.Limit == 0 {
				p.Limit = defaultKnowledgeLimit
			}
			if err := ValidateRange("limit", p.Limit, 1, 20); err != nil {
				return ErrResult("%v", err), nil
			}

			results, err := t.kb.Search(ctx, p.Query, p.Limit)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("knowledge.results", len(results)))
			if results == nil {
				results = []domain.KnowledgeResult{}
			}
			return knowledgeResult{Query: p.Query, Count: len(results), Results: results}, nil
		},
	)
}
