package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

const (
	defaultSearchCount = 5
	maxSearchCount     = 20
	defaultCacheTTL    = 15 * time.Minute
	maxCacheEntries    = 100
)

type cacheEntry struct {
	result    webSearchResult
	expiresAt time.Time
}

// WebSearchTool performs web searches via a pluggable SearchBackend and
// caches answers for identical queries.
type WebSearchTool struct {
	backend  SearchBackend
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewWebSearchTool creates the web_search tool.
func NewWebSearchTool(backend SearchBackend, cacheTTL time.Duration, logger *slog.Logger) *WebSearchTool {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &WebSearchTool{
		backend:  backend,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the web and return titles, URLs and snippets"
}

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The search query"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Number of results (default: 5)"},
				"time_range": {"type": "string", "enum": ["day", "week", "month", "year"], "description": "Only return recent results"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchParams struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	TimeRange string `json:"time_range,omitempty"`
}

type webSearchResult struct {
	Query   string         `json:"query"`
	Engine  string         `json:"engine"`
	Results []SearchResult `json:"results"`
	Cached  bool           `json:"cached,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search", t.logger, params, t.search)
}

func (t *WebSearchTool) search(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
	p.Query = strings.TrimSpace(p.Query)
	if err := ValidateAll(
		RequireField("query", p.Query),
		ValidateEnum("time_range", p.TimeRange, "day", "week", "month", "year"),
	); err != nil {
		return ErrResult("%v", err), nil
	}
	switch {
	case p.Limit <= 0:
		p.Limit = defaultSearchCount
	case p.Limit > maxSearchCount:
		p.Limit = maxSearchCount
	}
	span.SetAttributes(tracer.StringAttr("tool.query", p.Query))

	key := fmt.Sprintf("%s|%d|%s", strings.ToLower(p.Query), p.Limit, p.TimeRange)
	if cached, ok := t.getCached(key); ok {
		span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
		cached.Cached = true
		return cached, nil
	}

	results, err := t.backend.Search(ctx, p.Query, p.Limit, p.TimeRange)
	if err != nil {
		return nil, err
	}
	if len(results) > p.Limit {
		results = results[:p.Limit]
	}

	out := webSearchResult{Query: p.Query, Engine: t.backend.Name(), Results: results}
	t.putCache(key, out)
	t.logger.Debug("web search completed", "query", p.Query, "results", len(results))
	return out, nil
}

func (t *WebSearchTool) getCached(key string) (webSearchResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.cache[key]
	if !ok {
		return webSearchResult{}, false
	}
	if t.now().After(entry.expiresAt) {
		delete(t.cache, key)
		return webSearchResult{}, false
	}
	return entry.result, true
}

func (t *WebSearchTool) putCache(key string, result webSearchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.cache[key] = cacheEntry{result: result, expiresAt: now.Add(t.cacheTTL)}
	if len(t.cache) > maxCacheEntries {
		for k, v := range t.cache {
			if now.After(v.expiresAt) {
				delete(t.cache, k)
			}
		}
	}
}
