package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

const (
	defaultFetchMaxBytes = 64 * 1024
	defaultFetchTimeout  = 15 * time.Second
)

// FetchConfig tunes the fetch_url tool.
type FetchConfig struct {
	Timeout   time.Duration
	MaxBytes  int
	UserAgent string
}

// FetchTool retrieves a web page or API response over HTTP(S).
type FetchTool struct {
	client *http.Client
	cfg    FetchConfig
	logger *slog.Logger
}

// NewFetchTool creates the fetch_url tool. client may be nil.
func NewFetchTool(client *http.Client, cfg FetchConfig, logger *slog.Logger) *FetchTool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultFetchMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "conductor/1.0"
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &FetchTool{client: client, cfg: cfg, logger: logger}
}

func (t *FetchTool) Name() string        { return "fetch_url" }
func (t *FetchTool) Description() string { return "Fetch the text content of a web page or HTTP API" }

func (t *FetchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "Absolute http or https URL"},
				"max_bytes": {"type": "integer", "minimum": 1, "description": "Truncate the body to this many bytes"}
			},
			"required": ["url"]
		}`),
	}
}

type fetchParams struct {
	URL      string `json:"url"`
	MaxBytes int    `json:"max_bytes"`
}

type fetchResult struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
	Truncated   bool   `json:"truncated"`
}

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.fetch_url", t.logger, params, t.fetch)
}

func (t *FetchTool) fetch(ctx context.Context, span trace.Span, p fetchParams) (any, error) {
	if err := ValidateAll(RequireField("url", p.URL), ValidateURL("url", p.URL)); err != nil {
		return ErrResult("%v", err), nil
	}
	limit := t.cfg.MaxBytes
	if p.MaxBytes > 0 && p.MaxBytes < limit {
		limit = p.MaxBytes
	}
	span.SetAttributes(tracer.StringAttr("http.url", p.URL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return ErrResult("invalid url: %v", err), nil
	}
	req.Header.Set("User-Agent", t.cfg.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(tracer.IntAttr("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetch %s: %w", p.URL, domain.ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("fetch %s: server temporarily unavailable (status %d)", p.URL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextual(contentType) {
		return ErrResult("unsupported content type %q", contentType), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.URL, err)
	}
	truncated := len(body) > limit
	if truncated {
		body = body[:limit]
	}

	return fetchResult{
		URL:         p.URL,
		Status:      resp.StatusCode,
		ContentType: contentType,
		Body:        strings.ToValidUTF8(string(body), ""),
		Truncated:   truncated,
	}, nil
}

// isTextual accepts text/*, JSON, XML and responses that omit a content type.
func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "text/") ||
		strings.HasSuffix(mt, "json") ||
		strings.HasSuffix(mt, "xml")
}
