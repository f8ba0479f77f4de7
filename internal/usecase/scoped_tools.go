package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"conductor/internal/domain"
)

// NewScopedToolExecutor wraps inner so that only the tools in allowedTools can
// be described or executed. A call to any other tool fails the same way an
// unregistered tool does, so an agent bound to no tools can run none.
func NewScopedToolExecutor(inner domain.ToolExecutor, allowedTools []string) domain.ToolExecutor {
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}
	return &scopedToolExecutor{inner: inner, allowed: allowed}
}

type scopedToolExecutor struct {
	inner   domain.ToolExecutor
	allowed map[string]bool
}

func (s *scopedToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) *domain.ToolResult {
	if !s.allowed[name] {
		return domain.NewToolFailure(fmt.Sprintf("Tool %q not found", name))
	}
	return s.inner.Execute(ctx, name, args)
}

func (s *scopedToolExecutor) Schemas(names []string) []domain.ToolSchema {
	filtered := make([]string, 0, len(names))
	for _, n := range names {
		if s.allowed[n] {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return s.inner.Schemas(filtered)
}
