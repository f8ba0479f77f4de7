package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"conductor/internal/domain"
)

// SchemaValidatingTool checks arguments against the tool's JSON Schema
// before the inner tool sees them.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps t with argument validation. A tool without a
// parameter schema is returned unchanged; a schema that does not compile is
// an error.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	if _, ok := t.(*SchemaValidatingTool); ok {
		return t, nil
	}
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	url := "mem://tools/" + t.Name() + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}
	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

// Unwrap returns the wrapped tool.
func (s *SchemaValidatingTool) Unwrap() domain.Tool { return s.inner }

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return domain.NewToolFailure(fmt.Sprintf("invalid JSON: %v", err)), nil
	}
	if err := s.schema.Validate(v); err != nil {
		return domain.NewToolFailure(fmt.Sprintf("invalid arguments for %s: %v", s.inner.Name(), err)), nil
	}
	return s.inner.Execute(ctx, params)
}
