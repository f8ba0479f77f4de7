package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScopedInner() *mockToolExecutor {
	return newMockTools(
		&staticTool{name: "web_search", result: "results"},
		&staticTool{name: "knowledge_search", result: "facts"},
		&staticTool{name: "read_file", result: "content"},
	)
}

func TestScopedToolExecuteAllowed(t *testing.T) {
	inner := newScopedInner()
	scoped := NewScopedToolExecutor(inner, []string{"web_search", "knowledge_search"})

	res := scoped.Execute(context.Background(), "web_search", json.RawMessage(`{}`))
	require.True(t, res.Success)
	assert.JSONEq(t, `"results"`, string(res.Result))
	assert.Equal(t, []string{"web_search"}, inner.executed())
}

func TestScopedToolExecuteDenied(t *testing.T) {
	inner := newScopedInner()
	scoped := NewScopedToolExecutor(inner, []string{"web_search"})

	res := scoped.Execute(context.Background(), "read_file", json.RawMessage(`{}`))
	assert.False(t, res.Success)
	assert.Equal(t, `Tool "read_file" not found`, res.Error)
	assert.Empty(t, inner.executed(), "denied tool must not reach the inner executor")
}

func TestScopedToolSchemasFiltered(t *testing.T) {
	scoped := NewScopedToolExecutor(newScopedInner(), []string{"web_search", "knowledge_search"})

	schemas := scoped.Schemas([]string{"read_file", "knowledge_search", "web_search"})
	require.Len(t, schemas, 2)
	assert.Equal(t, "knowledge_search", schemas[0].Name)
	assert.Equal(t, "web_search", schemas[1].Name)
}

func TestScopedToolEmptyAllowListDeniesEverything(t *testing.T) {
	inner := newScopedInner()
	scoped := NewScopedToolExecutor(inner, nil)

	assert.Empty(t, scoped.Schemas([]string{"web_search"}))
	res := scoped.Execute(context.Background(), "web_search", json.RawMessage(`{}`))
	assert.False(t, res.Success)
	assert.Empty(t, inner.executed())
}
