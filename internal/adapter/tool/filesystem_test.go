package tool

import (
	"context"
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/domain"
)

func newTestWorkspace(t *testing.T, maxBytes int, readOnly bool) (string, map[string]domain.Tool) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewLocalFilesystemBackend(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	tools := make(map[string]domain.Tool)
	for _, tl := range NewFilesystemTools(backend, maxBytes, readOnly, testLogger()) {
		tools[tl.Name()] = tl
	}
	return dir, tools
}

func runTool(t *testing.T, tl domain.Tool, args string) *domain.ToolResult {
	t.Helper()
	res, err := tl.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestFilesystemWriteReadList(t *testing.T) {
	dir, tools := newTestWorkspace(t, 0, false)
	require.Len(t, tools, 3)

	res := runTool(t, tools["write_file"], `{"path":"notes/todo.md","content":"- ship it"}`)
	require.True(t, res.Success, res.Error)

	data, err := os.ReadFile(filepath.Join(dir, "notes", "todo.md"))
	require.NoError(t, err)
	assert.Equal(t, "- ship it", string(data))

	res = runTool(t, tools["read_file"], `{"path":"notes/todo.md"}`)
	got, err := decode[readFileResult](res)
	require.NoError(t, err)
	assert.Equal(t, "- ship it", got.Content)
	assert.False(t, got.Truncated)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("abc"), 0o644))
	res = runTool(t, tools["list_directory"], `{}`)
	entries, err := decode[[]dirEntry](res)
	require.NoError(t, err)
	assert.Equal(t, []dirEntry{{Name: "a.txt", Size: 3}, {Name: "notes", Dir: true}}, entries)
}

func TestFilesystemReadTruncates(t *testing.T) {
	dir, tools := newTestWorkspace(t, 4, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte("0123456789"), 0o644))

	got, err := decode[readFileResult](runTool(t, tools["read_file"], `{"path":"big.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "0123", got.Content)
	assert.True(t, got.Truncated)

	res := runTool(t, tools["write_file"], `{"path":"x.txt","content":"too long"}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "limit is 4")
}

func TestFilesystemRejectsEscapes(t *testing.T) {
	dir, tools := newTestWorkspace(t, 0, false)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s3cr3t"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	cases := []string{
		`{"path":"../secret"}`,
		`{"path":"` + filepath.Join(outside, "secret") + `"}`,
		`{"path":"link/secret"}`,
	}
	for _, args := range cases {
		res := runTool(t, tools["read_file"], args)
		assert.False(t, res.Success, args)
		assert.NotContains(t, string(res.Result), "s3cr3t")
	}

	res := runTool(t, tools["write_file"], `{"path":"../evil.txt","content":"x"}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "outside the workspace")
}

func TestFilesystemAbsolutePathInsideRoot(t *testing.T) {
	dir, tools := newTestWorkspace(t, 0, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("inside"), 0o644))

	args, _ := json.Marshal(map[string]string{"path": filepath.Join(dir, "in.txt")})
	got, err := decode[readFileResult](runTool(t, tools["read_file"], string(args)))
	require.NoError(t, err)
	assert.Equal(t, "inside", got.Content)
	assert.Equal(t, "in.txt", got.Path)
}

func TestFilesystemErrors(t *testing.T) {
	_, tools := newTestWorkspace(t, 0, false)

	res := runTool(t, tools["read_file"], `{"path":"missing.txt"}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no such file or directory")

	res = runTool(t, tools["read_file"], `{"path":""}`)
	assert.Contains(t, res.Error, "'path' is required")

	res = runTool(t, tools["write_file"], `{"path":".","content":"x"}`)
	assert.Contains(t, res.Error, "is a directory")
}

func TestFilesystemReadOnly(t *testing.T) {
	_, tools := newTestWorkspace(t, 0, true)
	assert.Len(t, tools, 2)
	assert.NotContains(t, tools, "write_file")

	assert.Equal(t, []string{"list_directory", "read_file"}, slices.Sorted(maps.Keys(tools)))
}
