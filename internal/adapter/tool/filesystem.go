package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/tracer"
)

const defaultFileMaxBytes = 256 * 1024

// workspace resolves model-supplied paths against a FilesystemBackend.
type workspace struct {
	backend  FilesystemBackend
	maxBytes int
	logger   *slog.Logger
}

// relPath maps a path to one relative to the workspace root. Absolute paths
// are accepted only when they lie under the root.
func (w *workspace) relPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ".", nil
	}
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(w.backend.Root(), path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q is outside the workspace", path)
		}
		return rel, nil
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return clean, nil
}

// fsError turns backend errors into messages fit for the model.
func fsError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s %s: no such file or directory", op, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s %s: permission denied", op, path)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}

// NewFilesystemTools creates read_file and list_directory, plus write_file
// unless readOnly is set.
func NewFilesystemTools(backend FilesystemBackend, maxBytes int, readOnly bool, logger *slog.Logger) []domain.Tool {
	if maxBytes <= 0 {
		maxBytes = defaultFileMaxBytes
	}
	ws := &workspace{backend: backend, maxBytes: maxBytes, logger: logger}
	tools := []domain.Tool{&ReadFileTool{ws: ws}, &ListDirectoryTool{ws: ws}}
	if !readOnly {
		tools = append(tools, &WriteFileTool{ws: ws})
	}
	return tools
}

// ReadFileTool reads a text file from the workspace.
type ReadFileTool struct{ ws *workspace }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a text file from the workspace" }

func (t *ReadFileTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path relative to the workspace root"}
			},
			"required": ["path"]
		}`),
	}
}

type readFileParams struct {
	Path string `json:"path"`
}

type readFileResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.read_file", t.ws.logger, params,
		func(_ context.Context, span trace.Span, p readFileParams) (any, error) {
			if err := RequireField("path", p.Path); err != nil {
				return ErrResult("%v", err), nil
			}
			rel, err := t.ws.relPath(p.Path)
			if err != nil {
				return ErrResult("%v", err), nil
			}
			span.SetAttributes(tracer.StringAttr("fs.path", rel))

			data, truncated, err := t.ws.backend.ReadFile(rel, t.ws.maxBytes)
			if err != nil {
				return ErrResult("%v", fsError("read", p.Path, err)), nil
			}
			t.ws.logger.Debug("filesystem read", "path", rel, "size", len(data), "truncated", truncated)
			return readFileResult{Path: rel, Content: strings.ToValidUTF8(string(data), ""), Truncated: truncated}, nil
		},
	)
}

// WriteFileTool writes a text file into the workspace.
type WriteFileTool struct{ ws *workspace }

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write a text file in the workspace, replacing any existing content"
}

func (t *WriteFileTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path relative to the workspace root"},
				"content": {"type": "string", "description": "Full file content"}
			},
			"required": ["path", "content"]
		}`),
	}
}

type writeFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.write_file", t.ws.logger, params,
		func(_ context.Context, span trace.Span, p writeFileParams) (any, error) {
			if err := RequireField("path", p.Path); err != nil {
				return ErrResult("%v", err), nil
			}
			rel, err := t.ws.relPath(p.Path)
			if err != nil {
				return ErrResult("%v", err), nil
			}
			if rel == "." {
				return ErrResult("path %q is a directory", p.Path), nil
			}
			if len(p.Content) > t.ws.maxBytes {
				return ErrResult("content is %d bytes, limit is %d", len(p.Content), t.ws.maxBytes), nil
			}
			span.SetAttributes(tracer.StringAttr("fs.path", rel))

			if err := t.ws.backend.WriteFile(rel, []byte(p.Content), 0o644); err != nil {
				return ErrResult("%v", fsError("write", p.Path, err)), nil
			}
			t.ws.logger.Debug("filesystem write", "path", rel, "size", len(p.Content))
			return fmt.Sprintf("wrote %d bytes to %s", len(p.Content), rel), nil
		},
	)
}

// ListDirectoryTool lists a directory in the workspace.
type ListDirectoryTool struct{ ws *workspace }

func (t *ListDirectoryTool) Name() string        { return "list_directory" }
func (t *ListDirectoryTool) Description() string { return "List the entries of a workspace directory" }

func (t *ListDirectoryTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Directory path relative to the workspace root (default: root)"}
			}
		}`),
	}
}

type listDirParams struct {
	Path string `json:"path"`
}

type dirEntry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir,omitempty"`
	Size int64  `json:"size,omitempty"`
}

func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_directory", t.ws.logger, params,
		func(_ context.Context, _ trace.Span, p listDirParams) (any, error) {
			rel, err := t.ws.relPath(p.Path)
			if err != nil {
				return ErrResult("%v", err), nil
			}
			entries, err := t.ws.backend.ReadDir(rel)
			if err != nil {
				return ErrResult("%v", fsError("list", rel, err)), nil
			}

			out := make([]dirEntry, 0, len(entries))
			for _, e := range entries {
				de := dirEntry{Name: e.Name(), Dir: e.IsDir()}
				if !de.Dir {
					if info, err := e.Info(); err == nil {
						de.Size = info.Size()
					}
				}
				out = append(out, de)
			}
			return out, nil
		},
	)
}
