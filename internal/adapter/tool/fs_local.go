package tool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LocalFilesystemBackend performs file I/O inside one local directory.
// os.Root rejects any path that resolves outside it, symlinks included.
type LocalFilesystemBackend struct {
	root *os.Root
	dir  string
}

// NewLocalFilesystemBackend opens dir as the workspace root.
func NewLocalFilesystemBackend(dir string) (*LocalFilesystemBackend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace root %q: %w", dir, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open workspace root: %w", err)
	}
	return &LocalFilesystemBackend{root: root, dir: abs}, nil
}

func (b *LocalFilesystemBackend) Name() string { return "local" }
func (b *LocalFilesystemBackend) Root() string { return b.dir }

// Close releases the root directory handle.
func (b *LocalFilesystemBackend) Close() error { return b.root.Close() }

func (b *LocalFilesystemBackend) ReadFile(path string, limit int) ([]byte, bool, error) {
	f, err := b.root.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return nil, false, err
	}
	if len(data) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

func (b *LocalFilesystemBackend) WriteFile(path string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := b.root.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return b.root.WriteFile(path, data, perm)
}

func (b *LocalFilesystemBackend) ReadDir(path string) ([]os.DirEntry, error) {
	f, err := b.root.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}
