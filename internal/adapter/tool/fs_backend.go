package tool

import "os"

// FilesystemBackend abstracts file I/O for the filesystem tools. Paths are
// relative to the backend's root.
type FilesystemBackend interface {
	// ReadFile reads at most limit bytes of the named file and reports whether
	// the file was longer.
	ReadFile(path string, limit int) (data []byte, truncated bool, err error)
	// WriteFile writes data to the named file, creating parent directories.
	WriteFile(path string, data []byte, perm os.FileMode) error
	// ReadDir reads the named directory and returns its directory entries.
	ReadDir(path string) ([]os.DirEntry, error)
	// Root returns the absolute directory the backend is confined to.
	Root() string
	// Name returns the backend identifier (e.g. "local").
	Name() string
}
