// Package workspace provides the file operations the tool server exposes,
// rooted at a working directory.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// ErrNotFound is returned when a file or directory does not exist.
var ErrNotFound = errors.New("not found")

// DirEntry represents a filesystem directory entry.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Workspace runs file operations on the local machine. Relative paths
// resolve against its root.
type Workspace struct {
	root      string
	platform  string
	osVersion string
}

// New creates a workspace rooted at dir. An empty dir means the current
// working directory.
func New(dir string) (*Workspace, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{
		root:      abs,
		platform:  runtime.GOOS,
		osVersion: runtime.GOOS + "/" + runtime.GOARCH,
	}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

func (w *Workspace) Platform() string {
	return w.platform
}

func (w *Workspace) OSVersion() string {
	return w.osVersion
}

// Resolve returns the absolute path for path.
func (w *Workspace) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.root, path)
}

// ReadFile returns the full content of path.
func (w *Workspace) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(w.Resolve(path))
	if err != nil {
		return "", wrapNotFound("read_file", err)
	}
	return string(data), nil
}

// WriteFile writes content to path, creating parent directories.
func (w *Workspace) WriteFile(path string, content string) error {
	resolved := w.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("write_file: failed to create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write_file: %w", err)
	}
	return nil
}

func (w *Workspace) FileExists(path string) bool {
	_, err := os.Stat(w.Resolve(path))
	return err == nil
}

// ListDirectory returns the immediate entries of path sorted by name.
func (w *Workspace) ListDirectory(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(w.Resolve(path))
	if err != nil {
		return nil, wrapNotFound("list_directory", err)
	}

	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := DirEntry{
			Name:  entry.Name(),
			IsDir: entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil && !de.IsDir {
			de.Size = info.Size()
		}
		result = append(result, de)
	}
	slices.SortFunc(result, func(a, b DirEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
