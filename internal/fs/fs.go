package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sokinpui/envboot/internal/ui"
)

// PathResolver finds absolute paths for files below the project root.
type PathResolver struct {
	root string
}

// NewPathResolver creates a PathResolver rooted at root. An empty root means
// the current working directory.
func NewPathResolver(root string) (*PathResolver, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid project root '%s': %w", root, err)
	}
	return &PathResolver{root: abs}, nil
}

// Root returns the absolute project root.
func (r *PathResolver) Root() string {
	return r.root
}

// Resolve returns an absolute path for a root-relative path. Absolute paths
// are returned cleaned.
func (r *PathResolver) Resolve(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return filepath.Clean(relativePath)
	}
	return filepath.Join(r.root, relativePath)
}

// ResolveExisting finds an absolute path only if the file exists.
func (r *PathResolver) ResolveExisting(relativePath string) string {
	absPath := r.Resolve(relativePath)
	if _, err := os.Stat(absPath); err == nil {
		return absPath
	}
	return ""
}

// Relative converts an absolute path to one relative to the root for
// display, falling back to the input.
func (r *PathResolver) Relative(absPath string) string {
	rel, err := filepath.Rel(r.root, absPath)
	if err != nil {
		return absPath
	}
	return rel
}

// FindUp walks from start towards the filesystem root and returns the first
// directory containing any of names, checked in order per directory.
func FindUp(start string, names ...string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		for _, name := range names {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// GetFileSHA256 returns the hex-encoded SHA-256 of a file's content.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EnsureDir creates dir if it does not exist. When confirm is non-nil it is
// asked first; a declined prompt returns false with no error.
func EnsureDir(dir string, confirm func(question string) bool) (bool, error) {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("'%s' exists and is not a directory", dir)
		}
		return true, nil
	}

	if confirm != nil && !confirm(fmt.Sprintf("Directory '%s' does not exist. Create it?", dir)) {
		ui.Warning("Directory creation declined.")
		return false, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("error creating directory '%s': %w", dir, err)
	}
	ui.Success("  -> Created: %s", dir)
	return true, nil
}
