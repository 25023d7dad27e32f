//go:build windows

package fs

import (
	"os"
	"path/filepath"
)

type pendingFile struct {
	*os.File
	target    string
	committed bool
}

// NewAtomicFile returns a writer whose content replaces path only when
// Commit succeeds. The temporary file lives next to path.
func NewAtomicFile(path string) (AtomicFile, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	return &pendingFile{File: f, target: path}, nil
}

func (p *pendingFile) Commit() error {
	if err := p.File.Sync(); err != nil {
		return err
	}
	if err := p.File.Close(); err != nil {
		return err
	}
	if err := os.Rename(p.File.Name(), p.target); err != nil {
		return err
	}
	p.committed = true
	return nil
}

func (p *pendingFile) Cleanup() error {
	if p.committed {
		return nil
	}
	p.File.Close()
	if err := os.Remove(p.File.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
