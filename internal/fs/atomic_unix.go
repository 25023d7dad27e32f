//go:build !windows

package fs

import (
	"path/filepath"

	"github.com/google/renameio/v2"
)

type pendingFile struct {
	*renameio.PendingFile
}

// NewAtomicFile returns a writer whose content replaces path only when
// Commit succeeds. The temporary file lives next to path.
func NewAtomicFile(path string) (AtomicFile, error) {
	pf, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(0o644))
	if err != nil {
		return nil, err
	}
	return &pendingFile{pf}, nil
}

func (p *pendingFile) Commit() error {
	return p.CloseAtomicallyReplace()
}
