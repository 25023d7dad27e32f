package fs

import "io"

// AtomicFile is a pending replacement for a file. Cleanup is safe to defer
// and is a no-op after a successful Commit.
type AtomicFile interface {
	io.Writer
	Commit() error
	Cleanup() error
}

// WriteFileAtomic replaces path with data in one step.
func WriteFileAtomic(path string, data []byte) error {
	f, err := NewAtomicFile(path)
	if err != nil {
		return err
	}
	defer f.Cleanup()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}
