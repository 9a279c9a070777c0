// Package medium provides the files that carry an envelope from a parent
// process to its child.
//
// A medium is either ephemeral, a fresh temporary file the consumer deletes
// after reading, or persistent, a caller-chosen path that is overwritten on
// every acquisition and left on disk for inspection. The provider never
// deletes a medium it handed out successfully: the reader lives in another
// process that starts after the writer is done.
package medium

import (
	"io"
	"os"
	"path/filepath"
)

// DefaultPattern names ephemeral media, see os.CreateTemp.
const DefaultPattern = "spree-*.gob"

// Handle identifies a medium once written.
type Handle struct {
	// Absolute path of the medium file.
	Path string `json:"path" yaml:"path"`
	// Ephemeral media are owned by the reader, which deletes them.
	Ephemeral bool `json:"ephemeral" yaml:"ephemeral"`
	// Bytes written.
	Size int64 `json:"size" yaml:"size"`
}

// Provider acquires media.
type Provider struct {
	// Path of a persistent medium. Empty selects an ephemeral one.
	Path string
	// Directory for ephemeral media. Empty means os.TempDir.
	Dir string
	// Name pattern for ephemeral media. Empty means DefaultPattern.
	Pattern string
}

// Medium is an open, writable medium.
type Medium struct {
	f      *os.File
	handle Handle
	closed bool
}

// Acquire opens explicitPath for writing, or a new temporary file when
// explicitPath is empty.
func Acquire(explicitPath string) (*Medium, error) {
	return Provider{Path: explicitPath}.Acquire()
}

// Acquire opens a medium for writing.
func (p Provider) Acquire() (*Medium, error) {
	if p.Path != "" {
		path, err := filepath.Abs(p.Path)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		return &Medium{f: f, handle: Handle{Path: path}}, nil
	}

	pattern := p.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	f, err := os.CreateTemp(p.Dir, pattern)
	if err != nil {
		return nil, err
	}
	path, err := filepath.Abs(f.Name())
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &Medium{f: f, handle: Handle{Path: path, Ephemeral: true}}, nil
}

// Write runs fn against a freshly acquired medium and closes it on every
// path out. If fn or the close fails, the file is removed and the error
// returned; otherwise the file is kept for its reader.
func (p Provider) Write(fn func(w io.Writer) error) (h Handle, err error) {
	m, err := p.Acquire()
	if err != nil {
		return Handle{}, err
	}

	defer func() {
		if cerr := m.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(m.handle.Path)
			h = Handle{}
			return
		}
		h = m.Handle()
	}()

	err = fn(m)
	return
}

func (m *Medium) Write(p []byte) (int, error) {
	n, err := m.f.Write(p)
	m.handle.Size += int64(n)
	return n, err
}

// Handle returns the handle of m.
func (m *Medium) Handle() Handle { return m.handle }

// Close releases the file without removing it. Close is idempotent.
func (m *Medium) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.f.Close()
}
