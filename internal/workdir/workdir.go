// Package workdir manages the per-session scratch directories compiled
// sources and binaries live in while a session runs.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultBaseDir is the parent directory session directories are
// created under when no base directory is configured, matching the
// original server's /tmp/wandbox.
const DefaultBaseDir = "/tmp/wandbox"

func resolveBase(base string) string {
	if base == "" {
		return DefaultBaseDir
	}
	return base
}

// EnsureBase creates base (or DefaultBaseDir if base is empty) if it
// does not already exist, mode 0700. Call once at acceptor startup.
func EnsureBase(base string) error {
	return os.MkdirAll(resolveBase(base), 0700)
}

// Dir is one session's working directory.
type Dir struct {
	Path string
}

// New creates a fresh, uniquely named directory under base (or
// DefaultBaseDir if base is empty), mode 0700.
func New(base string) (*Dir, error) {
	base = resolveBase(base)
	name := uuid.NewString()
	path := filepath.Join(base, name)
	if err := os.Mkdir(path, 0700); err != nil {
		return nil, fmt.Errorf("workdir: create %s: %w", path, err)
	}
	return &Dir{Path: path}, nil
}

// WriteFile writes data to a file named relative to the working
// directory, fsyncing before close so the compiler sees a durable file
// even if it is spawned immediately afterward.
func (d *Dir) WriteFile(name string, data []byte) error {
	full := filepath.Join(d.Path, name)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("workdir: open %s: %w", full, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("workdir: write %s: %w", full, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("workdir: sync %s: %w", full, err)
	}
	return f.Close()
}

// Remove unconditionally tears down the working directory. Called from
// session teardown regardless of how the session ended.
func (d *Dir) Remove() error {
	return os.RemoveAll(d.Path)
}
