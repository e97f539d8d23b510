// Package storage keeps uploaded media on local disk under a single root.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for storage paths that escape the root.
var ErrOutsideRoot = errors.New("storage: path escapes root")

// Disk stores files addressed by slash-separated storage paths such as
// "public/image/<uuid>.jpg".
type Disk struct {
	root string
}

// NewDisk creates root if needed.
func NewDisk(root string) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Disk{root: abs}, nil
}

// Root returns the absolute storage root.
func (d *Disk) Root() string { return d.root }

// AbsPath maps a storage path to its absolute location on disk.
func (d *Disk) AbsPath(storagePath string) (string, error) {
	p := filepath.Clean(filepath.Join(d.root, filepath.FromSlash(storagePath)))
	if !strings.HasPrefix(p, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, storagePath)
	}
	return p, nil
}

// Resolve is AbsPath without the error, for callers that only need a cache
// key. Escaping paths resolve to themselves.
func (d *Disk) Resolve(storagePath string) string {
	p, err := d.AbsPath(storagePath)
	if err != nil {
		return storagePath
	}
	return p
}

// Put streams r to storagePath through a temp file and an atomic rename.
// It returns the number of bytes written.
func (d *Disk) Put(storagePath string, r io.Reader) (int64, error) {
	dest, err := d.AbsPath(storagePath)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "upload-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, err
	}

	bw := bufio.NewWriter(tmp)
	n, err := io.Copy(bw, r)
	if err != nil {
		return fail(fmt.Errorf("storage: write: %w", err))
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("storage: flush: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("storage: rename: %w", err)
	}
	return n, nil
}

// Open opens storagePath for reading.
func (d *Disk) Open(storagePath string) (*os.File, error) {
	p, err := d.AbsPath(storagePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	return f, nil
}

// Stat returns file info for storagePath.
func (d *Disk) Stat(storagePath string) (fs.FileInfo, error) {
	p, err := d.AbsPath(storagePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("storage: stat: %w", err)
	}
	return info, nil
}

// Exists reports whether storagePath names an existing file.
func (d *Disk) Exists(storagePath string) bool {
	info, err := d.Stat(storagePath)
	return err == nil && !info.IsDir()
}

// Delete removes storagePath. Deleting a missing file is not an error.
func (d *Disk) Delete(storagePath string) error {
	p, err := d.AbsPath(storagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// Writable checks that the root can be written to.
func (d *Disk) Writable() error {
	f, err := os.CreateTemp(d.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("storage: root not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
