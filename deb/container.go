package deb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blakesmith/ar"
)

// maxMemberName is the width of the name field of a common ar header.
const maxMemberName = 16

// Container writes the outer ar archive of a .deb file.
//
// Members are appended in call order; the caller is responsible for the
// order dpkg expects (debian-binary, control archive, data archive). The
// archive is written to a temporary file next to the destination and only
// renamed onto it by Finish, so a failed build never leaves a truncated
// package under the final name.
type Container struct {
	path   string
	prefix string
	tmp    *os.File
	w      *ar.Writer
}

// CreateContainer starts a new archive destined for outPath. Members added
// with AddPath are named relative to prefix.
func CreateContainer(outPath, prefix string) (*Container, error) {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*")
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", outPath, err)
	}
	c := &Container{path: outPath, prefix: prefix, tmp: tmp, w: ar.NewWriter(tmp)}
	if err := c.w.WriteGlobalHeader(); err != nil {
		c.Abort()
		return nil, fmt.Errorf("writing ar global header: %w", err)
	}
	return c, nil
}

// AddPath copies the file at p into the archive. The member takes the file's
// modification time and permissions and is named after its path relative to
// the container prefix.
func (c *Container) AddPath(p string) error {
	name := filepath.Base(p)
	if c.prefix != "" {
		rel, err := filepath.Rel(c.prefix, p)
		rel = filepath.ToSlash(rel)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			return fmt.Errorf("%w: %s is not under %s", ErrInvalidPath, p, c.prefix)
		}
		name = rel
	}
	fi, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p, err)
	}
	return c.AddData(name, fi.ModTime(), int64(fi.Mode().Perm()), data)
}

// AddData appends an in-memory member owned by root.
func (c *Container) AddData(name string, mtime time.Time, mode int64, data []byte) error {
	if name == "" || len(name) > maxMemberName {
		return fmt.Errorf("%w: ar member name %q", ErrArchiveFormat, name)
	}
	hdr := &ar.Header{
		Name:    name,
		ModTime: mtime,
		Uid:     0,
		Gid:     0,
		Mode:    mode,
		Size:    int64(len(data)),
	}
	if err := c.w.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing ar header %s: %w", name, err)
	}
	// ar pads odd sized members per Write call, so the body goes in one call.
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("writing ar member %s: %w", name, err)
	}
	return nil
}

// Finish completes the archive and moves it to its final path, which it
// returns.
func (c *Container) Finish() (string, error) {
	tmpName := c.tmp.Name()
	if err := c.tmp.Sync(); err != nil {
		c.Abort()
		return "", fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := c.tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("setting mode of %s: %w", c.path, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("moving package to %s: %w", c.path, err)
	}
	return c.path, nil
}

// Abort discards everything written so far. It is safe to call after a
// failed Finish.
func (c *Container) Abort() {
	c.tmp.Close()
	os.Remove(c.tmp.Name())
}
