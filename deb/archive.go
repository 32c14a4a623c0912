package deb

import (
	"archive/tar"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// DirMode is the permission of every directory entry an Archive emits.
const DirMode = 0o755

// Archive accumulates a GNU tar stream in memory. Every file and symlink is
// preceded by entries for all of its ancestor directories, each emitted once,
// so that dpkg never meets a file whose parent was not declared.
//
// All entries share the modification time given to NewArchive.
type Archive struct {
	buf  bytes.Buffer
	tw   *tar.Writer
	time time.Time
	dirs map[string]bool
	// names holds the file and symlink entries written so far.
	names map[string]bool
}

// NewArchive returns an empty archive stamping every entry with mtime.
func NewArchive(mtime time.Time) *Archive {
	a := &Archive{
		time:  mtime.Truncate(time.Second),
		dirs:  make(map[string]bool),
		names: make(map[string]bool),
	}
	a.tw = tar.NewWriter(&a.buf)
	return a
}

// entryName converts a package path like "usr/bin/app" or "/usr/bin/app"
// into the canonical archive name "./usr/bin/app".
func entryName(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) || !utf8.ValidString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := path.Clean("/" + strings.TrimPrefix(p, "./"))
	if clean == "/" {
		return "", fmt.Errorf("%w: %q names the archive root", ErrInvalidPath, p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the archive root", ErrInvalidPath, p)
		}
	}
	return "." + clean, nil
}

func (a *Archive) header(h *tar.Header) *tar.Header {
	h.Format = tar.FormatGNU
	h.ModTime = a.time
	h.Uname = "root"
	h.Gname = "root"
	return h
}

func (a *Archive) directory(name string) error {
	hdr := a.header(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     DirMode,
	})
	if err := a.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("%w: directory %s: %v", ErrArchiveFormat, name, err)
	}
	return nil
}

// claim reserves name for a single file or symlink entry.
func (a *Archive) claim(name string) error {
	if a.names[name] || a.dirs[name+"/"] {
		return fmt.Errorf("%w: duplicate entry %s", ErrInvalidPath, name)
	}
	a.names[name] = true
	return nil
}

// addParentDirectories emits "./", then each missing ancestor of name.
func (a *Archive) addParentDirectories(name string) error {
	dir := "./"
	rest := strings.TrimPrefix(name, "./")
	parts := strings.Split(rest, "/")
	for i := 0; ; i++ {
		if !a.dirs[dir] {
			if a.names[strings.TrimSuffix(dir, "/")] {
				return fmt.Errorf("%w: %s is both a file and a directory", ErrInvalidPath, dir)
			}
			a.dirs[dir] = true
			if err := a.directory(dir); err != nil {
				return err
			}
		}
		if i >= len(parts)-1 {
			return nil
		}
		dir += parts[i] + "/"
	}
}

// File appends a regular file entry for path with the given content and mode.
func (a *Archive) File(p string, data []byte, mode int64) error {
	name, err := entryName(p)
	if err != nil {
		return err
	}
	if err := a.claim(name); err != nil {
		return err
	}
	if err := a.addParentDirectories(name); err != nil {
		return err
	}
	hdr := a.header(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     mode,
		Size:     int64(len(data)),
	})
	if err := a.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArchiveFormat, name, err)
	}
	if _, err := a.tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Symlink appends a symbolic link entry at path pointing to target.
func (a *Archive) Symlink(p, target string) error {
	name, err := entryName(p)
	if err != nil {
		return err
	}
	if target == "" || strings.ContainsRune(target, 0) {
		return fmt.Errorf("%w: link target %q for %s", ErrInvalidPath, target, name)
	}
	if err := a.claim(name); err != nil {
		return err
	}
	if err := a.addParentDirectories(name); err != nil {
		return err
	}
	hdr := a.header(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     name,
		Linkname: target,
		Mode:     0o777,
	})
	if err := a.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArchiveFormat, name, err)
	}
	return nil
}

// Bytes finishes the archive and returns its content. The archive cannot be
// appended to afterwards.
func (a *Archive) Bytes() ([]byte, error) {
	if err := a.tw.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing archive: %v", ErrArchiveFormat, err)
	}
	return a.buf.Bytes(), nil
}
