package deb

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// AssetSource is where the content of an Asset comes from: a file on disk,
// read on demand, or bytes already held in memory.
type AssetSource interface {
	// Path returns the filesystem path of the source, if any.
	Path() (string, bool)
	// Len returns the content length when it is known without reading.
	Len() (int64, bool)
	// Data materializes the content.
	Data() ([]byte, error)
}

// PathSource is an AssetSource backed by a file on disk.
type PathSource string

func (s PathSource) Path() (string, bool) { return string(s), true }

func (s PathSource) Len() (int64, bool) {
	fi, err := os.Stat(string(s))
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}

func (s PathSource) Data() ([]byte, error) {
	b, err := os.ReadFile(string(s))
	if err != nil {
		return nil, fmt.Errorf("reading asset %s: %w", string(s), err)
	}
	return b, nil
}

// DataSource is an AssetSource holding generated content.
type DataSource []byte

func (s DataSource) Path() (string, bool)  { return "", false }
func (s DataSource) Len() (int64, bool)    { return int64(len(s)), true }
func (s DataSource) Data() ([]byte, error) { return s, nil }

// Asset is a single file destined for a path inside the installed package
// tree.
type Asset struct {
	Source AssetSource

	// TargetPath is relative to the package root and uses forward slashes,
	// e.g. "usr/bin/app".
	TargetPath string

	// Mode holds the permission bits of the installed file.
	Mode int64

	// IsBuilt marks files produced by the project build, as opposed to
	// static files checked into the project.
	IsBuilt bool
}

// NewAsset returns a normalized Asset. A target ending in "/" names a
// directory and gets the source file name appended; a rooted target is made
// relative.
func NewAsset(source AssetSource, target string, mode int64, isBuilt bool) Asset {
	if strings.HasSuffix(target, "/") {
		if p, ok := source.Path(); ok {
			target += filepath.Base(p)
		}
	}
	return Asset{
		Source:     source,
		TargetPath: strings.TrimLeft(target, "/"),
		Mode:       mode,
		IsBuilt:    isBuilt,
	}
}

// IsExecutable reports whether any execute bit is set.
func (a Asset) IsExecutable() bool {
	return a.Mode&0o111 != 0
}

// IsDynamicLibrary reports whether the target looks like a shared object.
func (a Asset) IsDynamicLibrary() bool {
	return strings.HasSuffix(path.Base(a.TargetPath), ".so")
}

// DebugTarget returns where the separated debug symbols of a built file are
// installed, e.g. "usr/lib/debug/usr/bin/app.debug". ok is false for assets
// that are not built.
func (a Asset) DebugTarget() (target string, ok bool) {
	if !a.IsBuilt {
		return "", false
	}
	return DebugDir + a.TargetPath + ".debug", true
}

// DebugSource returns the path of the separated debug symbol file next to a
// built source file.
func (a Asset) DebugSource() (string, bool) {
	p, ok := a.Source.Path()
	if !ok || !a.IsBuilt {
		return "", false
	}
	return p + ".debug", true
}

// UnresolvedAsset is an asset declaration whose source may be a glob pattern
// expanding to any number of files.
type UnresolvedAsset struct {
	// SourcePattern is a file path or a doublestar pattern. A relative
	// pattern is matched under BaseDir, whose own name is never treated as
	// a pattern.
	SourcePattern string
	BaseDir       string
	TargetPath    string
	Mode          int64
	IsBuilt       bool
}

// String returns the source pattern joined to its base directory.
func (d UnresolvedAsset) String() string {
	if d.BaseDir == "" || filepath.IsAbs(d.SourcePattern) {
		return d.SourcePattern
	}
	return filepath.Join(d.BaseDir, d.SourcePattern)
}

// split separates the literal directory the pattern is matched in from the
// slash-separated pattern relative to it. Leading ".." segments move into
// the directory.
func (d UnresolvedAsset) split() (dir, pattern string) {
	if d.BaseDir == "" || filepath.IsAbs(d.SourcePattern) {
		return "", d.SourcePattern
	}
	dir = d.BaseDir
	pattern = path.Clean(filepath.ToSlash(d.SourcePattern))
	for pattern == ".." || strings.HasPrefix(pattern, "../") {
		dir = filepath.Dir(dir)
		pattern = strings.TrimPrefix(strings.TrimPrefix(pattern, ".."), "/")
	}
	if pattern == "" {
		pattern = "."
	}
	return dir, pattern
}

// glob expands the declaration into file paths. It also returns the
// directory the pattern was matched in and the pattern itself.
func (d UnresolvedAsset) glob() (matches []string, dir, pattern string, err error) {
	dir, pattern = d.split()
	if dir == "" {
		matches, err = doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		return matches, dir, pattern, err
	}
	rel, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, dir, pattern, err
	}
	for _, m := range rel {
		matches = append(matches, filepath.Join(dir, filepath.FromSlash(m)))
	}
	return matches, dir, pattern, nil
}

const globMeta = "*?[]!{"

func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, globMeta)
}

// literalPrefix returns the leading path components of pattern that contain
// no glob metacharacter.
func literalPrefix(pattern string) string {
	var parts []string
	for _, part := range strings.Split(filepath.ToSlash(pattern), "/") {
		if isGlobPattern(part) {
			break
		}
		parts = append(parts, part)
	}
	return filepath.FromSlash(strings.Join(parts, "/"))
}

// filesOnly drops directories. Literal patterns bypass the glob filter.
func filesOnly(matches []string) ([]string, error) {
	res := matches[:0]
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			// dangling symlink
			if fi, err = os.Lstat(m); err != nil {
				return nil, fmt.Errorf("reading asset %s: %w", m, err)
			}
		}
		if !fi.IsDir() {
			res = append(res, m)
		}
	}
	return res, nil
}

// ResolveAssets expands every declaration against the filesystem. Glob
// matches are reparented under the declared target, relative to the literal
// part of the pattern. Directories are skipped. A declaration matching
// nothing fails the whole resolution.
func ResolveAssets(declared []UnresolvedAsset) ([]Asset, error) {
	var assets []Asset
	for _, d := range declared {
		matches, dir, pattern, err := d.glob()
		if err != nil {
			if errors.Is(err, doublestar.ErrBadPattern) {
				return nil, fmt.Errorf("%w: %s", ErrGlobPattern, d)
			}
			return nil, fmt.Errorf("expanding %s: %w", d, err)
		}
		matches, err = filesOnly(matches)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, d)
		}
		sort.Strings(matches)

		if !isGlobPattern(pattern) {
			for _, m := range matches {
				assets = append(assets, NewAsset(PathSource(m), d.TargetPath, d.Mode, d.IsBuilt))
			}
			continue
		}

		prefix := filepath.Join(dir, literalPrefix(pattern))
		for _, m := range matches {
			rel, err := filepath.Rel(prefix, m)
			if err != nil {
				return nil, fmt.Errorf("%w: %s is not under %s", ErrInvalidPath, m, prefix)
			}
			target := path.Join(d.TargetPath, filepath.ToSlash(rel))
			assets = append(assets, NewAsset(PathSource(m), target, d.Mode, d.IsBuilt))
		}
	}
	return assets, nil
}
