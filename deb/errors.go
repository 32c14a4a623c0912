package deb

import "errors"

var (
	// ErrAssetNotFound is returned when a declared asset pattern matches no file.
	ErrAssetNotFound = errors.New("asset file not found")

	// ErrGlobPattern is returned for a malformed asset glob pattern.
	ErrGlobPattern = errors.New("invalid glob pattern")

	// ErrInvalidPath is returned for a path that cannot be stored in an archive.
	ErrInvalidPath = errors.New("invalid archive path")

	// ErrArchiveFormat is returned when an archive header cannot be written.
	ErrArchiveFormat = errors.New("archive format error")

	// ErrUnknownCompression is returned for an unsupported compression name.
	ErrUnknownCompression = errors.New("unknown compression")

	// ErrInvalidControl is returned when the control metadata fails validation.
	ErrInvalidControl = errors.New("invalid control metadata")
)
