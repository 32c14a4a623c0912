package deb

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression selects the codec applied to a tar archive before it is
// stored in the package.
type Compression string

const (
	CompressNone Compression = "none"
	CompressGzip Compression = "gz"
	CompressXz   Compression = "xz"
	CompressZstd Compression = "zst"
)

// ParseCompression accepts the codec names used in manifests and member
// suffixes ("gz", "gzip", "xz", "zst", "zstd", "none" or empty).
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "none":
		return CompressNone, nil
	case "gz", "gzip":
		return CompressGzip, nil
	case "xz":
		return CompressXz, nil
	case "zst", "zstd":
		return CompressZstd, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
}

// Extension returns the member name suffix, e.g. ".xz", or "" for none.
func (c Compression) Extension() string {
	if c == CompressNone || c == "" {
		return ""
	}
	return "." + string(c)
}

// MemberName returns the ar member name for a tar archive compressed with c.
func (c Compression) MemberName(base PackageFile) string {
	return string(base) + c.Extension()
}

// Compress returns data compressed at the codec's best ratio.
func (c Compression) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case CompressNone, "":
		return data, nil
	case CompressGzip:
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
	case CompressXz:
		zw, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
	case CompressZstd:
		zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zw.Close()
		return zw.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, string(c))
	}
	return buf.Bytes(), nil
}

// Decompressor wraps r with the codec matching the suffix of an ar member
// name such as "data.tar.xz".
func Decompressor(member string, r io.Reader) (io.ReadCloser, error) {
	ext := ""
	if i := strings.Index(member, ".tar"); i >= 0 {
		ext = member[i+len(".tar"):]
	}
	c, err := ParseCompression(ext)
	if err != nil {
		return nil, fmt.Errorf("member %s: %w", member, err)
	}
	switch c {
	case CompressGzip:
		return gzip.NewReader(r)
	case CompressXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case CompressZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}
	return io.NopCloser(r), nil
}
