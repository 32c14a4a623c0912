// Package deb provides the building blocks of a Debian binary package.
//
// # Design Philosophy
//
// Archives are assembled in memory, one entry at a time, and only the outer
// ar container touches the filesystem. Every entry of an archive shares a
// single timestamp chosen by the caller, so the same inputs always produce
// the same bytes.
//
// # Features
//
// Payload:
//   - Resolve asset declarations, including glob patterns, into files.
//   - Build GNU tar archives that declare every parent directory once.
//   - Compress archives with gzip, xz or zstd.
//
// Metadata:
//   - Generate the control, md5sums and conffiles files.
//   - Generate the copyright file and the compressed changelog.
//   - Validate versions and relationship fields.
//
// Container:
//   - Write the ar container atomically.
//   - Sign packages with a detached OpenPGP signature (_gpgorigin).
//   - Read existing .deb files back for inspection.
package deb
