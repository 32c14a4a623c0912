package deb

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"pault.ag/go/debian/dependency"
	"pault.ag/go/debian/version"
)

// Metadata maps to the fields of the Debian 'control' file of a binary
// package.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#binary-package-control-files-debian-control
type Metadata struct {
	// Package is the package name: lower case letters, digits, '+', '-' and
	// '.', at least two characters, starting with an alphanumeric.
	Package string

	// Version is [epoch:]upstream_version[-debian_revision].
	Version string

	// Architecture is the Debian architecture, e.g. "amd64", or "all".
	Architecture string

	// Maintainer is "Name <email@address.com>".
	Maintainer string

	// Description holds the synopsis on its first line. Following lines form
	// the extended description; they are word wrapped when written and blank
	// lines become " .".
	Description string

	Section  string
	Priority string
	Homepage string

	// Repository is the source repository URL. It produces Vcs-Browser for
	// http(s) URLs and Vcs-<kind> when the VCS can be inferred from the URL.
	Repository string

	Essential bool

	// Relationship fields, one relation (possibly with alternatives) per item.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-relationships.html
	Depends    []string
	PreDepends []string
	Recommends []string
	Suggests   []string
	Enhances   []string
	Conflicts  []string
	Breaks     []string
	Replaces   []string
	Provides   []string

	BuiltUsing string
	Source     string

	// ExtraFields holds user defined fields, written sorted by name.
	ExtraFields map[string]string
}

var packageName = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)

// Validate checks the fields dpkg rejects outright.
func (m *Metadata) Validate() error {
	if !packageName.MatchString(m.Package) {
		return fmt.Errorf("%w: package name %q", ErrInvalidControl, m.Package)
	}
	if _, err := version.Parse(m.Version); err != nil || m.Version == "" {
		return fmt.Errorf("%w: version %q", ErrInvalidControl, m.Version)
	}
	if m.Architecture == "" {
		return fmt.Errorf("%w: missing architecture", ErrInvalidControl)
	}
	if m.Maintainer == "" {
		return fmt.Errorf("%w: missing maintainer", ErrInvalidControl)
	}
	if strings.TrimSpace(m.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidControl)
	}
	for _, rel := range m.relations() {
		if len(rel.items) == 0 {
			continue
		}
		if _, err := dependency.Parse(strings.Join(rel.items, ", ")); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidControl, rel.field, err)
		}
	}
	return nil
}

type relation struct {
	field ControlField
	items []string
}

func (m *Metadata) relations() []relation {
	return []relation{
		{FieldDepends, m.Depends},
		{FieldPreDepends, m.PreDepends},
		{FieldRecommends, m.Recommends},
		{FieldSuggests, m.Suggests},
		{FieldEnhances, m.Enhances},
		{FieldConflicts, m.Conflicts},
		{FieldBreaks, m.Breaks},
		{FieldReplaces, m.Replaces},
		{FieldProvides, m.Provides},
	}
}

// RepositoryType guesses the VCS of the repository URL ("Git", "Cvs", "Hg"
// or "Svn"), or returns "".
func (m *Metadata) RepositoryType() string {
	repo := m.Repository
	switch {
	case repo == "":
		return ""
	case strings.HasPrefix(repo, "git+"), strings.HasSuffix(repo, ".git"), strings.Contains(repo, "git@"),
		strings.Contains(repo, "github.com"), strings.Contains(repo, "gitlab.com"):
		return "Git"
	case strings.HasPrefix(repo, "cvs+"), strings.Contains(repo, "pserver:"), strings.Contains(repo, "@cvs."):
		return "Cvs"
	case strings.HasPrefix(repo, "hg+"), strings.Contains(repo, "hg@"), strings.Contains(repo, "/hg."):
		return "Hg"
	case strings.HasPrefix(repo, "svn+"), strings.Contains(repo, "/svn."):
		return "Svn"
	}
	return ""
}

// InstalledSize converts a payload size in bytes to the kibibytes dpkg
// expects, rounded up.
func InstalledSize(installedBytes int64) int64 {
	return (installedBytes + 1023) / 1024
}

// GenerateControl renders the control file for a payload of installedBytes.
func (m *Metadata) GenerateControl(installedBytes int64) []byte {
	var b strings.Builder

	writeField := func(field ControlField, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", field, value)
		}
	}

	writeField(FieldPackage, m.Package)
	writeField(FieldVersion, m.Version)
	writeField(FieldArchitecture, m.Architecture)
	if strings.HasPrefix(m.Repository, "http") {
		writeField(FieldVcsBrowser, m.Repository)
	}
	if kind := m.RepositoryType(); kind != "" {
		writeField(ControlField("Vcs-"+kind), m.Repository)
	}
	writeField(FieldHomepage, m.Homepage)
	writeField(FieldSection, m.Section)
	writeField(FieldPriority, m.Priority)
	writeField(FieldStandardsVersion, StandardsVersion)
	writeField(FieldMaintainer, m.Maintainer)
	writeField(FieldInstalledSize, fmt.Sprintf("%d", InstalledSize(installedBytes)))

	if m.Essential {
		writeField(FieldEssential, "yes")
	}
	for _, rel := range m.relations() {
		writeField(rel.field, strings.Join(rel.items, ", "))
	}
	writeField(FieldBuiltUsing, m.BuiltUsing)
	writeField(FieldSource, m.Source)

	extra := make([]string, 0, len(m.ExtraFields))
	for k := range m.ExtraFields {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		writeField(ControlField(k), m.ExtraFields[k])
	}

	if m.Description != "" {
		synopsis, extended, _ := strings.Cut(m.Description, "\n")
		writeField(FieldDescription, strings.TrimSpace(synopsis))
		if strings.TrimSpace(extended) != "" {
			for _, line := range wrapDescription(extended, 79) {
				fmt.Fprintf(&b, " %s\n", line)
			}
		}
	}

	return []byte(b.String())
}

// wrapDescription splits text into lines of less than width bytes at word
// boundaries. Lines holding only whitespace become ".", the control file
// encoding of an empty line.
func wrapDescription(text string, width int) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\t", " "))
		if line == "" || line == "." {
			lines = append(lines, ".")
			continue
		}
		current := ""
		for _, word := range strings.Fields(line) {
			switch {
			case current == "":
				current = word
			case len(current)+len(word) >= width:
				lines = append(lines, current)
				current = word
			default:
				current += " " + word
			}
		}
		lines = append(lines, current)
	}
	return lines
}

// GenerateMd5sums renders the md5sums file from package paths to hex
// digests. Entries are sorted and written without a leading slash.
func GenerateMd5sums(md5Map map[string]string) []byte {
	paths := make([]string, 0, len(md5Map))
	for p := range md5Map {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "%s  %s\n", md5Map[p], strings.TrimPrefix(p, "/"))
	}
	return []byte(b.String())
}

// GenerateConffiles renders the conffiles list. Paths are made absolute.
func GenerateConffiles(paths []string) []byte {
	if len(paths) == 0 {
		return nil
	}
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("/" + strings.TrimLeft(strings.TrimSpace(p), "/"))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Copyright describes the generated usr/share/doc/<pkg>/copyright file.
type Copyright struct {
	UpstreamName string
	Source       string
	Copyright    string
	License      string

	// LicenseText is appended after the header, skipping its first
	// SkipLines lines.
	LicenseText string
	SkipLines   int
}

// Generate renders the copyright file. A license line made of a single space
// becomes " .".
func (c Copyright) Generate() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Upstream Name: %s\n", c.UpstreamName)
	if c.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", c.Source)
	}
	fmt.Fprintf(&b, "Copyright: %s\n", c.Copyright)
	if c.License != "" {
		fmt.Fprintf(&b, "License: %s\n", c.License)
	}
	if c.LicenseText != "" {
		lines := strings.Split(strings.TrimSuffix(c.LicenseText, "\n"), "\n")
		for i, line := range lines {
			if i < c.SkipLines {
				continue
			}
			if line == " " {
				b.WriteString(" .\n")
			} else {
				b.WriteString(line + "\n")
			}
		}
	}
	return b.Bytes()
}

// GzipChangelog compresses a plain text changelog the way it is shipped in
// usr/share/doc.
func GzipChangelog(changelog []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(changelog); err != nil {
		return nil, fmt.Errorf("compressing changelog: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing changelog: %w", err)
	}
	return buf.Bytes(), nil
}
