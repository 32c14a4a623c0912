package deb

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/blakesmith/ar"
)

// Package is the decoded content of a .deb file: its control metadata,
// maintainer scripts and payload.
type Package struct {
	Metadata Metadata
	Scripts  Scripts
	Files    []File
	Symlinks []Symlink

	// Control is the raw content of the control file.
	Control string

	// Directories lists the directory entries of the data archive in
	// archive order, e.g. "/usr/bin/".
	Directories []string

	// ControlEntries lists the names of the control archive entries in
	// archive order.
	ControlEntries []string

	// ExtraControlFiles holds control archive files other than control,
	// md5sums, conffiles and the maintainer scripts, such as "triggers".
	ExtraControlFiles map[string]string

	// Md5sums maps installed paths (with a leading slash) to hex digests.
	Md5sums map[string]string

	// Members lists the ar member names in archive order.
	Members []string

	// Signature is the content of the _gpgorigin member, if any.
	Signature []byte

	// InstalledSize is the Installed-Size field in KiB.
	InstalledSize int64
}

// Scripts holds the maintainer scripts dpkg runs during the package
// lifecycle.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-maintainerscripts.html
type Scripts struct {
	PreInst  string
	PostInst string
	PreRm    string
	PostRm   string
	Config   string
}

// File is a regular file of the payload.
type File struct {
	// DestPath is the absolute installed path, e.g. "/usr/bin/app".
	DestPath string
	Mode     int64
	Body     string

	// IsConf is set when the file is listed in conffiles.
	IsConf  bool
	ModTime time.Time
}

// Symlink is a symbolic link of the payload.
type Symlink struct {
	DestPath string
	Target   string
}

// StandardFilename returns the canonical file name of the package,
// {Package}_{Version}_{Architecture}.deb.
//
// Reference: https://www.debian.org/doc/manuals/debian-faq/ch-pkg_basics.en.html#s-pkgname
func (m *Metadata) StandardFilename() string {
	return m.Filename("_")
}

// Filename is StandardFilename with a custom separator.
func (m *Metadata) Filename(sep string) string {
	return m.Package + sep + m.Version + sep + m.Architecture + ".deb"
}

// ReadPackage decodes a .deb file. Control and data archives may be stored
// uncompressed or compressed with gzip, xz or zstd.
func ReadPackage(r io.Reader) (*Package, error) {
	pkg := &Package{
		Metadata:          Metadata{ExtraFields: make(map[string]string)},
		ExtraControlFiles: make(map[string]string),
		Md5sums:           make(map[string]string),
	}
	var conffiles []string

	arR := ar.NewReader(r)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ar header: %w", err)
		}
		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		pkg.Members = append(pkg.Members, name)

		switch {
		case name == string(PkgDebianBinary):
			body, err := io.ReadAll(arR)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			if string(body) != DebianBinaryVersion {
				return nil, fmt.Errorf("%w: unsupported package format %q", ErrArchiveFormat, body)
			}
		case name == string(PkgGPGOrigin):
			if pkg.Signature, err = io.ReadAll(arR); err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
		case strings.HasPrefix(name, string(PkgControlTar)):
			cf, err := pkg.readControl(name, arR)
			if err != nil {
				return nil, err
			}
			conffiles = cf
		case strings.HasPrefix(name, string(PkgDataTar)):
			if err := pkg.readData(name, arR); err != nil {
				return nil, err
			}
		}
	}

	confSet := make(map[string]bool)
	for _, cf := range conffiles {
		if cf != "" {
			confSet[cf] = true
		}
	}
	for i := range pkg.Files {
		if confSet[pkg.Files[i].DestPath] {
			pkg.Files[i].IsConf = true
		}
	}
	return pkg, nil
}

func openTar(member string, r io.Reader) (*tar.Reader, io.Closer, error) {
	dr, err := Decompressor(member, r)
	if err != nil {
		return nil, nil, err
	}
	return tar.NewReader(dr), dr, nil
}

func (pkg *Package) readControl(member string, r io.Reader) ([]string, error) {
	tr, closer, err := openTar(member, r)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", member, err)
	}
	defer closer.Close()

	var conffiles []string
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading control tar header: %w", err)
		}
		if th.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Base(th.Name)
		pkg.ControlEntries = append(pkg.ControlEntries, name)
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		content := buf.String()

		switch ControlFile(name) {
		case FileControl:
			pkg.Control = content
			if err := parseControlFile(content, &pkg.Metadata); err != nil {
				return nil, err
			}
			if v, ok := pkg.Metadata.ExtraFields[string(FieldInstalledSize)]; ok {
				fmt.Sscanf(v, "%d", &pkg.InstalledSize)
				delete(pkg.Metadata.ExtraFields, string(FieldInstalledSize))
			}
		case FileConffiles:
			conffiles = strings.Split(strings.TrimSpace(content), "\n")
		case FilePreinst:
			pkg.Scripts.PreInst = content
		case FilePostinst:
			pkg.Scripts.PostInst = content
		case FilePrerm:
			pkg.Scripts.PreRm = content
		case FilePostrm:
			pkg.Scripts.PostRm = content
		case FileConfig:
			pkg.Scripts.Config = content
		case FileMd5sums:
			for _, line := range strings.Split(content, "\n") {
				sum, p, ok := strings.Cut(line, "  ")
				if ok {
					pkg.Md5sums["/"+p] = sum
				}
			}
		default:
			pkg.ExtraControlFiles[name] = content
		}
	}
	return conffiles, nil
}

func destPath(name string) string {
	return path.Clean("/" + strings.TrimPrefix(name, "./"))
}

func (pkg *Package) readData(member string, r io.Reader) error {
	tr, closer, err := openTar(member, r)
	if err != nil {
		return fmt.Errorf("opening %s: %w", member, err)
	}
	defer closer.Close()

	for {
		th, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading data tar header: %w", err)
		}

		switch th.Typeflag {
		case tar.TypeDir:
			dir := destPath(th.Name)
			if dir != "/" {
				dir += "/"
			}
			pkg.Directories = append(pkg.Directories, dir)
		case tar.TypeSymlink:
			pkg.Symlinks = append(pkg.Symlinks, Symlink{DestPath: destPath(th.Name), Target: th.Linkname})
		case tar.TypeReg:
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, tr); err != nil {
				return fmt.Errorf("reading file %s: %w", th.Name, err)
			}
			pkg.Files = append(pkg.Files, File{
				DestPath: destPath(th.Name),
				Mode:     th.Mode,
				Body:     buf.String(),
				ModTime:  th.ModTime,
			})
		}
	}
}

// Digest computes a SHA256 over the package content: metadata, scripts,
// control files and payload. It ignores modification times and the order of
// payload entries, so two builds of the same inputs have the same digest.
func (p *Package) Digest() string {
	h := sha256.New()

	// length prefixed to keep adjacent values apart
	write := func(s string) {
		fmt.Fprintf(h, "%d:%s\x00", len(s), s)
	}

	m := p.Metadata
	for _, v := range []string{m.Package, m.Version, m.Architecture, m.Maintainer, m.Description,
		m.Section, m.Priority, m.Homepage, fmt.Sprint(m.Essential), m.BuiltUsing, m.Source} {
		write(v)
	}
	for _, rel := range m.relations() {
		write(fmt.Sprint(len(rel.items)))
		for _, v := range rel.items {
			write(v)
		}
	}
	for _, k := range sortedKeys(m.ExtraFields) {
		write(k)
		write(m.ExtraFields[k])
	}

	s := p.Scripts
	for _, v := range []string{s.PreInst, s.PostInst, s.PreRm, s.PostRm, s.Config} {
		write(v)
	}
	for _, k := range sortedKeys(p.ExtraControlFiles) {
		write(k)
		write(p.ExtraControlFiles[k])
	}

	files := make([]File, len(p.Files))
	copy(files, p.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].DestPath < files[j].DestPath })
	for _, f := range files {
		write(f.DestPath)
		write(fmt.Sprint(f.Mode))
		write(fmt.Sprint(f.IsConf))
		write(f.Body)
	}

	links := make([]Symlink, len(p.Symlinks))
	copy(links, p.Symlinks)
	sort.Slice(links, func(i, j int) bool { return links[i].DestPath < links[j].DestPath })
	for _, l := range links {
		write(l.DestPath)
		write(l.Target)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
