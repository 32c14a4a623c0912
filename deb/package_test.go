package deb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// buildTestDeb writes a minimal package with the given compression.
func buildTestDeb(t *testing.T, c Compression) string {
	t.Helper()
	mtime := time.Unix(1700000000, 0)

	data := NewArchive(mtime)
	if err := data.File("usr/bin/hello", []byte("#!/bin/sh\necho hello\n"), 0o755); err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if err := data.File("etc/hello.conf", []byte("greeting=hello\n"), 0o644); err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if err := data.Symlink("usr/bin/hi", "hello"); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	dataTar, err := data.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	m := &Metadata{
		Package:      "hello",
		Version:      "1.0.0",
		Architecture: "amd64",
		Maintainer:   "Test User <test@example.com>",
		Description:  "Say hello\nPrints a greeting.",
		Depends:      []string{"libc6"},
	}
	control := NewArchive(mtime)
	files := []struct {
		name    ControlFile
		content []byte
		mode    int64
	}{
		{FileMd5sums, GenerateMd5sums(map[string]string{"/usr/bin/hello": "abc", "/etc/hello.conf": "def"}), 0o644},
		{FileControl, m.GenerateControl(37), 0o644},
		{FileConffiles, GenerateConffiles([]string{"/etc/hello.conf"}), 0o644},
		{FilePostinst, []byte("#!/bin/sh\nset -e\n"), 0o755},
		{FileTriggers, []byte("activate-noawait ldconfig\n"), 0o644},
	}
	for _, f := range files {
		if err := control.File(string(f.name), f.content, f.mode); err != nil {
			t.Fatalf("control File failed: %v", err)
		}
	}
	controlTar, err := control.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	out := filepath.Join(t.TempDir(), m.StandardFilename())
	ctr, err := CreateContainer(out, "")
	if err != nil {
		t.Fatalf("CreateContainer failed: %v", err)
	}
	for _, member := range []struct {
		name string
		body []byte
	}{
		{string(PkgDebianBinary), []byte(DebianBinaryVersion)},
		{c.MemberName(PkgControlTar), controlTar},
		{c.MemberName(PkgDataTar), dataTar},
	} {
		body, err := c.Compress(member.body)
		if member.name == string(PkgDebianBinary) {
			body, err = member.body, nil
		}
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if err := ctr.AddData(member.name, mtime, 0o644, body); err != nil {
			t.Fatalf("AddData failed: %v", err)
		}
	}
	if _, err := ctr.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return out
}

func TestReadPackage(t *testing.T) {
	for _, c := range []Compression{CompressNone, CompressGzip, CompressXz, CompressZstd} {
		t.Run(string(c), func(t *testing.T) {
			f, err := os.Open(buildTestDeb(t, c))
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			defer f.Close()

			pkg, err := ReadPackage(f)
			if err != nil {
				t.Fatalf("ReadPackage failed: %v", err)
			}

			if !strings.HasPrefix(pkg.Control, "Package: hello\nVersion: 1.0.0\n") {
				t.Errorf("unexpected control file %q", pkg.Control)
			}
			if got := pkg.Metadata.Package; got != "hello" {
				t.Errorf("expected package hello, got %s", got)
			}
			if got := pkg.Metadata.Description; got != "Say hello\nPrints a greeting." {
				t.Errorf("unexpected description %q", got)
			}
			if pkg.InstalledSize != 1 {
				t.Errorf("expected installed size 1, got %d", pkg.InstalledSize)
			}
			if len(pkg.Metadata.Depends) != 1 || pkg.Metadata.Depends[0] != "libc6" {
				t.Errorf("unexpected depends %v", pkg.Metadata.Depends)
			}
			wantMembers := []string{"debian-binary", c.MemberName(PkgControlTar), c.MemberName(PkgDataTar)}
			if len(pkg.Members) != 3 {
				t.Fatalf("expected 3 members, got %v", pkg.Members)
			}
			for i := range wantMembers {
				if pkg.Members[i] != wantMembers[i] {
					t.Errorf("member %d: expected %s, got %s", i, wantMembers[i], pkg.Members[i])
				}
			}
			if len(pkg.Files) != 2 {
				t.Fatalf("expected 2 files, got %d", len(pkg.Files))
			}
			if pkg.Files[0].DestPath != "/usr/bin/hello" || pkg.Files[0].Mode != 0o755 {
				t.Errorf("unexpected first file %+v", pkg.Files[0])
			}
			if !pkg.Files[1].IsConf {
				t.Errorf("expected /etc/hello.conf to be a conffile")
			}
			if len(pkg.Symlinks) != 1 || pkg.Symlinks[0].Target != "hello" {
				t.Errorf("unexpected symlinks %+v", pkg.Symlinks)
			}
			if pkg.Scripts.PostInst != "#!/bin/sh\nset -e\n" {
				t.Errorf("unexpected postinst %q", pkg.Scripts.PostInst)
			}
			if pkg.ExtraControlFiles["triggers"] == "" {
				t.Errorf("missing triggers file")
			}
			if pkg.Md5sums["/usr/bin/hello"] != "abc" {
				t.Errorf("unexpected md5sums %v", pkg.Md5sums)
			}
			wantDirs := []string{"/", "/usr/", "/usr/bin/", "/etc/"}
			if len(pkg.Directories) != len(wantDirs) {
				t.Fatalf("expected dirs %v, got %v", wantDirs, pkg.Directories)
			}
			for i := range wantDirs {
				if pkg.Directories[i] != wantDirs[i] {
					t.Errorf("dir %d: expected %s, got %s", i, wantDirs[i], pkg.Directories[i])
				}
			}
		})
	}
}

func TestDigestIgnoresCompressionAndOrder(t *testing.T) {
	read := func(c Compression) *Package {
		f, err := os.Open(buildTestDeb(t, c))
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		defer f.Close()
		pkg, err := ReadPackage(f)
		if err != nil {
			t.Fatalf("ReadPackage failed: %v", err)
		}
		return pkg
	}
	a, b := read(CompressGzip), read(CompressXz)
	b.Files[0], b.Files[1] = b.Files[1], b.Files[0]
	if a.Digest() != b.Digest() {
		t.Errorf("digest differs between equivalent packages")
	}
	b.Files[0].Body = "changed"
	if a.Digest() == b.Digest() {
		t.Errorf("digest did not change with content")
	}
}

func TestStandardFilename(t *testing.T) {
	m := &Metadata{Package: "foo", Version: "1.0.0", Architecture: "arm64"}
	if got := m.StandardFilename(); got != "foo_1.0.0_arm64.deb" {
		t.Errorf("expected foo_1.0.0_arm64.deb, got %s", got)
	}
	if got := m.Filename("-"); got != "foo-1.0.0-arm64.deb" {
		t.Errorf("expected foo-1.0.0-arm64.deb, got %s", got)
	}
}
