package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/etnz/deb-builder/deb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates files under dir, making parent directories as needed.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

const fullManifest = `
name: app
version: "{{ .version }}"
revision: "2"
architecture: arm64
maintainer: Jane Doe <jane@example.com>
copyright: 2024 Jane Doe
license: MIT
license-file: [LICENSE, "1"]
homepage: https://example.com/app
repository: https://github.com/example/app
description: An example app
extended-description: |
  It does things.
depends: [libc6, "$auto"]
build-depends: [golang-go]
conflicts: [old-app]
section: utils
conf-files: [/etc/app.conf]
assets:
  - [target/release/app, usr/bin/, "755"]
  - [conf/app.conf, etc/app.conf, "644"]
maintainer-scripts: debian
systemd-units:
  enable: false
  stop-on-upgrade: false
compression:
  data: zst
build:
  command: [go, build, -o, target/release/app, .]
fields:
  X-Channel: "{{ .channel | upper }}"
defines:
  version: 1.4.0
  channel: stable
variants:
  debug:
    description: An example app with debug output
    strip: false
    defines:
      channel: nightly
`

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"deb.yaml": fullManifest})

	cfg, err := Load(filepath.Join(dir, "deb.yaml"), "", nil)
	require.NoError(t, err)

	md := cfg.Metadata
	assert.Equal(t, "app", md.Package)
	assert.Equal(t, "1.4.0-2", md.Version)
	assert.Equal(t, "arm64", md.Architecture)
	assert.Equal(t, "An example app\nIt does things.", md.Description)
	assert.Equal(t, []string{"libc6"}, md.Depends)
	assert.True(t, cfg.AutoDepends)
	assert.Equal(t, []string{"old-app"}, md.Conflicts)
	assert.Equal(t, "optional", md.Priority)
	assert.Equal(t, "golang-go", md.ExtraFields["Build-Depends"])
	assert.Equal(t, "STABLE", md.ExtraFields["X-Channel"])

	assert.Equal(t, deb.Copyright{
		UpstreamName: "app",
		Source:       "https://github.com/example/app",
		Copyright:    "2024 Jane Doe",
		License:      "MIT",
		SkipLines:    1,
	}, cfg.Copyright)
	assert.Equal(t, "LICENSE", cfg.LicenseFile)

	require.Len(t, cfg.Assets, 2)
	assert.Equal(t, deb.UnresolvedAsset{
		SourcePattern: "target/release/app",
		BaseDir:       dir,
		TargetPath:    "usr/bin/",
		Mode:          0o755,
		IsBuilt:       true,
	}, cfg.Assets[0])
	assert.False(t, cfg.Assets[1].IsBuilt)

	require.NotNil(t, cfg.Systemd)
	assert.Equal(t, "debian", cfg.Systemd.UnitScripts)
	assert.True(t, cfg.Systemd.Options.NoEnable)
	assert.False(t, cfg.Systemd.Options.NoStart)
	assert.True(t, cfg.Systemd.Options.NoStopOnUpgrade)
	assert.True(t, cfg.Systemd.Options.RestartAfterUpgrade)

	assert.Equal(t, deb.CompressGzip, cfg.ControlCompression)
	assert.Equal(t, deb.CompressZstd, cfg.DataCompression)
	assert.Equal(t, []string{"go", "build", "-o", "target/release/app", "."}, cfg.BuildCommand)
	assert.Equal(t, dir, cfg.BuildDir)
	assert.True(t, cfg.Strip)
	assert.Equal(t, "_", cfg.NameSeparator)
}

func TestLoadVariant(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"deb.yaml": fullManifest})

	cfg, err := Load(filepath.Join(dir, "deb.yaml"), "debug", nil)
	require.NoError(t, err)
	assert.Equal(t, "app-debug", cfg.Metadata.Package)
	assert.Equal(t, "1.4.0-2", cfg.Metadata.Version, "inherited")
	assert.Equal(t, "An example app with debug output\nIt does things.", cfg.Metadata.Description)
	assert.Equal(t, "NIGHTLY", cfg.Metadata.ExtraFields["X-Channel"])
	assert.False(t, cfg.Strip)
	assert.Len(t, cfg.Assets, 2)

	_, err = Load(filepath.Join(dir, "deb.yaml"), "missing", nil)
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestLoadDefinesOverride(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"deb.yaml": fullManifest})

	cfg, err := Load(filepath.Join(dir, "deb.yaml"), "debug", map[string]string{"version": "2.0.0", "channel": "beta"})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0-2", cfg.Metadata.Version)
	assert.Equal(t, "BETA", cfg.Metadata.ExtraFields["X-Channel"])
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"deb.json": `{
		"name": "app",
		"version": "1.0.0",
		"authors": ["Jane Doe <jane@example.com>"],
		"description": "An app",
		"license-file": "COPYING",
		"target": "x86_64-unknown-linux-gnu",
		"assets": [["bin/app", "usr/bin/app", "755"]]
	}`})

	cfg, err := Load(filepath.Join(dir, "deb.json"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe <jane@example.com>", cfg.Metadata.Maintainer)
	assert.Equal(t, "Jane Doe <jane@example.com>", cfg.Copyright.Copyright)
	assert.Equal(t, "amd64", cfg.Metadata.Architecture)
	assert.Equal(t, "COPYING", cfg.LicenseFile)
	assert.Equal(t, deb.CompressXz, cfg.DataCompression)
	assert.False(t, cfg.Assets[0].IsBuilt)
	assert.Nil(t, cfg.Systemd)
}

func TestLoadCopyrightSourceFallsBackToHomepage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"deb.yaml": "name: app\nversion: '1'\nmaintainer: m\nlicense: MIT\nhomepage: https://app.example.com\nassets: [[a, b, '644']]\n",
	})
	cfg, err := Load(filepath.Join(dir, "deb.yaml"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.Copyright.Source)
	assert.Contains(t, string(cfg.Copyright.Generate()), "Source: https://app.example.com\n")
}

func TestLoadDirectoryWithGlobCharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj[1]")
	writeFiles(t, dir, map[string]string{
		"deb.yaml":           "name: app\nversion: '1'\nmaintainer: m\nassets:\n  - [bin/app, usr/bin/, '755']\n  - ['share/*.txt', usr/share/app/, '644']\n",
		"bin/app":            "#!/bin/sh\n",
		"share/readme.txt":   "hello",
		"share/skipped.conf": "x",
	})
	cfg, err := Load(filepath.Join(dir, "deb.yaml"), "", nil)
	require.NoError(t, err)

	assets, err := deb.ResolveAssets(cfg.Assets)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "usr/bin/app", assets[0].TargetPath)
	assert.Equal(t, "usr/share/app/readme.txt", assets[1].TargetPath)
	p, ok := assets[1].Source.Path()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "share", "readme.txt"), p)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		sentinel error
	}{
		{"unknown field", "deb.yaml", "name: app\nnope: 1\n", nil},
		{"unknown json field", "deb.json", `{"name": "app", "nope": 1}`, nil},
		{"missing name", "deb.yaml", "version: '1'\nmaintainer: m\nassets: [[a, b, '644']]\n", ErrInvalidManifest},
		{"missing maintainer", "deb.yaml", "name: app\nversion: '1'\nassets: [[a, b, '644']]\n", ErrInvalidManifest},
		{"no assets", "deb.yaml", "name: app\nversion: '1'\nmaintainer: m\n", ErrInvalidManifest},
		{"bad asset", "deb.yaml", "name: app\nversion: '1'\nmaintainer: m\nassets: [[a, b]]\n", ErrInvalidManifest},
		{"bad mode", "deb.yaml", "name: app\nversion: '1'\nmaintainer: m\nassets: [[a, b, rwx]]\n", ErrInvalidManifest},
		{"bad compression", "deb.yaml", "name: app\nversion: '1'\nmaintainer: m\nassets: [[a, b, '644']]\ncompression: {data: lz4}\n", deb.ErrUnknownCompression},
		{"undefined template key", "deb.yaml", "name: app\nversion: '{{ .nope }}'\nmaintainer: m\nassets: [[a, b, '644']]\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{tt.file: tt.content})
			_, err := Load(filepath.Join(dir, tt.file), "", nil)
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "", nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadReadme(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"deb.yaml": "name: app\nversion: '1'\nmaintainer: m\ndescription: An app\nreadme: README\nassets: [[a, b, '644']]\n",
		"README":   "Long text.\n",
	})
	cfg, err := Load(filepath.Join(dir, "deb.yaml"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "An app\nLong text.", cfg.Metadata.Description)
}

func TestIsBuilt(t *testing.T) {
	assert.True(t, isBuilt("target/release/app", "target/release"))
	assert.True(t, isBuilt("./target/release/lib/x.so", "target/release/"))
	assert.False(t, isBuilt("target/release-notes.txt", "target/release"))
	assert.False(t, isBuilt("assets/app.conf", "target/release"))
}

func TestTemplateEngine(t *testing.T) {
	e := newTemplateEngine(map[string]string{"name": "app"})
	out, err := e.render("t", "{{ .name | title }}-{{ .name | len }}")
	require.NoError(t, err)
	assert.Equal(t, "App-3", out)

	out, err = e.sub(map[string]string{"name": "tool"}).render("t", "{{ .name }}")
	require.NoError(t, err)
	assert.Equal(t, "tool", out)

	out, err = e.render("t", "plain {text}")
	require.NoError(t, err)
	assert.Equal(t, "plain {text}", out)

	_, err = e.render("t", "{{ .missing }}")
	assert.Error(t, err)
}
