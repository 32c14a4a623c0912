package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/etnz/deb-builder/deb"
	"github.com/etnz/deb-builder/debhelper"
	"github.com/etnz/deb-builder/toolchain"
)

// AutoDepends is the depends item replaced by the shared library
// dependencies of the built binaries.
const AutoDepends = "$auto"

// DefaultBuildDir is where built files are expected, relative to the
// manifest.
const DefaultBuildDir = "target/release"

// Config is a resolved package definition. Relative paths are resolved
// against Dir.
type Config struct {
	// Dir is the directory of the manifest.
	Dir string

	Metadata deb.Metadata

	// AutoDepends is set when the depends list holds "$auto".
	AutoDepends bool

	Copyright   deb.Copyright
	LicenseFile string
	Changelog   string

	Assets            []deb.UnresolvedAsset
	ConfFiles         []string
	TriggersFile      string
	MaintainerScripts string

	// Systemd is nil when the package ships no systemd units.
	Systemd *SystemdConfig

	Strip                bool
	StripCommand         string
	SeparateDebugSymbols bool
	PreserveSymlinks     bool

	ControlCompression deb.Compression
	DataCompression    deb.Compression

	BuildCommand []string
	BuildDir     string
	TargetDir    string

	Output        string
	NameSeparator string

	Signing *SigningConfig
}

// SystemdConfig locates unit files and tunes the generated scripts.
type SystemdConfig struct {
	UnitScripts string
	UnitName    string
	Options     debhelper.Options
}

// SigningConfig names the OpenPGP key signing the package.
type SigningConfig struct {
	KeyFile       string
	PassphraseEnv string
}

// resolve makes p absolute against the manifest directory.
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// decodeConfig maps the manifest document to a Config, rendering every
// string value as a template.
func decodeConfig(m *manifestFile, engine *templateEngine, dir string) (*Config, error) {
	r := &renderer{engine: engine}
	c := &Config{
		Dir:               dir,
		Changelog:         r.str("changelog", m.Changelog),
		ConfFiles:         r.list("conf-files", m.ConfFiles),
		TriggersFile:      r.str("triggers-file", m.TriggersFile),
		MaintainerScripts: r.str("maintainer-scripts", m.MaintainerScripts),
		Strip:             boolOr(m.Strip, true),
		StripCommand:      r.str("strip-command", m.StripCommand),

		SeparateDebugSymbols: boolOr(m.SeparateDebugSymbols, false),
		PreserveSymlinks:     boolOr(m.PreserveSymlinks, false),

		TargetDir:     r.str("build-dir", m.BuildDir),
		Output:        r.str("output", m.Output),
		NameSeparator: m.NameSeparator,
	}
	if c.TargetDir == "" {
		c.TargetDir = DefaultBuildDir
	}
	if c.NameSeparator == "" {
		c.NameSeparator = "_"
	}

	md := &c.Metadata
	md.Package = r.str("name", m.Name)
	md.Version = r.str("version", m.Version)
	if rev := r.str("revision", m.Revision); rev != "" && md.Version != "" {
		md.Version += "-" + rev
	}
	md.Maintainer = r.str("maintainer", m.Maintainer)
	if md.Maintainer == "" && len(m.Authors) > 0 {
		md.Maintainer = r.str("authors", m.Authors[0])
	}
	switch {
	case m.Architecture != "":
		md.Architecture = r.str("architecture", m.Architecture)
	case m.Target != "":
		md.Architecture = toolchain.DebianArch(r.str("target", m.Target))
	default:
		md.Architecture = toolchain.HostArch()
	}
	md.Homepage = r.str("homepage", m.Homepage)
	if md.Homepage == "" {
		md.Homepage = r.str("documentation", m.Documentation)
	}
	md.Repository = r.str("repository", m.Repository)
	md.Section = r.str("section", m.Section)
	md.Priority = r.str("priority", m.Priority)
	if md.Priority == "" {
		md.Priority = "optional"
	}
	md.Essential = boolOr(m.Essential, false)

	for _, d := range r.list("depends", m.Depends) {
		if strings.TrimSpace(d) == AutoDepends {
			c.AutoDepends = true
			continue
		}
		md.Depends = append(md.Depends, d)
	}
	md.PreDepends = r.list("pre-depends", m.PreDepends)
	md.Recommends = r.list("recommends", m.Recommends)
	md.Suggests = r.list("suggests", m.Suggests)
	md.Enhances = r.list("enhances", m.Enhances)
	md.Conflicts = r.list("conflicts", m.Conflicts)
	md.Breaks = r.list("breaks", m.Breaks)
	md.Replaces = r.list("replaces", m.Replaces)
	md.Provides = r.list("provides", m.Provides)

	md.ExtraFields = make(map[string]string)
	for k, v := range m.Fields {
		md.ExtraFields[k] = r.str("fields."+k, v)
	}
	if len(m.BuildDepends) > 0 {
		md.ExtraFields[string(deb.FieldBuildDepends)] = strings.Join(r.list("build-depends", m.BuildDepends), ", ")
	}

	description := r.str("description", m.Description)
	extended := r.str("extended-description", m.ExtendedDescription)
	if extended == "" && m.Readme != "" {
		b, err := os.ReadFile(c.resolve(r.str("readme", m.Readme)))
		if err != nil {
			return nil, fmt.Errorf("reading readme: %w", err)
		}
		extended = string(b)
	}
	md.Description = strings.TrimSpace(description)
	if extended = strings.TrimSpace(extended); extended != "" {
		md.Description += "\n" + extended
	}

	c.Copyright = deb.Copyright{
		UpstreamName: md.Package,
		Source:       md.Repository,
		Copyright:    r.str("copyright", m.Copyright),
		License:      r.str("license", m.License),
	}
	if c.Copyright.Source == "" {
		c.Copyright.Source = md.Homepage
	}
	if c.Copyright.Copyright == "" {
		c.Copyright.Copyright = strings.Join(r.list("authors", m.Authors), ", ")
	}
	if m.LicenseFile != nil {
		c.LicenseFile = r.str("license-file", m.LicenseFile.Path)
		c.Copyright.SkipLines = m.LicenseFile.SkipLines
	}

	var err error
	if m.Compression != nil {
		if c.ControlCompression, err = deb.ParseCompression(r.str("compression.control", m.Compression.Control)); err != nil {
			return nil, err
		}
		if c.DataCompression, err = deb.ParseCompression(r.str("compression.data", m.Compression.Data)); err != nil {
			return nil, err
		}
	}
	if m.Compression == nil || m.Compression.Control == "" {
		c.ControlCompression = deb.CompressGzip
	}
	if m.Compression == nil || m.Compression.Data == "" {
		c.DataCompression = deb.CompressXz
	}

	if m.Build != nil {
		c.BuildCommand = r.list("build.command", m.Build.Command)
		c.BuildDir = c.resolve(r.str("build.dir", m.Build.Dir))
	}
	if c.BuildDir == "" {
		c.BuildDir = dir
	}

	if m.SystemdUnits != nil {
		s := m.SystemdUnits
		c.Systemd = &SystemdConfig{
			UnitScripts: r.str("systemd-units.unit-scripts", s.UnitScripts),
			UnitName:    r.str("systemd-units.unit-name", s.UnitName),
			Options: debhelper.Options{
				NoEnable:            !boolOr(s.Enable, true),
				NoStart:             !boolOr(s.Start, true),
				RestartAfterUpgrade: boolOr(s.RestartAfterUpgrade, true),
				NoStopOnUpgrade:     !boolOr(s.StopOnUpgrade, true),
			},
		}
		if c.Systemd.UnitScripts == "" {
			c.Systemd.UnitScripts = c.MaintainerScripts
		}
	}

	if m.Signing != nil {
		c.Signing = &SigningConfig{
			KeyFile:       r.str("signing.key-file", m.Signing.KeyFile),
			PassphraseEnv: m.Signing.PassphraseEnv,
		}
	}

	for i, a := range m.Assets {
		if len(a) != 3 {
			return nil, fmt.Errorf("%w: assets[%d] must be [src, dst, mode]", ErrInvalidManifest, i)
		}
		src := r.str(fmt.Sprintf("assets[%d].src", i), a[0])
		dst := r.str(fmt.Sprintf("assets[%d].dst", i), a[1])
		mode, perr := strconv.ParseInt(r.str(fmt.Sprintf("assets[%d].mode", i), a[2]), 8, 64)
		if perr != nil {
			return nil, fmt.Errorf("%w: assets[%d] mode %q: %v", ErrInvalidManifest, i, a[2], perr)
		}
		c.Assets = append(c.Assets, deb.UnresolvedAsset{
			SourcePattern: src,
			BaseDir:       c.Dir,
			TargetPath:    dst,
			Mode:          mode,
			IsBuilt:       isBuilt(src, c.TargetDir),
		})
	}

	if r.err != nil {
		return nil, fmt.Errorf("rendering templates: %w", r.err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// isBuilt reports whether a source path points into the build output.
func isBuilt(src, targetDir string) bool {
	src = path.Clean(filepath.ToSlash(src))
	targetDir = path.Clean(filepath.ToSlash(targetDir))
	return src == targetDir || strings.HasPrefix(src, targetDir+"/")
}

func (c *Config) validate() error {
	switch {
	case c.Metadata.Package == "":
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	case c.Metadata.Version == "":
		return fmt.Errorf("%w: version is required", ErrInvalidManifest)
	case c.Metadata.Maintainer == "":
		return fmt.Errorf("%w: maintainer (or authors) is required", ErrInvalidManifest)
	case len(c.Assets) == 0:
		return fmt.Errorf("%w: at least one asset is required", ErrInvalidManifest)
	}
	return nil
}
