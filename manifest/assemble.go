package manifest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/deb-builder/deb"
	"github.com/etnz/deb-builder/debhelper"
	"github.com/etnz/deb-builder/toolchain"
	"golang.org/x/sync/errgroup"
)

// Options tune a single Assemble run.
type Options struct {
	// NoBuild skips the build command.
	NoBuild bool
	// NoStrip keeps symbols in built binaries.
	NoStrip bool
	// Output overrides the configured output file or directory.
	Output string
	// Version overrides the package version, revision included.
	Version string
	// Timestamp is the modification time of every archive entry and
	// container member. It defaults to SOURCE_DATE_EPOCH, then to now.
	Timestamp time.Time
}

func (o Options) timestamp() time.Time {
	if !o.Timestamp.IsZero() {
		return o.Timestamp
	}
	if s := os.Getenv("SOURCE_DATE_EPOCH"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Now()
}

// Assemble builds the package described by cfg and returns the path of the
// written .deb file. Nothing is left at the output path on failure.
func Assemble(ctx context.Context, cfg *Config, opts Options, l deb.Listener) (string, error) {
	if l == nil {
		l = deb.NopListener{}
	}
	md := cfg.Metadata
	md.Depends = slices.Clone(md.Depends)
	if opts.Version != "" {
		md.Version = opts.Version
	}
	mtime := opts.timestamp()

	if len(cfg.BuildCommand) > 0 && !opts.NoBuild {
		if err := toolchain.RunBuild(ctx, cfg.BuildDir, cfg.BuildCommand, l); err != nil {
			return "", err
		}
		l.Info(EventBuildSuccess{Command: cfg.BuildCommand, Dir: cfg.BuildDir}.String())
	}

	assets, err := deb.ResolveAssets(cfg.Assets)
	if err != nil {
		return "", err
	}
	l.Info(EventAssetsResolved{Count: len(assets)}.String())

	units, err := unitAssets(cfg, md.Package, assets, l)
	if err != nil {
		return "", err
	}
	assets = append(assets, units...)

	docs, err := docAssets(cfg, md.Package)
	if err != nil {
		return "", err
	}
	assets = append(assets, docs...)

	if cfg.Strip && !opts.NoStrip {
		if err := stripAssets(ctx, cfg, assets, l); err != nil {
			return "", err
		}
	}
	if cfg.SeparateDebugSymbols {
		assets = append(assets, debugAssets(assets)...)
	}

	if cfg.AutoDepends {
		md.Depends = appendMissing(md.Depends, autoDepends(ctx, assets, md.Architecture, l)...)
	}
	if err := md.Validate(); err != nil {
		return "", err
	}

	data, md5sums, installed, err := dataArchive(cfg, assets, mtime)
	if err != nil {
		return "", err
	}

	scripts, err := maintainerScripts(cfg, md.Package, assets, l)
	if err != nil {
		return "", err
	}

	control, err := controlArchive(cfg, &md, md5sums, installed, scripts, mtime)
	if err != nil {
		return "", err
	}

	controlName := cfg.ControlCompression.MemberName(deb.PkgControlTar)
	dataName := cfg.DataCompression.MemberName(deb.PkgDataTar)
	var controlZ, dataZ []byte
	var g errgroup.Group
	g.Go(func() (err error) {
		controlZ, err = cfg.ControlCompression.Compress(control)
		return err
	})
	g.Go(func() (err error) {
		dataZ, err = cfg.DataCompression.Compress(data)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("compressing archives: %w", err)
	}
	l.Info(EventArchiveCompressed{Member: controlName, Size: len(control), Compressed: len(controlZ)}.String())
	l.Info(EventArchiveCompressed{Member: dataName, Size: len(data), Compressed: len(dataZ)}.String())

	var signature []byte
	if cfg.Signing != nil {
		signature, err = sign(cfg, mtime, []byte(deb.DebianBinaryVersion), controlZ, dataZ)
		if err != nil {
			return "", err
		}
	}

	out, err := outputPath(cfg, opts, &md)
	if err != nil {
		return "", err
	}
	c, err := deb.CreateContainer(out, filepath.Dir(out))
	if err != nil {
		return "", err
	}
	members := []member{
		{string(deb.PkgDebianBinary), []byte(deb.DebianBinaryVersion)},
		{controlName, controlZ},
		{dataName, dataZ},
	}
	if signature != nil {
		members = append(members, member{string(deb.PkgGPGOrigin), signature})
	}
	for _, m := range members {
		if err := c.AddData(m.name, mtime, 0o644, m.data); err != nil {
			c.Abort()
			return "", err
		}
	}
	written, err := c.Finish()
	if err != nil {
		return "", err
	}
	l.Info(EventPackageWritten{
		Path:         written,
		Package:      md.Package,
		Version:      md.Version,
		Architecture: md.Architecture,
		Signed:       signature != nil,
	}.String())
	return written, nil
}

// member is an ar member of the package, in container order.
type member struct {
	name string
	data []byte
}

// unitAssets installs the systemd unit files found for pkg. Units whose
// target is already provided by a declared asset are left to that asset.
func unitAssets(cfg *Config, pkg string, declared []deb.Asset, l deb.Listener) ([]deb.Asset, error) {
	if cfg.Systemd == nil {
		return nil, nil
	}
	dir := cfg.resolve(cfg.Systemd.UnitScripts)
	if dir == "" {
		dir = cfg.Dir
	}
	found := debhelper.FindUnits(dir, pkg, cfg.Systemd.UnitName)
	if len(found) == 0 && cfg.Systemd.UnitName != "" {
		return nil, fmt.Errorf("%w: %s in %s", debhelper.ErrUnitNotFound, cfg.Systemd.UnitName, dir)
	}
	sources := make([]string, 0, len(found))
	for src := range found {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	targets := make(map[string]bool, len(declared))
	for _, a := range declared {
		targets[path.Clean(a.TargetPath)] = true
	}
	assets := make([]deb.Asset, 0, len(sources))
	for _, src := range sources {
		recipe := found[src]
		target := path.Clean(strings.TrimLeft(recipe.Path, "/"))
		if targets[target] {
			l.Info(EventUnitDeclared{Source: src, Target: target}.String())
			continue
		}
		l.Info(EventUnitFound{Source: src, Target: recipe.Path}.String())
		assets = append(assets, deb.NewAsset(deb.PathSource(src), recipe.Path, recipe.Mode, false))
	}
	return assets, nil
}

// docAssets generates the copyright file, when copyright or license
// information is configured, and the compressed changelog.
func docAssets(cfg *Config, pkg string) ([]deb.Asset, error) {
	docDir := deb.DocDir + pkg + "/"
	var assets []deb.Asset

	copyright := cfg.Copyright
	if cfg.LicenseFile != "" {
		b, err := os.ReadFile(cfg.resolve(cfg.LicenseFile))
		if err != nil {
			return nil, fmt.Errorf("reading license file: %w", err)
		}
		copyright.LicenseText = string(b)
	}
	if copyright.Copyright != "" || copyright.License != "" || copyright.LicenseText != "" {
		if copyright.Copyright == "" {
			copyright.Copyright = cfg.Metadata.Maintainer
		}
		assets = append(assets, deb.NewAsset(deb.DataSource(copyright.Generate()), docDir+"copyright", 0o644, false))
	}

	if cfg.Changelog != "" {
		b, err := os.ReadFile(cfg.resolve(cfg.Changelog))
		if err != nil {
			return nil, fmt.Errorf("reading changelog: %w", err)
		}
		gz, err := deb.GzipChangelog(b)
		if err != nil {
			return nil, err
		}
		assets = append(assets, deb.NewAsset(deb.DataSource(gz), docDir+"changelog.gz", 0o644, false))
	}
	return assets, nil
}

// isBinary reports whether a built asset is an object file binutils can
// process.
func isBinary(a deb.Asset) bool {
	return a.IsBuilt && (a.IsExecutable() || a.IsDynamicLibrary())
}

func stripAssets(ctx context.Context, cfg *Config, assets []deb.Asset, l deb.Listener) error {
	for _, a := range assets {
		p, ok := a.Source.Path()
		if !ok || !isBinary(a) {
			continue
		}
		if cfg.SeparateDebugSymbols {
			if _, err := toolchain.SeparateDebugSymbols(ctx, cfg.StripCommand, p); err != nil {
				return err
			}
		} else if err := toolchain.Strip(ctx, cfg.StripCommand, p); err != nil {
			return err
		}
		l.Info(fmt.Sprintf("Stripped '%s'", p))
	}
	return nil
}

// debugAssets ships the separated debug symbols found next to built
// binaries.
func debugAssets(assets []deb.Asset) []deb.Asset {
	var debug []deb.Asset
	for _, a := range assets {
		if !isBinary(a) {
			continue
		}
		src, ok := a.DebugSource()
		if !ok {
			continue
		}
		target, _ := a.DebugTarget()
		if fi, err := os.Stat(src); err == nil && fi.Mode().IsRegular() {
			debug = append(debug, deb.NewAsset(deb.PathSource(src), target, 0o644, false))
		}
	}
	return debug
}

// autoDepends resolves the shared library dependencies of built
// executables. Failures only produce warnings.
func autoDepends(ctx context.Context, assets []deb.Asset, arch string, l deb.Listener) []string {
	var deps []string
	for _, a := range assets {
		p, ok := a.Source.Path()
		if !ok || !a.IsBuilt || !a.IsExecutable() {
			continue
		}
		resolved, err := toolchain.ResolveDependencies(ctx, p, arch, l)
		if err != nil {
			l.Warning(fmt.Sprintf("Unable to resolve dependencies of %s: %v", p, err))
			continue
		}
		deps = appendMissing(deps, resolved...)
	}
	return deps
}

func appendMissing(list []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}

// dataArchive lays out the payload and returns it with the md5 sum of each
// regular file and the total installed size.
func dataArchive(cfg *Config, assets []deb.Asset, mtime time.Time) ([]byte, map[string]string, int64, error) {
	a := deb.NewArchive(mtime)
	md5sums := make(map[string]string)
	var installed int64
	for _, asset := range assets {
		if cfg.PreserveSymlinks {
			if p, ok := asset.Source.Path(); ok {
				if fi, err := os.Lstat(p); err == nil && fi.Mode()&os.ModeSymlink != 0 {
					target, err := os.Readlink(p)
					if err != nil {
						return nil, nil, 0, fmt.Errorf("reading symlink %s: %w", p, err)
					}
					if err := a.Symlink(asset.TargetPath, target); err != nil {
						return nil, nil, 0, err
					}
					continue
				}
			}
		}
		b, err := asset.Source.Data()
		if err != nil {
			return nil, nil, 0, err
		}
		if err := a.File(asset.TargetPath, b, asset.Mode); err != nil {
			return nil, nil, 0, err
		}
		sum := md5.Sum(b)
		md5sums[asset.TargetPath] = hex.EncodeToString(sum[:])
		installed += int64(len(b))
	}
	b, err := a.Bytes()
	if err != nil {
		return nil, nil, 0, err
	}
	return b, md5sums, installed, nil
}

// maintainerScripts generates the systemd snippets and merges them into the
// user maintainer scripts.
func maintainerScripts(cfg *Config, pkg string, assets []deb.Asset, l deb.Listener) (debhelper.ScriptFragments, error) {
	if cfg.Systemd == nil {
		return debhelper.ScriptFragments{}, nil
	}
	fragments, err := debhelper.Generate(pkg, assets, cfg.Systemd.Options, l)
	if err != nil {
		return nil, err
	}
	if err := debhelper.Apply(cfg.resolve(cfg.MaintainerScripts), fragments, pkg, cfg.Systemd.UnitName, l); err != nil {
		return nil, err
	}
	return fragments, nil
}

// controlScripts are copied from the maintainer scripts directory, in
// archive order.
var controlScripts = []deb.ControlFile{
	deb.FileConfig,
	deb.FilePreinst,
	deb.FilePostinst,
	deb.FilePrerm,
	deb.FilePostrm,
	deb.FileTemplates,
}

func controlArchive(cfg *Config, md *deb.Metadata, md5sums map[string]string, installed int64, scripts debhelper.ScriptFragments, mtime time.Time) ([]byte, error) {
	a := deb.NewArchive(mtime)
	if err := a.File(string(deb.FileMd5sums), deb.GenerateMd5sums(md5sums), 0o644); err != nil {
		return nil, err
	}
	if err := a.File(string(deb.FileControl), md.GenerateControl(installed), 0o644); err != nil {
		return nil, err
	}
	if conffiles := deb.GenerateConffiles(cfg.ConfFiles); conffiles != nil {
		if err := a.File(string(deb.FileConffiles), conffiles, 0o644); err != nil {
			return nil, err
		}
	}

	dir := cfg.resolve(cfg.MaintainerScripts)
	for _, name := range controlScripts {
		content, ok := scripts[string(name)]
		if !ok && dir != "" {
			b, err := os.ReadFile(filepath.Join(dir, string(name)))
			switch {
			case err == nil:
				content, ok = b, true
			case !os.IsNotExist(err):
				return nil, fmt.Errorf("reading maintainer script: %w", err)
			}
		}
		if !ok {
			continue
		}
		if err := a.File(string(name), content, 0o755); err != nil {
			return nil, err
		}
	}

	if cfg.TriggersFile != "" {
		b, err := os.ReadFile(cfg.resolve(cfg.TriggersFile))
		if err != nil {
			return nil, fmt.Errorf("reading triggers file: %w", err)
		}
		if err := a.File(string(deb.FileTriggers), b, 0o644); err != nil {
			return nil, err
		}
	}
	return a.Bytes()
}

func sign(cfg *Config, mtime time.Time, members ...[]byte) ([]byte, error) {
	key, err := os.ReadFile(cfg.resolve(cfg.Signing.KeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	var passphrase []byte
	if cfg.Signing.PassphraseEnv != "" {
		passphrase = []byte(os.Getenv(cfg.Signing.PassphraseEnv))
	}
	return deb.Sign(string(key), passphrase, mtime, members...)
}

// outputPath picks the package file path. An output naming a directory
// receives the standard file name.
func outputPath(cfg *Config, opts Options, md *deb.Metadata) (string, error) {
	name := md.Filename(cfg.NameSeparator)
	out := opts.Output
	if out == "" && cfg.Output != "" {
		out = cfg.resolve(cfg.Output)
	}
	if out == "" {
		return filepath.Join(cfg.Dir, "target", "debian", name), nil
	}
	if strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(filepath.Separator)) {
		return filepath.Join(out, name), nil
	}
	if fi, err := os.Stat(out); err == nil && fi.IsDir() {
		return filepath.Join(out, name), nil
	}
	return filepath.Abs(out)
}
