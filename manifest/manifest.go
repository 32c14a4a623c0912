// Package manifest loads a declarative package definition and assembles the
// Debian package it describes.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ErrVariantNotFound is returned when the requested variant is not declared.
var ErrVariantNotFound = errors.New("variant not found")

// ErrInvalidManifest is returned for manifests missing required fields or
// holding malformed values.
var ErrInvalidManifest = errors.New("invalid manifest")

// manifestFile is the on-disk package definition.
type manifestFile struct {
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Revision     string   `json:"revision" yaml:"revision"`
	Architecture string   `json:"architecture" yaml:"architecture"`
	Target       string   `json:"target" yaml:"target"`
	Maintainer   string   `json:"maintainer" yaml:"maintainer"`
	Authors      []string `json:"authors" yaml:"authors"`

	Copyright   string       `json:"copyright" yaml:"copyright"`
	License     string       `json:"license" yaml:"license"`
	LicenseFile *licenseFile `json:"license-file" yaml:"license-file"`
	Changelog   string       `json:"changelog" yaml:"changelog"`

	Homepage            string `json:"homepage" yaml:"homepage"`
	Documentation       string `json:"documentation" yaml:"documentation"`
	Repository          string `json:"repository" yaml:"repository"`
	Description         string `json:"description" yaml:"description"`
	ExtendedDescription string `json:"extended-description" yaml:"extended-description"`
	Readme              string `json:"readme" yaml:"readme"`

	Depends      []string `json:"depends" yaml:"depends"`
	PreDepends   []string `json:"pre-depends" yaml:"pre-depends"`
	Recommends   []string `json:"recommends" yaml:"recommends"`
	Suggests     []string `json:"suggests" yaml:"suggests"`
	Enhances     []string `json:"enhances" yaml:"enhances"`
	BuildDepends []string `json:"build-depends" yaml:"build-depends"`
	Conflicts    []string `json:"conflicts" yaml:"conflicts"`
	Breaks       []string `json:"breaks" yaml:"breaks"`
	Replaces     []string `json:"replaces" yaml:"replaces"`
	Provides     []string `json:"provides" yaml:"provides"`

	Section   string            `json:"section" yaml:"section"`
	Priority  string            `json:"priority" yaml:"priority"`
	Essential *bool             `json:"essential" yaml:"essential"`
	Fields    map[string]string `json:"fields" yaml:"fields"`

	ConfFiles         []string      `json:"conf-files" yaml:"conf-files"`
	TriggersFile      string        `json:"triggers-file" yaml:"triggers-file"`
	Assets            [][]string    `json:"assets" yaml:"assets"`
	MaintainerScripts string        `json:"maintainer-scripts" yaml:"maintainer-scripts"`
	SystemdUnits      *systemdFile  `json:"systemd-units" yaml:"systemd-units"`
	Compression       *compressFile `json:"compression" yaml:"compression"`
	Build             *buildFile    `json:"build" yaml:"build"`
	Signing           *signingFile  `json:"signing" yaml:"signing"`

	Strip                *bool  `json:"strip" yaml:"strip"`
	StripCommand         string `json:"strip-command" yaml:"strip-command"`
	SeparateDebugSymbols *bool  `json:"separate-debug-symbols" yaml:"separate-debug-symbols"`
	PreserveSymlinks     *bool  `json:"preserve-symlinks" yaml:"preserve-symlinks"`
	BuildDir             string `json:"build-dir" yaml:"build-dir"`
	Output               string `json:"output" yaml:"output"`
	NameSeparator        string `json:"name-separator" yaml:"name-separator"`

	Defines  map[string]string        `json:"defines" yaml:"defines"`
	Variants map[string]*manifestFile `json:"variants" yaml:"variants"`
}

// licenseFile is written as [path, skip-lines] or as a bare path.
type licenseFile struct {
	Path      string
	SkipLines int
}

func (l *licenseFile) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&l.Path)
	}
	var parts []string
	if err := node.Decode(&parts); err != nil {
		return err
	}
	return l.set(parts)
}

func (l *licenseFile) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &l.Path); err == nil {
		return nil
	}
	var parts []string
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	return l.set(parts)
}

func (l *licenseFile) set(parts []string) error {
	switch len(parts) {
	case 2:
		if _, err := fmt.Sscanf(parts[1], "%d", &l.SkipLines); err != nil {
			return fmt.Errorf("license-file skip lines %q: %w", parts[1], err)
		}
		fallthrough
	case 1:
		l.Path = parts[0]
		return nil
	}
	return fmt.Errorf("license-file must be [path, skip-lines], got %d items", len(parts))
}

type systemdFile struct {
	UnitScripts         string `json:"unit-scripts" yaml:"unit-scripts"`
	UnitName            string `json:"unit-name" yaml:"unit-name"`
	Enable              *bool  `json:"enable" yaml:"enable"`
	Start               *bool  `json:"start" yaml:"start"`
	RestartAfterUpgrade *bool  `json:"restart-after-upgrade" yaml:"restart-after-upgrade"`
	StopOnUpgrade       *bool  `json:"stop-on-upgrade" yaml:"stop-on-upgrade"`
}

type compressFile struct {
	Control string `json:"control" yaml:"control"`
	Data    string `json:"data" yaml:"data"`
}

type buildFile struct {
	Command []string `json:"command" yaml:"command"`
	Dir     string   `json:"dir" yaml:"dir"`
}

type signingFile struct {
	KeyFile       string `json:"key-file" yaml:"key-file"`
	PassphraseEnv string `json:"passphrase-env" yaml:"passphrase-env"`
}

// Load reads the manifest at path and resolves it into a Config. A
// non-empty variant selects an entry of the manifest's variants: it inherits
// every field it leaves unset and names the package "<name>-<variant>".
// defines override the template variables declared in the manifest.
func Load(path, variant string, defines map[string]string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m manifestFile
	if err := unmarshal(path, content, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	engine := newTemplateEngine(m.Defines)
	if variant != "" {
		v, ok := m.Variants[variant]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s in %s", ErrVariantNotFound, variant, path)
		}
		if len(v.Variants) > 0 {
			return nil, fmt.Errorf("%w: variant %s declares variants", ErrInvalidManifest, variant)
		}
		engine = engine.sub(v.Defines)
		merged := *v
		merged.inherit(&m)
		merged.Name = m.Name + "-" + variant
		m = merged
	}
	engine = engine.sub(defines)

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(&m, engine, dir)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return cfg, nil
}

// inherit fills every field v leaves unset from parent. Fields and defines
// are merged, v taking precedence.
func (v *manifestFile) inherit(parent *manifestFile) {
	pick(&v.Version, parent.Version)
	pick(&v.Revision, parent.Revision)
	pick(&v.Architecture, parent.Architecture)
	pick(&v.Target, parent.Target)
	pick(&v.Maintainer, parent.Maintainer)
	pickSlice(&v.Authors, parent.Authors)

	pick(&v.Copyright, parent.Copyright)
	pick(&v.License, parent.License)
	pick(&v.LicenseFile, parent.LicenseFile)
	pick(&v.Changelog, parent.Changelog)

	pick(&v.Homepage, parent.Homepage)
	pick(&v.Documentation, parent.Documentation)
	pick(&v.Repository, parent.Repository)
	pick(&v.Description, parent.Description)
	pick(&v.ExtendedDescription, parent.ExtendedDescription)
	pick(&v.Readme, parent.Readme)

	pickSlice(&v.Depends, parent.Depends)
	pickSlice(&v.PreDepends, parent.PreDepends)
	pickSlice(&v.Recommends, parent.Recommends)
	pickSlice(&v.Suggests, parent.Suggests)
	pickSlice(&v.Enhances, parent.Enhances)
	pickSlice(&v.BuildDepends, parent.BuildDepends)
	pickSlice(&v.Conflicts, parent.Conflicts)
	pickSlice(&v.Breaks, parent.Breaks)
	pickSlice(&v.Replaces, parent.Replaces)
	pickSlice(&v.Provides, parent.Provides)

	pick(&v.Section, parent.Section)
	pick(&v.Priority, parent.Priority)
	pick(&v.Essential, parent.Essential)
	v.Fields = mergeMaps(parent.Fields, v.Fields)

	pickSlice(&v.ConfFiles, parent.ConfFiles)
	pick(&v.TriggersFile, parent.TriggersFile)
	pickSlice(&v.Assets, parent.Assets)
	pick(&v.MaintainerScripts, parent.MaintainerScripts)
	pick(&v.SystemdUnits, parent.SystemdUnits)
	pick(&v.Compression, parent.Compression)
	pick(&v.Build, parent.Build)
	pick(&v.Signing, parent.Signing)

	pick(&v.Strip, parent.Strip)
	pick(&v.StripCommand, parent.StripCommand)
	pick(&v.SeparateDebugSymbols, parent.SeparateDebugSymbols)
	pick(&v.PreserveSymlinks, parent.PreserveSymlinks)
	pick(&v.BuildDir, parent.BuildDir)
	pick(&v.Output, parent.Output)
	pick(&v.NameSeparator, parent.NameSeparator)

	v.Defines = mergeMaps(parent.Defines, v.Defines)
}

func pick[T comparable](v *T, parent T) {
	var zero T
	if *v == zero {
		*v = parent
	}
}

func pickSlice[T any](v *[]T, parent []T) {
	if *v == nil {
		*v = parent
	}
}

func mergeMaps(parent, child map[string]string) map[string]string {
	if parent == nil && child == nil {
		return nil
	}
	m := make(map[string]string, len(parent)+len(child))
	for k, val := range parent {
		m[k] = val
	}
	for k, val := range child {
		m[k] = val
	}
	return m
}

// unmarshal parses JSON or YAML based on file extension.
func unmarshal(path string, data []byte, v interface{}) error {
	ext := strings.ToLower(filepath.Ext(path))
	r := bytes.NewReader(data)
	if ext == ".yaml" || ext == ".yml" {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(v)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
