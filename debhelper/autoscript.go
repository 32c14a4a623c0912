package debhelper

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/etnz/deb-builder/deb"
)

var (
	// ErrUnknownTemplate is returned for an autoscript name with no embedded
	// template.
	ErrUnknownTemplate = errors.New("unknown autoscript")

	// ErrMissingSubstitution is returned when a template placeholder has no
	// value.
	ErrMissingSubstitution = errors.New("missing autoscript substitution")

	// ErrMissingToken is returned when a user maintainer script has no
	// #DEBHELPER# token to receive generated snippets.
	ErrMissingToken = errors.New("#DEBHELPER# token not found")

	// ErrUnitNotFound is returned when an explicitly named unit has no unit
	// file.
	ErrUnitNotFound = errors.New("systemd unit not found")
)

// Token marks where generated snippets go in a user maintainer script.
const Token = "#DEBHELPER#"

const (
	blockStart = "# Automatically added by deb-build\n"
	blockEnd   = "# End automatically added section\n"
	shebang    = "#!/bin/sh\nset -e\n"
)

//go:embed autoscripts
var autoscriptFS embed.FS

var autoscripts = loadAutoscripts()

func loadAutoscripts() map[string]string {
	entries, err := autoscriptFS.ReadDir("autoscripts")
	if err != nil {
		panic(err)
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		b, err := autoscriptFS.ReadFile(path.Join("autoscripts", e.Name()))
		if err != nil {
			panic(err)
		}
		m[e.Name()] = string(b)
	}
	return m
}

// Templates returns the names of the embedded autoscripts, sorted.
func Templates() []string {
	names := make([]string, 0, len(autoscripts))
	for name := range autoscripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScriptFragments maps a script key to its accumulated content. Generated
// snippets live under "<package>.<script>.debhelper"; Apply stores the final
// maintainer scripts under their plain name ("postinst").
type ScriptFragments map[string][]byte

func fragmentKey(pkg, script string) string {
	return pkg + "." + script + ".debhelper"
}

var placeholder = regexp.MustCompile(`#[A-Z][A-Z0-9_]*#`)

// render substitutes every #KEY# placeholder of the named template.
func render(template string, substitutions map[string]string) (string, error) {
	text, ok := autoscripts[template]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	var pairs []string
	for _, p := range placeholder.FindAllString(text, -1) {
		v, ok := substitutions[strings.Trim(p, "#")]
		if !ok {
			return "", fmt.Errorf("%w: %s in %s", ErrMissingSubstitution, p, template)
		}
		pairs = append(pairs, p, v)
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}

// Autoscript renders template and adds it to the fragments of script. Blocks
// for prerm and postrm are prepended so that teardown runs in reverse order;
// other scripts get blocks appended.
func Autoscript(fragments ScriptFragments, pkg, script, template string, substitutions map[string]string, l deb.Listener) error {
	text, err := render(template, substitutions)
	if err != nil {
		return err
	}
	l.Info(fmt.Sprintf("Maintainer script %s will be augmented with autoscript %s", script, template))

	block := blockStart + text + blockEnd
	key := fragmentKey(pkg, script)
	switch script {
	case string(deb.FilePrerm), string(deb.FilePostrm):
		fragments[key] = append([]byte(block), fragments[key]...)
	default:
		fragments[key] = append(fragments[key], block...)
	}
	return nil
}

// PkgFile finds the most specific file in dir for pkg, filename (a script
// name or unit type) and an optional unit name. It tries, in order:
//
//	<pkg>.<unitName>.<filename>
//	<pkg>.<filename>
//	<unitName>.<filename>
//	<filename>
//
// The last two are only considered for the main package, so that template
// variants such as "app@" never pick up the main package's files.
func PkgFile(dir, mainPackage, pkg, filename, unitName string) (string, bool) {
	named := filename
	if unitName != "" {
		named = unitName + "." + filename
	}
	candidates := []string{pkg + "." + named, pkg + "." + filename}
	if pkg == mainPackage {
		candidates = append(candidates, named, filename)
	}
	for _, c := range candidates {
		p := filepath.Join(dir, c)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// Apply produces the final maintainer scripts. For each of postinst,
// preinst, prerm and postrm, a user script found in dir has its #DEBHELPER#
// token replaced with the generated snippets; without a user script, the
// snippets become a new shell script. Results are stored in fragments under
// the script name. Scripts with neither are left out.
func Apply(dir string, fragments ScriptFragments, pkg, unitName string, l deb.Listener) error {
	for _, s := range deb.MaintainerScripts {
		script := string(s)
		generated, hasGenerated := fragments[fragmentKey(pkg, script)]

		userFile, ok := "", false
		if dir != "" {
			userFile, ok = PkgFile(dir, pkg, pkg, script, unitName)
		}
		switch {
		case ok:
			user, err := os.ReadFile(userFile)
			if err != nil {
				return fmt.Errorf("reading maintainer script %s: %w", userFile, err)
			}
			if !bytes.Contains(user, []byte(Token)) {
				if hasGenerated {
					return fmt.Errorf("%w in maintainer script %s", ErrMissingToken, userFile)
				}
				fragments[script] = user
				continue
			}
			l.Info(fmt.Sprintf("Augmenting maintainer script %s", script))
			fragments[script] = bytes.ReplaceAll(user, []byte(Token), generated)
		case hasGenerated:
			l.Info(fmt.Sprintf("Generating maintainer script %s", script))
			fragments[script] = append([]byte(shebang), generated...)
		}
	}
	return nil
}
