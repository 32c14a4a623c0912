package debhelper

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/etnz/deb-builder/deb"
)

// InstallRecipe says where a discovered unit file is installed.
type InstallRecipe struct {
	Path string
	Mode int64
}

type unitMapping struct {
	suffix   string // package suffix, "@" for template units
	unitType string
	dir      string
	ext      string
}

var unitMappings = []unitMapping{
	{"", "mount", deb.SystemdUnitDir, "mount"},
	{"", "path", deb.SystemdUnitDir, "path"},
	{"@", "path", deb.SystemdUnitDir, "path"},
	{"", "service", deb.SystemdUnitDir, "service"},
	{"@", "service", deb.SystemdUnitDir, "service"},
	{"", "socket", deb.SystemdUnitDir, "socket"},
	{"@", "socket", deb.SystemdUnitDir, "socket"},
	{"", "target", deb.SystemdUnitDir, "target"},
	{"@", "target", deb.SystemdUnitDir, "target"},
	{"", "timer", deb.SystemdUnitDir, "timer"},
	{"@", "timer", deb.SystemdUnitDir, "timer"},
	{"", "tmpfile", deb.TmpfilesDir, "conf"},
}

// FindUnits looks in dir for unit files of mainPackage, e.g. "app.service"
// or "app@.socket", and returns their install recipes keyed by source path.
// A non-empty unitName renames installed units, and selects more specific
// sources such as "app.worker.service".
func FindUnits(dir, mainPackage, unitName string) map[string]InstallRecipe {
	units := make(map[string]InstallRecipe)
	for _, m := range unitMappings {
		pkg := mainPackage + m.suffix
		src, ok := PkgFile(dir, mainPackage, pkg, m.unitType, unitName)
		if !ok {
			continue
		}
		name := pkg
		if unitName != "" {
			name = unitName + m.suffix
		}
		units[src] = InstallRecipe{Path: m.dir + name + "." + m.ext, Mode: 0o644}
	}
	return units
}

// Units is the outcome of walking the installed unit files.
type Units struct {
	// Enable lists units with an [Install] section.
	Enable []string
	// Start lists every unit reached, directly or through Also=.
	Start []string
	// Aliases lists the values of Alias= directives.
	Aliases []string
}

// Classify walks the non-template units installed by assets, following
// Also= references, and sorts them into units to enable and units to start.
// A unit referenced by Also= but not shipped is started without being
// inspected.
func Classify(assets []deb.Asset, l deb.Listener) (Units, error) {
	contents := make(map[string]deb.Asset)
	var queue []string
	for _, a := range assets {
		if !strings.HasPrefix(a.TargetPath, deb.SystemdUnitDir) {
			continue
		}
		name := path.Base(a.TargetPath)
		if strings.Contains(name, "@") {
			continue
		}
		if _, dup := contents[name]; !dup {
			queue = append(queue, name)
		}
		contents[name] = a
	}
	sort.Strings(queue)

	seen := make(map[string]bool, len(queue))
	for _, name := range queue {
		seen[name] = true
	}
	enable := make(map[string]bool)
	start := make(map[string]bool)
	aliases := make(map[string]bool)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		start[name] = true

		a, ok := contents[name]
		if !ok {
			l.Warning(fmt.Sprintf("Unit %s is referenced by Also= but not installed", name))
			continue
		}
		data, err := a.Source.Data()
		if err != nil {
			return Units{}, fmt.Errorf("reading unit %s: %w", name, err)
		}
		s := bufio.NewScanner(bytes.NewReader(data))
		for s.Scan() {
			line := s.Text()
			if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
				continue
			}
			key, value, found := strings.Cut(line, "=")
			if !found {
				if strings.HasPrefix(line, "[Install]") {
					enable[name] = true
				}
				continue
			}
			value = unquote(strings.TrimSpace(value))
			switch strings.TrimSpace(key) {
			case "Also":
				if !seen[value] {
					seen[value] = true
					queue = append(queue, value)
				}
			case "Alias":
				aliases[value] = true
			}
		}
		if err := s.Err(); err != nil {
			return Units{}, fmt.Errorf("reading unit %s: %w", name, err)
		}
	}
	return Units{
		Enable:  sortedSet(enable),
		Start:   sortedSet(start),
		Aliases: sortedSet(aliases),
	}, nil
}

// unquote strips one pair of matching quotes.
func unquote(s string) string {
	if len(s) > 1 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Options mirrors the dh_installsystemd switches.
type Options struct {
	NoEnable            bool
	NoStart             bool
	RestartAfterUpgrade bool
	NoStopOnUpgrade     bool
}

// DefaultOptions enables and starts units, and restarts them after upgrade.
func DefaultOptions() Options {
	return Options{RestartAfterUpgrade: true}
}

// Generate returns the maintainer script snippets needed by the tmpfiles.d
// and systemd unit files among assets.
func Generate(pkg string, assets []deb.Asset, opts Options, l deb.Listener) (ScriptFragments, error) {
	fragments := make(ScriptFragments)

	var tmpfiles []string
	for _, a := range assets {
		if strings.HasPrefix(a.TargetPath, deb.TmpfilesDir) {
			tmpfiles = append(tmpfiles, path.Base(a.TargetPath))
		}
	}
	if len(tmpfiles) > 0 {
		err := Autoscript(fragments, pkg, string(deb.FilePostinst), "postinst-init-tmpfiles",
			map[string]string{"TMPFILES": strings.Join(tmpfiles, " ")}, l)
		if err != nil {
			return nil, err
		}
	}

	units, err := Classify(assets, l)
	if err != nil {
		return nil, err
	}

	// add appends, or for prerm/postrm prepends, a rendered snippet.
	add := func(script deb.ControlFile, template string, subs map[string]string) {
		if err == nil {
			err = Autoscript(fragments, pkg, string(script), template, subs, l)
		}
	}

	if len(units.Enable) > 0 {
		for _, unit := range units.Enable {
			template := "postinst-systemd-enable"
			if opts.NoEnable {
				template = "postinst-systemd-dont-enable"
			}
			add(deb.FilePostinst, template, map[string]string{"UNITFILE": unit})
		}
		add(deb.FilePostrm, "postrm-systemd", map[string]string{"UNITFILES": strings.Join(units.Enable, " ")})
	}

	if len(units.Start) > 0 {
		subs := map[string]string{"UNITFILES": strings.Join(units.Start, " ")}
		switch {
		case opts.NoStopOnUpgrade && opts.NoStart:
			subs["RESTART_ACTION"] = "try-restart"
			add(deb.FilePostinst, "postinst-systemd-restartnostart", subs)
		case opts.NoStopOnUpgrade:
			subs["RESTART_ACTION"] = "restart"
			add(deb.FilePostinst, "postinst-systemd-restart", subs)
		case !opts.NoStart:
			add(deb.FilePostinst, "postinst-systemd-start", subs)
		}

		switch {
		case opts.NoStopOnUpgrade || opts.RestartAfterUpgrade:
			add(deb.FilePrerm, "prerm-systemd-restart", subs)
		case !opts.NoStart:
			add(deb.FilePrerm, "prerm-systemd", subs)
		}
		add(deb.FilePostrm, "postrm-systemd-reload-only", subs)
	}
	if err != nil {
		return nil, err
	}
	return fragments, nil
}
