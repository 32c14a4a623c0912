package debhelper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etnz/deb-builder/deb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(target, content string) deb.Asset {
	return deb.NewAsset(deb.DataSource(content), target, 0o644, false)
}

func TestFindUnits(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"app.service", "app@.socket", "app.tmpfile", "timer", "other.mount", "README"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	got := FindUnits(dir, "app", "")
	assert.Equal(t, map[string]InstallRecipe{
		filepath.Join(dir, "app.service"): {Path: "lib/systemd/system/app.service", Mode: 0o644},
		filepath.Join(dir, "app@.socket"): {Path: "lib/systemd/system/app@.socket", Mode: 0o644},
		filepath.Join(dir, "app.tmpfile"): {Path: "usr/lib/tmpfiles.d/app.conf", Mode: 0o644},
		filepath.Join(dir, "timer"):       {Path: "lib/systemd/system/app.timer", Mode: 0o644},
	}, got)

	got = FindUnits(dir, "app", "worker")
	assert.Equal(t, "lib/systemd/system/worker.service", got[filepath.Join(dir, "app.service")].Path)
	assert.Equal(t, "lib/systemd/system/worker@.socket", got[filepath.Join(dir, "app@.socket")].Path)

	assert.Empty(t, FindUnits(t.TempDir(), "app", ""))
}

func TestClassify(t *testing.T) {
	assets := []deb.Asset{
		unit("lib/systemd/system/app.service", "[Unit]\nDescription=app\n\n[Install]\nWantedBy=multi-user.target\nAlso=\"app.socket\"\nAlias=web.service\n"),
		unit("lib/systemd/system/app.socket", "[Socket]\nListenStream=80\n# Also=ignored.service\n; Alias=ignored\n[Install]\nAlso = app.service\n"),
		unit("lib/systemd/system/app@.service", "[Install]\nWantedBy=multi-user.target\n"),
		unit("lib/systemd/system/helper.service", "[Service]\nExecStart=/bin/true\nAlso=extra.service\n"),
		unit("usr/bin/app", "binary"),
	}

	var l recorder
	units, err := Classify(assets, &l)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.service", "app.socket"}, units.Enable)
	assert.Equal(t, []string{"app.service", "app.socket", "extra.service", "helper.service"}, units.Start)
	assert.Equal(t, []string{"web.service"}, units.Aliases)
	assert.Len(t, l.warnings, 1)
	assert.Contains(t, l.warnings[0], "extra.service")
}

func TestClassifyCycle(t *testing.T) {
	assets := []deb.Asset{
		unit("lib/systemd/system/a.service", "Also=b.service\n"),
		unit("lib/systemd/system/b.service", "Also=a.service\n"),
	}
	units, err := Classify(assets, deb.NopListener{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.service", "b.service"}, units.Start)
	assert.Empty(t, units.Enable)
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"a.service"`: "a.service",
		`'a.service'`: "a.service",
		`"a.service'`: `"a.service'`,
		`""`:          "",
		`"`:           `"`,
		`a`:           "a",
	}
	for in, want := range tests {
		assert.Equal(t, want, unquote(in), in)
	}
}

func TestGenerateDefaults(t *testing.T) {
	assets := []deb.Asset{
		unit("lib/systemd/system/app.service", "[Service]\nExecStart=/usr/bin/app\n\n[Install]\nWantedBy=multi-user.target\n"),
	}
	fragments, err := Generate("app", assets, DefaultOptions(), deb.NopListener{})
	require.NoError(t, err)

	postinst := string(fragments["app.postinst.debhelper"])
	assert.Contains(t, postinst, "deb-systemd-helper enable 'app.service'")
	assert.Contains(t, postinst, "deb-systemd-invoke start app.service")
	assert.Less(t, strings.Index(postinst, "deb-systemd-helper enable"), strings.Index(postinst, "deb-systemd-invoke start"))

	prerm := string(fragments["app.prerm.debhelper"])
	assert.Contains(t, prerm, `[ "$1" = remove ]`)

	postrm := string(fragments["app.postrm.debhelper"])
	assert.Contains(t, postrm, "deb-systemd-helper purge app.service")
	// reload-only is added last, so it is first in postrm
	assert.Less(t, strings.Index(postrm, "daemon-reload"), strings.Index(postrm, "deb-systemd-helper mask"))

	require.NoError(t, Apply("", fragments, "app", "", deb.NopListener{}))
	for _, script := range []string{"postinst", "prerm", "postrm"} {
		assert.True(t, strings.HasPrefix(string(fragments[script]), "#!/bin/sh\nset -e\n"), script)
	}
	assert.NotContains(t, fragments, "preinst")
}

func TestGenerateOptions(t *testing.T) {
	assets := []deb.Asset{
		unit("lib/systemd/system/app.service", "[Install]\nWantedBy=multi-user.target\n"),
	}
	tests := []struct {
		name     string
		opts     Options
		postinst []string
		prerm    string
	}{
		{"no enable", Options{NoEnable: true, RestartAfterUpgrade: true}, []string{"debian-installed 'app.service'", "deb-systemd-invoke start"}, `= remove`},
		{"no start", Options{NoStart: true}, []string{"deb-systemd-helper enable"}, ""},
		{"no stop", Options{NoStopOnUpgrade: true}, []string{"_dh_action=restart"}, `= remove`},
		{"no stop no start", Options{NoStopOnUpgrade: true, NoStart: true}, []string{"deb-systemd-invoke try-restart app.service"}, `= remove`},
		{"stop", Options{}, []string{"deb-systemd-invoke start"}, "deb-systemd-invoke stop app.service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragments, err := Generate("app", assets, tt.opts, deb.NopListener{})
			require.NoError(t, err)
			for _, want := range tt.postinst {
				assert.Contains(t, string(fragments["app.postinst.debhelper"]), want)
			}
			if tt.prerm == "" {
				assert.NotContains(t, fragments, "app.prerm.debhelper")
			} else {
				assert.Contains(t, string(fragments["app.prerm.debhelper"]), tt.prerm)
			}
			assert.Contains(t, string(fragments["app.postrm.debhelper"]), "daemon-reload")
		})
	}
}

func TestGenerateTmpfiles(t *testing.T) {
	assets := []deb.Asset{
		unit("usr/lib/tmpfiles.d/app.conf", "d /run/app 0755 root root -\n"),
		unit("usr/lib/tmpfiles.d/app-cache.conf", "d /var/cache/app 0755 root root -\n"),
	}
	fragments, err := Generate("app", assets, DefaultOptions(), deb.NopListener{})
	require.NoError(t, err)
	assert.Contains(t, string(fragments["app.postinst.debhelper"]), "systemd-tmpfiles --create app.conf app-cache.conf")
	assert.Len(t, fragments, 1)
}

func TestGenerateNothing(t *testing.T) {
	fragments, err := Generate("app", []deb.Asset{unit("usr/bin/app", "x")}, DefaultOptions(), deb.NopListener{})
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

type recorder struct {
	infos, warnings []string
}

func (r *recorder) Info(msg string)    { r.infos = append(r.infos, msg) }
func (r *recorder) Warning(msg string) { r.warnings = append(r.warnings, msg) }
