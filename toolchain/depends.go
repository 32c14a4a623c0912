package toolchain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/etnz/deb-builder/deb"
	"golang.org/x/sync/errgroup"
)

// errPackageNotFound is returned when no installed package owns a file.
var errPackageNotFound = errors.New("no package owns file")

// ResolveDependencies lists the packages providing the shared libraries the
// binary links against, as "name (>= version)" relations for arch. Libraries
// that cannot be attributed to a package are reported to l and skipped.
func ResolveDependencies(ctx context.Context, binary, arch string, l deb.Listener) ([]string, error) {
	out, err := run(ctx, "", "ldd", binary)
	if err != nil {
		return nil, err
	}

	packages := make(map[string]bool)
	for _, lib := range parseLdd(string(out)) {
		pkg, err := packageForPath(ctx, lib)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.Warning(fmt.Sprintf("%v (skip this auto dep for %s)", err, binary))
			continue
		}
		packages[pkg] = true
	}
	names := make([]string, 0, len(packages))
	for pkg := range packages {
		names = append(names, pkg)
	}
	sort.Strings(names)

	deps := make([]string, len(names))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, pkg := range names {
		i, pkg := i, pkg
		g.Go(func() error {
			qualified := pkg + ":" + arch
			version, err := installedVersion(ctx, qualified)
			if err != nil {
				mu.Lock()
				l.Warning(fmt.Sprintf("Can't get version of %s: %v", qualified, err))
				mu.Unlock()
				deps[i] = pkg
				return nil
			}
			deps[i] = fmt.Sprintf("%s (>= %s)", pkg, version)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return deps, nil
}

// parseLdd returns the absolute library paths of ldd output lines of the
// form "name => path (address)". libgcc_s is always present on LSB systems
// and is left out.
func parseLdd(out string) []string {
	var libs []string
	for _, line := range strings.Split(out, "\n") {
		name, rest, found := strings.Cut(line, "=>")
		if !found || strings.TrimSpace(name) == "libgcc_s.so.1" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
			continue
		}
		libs = append(libs, fields[0])
	}
	return libs
}

// packageForPath asks dpkg which package owns path. Some libraries are
// resolved by ldd under /lib but installed under /usr/lib, so the /usr
// variant is tried too.
func packageForPath(ctx context.Context, path string) (string, error) {
	pkg, err := searchPackage(ctx, path)
	if errors.Is(err, errPackageNotFound) {
		if usr, uerr := searchPackage(ctx, "/usr"+path); uerr == nil {
			return usr, nil
		}
	}
	return pkg, err
}

func searchPackage(ctx context.Context, path string) (string, error) {
	out, err := run(ctx, "", "dpkg", "-S", path)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %w", errPackageNotFound, path, err)
	}
	if pkg, ok := parseDpkgSearch(string(out)); ok {
		return pkg, nil
	}
	return "", fmt.Errorf("%w: %s", errPackageNotFound, path)
}

// parseDpkgSearch extracts the package name from "dpkg -S" output, skipping
// diversion lines.
func parseDpkgSearch(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "diversion ") {
			continue
		}
		name, _, found := strings.Cut(line, ":")
		if found {
			return name, true
		}
	}
	return "", false
}

// installedVersion returns the upstream part of the installed version of
// pkg, the text before the first "-".
func installedVersion(ctx context.Context, pkg string) (string, error) {
	out, err := run(ctx, "", "dpkg-query", "--showformat=${Version}", "--show", pkg)
	if err != nil {
		return "", err
	}
	return upstreamVersion(string(out)), nil
}

func upstreamVersion(v string) string {
	v, _, _ = strings.Cut(strings.TrimSpace(v), "-")
	return v
}
