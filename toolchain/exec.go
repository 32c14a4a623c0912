// Package toolchain runs the external programs a package build relies on:
// the project's build command, binutils for stripping and debug symbols,
// and ldd/dpkg for shared library dependencies.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/etnz/deb-builder/deb"
)

// ErrCommandFailed is returned when an external command cannot be started
// or exits with a non-zero status.
var ErrCommandFailed = errors.New("command failed")

// run executes name in dir and returns its standard output.
func run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return out, fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, name, strings.Join(args, " "), err)
		}
		return out, fmt.Errorf("%w: %s %s: %w: %s", ErrCommandFailed, name, strings.Join(args, " "), err, msg)
	}
	return out, nil
}

// RunBuild runs the project build command argv in dir.
func RunBuild(ctx context.Context, dir string, argv []string, l deb.Listener) error {
	if len(argv) == 0 {
		return nil
	}
	l.Info(fmt.Sprintf("Running build command %q", strings.Join(argv, " ")))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: build %q: %w\n%s", ErrCommandFailed, strings.Join(argv, " "), err, tail(out, 20))
	}
	return nil
}

// tail returns the last n lines of out.
func tail(out []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Strip removes symbols not needed for relocation from the file at path,
// in place. command defaults to "strip".
func Strip(ctx context.Context, command, path string) error {
	if command == "" {
		command = "strip"
	}
	_, err := run(ctx, "", command, "--strip-unneeded", path)
	return err
}

// SeparateDebugSymbols moves the debug information of the file at path into
// path+".debug" and links the stripped file to it. It returns the debug
// file path.
func SeparateDebugSymbols(ctx context.Context, command, path string) (string, error) {
	if command == "" {
		command = "strip"
	}
	debug := path + ".debug"
	if _, err := run(ctx, "", "objcopy", "--only-keep-debug", path, debug); err != nil {
		return "", err
	}
	if _, err := run(ctx, "", command, "--strip-debug", "--strip-unneeded", path); err != nil {
		return "", err
	}
	if _, err := run(ctx, "", "objcopy", "--add-gnu-debuglink="+debug, path); err != nil {
		return "", err
	}
	return debug, nil
}

// Install installs the package file on this system with "sudo dpkg -i".
func Install(ctx context.Context, path string) error {
	_, err := run(ctx, "", "sudo", "dpkg", "-i", path)
	return err
}
