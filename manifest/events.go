package manifest

import (
	"fmt"
	"strings"
)

// Events describe the progress of Assemble. They are reported to the
// listener through their String form.

// EventBuildSuccess is emitted when the build command succeeded.
type EventBuildSuccess struct {
	Command []string
	Dir     string
}

func (e EventBuildSuccess) String() string {
	return fmt.Sprintf("Built with %q in %s", strings.Join(e.Command, " "), e.Dir)
}

// EventAssetsResolved is emitted once every asset pattern is expanded.
type EventAssetsResolved struct {
	Count int
}

func (e EventAssetsResolved) String() string {
	return fmt.Sprintf("Resolved %d assets", e.Count)
}

// EventUnitFound is emitted for each discovered systemd unit file.
type EventUnitFound struct {
	Source string
	Target string
}

func (e EventUnitFound) String() string {
	return fmt.Sprintf("Installing unit %s as /%s", e.Source, e.Target)
}

// EventUnitDeclared is emitted for a discovered systemd unit whose target
// is already installed by a declared asset.
type EventUnitDeclared struct {
	Source string
	Target string
}

func (e EventUnitDeclared) String() string {
	return fmt.Sprintf("Unit %s is already installed as /%s by the assets", e.Source, e.Target)
}

// EventArchiveCompressed is emitted when a tar archive has been compressed
// into its container member.
type EventArchiveCompressed struct {
	Member     string
	Size       int
	Compressed int
}

func (e EventArchiveCompressed) String() string {
	return fmt.Sprintf("Compressed %s: %d bytes to %d bytes", e.Member, e.Size, e.Compressed)
}

// EventPackageWritten is emitted when the package file is in place.
type EventPackageWritten struct {
	Path         string
	Package      string
	Version      string
	Architecture string
	Signed       bool
}

func (e EventPackageWritten) String() string {
	s := fmt.Sprintf("Wrote %s %s (%s) to %s", e.Package, e.Version, e.Architecture, e.Path)
	if e.Signed {
		s += ", signed"
	}
	return s
}
