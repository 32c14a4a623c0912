// Package debhelper reproduces the parts of debhelper needed to ship systemd
// units: dh_installsystemd decides which maintainer script snippets a set of
// unit files needs, and the dh_installdeb merge splices them into the
// package's maintainer scripts.
//
// Snippets ("autoscripts") are the debhelper 12.10 texts, embedded in the
// binary. They are rendered into a ScriptFragments map that callers thread
// explicitly through Generate, Autoscript and Apply; nothing is written to
// disk.
package debhelper
