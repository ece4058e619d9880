// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// UnknownValue is reported for metadata the build did not provide.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/o2cms/cfmigrate/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
	commit    string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
	Commit    string
}

// NewContext creates a build context.
func NewContext(version, buildDate, commit string) *Context {
	return &Context{Version: version, BuildDate: buildDate, Commit: commit}
}

// Current returns the metadata of the running binary. Without ldflags the
// VCS revision recorded by the Go toolchain is used when present.
func Current() *Context {
	c := NewContext(version, buildDate, commit)
	if c.Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					c.Commit = s.Value
				}
			}
		}
	}
	return c
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// ShortCommit returns the first 7 characters of the commit hash.
func (c *Context) ShortCommit() string {
	if c == nil || c.Commit == "" {
		return UnknownValue
	}
	return c.Commit[:min(7, len(c.Commit))]
}

// UserAgent is sent with every outgoing request.
func (c *Context) UserAgent() string {
	return "cfmigrate/" + c.GetVersion()
}

// Release is the release name reported to error telemetry.
func (c *Context) Release() string {
	return "cfmigrate@" + c.GetVersion()
}

// String formats the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("cfmigrate %s (commit %s, built %s)", c.GetVersion(), c.ShortCommit(), c.GetBuildDate())
}
