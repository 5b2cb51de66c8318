// Package version holds jobmono build information. The variables are set at
// build time via -ldflags.
package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

var (
	// Version is the semantic version of the tool, without a leading "v".
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// String returns Version with surrounding space and a leading "v" removed.
func String() string {
	return strings.TrimPrefix(strings.TrimSpace(Version), "v")
}

// Colored renders the version with one color per numeric component. Any
// pre-release or build suffix stays uncolored; a version that is not semver is
// returned as is.
func Colored() string {
	v := String()
	sv, err := semver.StrictNewVersion(v)
	if err != nil {
		return v
	}
	var b strings.Builder
	b.WriteString(majorColor.Sprint(sv.Major()))
	b.WriteByte('.')
	b.WriteString(minorColor.Sprint(sv.Minor()))
	b.WriteByte('.')
	b.WriteString(patchColor.Sprint(sv.Patch()))
	if pre := sv.Prerelease(); pre != "" {
		b.WriteString("-" + pre)
	}
	if md := sv.Metadata(); md != "" {
		b.WriteString("+" + md)
	}
	return b.String()
}
