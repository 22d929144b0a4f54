// Package version holds the build version, set with
// -ldflags "-X github.com/martinemde/codingagent/version.Version=v1.2.3".
package version

var Version = "dev"
