// Package version holds build identity for the agent binary.
package version

import "strings"

// Component is the name the agent logs and reports under.
const Component = "agentctl"

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/danmuck/agentctl/internal/version.Version=v1.4.2"
var Version = "0.0.0-dev"

// Get returns the trimmed build version, falling back to the dev marker.
func Get() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "0.0.0-dev"
	}
	return v
}
