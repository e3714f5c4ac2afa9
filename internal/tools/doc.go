// Package tools provides host command helpers shared by the platform
// capabilities.
//
// Ownership boundary:
// - synchronous command execution with captured output
//
// - detached process launches for remote-control and installer binaries
package tools
