// Package platform defines the host operating system kinds the agent
// supports and the capability contracts each kind must bind.
//
// Ownership boundary:
// - platform detection
//
// - capability contracts (launcher, updater, device info, elevation)
//
// Concrete implementations live in their own packages and are bound per
// kind by the composition root.
package platform
