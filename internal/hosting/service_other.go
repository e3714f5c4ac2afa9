//go:build !windows

package hosting

import "context"

// RunService runs fn directly; process signals are handled by Host.
func RunService(_ string, fn func(ctx context.Context) error) error {
	return fn(context.Background())
}
