//go:build windows

package hosting

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/svc"
)

// RunService runs fn under the Service Control Manager when the process was
// started by it, and directly otherwise. The context handed to fn is
// cancelled on a stop or shutdown request.
func RunService(name string, fn func(ctx context.Context) error) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return fmt.Errorf("hosting: detect service mode: %w", err)
	}
	if !isService {
		return fn(context.Background())
	}
	h := &scmHandler{fn: fn}
	if err := svc.Run(name, h); err != nil {
		return fmt.Errorf("hosting: service %q: %w", name, err)
	}
	return h.err
}

type scmHandler struct {
	fn  func(ctx context.Context) error
	err error
}

func (h *scmHandler) Execute(_ []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.fn(ctx) }()

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	for {
		select {
		case err := <-done:
			h.err = err
			changes <- svc.Status{State: svc.StopPending}
			if err != nil {
				return true, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				cancel()
			}
		}
	}
}
