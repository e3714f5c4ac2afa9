//go:build windows

package visibility

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const (
	probeLibrary = "kernel32.dll"
	probeExport  = "SetServiceBits"
)

func probe() Result {
	proc := windows.NewLazySystemDLL(probeLibrary).NewProc(probeExport)
	if err := proc.Find(); err != nil {
		err = fmt.Errorf("visibility: %s!%s: %w", probeLibrary, probeExport, err)
		return Result{Outcome: Error, Detail: err.Error(), Err: err}
	}
	return Result{
		Outcome: Supported,
		Detail:  fmt.Sprintf("%s!%s present; no change applied", probeLibrary, probeExport),
	}
}
