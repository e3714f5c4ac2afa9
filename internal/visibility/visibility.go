// Package visibility probes, best effort, whether the host exposes the
// service-registration export the agent would use to present itself as a
// background service in process listings. The probe only detects; it never
// changes process state, and every outcome is acceptable.
package visibility

import "fmt"

// Outcome is the tri-state probe result.
type Outcome int

const (
	Unsupported Outcome = iota
	Supported
	Error
)

func (o Outcome) String() string {
	switch o {
	case Supported:
		return "supported"
	case Error:
		return "error"
	default:
		return "unsupported"
	}
}

// Result describes one probe run.
type Result struct {
	Outcome Outcome
	Detail  string
	Err     error
}

// Probe never panics and never blocks on anything but a local library lookup.
func Probe() (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("visibility: probe panic: %v", r)
			res = Result{Outcome: Error, Detail: err.Error(), Err: err}
		}
	}()
	return probe()
}
