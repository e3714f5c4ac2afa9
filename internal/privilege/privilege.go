// Package privilege answers whether the agent holds administrative rights.
//
// Queries fail closed: any error or panic from the OS query reports
// "not elevated". That default only disables optional privileged features.
package privilege

import "errors"

const (
	MessageElevated    = "Running with administrator privileges."
	MessageNotElevated = "Running without administrator privileges. Some features (like Block Remote Input) may not work."
)

var ErrQueryUnavailable = errors.New("privilege: query unavailable on this platform")

// QueryFunc performs the raw OS query.
type QueryFunc func() (bool, error)

// Status is a derived, uncached elevation snapshot.
type Status struct {
	Elevated bool
	Message  string
}

// Inspector wraps a QueryFunc with the fail-closed contract. Every call
// re-runs the query so a privilege change is visible on the next check.
type Inspector struct {
	query QueryFunc
}

func New(query QueryFunc) Inspector {
	return Inspector{query: query}
}

func (i Inspector) IsElevated() (elevated bool) {
	defer func() {
		if recover() != nil {
			elevated = false
		}
	}()
	if i.query == nil {
		return false
	}
	ok, err := i.query()
	if err != nil {
		return false
	}
	return ok
}

func (i Inspector) StatusMessage() string {
	return i.Status().Message
}

func (i Inspector) Status() Status {
	if i.IsElevated() {
		return Status{Elevated: true, Message: MessageElevated}
	}
	return Status{Elevated: false, Message: MessageNotElevated}
}

// WindowsDetector checks membership in BUILTIN\Administrators.
type WindowsDetector struct{ Inspector }

// LinuxDetector checks for effective uid 0.
type LinuxDetector struct{ Inspector }

// MacDetector checks for effective uid 0.
type MacDetector struct{ Inspector }

func NewWindowsDetector() *WindowsDetector {
	return &WindowsDetector{Inspector: New(queryAdministrators)}
}

func NewLinuxDetector() *LinuxDetector {
	return &LinuxDetector{Inspector: New(queryEffectiveRoot)}
}

func NewMacDetector() *MacDetector {
	return &MacDetector{Inspector: New(queryEffectiveRoot)}
}
