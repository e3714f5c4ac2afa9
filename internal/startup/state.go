package startup

import "time"

// State is a position in the startup sequence. States only move forward.
type State int

const (
	NotStarted State = iota
	ServicesComposed
	HostStarted
	EnvironmentNormalized
	FaultHandlerInstalled
	PoliciesApplied
	UpdateCheckStarted
	HubConnecting
	Running
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case ServicesComposed:
		return "services_composed"
	case HostStarted:
		return "host_started"
	case EnvironmentNormalized:
		return "environment_normalized"
	case FaultHandlerInstalled:
		return "fault_handler_installed"
	case PoliciesApplied:
		return "policies_applied"
	case UpdateCheckStarted:
		return "update_check_started"
	case HubConnecting:
		return "hub_connecting"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Step names one orchestrated action.
type Step string

const (
	StepComposeServices     Step = "compose_services"
	StepStartHost           Step = "start_host"
	StepNormalizeEnv        Step = "normalize_environment"
	StepInstallFaultHandler Step = "install_fault_handler"
	StepApplyPolicies       Step = "apply_policies"
	StepBeginUpdateChecks   Step = "begin_update_checks"
	StepConnectHub          Step = "connect_hub"
)

// Step outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// StepResult records one step. Fatal failures end startup; the rest are
// kept here and startup continues.
type StepResult struct {
	Step     Step
	State    State
	Outcome  string
	Detail   string
	Err      error
	Fatal    bool
	Started  time.Time
	Duration time.Duration
}

// Failed reports whether the step returned an error.
func (r StepResult) Failed() bool {
	return r.Err != nil
}
