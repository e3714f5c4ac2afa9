// Package policy applies best-effort, elevation-gated system policy.
package policy

import (
	"errors"
	"fmt"

	"github.com/danmuck/agentctl/internal/platform"
	"github.com/rs/zerolog"
)

// Secure attention sequence policy. Value 3 lets both services and ease of
// access applications simulate Ctrl+Alt+Del.
const (
	SystemPolicyKey = `SOFTWARE\Microsoft\Windows\CurrentVersion\Policies\System`
	SASValueName    = "SoftwareSASGeneration"
	SASValue        = uint32(3)
)

var (
	ErrKeyNotFound = errors.New("policy: registry key not found")
	ErrUnsupported = errors.New("policy: system policy unsupported on this platform")
	ErrWriteFailed = errors.New("policy: system policy write failed")
)

// Writer sets a DWORD under HKLM.
type Writer interface {
	SetDWord(path, name string, value uint32) error
}

// ElevationDetector is the subset of the elevation capability used here.
type ElevationDetector interface {
	IsElevated() bool
}

// Outcome records what ApplyElevatedPolicies did.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeNotElevated Outcome = "not_elevated"
	OutcomeNotWindows  Outcome = "not_windows"
	OutcomeKeyMissing  Outcome = "key_missing"
	OutcomeFailed      Outcome = "failed"
)

// Applier writes the SAS policy when the process is elevated on Windows.
type Applier struct {
	kind     platform.Kind
	detector ElevationDetector
	writer   Writer
	logger   zerolog.Logger
}

func NewApplier(kind platform.Kind, detector ElevationDetector, writer Writer, logger zerolog.Logger) *Applier {
	if writer == nil {
		writer = DefaultWriter()
	}
	return &Applier{
		kind:     kind,
		detector: detector,
		writer:   writer,
		logger:   logger,
	}
}

// ApplyElevatedPolicies never panics. A failed write is logged and returned
// so the caller can record it; it must not stop startup.
func (a *Applier) ApplyElevatedPolicies() (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrWriteFailed, r)
			out = OutcomeFailed
			a.logger.Error().Err(err).Msg("policy.Applier.ApplyElevatedPolicies recovered")
		}
	}()

	if a.kind != platform.Windows {
		return OutcomeNotWindows, nil
	}
	if a.detector == nil || !a.detector.IsElevated() {
		a.logger.Info().Msg("policy.Applier.ApplyElevatedPolicies skip reason=not_elevated")
		return OutcomeNotElevated, nil
	}

	err = a.writer.SetDWord(SystemPolicyKey, SASValueName, SASValue)
	switch {
	case err == nil:
		a.logger.Info().
			Str("key", SystemPolicyKey).
			Str("value", SASValueName).
			Uint32("data", SASValue).
			Msg("policy.Applier.ApplyElevatedPolicies applied")
		return OutcomeApplied, nil
	case errors.Is(err, ErrKeyNotFound):
		a.logger.Warn().
			Str("key", SystemPolicyKey).
			Msg("policy.Applier.ApplyElevatedPolicies skip reason=key_missing")
		return OutcomeKeyMissing, nil
	default:
		err = fmt.Errorf("%w: %s\\%s: %w", ErrWriteFailed, SystemPolicyKey, SASValueName, err)
		a.logger.Error().
			Err(err).
			Str("key", SystemPolicyKey).
			Str("value", SASValueName).
			Msg("Error while setting Secure Attention Sequence in the registry.")
		return OutcomeFailed, err
	}
}
