package startup

// Snapshot is the JSON view served on /status.
type Snapshot struct {
	State      string         `json:"state"`
	Platform   string         `json:"platform"`
	Elevated   bool           `json:"elevated"`
	Visibility string         `json:"visibility,omitempty"`
	Steps      []StepSnapshot `json:"steps"`
}

type StepSnapshot struct {
	Step       string `json:"step"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	Fatal      bool   `json:"fatal,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// StatusSnapshot satisfies observability.StatusSource.
func (o *Orchestrator) StatusSnapshot() any {
	o.mu.RLock()
	c := o.components
	o.mu.RUnlock()

	snap := Snapshot{State: o.State().String(), Platform: "unknown"}
	if c != nil {
		snap.Platform = c.Platform.String()
		if c.Elevation != nil {
			snap.Elevated = c.Elevation.IsElevated()
		}
	}
	if res, ok := o.VisibilityResult(); ok {
		snap.Visibility = res.Outcome.String()
	}
	for _, r := range o.Results() {
		s := StepSnapshot{
			Step:       string(r.Step),
			Outcome:    r.Outcome,
			Detail:     r.Detail,
			Fatal:      r.Fatal,
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		snap.Steps = append(snap.Steps, s)
	}
	return snap
}
