// Package health defines the self-healing checks: a probe that decides
// whether a subsystem is healthy, paired with a bounded, idempotent
// remediation applied when it is not.
package health

import (
	"context"
	"encoding/json"
)

// CheckOutcome is the result of a single probe.
type CheckOutcome struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// RemediationOutcome is the result of a remediation attempt.
type RemediationOutcome struct {
	Applied bool
	Detail  string
	Err     error
}

// MarshalJSON flattens the error into a string so outcomes survive the trip
// through the tick log.
func (r RemediationOutcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Applied bool   `json:"applied"`
		Detail  string `json:"detail,omitempty"`
		Error   string `json:"error,omitempty"`
	}{Applied: r.Applied, Detail: r.Detail}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Check pairs a named probe with its remediation. Checks are stateless
// between ticks except through external system state.
type Check struct {
	Name      string
	Probe     func(ctx context.Context) CheckOutcome
	Remediate func(ctx context.Context) RemediationOutcome
}
