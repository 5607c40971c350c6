package health

import (
	"errors"
	"fmt"
)

// ErrDuplicateCheck is returned when registering a check name twice.
var ErrDuplicateCheck = errors.New("health check already registered")

// Registry is an ordered list of checks. Registration happens at startup
// only; registration order is the execution order within a tick, so logs and
// tests are deterministic.
type Registry struct {
	checks []Check
	names  map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Register appends a check. Empty names, nil functions, and duplicates are
// registration errors.
func (r *Registry) Register(c Check) error {
	if c.Name == "" {
		return errors.New("health check name cannot be empty")
	}
	if c.Probe == nil {
		return fmt.Errorf("health check %q has no probe", c.Name)
	}
	if c.Remediate == nil {
		return fmt.Errorf("health check %q has no remediation", c.Name)
	}
	if r.names[c.Name] {
		return fmt.Errorf("%w: %q", ErrDuplicateCheck, c.Name)
	}
	r.names[c.Name] = true
	r.checks = append(r.checks, c)
	return nil
}

// MustRegister registers a check and panics on error, for startup wiring
// where a failure is a programming error.
func (r *Registry) MustRegister(c Check) {
	if err := r.Register(c); err != nil {
		panic(fmt.Sprintf("health check registration failed: %v", err))
	}
}

// All returns the checks in registration order.
func (r *Registry) All() []Check {
	out := make([]Check, len(r.checks))
	copy(out, r.checks)
	return out
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	return len(r.checks)
}
