package health

import (
	"context"
	"errors"
	"testing"
)

func stubCheck(name string) Check {
	return Check{
		Name:      name,
		Probe:     func(context.Context) CheckOutcome { return CheckOutcome{Healthy: true} },
		Remediate: func(context.Context) RemediationOutcome { return RemediationOutcome{} },
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name  string
		check Check
	}{
		{"empty name", Check{Probe: stubCheck("x").Probe, Remediate: stubCheck("x").Remediate}},
		{"nil probe", Check{Name: "x", Remediate: stubCheck("x").Remediate}},
		{"nil remediate", Check{Name: "x", Probe: stubCheck("x").Probe}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewRegistry().Register(tt.check); err == nil {
				t.Error("expected registration error")
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubCheck("disk")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(stubCheck("disk"))
	if !errors.Is(err, ErrDuplicateCheck) {
		t.Errorf("err = %v, want ErrDuplicateCheck", err)
	}
}

func TestAllOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		r.MustRegister(stubCheck(name))
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d", r.Len())
	}
	want := []string{"c", "a", "b"}
	for i, c := range r.All() {
		if c.Name != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, c.Name, want[i])
		}
	}
}

func TestMustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRegister should panic on invalid check")
		}
	}()
	NewRegistry().MustRegister(Check{})
}
