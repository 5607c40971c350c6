package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fleetmedic/fleetmedic/internal/aggregate"
	"github.com/fleetmedic/fleetmedic/internal/catalog"
	"github.com/fleetmedic/fleetmedic/internal/dispatch"
	"github.com/fleetmedic/fleetmedic/internal/notify"
)

// fakeRunner fails commands listed in failOn and records execution order.
type fakeRunner struct {
	mu     sync.Mutex
	failOn map[string]bool
	ran    []string
}

func (f *fakeRunner) Run(_ context.Context, host, command string, elevated bool) *catalog.Result {
	f.mu.Lock()
	f.ran = append(f.ran, command)
	f.mu.Unlock()

	if f.failOn[command] {
		return &catalog.Result{ExitCode: 1, Stderr: []byte("step failed")}
	}
	return &catalog.Result{OK: true, Stdout: []byte("done")}
}

type fakeNotifier struct {
	calls    int
	severity notify.Severity
}

func (f *fakeNotifier) Notify(_ context.Context, title, message string, severity notify.Severity) error {
	f.calls++
	f.severity = severity
	return nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		catalog.Action{ID: "one", Command: "cmd-one"},
		catalog.Action{ID: "two", Command: "cmd-two"},
		catalog.Action{ID: "three", Command: "cmd-three"},
		catalog.Action{ID: "root-only", Command: "cmd-root", RequiresElevation: true},
	)
}

func TestRunAllSucceed(t *testing.T) {
	runner := &fakeRunner{}
	r := New(testCatalog(), runner)

	s := r.Run(context.Background(), []Step{{Action: "one"}, {Action: "two"}})

	if s.Total != 2 || s.Succeeded != 2 {
		t.Errorf("summary = %+v, want 2 succeeded", s)
	}
	want := []string{"cmd-one", "cmd-two"}
	for i, c := range runner.ran {
		if c != want[i] {
			t.Errorf("ran[%d] = %q, want %q", i, c, want[i])
		}
	}
}

func TestRunAbortsAfterFailure(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]bool{"cmd-two": true}}
	notifier := &fakeNotifier{}
	r := New(testCatalog(), runner, WithNotifier(notifier))

	s := r.Run(context.Background(), []Step{{Action: "one"}, {Action: "two"}, {Action: "three"}})

	if s.Total != 3 || s.Succeeded != 1 || s.Failed != 1 || s.Skipped != 1 {
		t.Fatalf("summary = %+v, want 1/1/1", s)
	}
	if s.Total != s.Succeeded+s.Failed+s.Skipped {
		t.Error("summary invariant broken")
	}

	last := s.Units[2]
	if last.Status != aggregate.Skipped || !errors.Is(last.Err, ErrAborted) {
		t.Errorf("step-3 = %+v, want aborted skip", last)
	}
	if last.Detail != "aborted by prior failure" {
		t.Errorf("step-3 detail = %q", last.Detail)
	}

	// The third command must never run.
	for _, c := range runner.ran {
		if c == "cmd-three" {
			t.Error("step after failure was executed")
		}
	}
	if notifier.calls != 1 || notifier.severity != notify.Error {
		t.Errorf("notify calls=%d severity=%v, want 1 error", notifier.calls, notifier.severity)
	}
}

func TestRunContinueOnError(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]bool{"cmd-one": true}}
	r := New(testCatalog(), runner, WithContinueOnError(true))

	s := r.Run(context.Background(), []Step{{Action: "one"}, {Action: "two"}})

	if s.Failed != 1 || s.Succeeded != 1 || s.Skipped != 0 {
		t.Errorf("summary = %+v, want remaining steps to run", s)
	}
}

func TestRunUnknownActionFailsCall(t *testing.T) {
	runner := &fakeRunner{}
	notifier := &fakeNotifier{}
	r := New(testCatalog(), runner, WithNotifier(notifier), WithContinueOnError(true))

	s := r.Run(context.Background(), []Step{{Action: "nope"}, {Action: "one"}})

	if s.Err == nil || !errors.Is(s.Err, catalog.ErrNotFound) {
		t.Fatalf("call error = %v, want ErrNotFound", s.Err)
	}
	if s.Total != 2 || s.Skipped != 2 || s.Succeeded != 0 || s.Failed != 0 {
		t.Errorf("summary = %+v, want every step skipped", s)
	}
	if s.Units[0].Detail != "unknown action" {
		t.Errorf("step-1 detail = %q", s.Units[0].Detail)
	}
	if !errors.Is(s.Units[1].Err, catalog.ErrNotFound) {
		t.Errorf("step-2 err = %v, want ErrNotFound", s.Units[1].Err)
	}

	// No step may execute once the call has failed its precheck.
	if len(runner.ran) != 0 {
		t.Errorf("ran = %v, want nothing executed", runner.ran)
	}
	if notifier.calls != 1 || notifier.severity != notify.Error {
		t.Errorf("notify calls=%d severity=%v, want 1 error", notifier.calls, notifier.severity)
	}
}

func TestRunElevationRequired(t *testing.T) {
	runner := &fakeRunner{}
	r := New(testCatalog(), runner)

	s := r.Run(context.Background(), []Step{{Action: "root-only"}})
	if s.Skipped != 1 || !errors.Is(s.Units[0].Err, dispatch.ErrElevationRequired) {
		t.Errorf("summary = %+v", s)
	}

	r = New(testCatalog(), runner, WithElevation(true))
	s = r.Run(context.Background(), []Step{{Action: "root-only"}})
	if s.Succeeded != 1 {
		t.Errorf("elevated run = %+v", s)
	}
}

func TestRunEmpty(t *testing.T) {
	r := New(testCatalog(), &fakeRunner{})
	s := r.Run(context.Background(), nil)
	if s.Total != 0 {
		t.Errorf("empty batch should produce empty summary: %+v", s)
	}
}
