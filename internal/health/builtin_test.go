package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetmedic/fleetmedic/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func TestFromConfigDefaults(t *testing.T) {
	reg, err := FromConfig(config.Health{})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if reg.Len() == 0 {
		t.Fatal("empty config should register the default checks")
	}

	names := map[string]bool{}
	for _, c := range reg.All() {
		names[c.Name] = true
	}
	for _, want := range []string{"disk-space", "dns-resolve", "clock-sync"} {
		if !names[want] {
			t.Errorf("default set missing %s", want)
		}
	}
}

func TestFromConfigExplicit(t *testing.T) {
	reg, err := FromConfig(config.Health{Checks: []config.CheckConfig{
		{Name: "service-active", Options: map[string]string{"service": "cron"}},
		{Name: "disk-space", Options: map[string]string{"min-free-percent": "20"}},
		{Name: "dns-resolve", Enabled: boolPtr(false)},
	}})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	checks := reg.All()
	if len(checks) != 2 {
		t.Fatalf("Len = %d, want disabled check excluded", len(checks))
	}
	// Config order is registration order.
	if checks[0].Name != "service-active" || checks[1].Name != "disk-space" {
		t.Errorf("order = %s, %s", checks[0].Name, checks[1].Name)
	}
}

func TestFromConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		checks []config.CheckConfig
	}{
		{"unknown check", []config.CheckConfig{{Name: "no-such"}}},
		{"service-active without service", []config.CheckConfig{{Name: "service-active"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromConfig(config.Health{Checks: tt.checks}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDiskSpaceProbe(t *testing.T) {
	// Probing the filesystem of a temp dir with a 0% floor must be healthy;
	// an impossible 101% floor must not.
	dir := t.TempDir()

	ok := DiskSpaceCheck(map[string]string{"path": dir, "min-free-percent": "0"})
	if out := ok.Probe(context.Background()); !out.Healthy {
		t.Errorf("0%% floor should be healthy: %s", out.Detail)
	}

	never := DiskSpaceCheck(map[string]string{"path": dir, "min-free-percent": "101"})
	if out := never.Probe(context.Background()); out.Healthy {
		t.Errorf("101%% floor should be unhealthy: %s", out.Detail)
	}

	missing := DiskSpaceCheck(map[string]string{"path": filepath.Join(dir, "nope")})
	if out := missing.Probe(context.Background()); out.Healthy {
		t.Error("missing path should be unhealthy")
	}
}

func TestDiskSpaceRemediate(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.tmp")
	fresh := filepath.Join(dir, "fresh.tmp")

	if err := os.WriteFile(stale, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fresh, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	check := DiskSpaceCheck(map[string]string{"clean-dir": dir, "max-age-days": "1"})
	out := check.Remediate(context.Background())
	if out.Err != nil {
		t.Fatalf("Remediate: %v", out.Err)
	}
	if !out.Applied {
		t.Error("remediation should report applied")
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale entry should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh entry should survive")
	}
}

func TestOptionParsing(t *testing.T) {
	opts := map[string]string{"n": "7", "bad": "x", "s": "v"}

	if got := optInt(opts, "n", 1); got != 7 {
		t.Errorf("optInt(n) = %d", got)
	}
	if got := optInt(opts, "bad", 1); got != 1 {
		t.Errorf("unparseable int should fall back, got %d", got)
	}
	if got := optInt(opts, "absent", 3); got != 3 {
		t.Errorf("absent int should fall back, got %d", got)
	}
	if got := optString(opts, "s", "d"); got != "v" {
		t.Errorf("optString(s) = %q", got)
	}
	if got := optString(nil, "s", "d"); got != "d" {
		t.Errorf("nil options should fall back, got %q", got)
	}
}
