package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
groups:
  web:
    hosts: [web1, web2]
    user: deploy
    timeout: 45s
defaults:
  concurrency: 10
  timeout: 1m
  output: json
health:
  interval: 5m
  ticklog: /var/log/fleetmedic/ticks.jsonl
  checks:
    - name: disk-space
      options:
        min-free-percent: "15"
    - name: dns-resolve
      enabled: false
notify:
  webhook:
    url: https://hooks.example.com/fleet
    headers:
      X-Token: abc
  log: true
batches:
  weekly-maintenance:
    description: routine cleanup
    continue_on_error: true
    steps:
      - uptime
      - action: disk-cleanup
        params:
          dir: /var/tmp
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	g := cfg.Groups["web"]
	if len(g.Hosts) != 2 || g.User != "deploy" || g.Timeout.Duration != 45*time.Second {
		t.Errorf("group = %+v", g)
	}
	if cfg.Defaults.Concurrency != 10 || cfg.Defaults.Output != "json" {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Health.Interval.Duration != 5*time.Minute {
		t.Errorf("interval = %s", cfg.Health.Interval)
	}
	if len(cfg.Health.Checks) != 2 {
		t.Fatalf("checks = %d", len(cfg.Health.Checks))
	}
	if !cfg.Health.Checks[0].IsEnabled() {
		t.Error("check without enabled flag should be enabled")
	}
	if cfg.Health.Checks[1].IsEnabled() {
		t.Error("enabled: false should disable the check")
	}
	if cfg.Health.Checks[0].Options["min-free-percent"] != "15" {
		t.Errorf("options = %v", cfg.Health.Checks[0].Options)
	}
	if cfg.Notify.Webhook.URL == "" || !cfg.Notify.Log {
		t.Errorf("notify = %+v", cfg.Notify)
	}

	b := cfg.Batches["weekly-maintenance"]
	if !b.ContinueOnError || len(b.Steps) != 2 {
		t.Fatalf("batch = %+v", b)
	}
	if b.Steps[0].Action != "uptime" || b.Steps[0].Params != nil {
		t.Errorf("bare string step = %+v", b.Steps[0])
	}
	if b.Steps[1].Action != "disk-cleanup" || b.Steps[1].Params["dir"] != "/var/tmp" {
		t.Errorf("mapping step = %+v", b.Steps[1])
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty group", "groups:\n  bad:\n    hosts: []\n"},
		{"bad output mode", "defaults:\n  output: xml\n"},
		{"bad duration", "defaults:\n  timeout: soon\n"},
		{"unnamed check", "health:\n  checks:\n    - options: {}\n"},
		{"duplicate check", "health:\n  checks:\n    - name: disk-space\n    - name: disk-space\n"},
		{"batch without steps", "batches:\n  empty:\n    steps: []\n"},
		{"batch bad name", "batches:\n  \"bad name!\":\n    steps: [uptime]\n"},
		{"step without action", "batches:\n  b:\n    steps:\n      - params: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Groups["db"] = Group{Hosts: []string{"db1"}}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Groups["db"].Hosts) != 1 {
		t.Errorf("round trip lost group: %+v", got.Groups)
	}
	if got.Defaults.Concurrency != cfg.Defaults.Concurrency {
		t.Errorf("concurrency = %d", got.Defaults.Concurrency)
	}
}

func TestLoadDefaultMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.Defaults.Concurrency != 20 {
		t.Errorf("expected defaults, got %+v", cfg.Defaults)
	}
}

func TestResolveHosts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Groups["web"] = Group{Hosts: []string{"web1", "admin@web2"}, User: "deploy"}

	t.Run("group only", func(t *testing.T) {
		hosts, err := ResolveHosts(cfg, "web", nil)
		if err != nil {
			t.Fatalf("ResolveHosts: %v", err)
		}
		if len(hosts) != 2 {
			t.Fatalf("hosts = %d", len(hosts))
		}
		if hosts[0].Name != "web1" || hosts[0].User != "deploy" {
			t.Errorf("hosts[0] = %+v", hosts[0])
		}
		// Group user overrides the user@host part.
		if hosts[1].Hostname != "web2" || hosts[1].User != "deploy" {
			t.Errorf("hosts[1] = %+v", hosts[1])
		}
	})

	t.Run("cli merged and deduped", func(t *testing.T) {
		hosts, err := ResolveHosts(cfg, "web", []string{"web1", "web3"})
		if err != nil {
			t.Fatalf("ResolveHosts: %v", err)
		}
		if len(hosts) != 3 {
			t.Fatalf("hosts = %d, want dedup of web1", len(hosts))
		}
		if hosts[2].Name != "web3" {
			t.Errorf("hosts[2] = %+v", hosts[2])
		}
	})

	t.Run("user at host", func(t *testing.T) {
		hosts, err := ResolveHosts(cfg, "", []string{"root@db1"})
		if err != nil {
			t.Fatalf("ResolveHosts: %v", err)
		}
		h := hosts[0]
		if h.Name != "root@db1" || h.Hostname != "db1" || h.User != "root" {
			t.Errorf("host = %+v", h)
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		if _, err := ResolveHosts(cfg, "nope", nil); err == nil {
			t.Error("expected error for unknown group")
		}
	})

	t.Run("no targets", func(t *testing.T) {
		if _, err := ResolveHosts(cfg, "", nil); err == nil {
			t.Error("expected error for no targets")
		}
	})
}

func TestParseUserAtHost(t *testing.T) {
	tests := []struct {
		in       string
		user     string
		host     string
		ok       bool
	}{
		{"admin@web1", "admin", "web1", true},
		{"web1", "", "", false},
		{"@web1", "", "", false},
	}
	for _, tt := range tests {
		user, host, ok := parseUserAtHost(tt.in)
		if user != tt.user || host != tt.host || ok != tt.ok {
			t.Errorf("parseUserAtHost(%q) = %q, %q, %v", tt.in, user, host, ok)
		}
	}
}
