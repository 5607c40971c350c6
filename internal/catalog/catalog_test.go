package catalog

import (
	"errors"
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	c := New(Action{ID: "uptime", Name: "Uptime"})

	a, err := c.Lookup("uptime")
	if err != nil {
		t.Fatalf("Lookup(uptime) error: %v", err)
	}
	if a.Name != "Uptime" {
		t.Errorf("Name = %q, want Uptime", a.Name)
	}

	_, err = c.Lookup("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(nope) error = %v, want ErrNotFound", err)
	}
}

func TestNewPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate id should panic")
		}
	}()
	New(Action{ID: "x"}, Action{ID: "x"})
}

func TestAllPreservesOrder(t *testing.T) {
	c := New(Action{ID: "b"}, Action{ID: "a"}, Action{ID: "c"})
	want := []string{"b", "a", "c"}
	for i, a := range c.All() {
		if a.ID != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, a.ID, want[i])
		}
	}
}

func TestRenderCommand(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		params  map[string]string
		want    string
		wantErr string
	}{
		{
			name:   "no params",
			action: Action{ID: "uptime", Command: "uptime"},
			want:   "uptime",
		},
		{
			name: "default applied",
			action: Action{
				ID:      "clean",
				Command: "find {{dir}} -delete",
				Params:  []Param{{Name: "dir", Default: "/tmp"}},
			},
			want: "find /tmp -delete",
		},
		{
			name: "explicit overrides default",
			action: Action{
				ID:      "clean",
				Command: "find {{dir}} -delete",
				Params:  []Param{{Name: "dir", Default: "/tmp"}},
			},
			params: map[string]string{"dir": "/var/tmp"},
			want:   "find /var/tmp -delete",
		},
		{
			name: "missing required",
			action: Action{
				ID:      "restart",
				Command: "systemctl restart {{service}}",
				Params:  []Param{{Name: "service", Required: true}},
			},
			wantErr: "required param",
		},
		{
			name: "unresolved placeholder",
			action: Action{
				ID:      "typo",
				Command: "echo {{nam}}",
				Params:  []Param{{Name: "name", Default: "x"}},
			},
			wantErr: "unresolved params",
		},
		{
			name: "value quoted",
			action: Action{
				ID:      "restart",
				Command: "systemctl restart {{service}}",
				Params:  []Param{{Name: "service", Required: true}},
			},
			params: map[string]string{"service": "my service; rm -rf /"},
			want:   `systemctl restart 'my service; rm -rf /'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.action.RenderCommand(tt.params)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RenderCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderCollectPath(t *testing.T) {
	a := Action{
		ID:      "collect",
		Command: "gen {{name}}",
		Params:  []Param{{Name: "name", Default: "report"}},
		Collect: &CollectSpec{RemotePath: "/tmp/{{name}}.txt", LocalDir: "reports"},
	}
	got, err := a.RenderCollectPath(nil)
	if err != nil {
		t.Fatalf("RenderCollectPath error: %v", err)
	}
	if got != "/tmp/report.txt" {
		t.Errorf("RenderCollectPath() = %q, want /tmp/report.txt", got)
	}

	plain := Action{ID: "x", Command: "true"}
	if got, err := plain.RenderCollectPath(nil); err != nil || got != "" {
		t.Errorf("no collect spec should render empty, got %q err %v", got, err)
	}
}

func TestBuiltinCatalog(t *testing.T) {
	c := Builtin()
	if c.Len() == 0 {
		t.Fatal("builtin catalog is empty")
	}

	for _, a := range c.All() {
		if a.Command == "" {
			t.Errorf("action %q has no command", a.ID)
		}
		// Every declared template placeholder must render with defaults
		// or be covered by a required param.
		params := map[string]string{}
		for _, p := range a.Params {
			if p.Required && p.Default == "" {
				params[p.Name] = "value"
			}
		}
		if _, err := a.RenderCommand(params); err != nil {
			t.Errorf("action %q does not render: %v", a.ID, err)
		}
	}

	if _, err := c.Lookup("service-restart"); err != nil {
		t.Errorf("expected service-restart in builtin catalog: %v", err)
	}
}
