package probe

import (
	"context"
	"testing"
	"time"
)

// fakeTransport scripts probe responses and records which checks ran.
type fakeTransport struct {
	pingOK      bool
	transportOK bool

	pingCalls      int
	transportCalls int
}

func (f *fakeTransport) Ping(context.Context, string, time.Duration) bool {
	f.pingCalls++
	return f.pingOK
}

func (f *fakeTransport) TestTransport(context.Context, string, time.Duration) bool {
	f.transportCalls++
	return f.transportOK
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name           string
		pingOK         bool
		transportOK    bool
		wantReachable  bool
		wantTransport  bool
		wantTransCalls int
	}{
		{"reachable with transport", true, true, true, true, 1},
		{"reachable without transport", true, false, true, false, 1},
		{"unreachable skips transport check", false, true, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{pingOK: tt.pingOK, transportOK: tt.transportOK}
			p := New(ft)

			tgt := p.Probe(context.Background(), "host1")

			if tgt.Reachable != tt.wantReachable {
				t.Errorf("Reachable = %v, want %v", tgt.Reachable, tt.wantReachable)
			}
			if tgt.TransportAvailable != tt.wantTransport {
				t.Errorf("TransportAvailable = %v, want %v", tgt.TransportAvailable, tt.wantTransport)
			}
			if ft.transportCalls != tt.wantTransCalls {
				t.Errorf("transport checks = %d, want %d", ft.transportCalls, tt.wantTransCalls)
			}
			if tgt.HostName != "host1" {
				t.Errorf("HostName = %q", tgt.HostName)
			}
			if tgt.LastProbedAt.IsZero() {
				t.Error("LastProbedAt not set")
			}
		})
	}
}

func TestWithTimeout(t *testing.T) {
	p := New(&fakeTransport{}, WithTimeout(time.Second))
	if p.timeout != time.Second {
		t.Errorf("timeout = %s, want 1s", p.timeout)
	}

	p = New(&fakeTransport{}, WithTimeout(-1))
	if p.timeout != 5*time.Second {
		t.Errorf("non-positive timeout should keep default, got %s", p.timeout)
	}
}
