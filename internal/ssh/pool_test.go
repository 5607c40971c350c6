package ssh

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
)

func TestResolveHostConf(t *testing.T) {
	p := NewPool(ClientConfig{User: "base", Port: 22}, map[string]HostConfig{
		"web1": {Hostname: "10.0.0.5", User: "deploy", Port: 2222, IdentityFile: "/keys/web1"},
	})

	conf, dialHost := p.resolveHostConf("web1")
	if dialHost != "10.0.0.5" {
		t.Errorf("dialHost = %q", dialHost)
	}
	if conf.User != "deploy" || conf.Port != 2222 {
		t.Errorf("conf = %+v", conf)
	}
	if len(conf.IdentityFiles) != 1 || conf.IdentityFiles[0] != "/keys/web1" {
		t.Errorf("identity files = %v", conf.IdentityFiles)
	}

	conf, dialHost = p.resolveHostConf("other")
	if dialHost != "other" || conf.User != "base" {
		t.Errorf("no-override host resolved to %q / %+v", dialHost, conf)
	}
}

func TestIsReconnectable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"net op error", &net.OpError{Op: "read", Err: errors.New("reset")}, true},
		{"closed connection", errors.New("use of closed network connection"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"auth", errors.New("ssh: unable to authenticate"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isReconnectable(tt.err); got != tt.want {
				t.Errorf("isReconnectable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEvictUnknownHost(t *testing.T) {
	p := NewPool(ClientConfig{}, nil)
	// Evicting a host with no cached connection is a no-op.
	p.Evict("ghost")
	if p.IsConnected("ghost") {
		t.Error("ghost should not be connected")
	}
}
