package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fleetmedic/fleetmedic/internal/config"
)

// FromConfig builds a registry from the health section of the config, in
// config order. With no checks configured, a default set is registered.
func FromConfig(h config.Health) (*Registry, error) {
	reg := NewRegistry()

	if len(h.Checks) == 0 {
		reg.MustRegister(DiskSpaceCheck(nil))
		reg.MustRegister(DNSResolveCheck(nil))
		reg.MustRegister(ClockSyncCheck(nil))
		return reg, nil
	}

	for _, cc := range h.Checks {
		if !cc.IsEnabled() {
			continue
		}
		check, err := buildCheck(cc)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(check); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildCheck(cc config.CheckConfig) (Check, error) {
	switch cc.Name {
	case "disk-space":
		return DiskSpaceCheck(cc.Options), nil
	case "dns-resolve":
		return DNSResolveCheck(cc.Options), nil
	case "service-active":
		svc := cc.Options["service"]
		if svc == "" {
			return Check{}, fmt.Errorf("health check %q requires a service option", cc.Name)
		}
		return ServiceActiveCheck(svc), nil
	case "clock-sync":
		return ClockSyncCheck(cc.Options), nil
	default:
		return Check{}, fmt.Errorf("unknown health check %q", cc.Name)
	}
}

// DiskSpaceCheck probes free space on a filesystem and remediates by
// deleting stale entries from a scratch directory.
//
// Options: path (default /), min-free-percent (default 10),
// clean-dir (default /tmp), max-age-days (default 7).
func DiskSpaceCheck(options map[string]string) Check {
	path := optString(options, "path", "/")
	minFree := optInt(options, "min-free-percent", 10)
	cleanDir := optString(options, "clean-dir", "/tmp")
	maxAge := time.Duration(optInt(options, "max-age-days", 7)) * 24 * time.Hour

	return Check{
		Name: "disk-space",
		Probe: func(ctx context.Context) CheckOutcome {
			var st unix.Statfs_t
			if err := unix.Statfs(path, &st); err != nil {
				return CheckOutcome{Healthy: false, Detail: fmt.Sprintf("statfs %s: %v", path, err)}
			}
			if st.Blocks == 0 {
				return CheckOutcome{Healthy: false, Detail: fmt.Sprintf("statfs %s: zero block count", path)}
			}
			freePct := int(st.Bavail * 100 / st.Blocks)
			return CheckOutcome{
				Healthy: freePct >= minFree,
				Detail:  fmt.Sprintf("%s: %d%% free (minimum %d%%)", path, freePct, minFree),
			}
		},
		Remediate: func(ctx context.Context) RemediationOutcome {
			removed, err := removeOlderThan(ctx, cleanDir, maxAge)
			if err != nil {
				return RemediationOutcome{Err: fmt.Errorf("clean %s: %w", cleanDir, err)}
			}
			return RemediationOutcome{
				Applied: true,
				Detail:  fmt.Sprintf("removed %d entries from %s", removed, cleanDir),
			}
		},
	}
}

// removeOlderThan deletes top-level entries of dir whose modification time is
// older than maxAge. Only direct children are considered, so the remediation
// stays bounded even on huge scratch directories.
func removeOlderThan(ctx context.Context, dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

// DNSResolveCheck probes name resolution and remediates by flushing the
// systemd resolver cache.
//
// Options: host (default example.com), timeout (seconds, default 3).
func DNSResolveCheck(options map[string]string) Check {
	host := optString(options, "host", "example.com")
	timeout := time.Duration(optInt(options, "timeout", 3)) * time.Second

	return Check{
		Name: "dns-resolve",
		Probe: func(ctx context.Context) CheckOutcome {
			lookupCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var resolver net.Resolver
			addrs, err := resolver.LookupHost(lookupCtx, host)
			if err != nil {
				return CheckOutcome{Healthy: false, Detail: fmt.Sprintf("lookup %s: %v", host, err)}
			}
			return CheckOutcome{Healthy: true, Detail: fmt.Sprintf("%s resolves to %d addresses", host, len(addrs))}
		},
		Remediate: func(ctx context.Context) RemediationOutcome {
			out, err := runLocal(ctx, "resolvectl flush-caches 2>/dev/null || systemd-resolve --flush-caches")
			if err != nil {
				return RemediationOutcome{Err: fmt.Errorf("flush resolver cache: %w", err)}
			}
			detail := "flushed resolver cache"
			if out != "" {
				detail += ": " + out
			}
			return RemediationOutcome{Applied: true, Detail: detail}
		},
	}
}

// ServiceActiveCheck probes a systemd unit and remediates by restarting it.
func ServiceActiveCheck(service string) Check {
	return Check{
		Name: "service-active",
		Probe: func(ctx context.Context) CheckOutcome {
			_, err := runLocal(ctx, "systemctl is-active --quiet "+service)
			if err != nil {
				return CheckOutcome{Healthy: false, Detail: fmt.Sprintf("%s is not active: %v", service, err)}
			}
			return CheckOutcome{Healthy: true, Detail: service + " is active"}
		},
		Remediate: func(ctx context.Context) RemediationOutcome {
			if _, err := runLocal(ctx, "systemctl restart "+service); err != nil {
				return RemediationOutcome{Err: fmt.Errorf("restart %s: %w", service, err)}
			}
			return RemediationOutcome{Applied: true, Detail: "restarted " + service}
		},
	}
}

// ClockSyncCheck probes NTP synchronization and remediates by restarting the
// timesync daemon.
//
// Options: service (default systemd-timesyncd).
func ClockSyncCheck(options map[string]string) Check {
	service := optString(options, "service", "systemd-timesyncd")

	return Check{
		Name: "clock-sync",
		Probe: func(ctx context.Context) CheckOutcome {
			out, err := runLocal(ctx, "timedatectl show -p NTPSynchronized --value")
			if err != nil {
				return CheckOutcome{Healthy: false, Detail: fmt.Sprintf("timedatectl: %v", err)}
			}
			synced := strings.TrimSpace(out) == "yes"
			detail := "clock is synchronized"
			if !synced {
				detail = "clock is not synchronized"
			}
			return CheckOutcome{Healthy: synced, Detail: detail}
		},
		Remediate: func(ctx context.Context) RemediationOutcome {
			if _, err := runLocal(ctx, "systemctl restart "+service); err != nil {
				return RemediationOutcome{Err: fmt.Errorf("restart %s: %w", service, err)}
			}
			return RemediationOutcome{Applied: true, Detail: "restarted " + service}
		},
	}
}

// runLocal executes a shell command, returning combined output. A non-zero
// exit is an error carrying the output for the outcome detail.
func runLocal(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	trimmedOut := strings.TrimSpace(string(out))
	if err != nil {
		if trimmedOut != "" {
			return trimmedOut, fmt.Errorf("%s: %w", trimmedOut, err)
		}
		return trimmedOut, err
	}
	return trimmedOut, nil
}

func optString(options map[string]string, key, def string) string {
	if v, ok := options[key]; ok && v != "" {
		return v
	}
	return def
}

func optInt(options map[string]string, key string, def int) int {
	v, ok := options[key]
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
