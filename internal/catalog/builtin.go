package catalog

// Builtin returns the catalog of built-in maintenance and diagnostic actions.
func Builtin() *Catalog {
	return New(
		Action{
			ID:             "sys-report",
			Name:           "System report",
			Category:       "diagnostics",
			SupportsRemote: true,
			Command:        "uname -a; uptime; df -h; free -m 2>/dev/null || vm_stat",
		},
		Action{
			ID:             "uptime",
			Name:           "Uptime and load",
			Category:       "diagnostics",
			SupportsRemote: true,
			Command:        "uptime",
		},
		Action{
			ID:             "reboot-check",
			Name:           "Pending reboot check",
			Category:       "diagnostics",
			SupportsRemote: true,
			Command:        `test -f /var/run/reboot-required && echo "REBOOT REQUIRED" || echo "no reboot needed"`,
		},
		Action{
			ID:                "disk-cleanup",
			Name:              "Temp and cache cleanup",
			Category:          "maintenance",
			RequiresElevation: true,
			SupportsRemote:    true,
			Command:           "find {{dir}} -mindepth 1 -mtime +{{age-days}} -delete 2>/dev/null; df -h {{dir}}",
			Params: []Param{
				{Name: "dir", Default: "/tmp"},
				{Name: "age-days", Default: "7"},
			},
		},
		Action{
			ID:                "dns-flush",
			Name:              "Flush DNS resolver cache",
			Category:          "maintenance",
			RequiresElevation: true,
			SupportsRemote:    true,
			Command:           "resolvectl flush-caches 2>/dev/null || systemd-resolve --flush-caches",
		},
		Action{
			ID:                "service-restart",
			Name:              "Restart a system service",
			Category:          "maintenance",
			RequiresElevation: true,
			SupportsRemote:    true,
			Command:           "systemctl restart {{service}} && systemctl is-active {{service}}",
			Params: []Param{
				{Name: "service", Required: true},
			},
		},
		Action{
			ID:                "time-sync",
			Name:              "Force clock resync",
			Category:          "maintenance",
			RequiresElevation: true,
			SupportsRemote:    true,
			Command:           "systemctl restart systemd-timesyncd && timedatectl show -p NTPSynchronized",
		},
		Action{
			ID:             "collect-report",
			Name:           "Generate and collect a system report",
			Category:       "diagnostics",
			SupportsRemote: true,
			Command:        "(uname -a; uptime; df -h; ss -tlnp 2>/dev/null) > /tmp/fleetmedic-report.txt && echo written",
			Collect: &CollectSpec{
				RemotePath: "/tmp/fleetmedic-report.txt",
				LocalDir:   "reports",
			},
		},
	)
}
