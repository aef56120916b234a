package mcpmgr

import "os/exec"

// probeEnvironment performs a best-effort boot-time check: most stdio MCP
// servers in the wild are launched via npx, so a missing node/npx toolchain
// is worth surfacing in the init summary even though it never blocks boot
// on its own.
func probeEnvironment() map[string]bool {
	report := map[string]bool{"node": false, "npx": false}
	if _, err := exec.LookPath("node"); err == nil {
		report["node"] = true
	}
	if _, err := exec.LookPath("npx"); err == nil {
		report["npx"] = true
	}
	return report
}
