// Package main provides the rpistatus command-line interface.
// This file implements the `rpistatus doctor` diagnostic command.
//
// The doctor command runs a sequence of checks against the local agent
// environment and reports actionable remediation guidance for any issues.
// It supports both human-readable (default) and machine-readable (--json) output.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rpistatus/host/internal/config"
	"github.com/rpistatus/host/internal/controller"
	coded "github.com/rpistatus/host/internal/errors"
	"github.com/rpistatus/host/internal/logger"
	agenttls "github.com/rpistatus/host/internal/tls"
)

// DoctorResult is the top-level JSON output for `rpistatus doctor --json`.
type DoctorResult struct {
	// Version is the doctor output schema version. Always "1".
	Version string `json:"version"`

	// Checks is the ordered list of diagnostic checks that were evaluated.
	Checks []DoctorCheck `json:"checks"`

	// Summary contains aggregate pass/warn/fail counts derived from Checks.
	Summary DoctorSummary `json:"summary"`
}

// DoctorCheck is one diagnostic check in the doctor output.
type DoctorCheck struct {
	// ID is a stable, machine-readable identifier for the check (e.g., "snapshot.cpu").
	ID string `json:"id"`

	// Status is the check result: "pass", "warn", or "fail".
	Status string `json:"status"`

	// Message is a human-readable summary of what was found.
	Message string `json:"message"`

	// NextAction is a concrete remediation step the operator should take.
	NextAction string `json:"next_action"`
}

// DoctorSummary holds aggregate counts of check outcomes.
type DoctorSummary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Stable check IDs used by the doctor command.
const (
	checkIDSnapshotCPU     = "snapshot.cpu"
	checkIDSnapshotRAM     = "snapshot.ram"
	checkIDSnapshotProc    = "snapshot.proc"
	checkIDSnapshotExtTemp = "snapshot.ext_temp"
	checkIDController      = "controller.ping"
	checkIDHostSystem      = "host.system"
	checkIDTrustCert       = "trust.certificate"
)

// Stable status values for doctor checks.
const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

// certExpiryWarning is how close to expiry a certificate starts to warn.
const certExpiryWarning = 30 * 24 * time.Hour

// minStaleAfter is the smallest age at which a snapshot file is stale.
const minStaleAfter = 15 * time.Second

// HostSummary is what the host.system check reports about the board.
type HostSummary struct {
	Uptime     time.Duration
	Load1      float64
	Load5      float64
	Load15     float64
	MemTotalKB uint64
	MemAvailKB uint64
}

// Function-variable seams for testability.
// Tests override these to inject deterministic behavior.
var (
	// doctorStat reports a snapshot file's metadata.
	doctorStat = os.Stat

	// doctorPing issues one controller ping with cfg's settings.
	doctorPing = defaultPing

	// doctorHostSummary reads uptime, load and memory from the OS.
	doctorHostSummary = defaultHostSummary

	// doctorLoadCertificate loads the configured certificate.
	doctorLoadCertificate = agenttls.Load

	// doctorNow is the clock used for freshness checks.
	doctorNow = time.Now
)

func defaultPing(cfg *config.Config) error {
	client, err := newController(cfg, logger.Noop())
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Ping(context.Background())
}

func defaultHostSummary() (HostSummary, error) {
	var s HostSummary

	uptime, err := host.Uptime()
	if err != nil {
		return s, fmt.Errorf("uptime: %w", err)
	}
	s.Uptime = time.Duration(uptime) * time.Second

	avg, err := load.Avg()
	if err != nil {
		return s, fmt.Errorf("load average: %w", err)
	}
	s.Load1, s.Load5, s.Load15 = avg.Load1, avg.Load5, avg.Load15

	vm, err := mem.VirtualMemory()
	if err != nil {
		return s, fmt.Errorf("memory: %w", err)
	}
	s.MemTotalKB = vm.Total / 1024
	s.MemAvailKB = vm.Available / 1024
	return s, nil
}

// runDoctor implements the `rpistatus doctor` CLI command.
// Returns 0 when no checks fail, 1 when any check fails or an internal error occurs.
func runDoctor(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var jsonMode bool
	var configPath string
	var cf controlFlags

	fs.BoolVar(&jsonMode, "json", false, "Emit machine-readable JSON to stdout")
	fs.StringVar(&configPath, "config", "", "Path to config file (default: ~/.rpistatus/config.toml)")
	cf.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rpistatus doctor [options]\n\nDiagnose snapshot files, controller and host.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(configPath, stderrLogger(stderr, "[config]", nil))
	if err != nil {
		printError(stderr, err)
		return 1
	}
	cf.apply(cfg, visited(fs))

	// Evaluate checks in deterministic order.
	staleAfter := 3 * cfg.UpdateInterval()
	if staleAfter < minStaleAfter {
		staleAfter = minStaleAfter
	}
	checks := []DoctorCheck{
		evalSnapshotFile(checkIDSnapshotCPU, cfg.CPUFile, staleAfter),
		evalSnapshotFile(checkIDSnapshotRAM, cfg.RAMFile, staleAfter),
		evalSnapshotFile(checkIDSnapshotProc, cfg.ProcFile, staleAfter),
	}
	if cfg.ExtTempFile != "" {
		checks = append(checks, evalSnapshotFile(checkIDSnapshotExtTemp, cfg.ExtTempFile, staleAfter))
	}
	checks = append(checks,
		evalController(cfg),
		evalHostSystem(),
		evalTrustCertificate(cfg),
	)

	result := DoctorResult{
		Version: "1",
		Checks:  checks,
		Summary: summarize(checks),
	}

	// Render output.
	if jsonMode {
		if err := renderDoctorJSON(stdout, result); err != nil {
			fmt.Fprintf(stderr, "Error: failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		renderDoctorHuman(stdout, result)
	}

	if result.Summary.Fail > 0 {
		return 1
	}
	return 0
}

func summarize(checks []DoctorCheck) DoctorSummary {
	summary := DoctorSummary{}
	for _, c := range checks {
		switch c.Status {
		case statusPass:
			summary.Pass++
		case statusWarn:
			summary.Warn++
		case statusFail:
			summary.Fail++
		}
	}
	return summary
}

// evalSnapshotFile checks that a snapshot file exists and was rewritten
// recently. Missing or unreadable files fail; stale files warn.
func evalSnapshotFile(id, path string, staleAfter time.Duration) DoctorCheck {
	check := DoctorCheck{ID: id}

	info, err := doctorStat(path)
	if err != nil {
		check.Status = statusFail
		check.Message = fmt.Sprintf("%s is not readable: %v", path, err)
		check.NextAction = "Start the monitor daemon, or point the agent at the file it writes."
		return check
	}
	if info.IsDir() {
		check.Status = statusFail
		check.Message = fmt.Sprintf("%s is a directory.", path)
		check.NextAction = "Point the agent at the snapshot file, not its directory."
		return check
	}

	age := doctorNow().Sub(info.ModTime())
	if age > staleAfter {
		check.Status = statusWarn
		check.Message = fmt.Sprintf("%s was last written %s ago.", path, age.Round(time.Second))
		check.NextAction = "Check that the monitor daemon is still running."
		return check
	}

	check.Status = statusPass
	check.Message = fmt.Sprintf("%s is fresh (%s old).", path, age.Round(time.Second))
	check.NextAction = "No action required."
	return check
}

// evalController pings the controller. A rejected ping means the daemon
// is reachable but unhappy, so it warns; anything else fails.
func evalController(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{ID: checkIDController}
	addr := fmt.Sprintf("%s:%d", cfg.ControlHost, cfg.ControlPort)

	err := doctorPing(cfg)
	if err == nil {
		check.Status = statusPass
		check.Message = fmt.Sprintf("Controller at %s answered ping.", addr)
		check.NextAction = "No action required."
		return check
	}

	if rc, ok := controller.RejectedCode(err); ok {
		check.Status = statusWarn
		check.Message = fmt.Sprintf("Controller at %s rejected ping: %s.", addr, controller.ResponseCode(rc))
		check.NextAction = "Check the controller daemon's logs."
		return check
	}

	check.Status = statusFail
	check.Message = fmt.Sprintf("Controller at %s: [%s] %s", addr, coded.GetCode(err), coded.GetMessage(err))
	switch coded.GetCode(err) {
	case coded.CodeControllerAddress, coded.CodeConfigInvalid:
		check.NextAction = "Fix control_host, control_port or control_key in the config."
	default:
		check.NextAction = "Start the controller daemon and re-run doctor."
	}
	return check
}

// evalHostSystem reports uptime, load and memory. Failing to read them
// only warns since the agent does not depend on them.
func evalHostSystem() DoctorCheck {
	check := DoctorCheck{ID: checkIDHostSystem}

	s, err := doctorHostSummary()
	if err != nil {
		check.Status = statusWarn
		check.Message = fmt.Sprintf("Could not read host statistics: %v", err)
		check.NextAction = "No action required unless the snapshot files are also stale."
		return check
	}

	check.Status = statusPass
	check.Message = fmt.Sprintf("Up %s, load %.2f %.2f %.2f, %d of %d kB available.",
		formatUptime(s.Uptime), s.Load1, s.Load5, s.Load15, s.MemAvailKB, s.MemTotalKB)
	check.NextAction = "No action required."
	return check
}

// evalTrustCertificate evaluates the trust.certificate check.
// Decision table:
//   - TLS disabled -> warn
//   - cert loads and is not near expiry -> pass
//   - cert expires within 30 days -> warn
//   - cert missing/unreadable/invalid -> fail
func evalTrustCertificate(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{ID: checkIDTrustCert}
	var certPath, keyPath string

	if !cfg.TLS {
		check.Status = statusWarn
		check.Message = "TLS is disabled; the agent serves plain HTTP."
		check.NextAction = "Set tls = true (or pass --tls to start) before exposing the agent beyond localhost."
		return check
	}

	certCfg, err := certConfig(cfg)
	if err == nil {
		certPath, keyPath, err = certCfg.Paths()
	}
	if err != nil {
		check.Status = statusFail
		check.Message = err.Error()
		check.NextAction = "Set tls_cert and tls_key in the config."
		return check
	}

	info, err := doctorLoadCertificate(certPath, keyPath)
	if err != nil {
		check.Status = statusFail
		check.Message = fmt.Sprintf("Certificate %s could not be loaded: %v", certPath, err)
		check.NextAction = "Run `rpistatus start --tls` once to generate a certificate, or fix tls_cert/tls_key."
		return check
	}

	if info.ExpiresWithin(certExpiryWarning) {
		check.Status = statusWarn
		check.Message = fmt.Sprintf("Certificate %s expires %s.", certPath, info.NotAfter.Format("2006-01-02"))
		check.NextAction = "Delete the certificate pair and restart the agent to regenerate it."
		return check
	}

	check.Status = statusPass
	check.Message = fmt.Sprintf("Certificate %s is valid until %s (SHA-256 %s).",
		certPath, info.NotAfter.Format("2006-01-02"), info.Fingerprint)
	check.NextAction = "No action required."
	return check
}

// formatUptime renders a duration as "3d 4h", "2h 5m" or "7m".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// renderDoctorJSON writes the doctor result as JSON to stdout.
// Only valid JSON is written to stdout; no extra lines.
func renderDoctorJSON(w io.Writer, result DoctorResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// renderDoctorHuman writes the doctor result in human-readable format.
func renderDoctorHuman(w io.Writer, result DoctorResult) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "rpistatus doctor")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w, "")

	for _, c := range result.Checks {
		icon := statusIcon(c.Status)
		fmt.Fprintf(w, "  %s %s: %s\n", icon, c.ID, c.Message)
		if c.Status != statusPass {
			fmt.Fprintf(w, "    -> %s\n", c.NextAction)
		}
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d failures\n",
		result.Summary.Pass, result.Summary.Warn, result.Summary.Fail)
	fmt.Fprintln(w, "")
}

// statusIcon returns a text marker for the check status.
func statusIcon(status string) string {
	switch status {
	case statusPass:
		return "[PASS]"
	case statusWarn:
		return "[WARN]"
	case statusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}
