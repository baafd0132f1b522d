package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rpistatus/host/internal/config"
	"github.com/rpistatus/host/internal/controller"
	coded "github.com/rpistatus/host/internal/errors"
	agenttls "github.com/rpistatus/host/internal/tls"
)

// stubOpts configures the behavior of stubbed seams for doctor tests.
type stubOpts struct {
	pingErr error
	hostErr error
	cert    *agenttls.CertInfo
	certErr error
	fileAge time.Duration
	missing map[string]bool
}

// stubDoctor overrides the doctor seams with deterministic stubs that are
// restored when the test ends.
func stubDoctor(t *testing.T, opts stubOpts) {
	t.Helper()

	origStat := doctorStat
	origPing := doctorPing
	origHost := doctorHostSummary
	origCert := doctorLoadCertificate
	origNow := doctorNow

	t.Cleanup(func() {
		doctorStat = origStat
		doctorPing = origPing
		doctorHostSummary = origHost
		doctorLoadCertificate = origCert
		doctorNow = origNow
	})

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doctorNow = func() time.Time { return now }

	dir := t.TempDir()
	doctorStat = func(path string) (os.FileInfo, error) {
		if opts.missing[path] {
			return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
		}
		f := filepath.Join(dir, filepath.Base(path))
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			return nil, err
		}
		mtime := now.Add(-opts.fileAge)
		if err := os.Chtimes(f, mtime, mtime); err != nil {
			return nil, err
		}
		return os.Stat(f)
	}
	doctorPing = func(*config.Config) error { return opts.pingErr }
	doctorHostSummary = func() (HostSummary, error) {
		return HostSummary{
			Uptime:     26 * time.Hour,
			Load1:      0.5,
			Load5:      0.25,
			Load15:     0.1,
			MemTotalKB: 1000,
			MemAvailKB: 600,
		}, opts.hostErr
	}
	doctorLoadCertificate = func(certPath, keyPath string) (*agenttls.CertInfo, error) {
		return opts.cert, opts.certErr
	}
}

func runDoctorJSON(t *testing.T, cfgBody string, args ...string) (int, DoctorResult) {
	t.Helper()
	path := writeConfig(t, cfgBody)
	code, stdout, stderr := runCLI(append([]string{"doctor", "--json", "--config", path}, args...)...)

	var result DoctorResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decode doctor output: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	return code, result
}

func checkByID(t *testing.T, result DoctorResult, id string) DoctorCheck {
	t.Helper()
	for _, c := range result.Checks {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("check %s not found in %+v", id, result.Checks)
	return DoctorCheck{}
}

func TestDoctorAllHealthy(t *testing.T) {
	withEnv(t, nil)
	stubDoctor(t, stubOpts{
		fileAge: 2 * time.Second,
		cert:    &agenttls.CertInfo{NotAfter: time.Now().Add(365 * 24 * time.Hour), Fingerprint: "AA:BB"},
	})

	code, result := runDoctorJSON(t, "tls = true\n")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0: %+v", code, result)
	}
	if result.Version != "1" {
		t.Errorf("version = %q", result.Version)
	}

	wantOrder := []string{
		checkIDSnapshotCPU, checkIDSnapshotRAM, checkIDSnapshotProc, checkIDSnapshotExtTemp,
		checkIDController, checkIDHostSystem, checkIDTrustCert,
	}
	if len(result.Checks) != len(wantOrder) {
		t.Fatalf("got %d checks, want %d", len(result.Checks), len(wantOrder))
	}
	for i, id := range wantOrder {
		if result.Checks[i].ID != id {
			t.Errorf("check %d = %s, want %s", i, result.Checks[i].ID, id)
		}
		if result.Checks[i].Status != statusPass {
			t.Errorf("%s status = %s (%s)", id, result.Checks[i].Status, result.Checks[i].Message)
		}
	}
	if result.Summary != (DoctorSummary{Pass: len(wantOrder)}) {
		t.Errorf("summary = %+v", result.Summary)
	}

	host := checkByID(t, result, checkIDHostSystem)
	if !strings.Contains(host.Message, "Up 1d 2h") || !strings.Contains(host.Message, "600 of 1000 kB") {
		t.Errorf("host message = %q", host.Message)
	}
}

func TestDoctorStaleAndMissingFiles(t *testing.T) {
	withEnv(t, nil)
	stubDoctor(t, stubOpts{
		fileAge: time.Minute,
		missing: map[string]bool{"/tmp/ram": true},
	})

	code, result := runDoctorJSON(t, "update_interval_secs = 5\n")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if c := checkByID(t, result, checkIDSnapshotCPU); c.Status != statusWarn {
		t.Errorf("cpu status = %s, want warn (%s)", c.Status, c.Message)
	}
	if c := checkByID(t, result, checkIDSnapshotRAM); c.Status != statusFail {
		t.Errorf("ram status = %s, want fail", c.Status)
	}
}

func TestDoctorFreshnessScalesWithInterval(t *testing.T) {
	withEnv(t, nil)
	stubDoctor(t, stubOpts{fileAge: time.Minute})

	_, result := runDoctorJSON(t, "update_interval_secs = 30\n")
	if c := checkByID(t, result, checkIDSnapshotCPU); c.Status != statusPass {
		t.Errorf("cpu status = %s, want pass with a 90s window", c.Status)
	}
}

func TestDoctorExtTempSkippedWhenDisabled(t *testing.T) {
	withEnv(t, nil)
	stubDoctor(t, stubOpts{})

	_, result := runDoctorJSON(t, "ext_temp_file = \"\"\n")
	for _, c := range result.Checks {
		if c.ID == checkIDSnapshotExtTemp {
			t.Fatalf("ext_temp check present with an empty path")
		}
	}
}

func TestDoctorController(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
		action string
	}{
		{
			name:   "rejected warns",
			err:    coded.Wrap(coded.CodeControllerRejected, "controller returned error code 4", &controller.RejectedError{Command: controller.CommandPing, Code: controller.ResponsePermission}),
			status: statusWarn,
			action: "logs",
		},
		{
			name:   "connect fails",
			err:    coded.New(coded.CodeControllerConnect, "refused"),
			status: statusFail,
			action: "Start the controller daemon",
		},
		{
			name:   "bad address fails",
			err:    coded.New(coded.CodeControllerAddress, "bad port"),
			status: statusFail,
			action: "control_host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, nil)
			stubDoctor(t, stubOpts{pingErr: tt.err})

			_, result := runDoctorJSON(t, "")
			c := checkByID(t, result, checkIDController)
			if c.Status != tt.status {
				t.Errorf("status = %s, want %s (%s)", c.Status, tt.status, c.Message)
			}
			if !strings.Contains(c.NextAction, tt.action) {
				t.Errorf("next action = %q, want it to mention %q", c.NextAction, tt.action)
			}
		})
	}
}

func TestDoctorHostStatsUnavailableWarns(t *testing.T) {
	withEnv(t, nil)
	stubDoctor(t, stubOpts{hostErr: errors.New("no /proc")})

	code, result := runDoctorJSON(t, "")
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if c := checkByID(t, result, checkIDHostSystem); c.Status != statusWarn {
		t.Errorf("status = %s, want warn", c.Status)
	}
}

func TestDoctorCertificate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    string
		cert   *agenttls.CertInfo
		err    error
		status string
	}{
		{"tls disabled", "", nil, nil, statusWarn},
		{"expiring", "tls = true\n", &agenttls.CertInfo{NotAfter: time.Now().Add(24 * time.Hour)}, nil, statusWarn},
		{"unloadable", "tls = true\n", nil, errors.New("bad pem"), statusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, nil)
			stubDoctor(t, stubOpts{cert: tt.cert, certErr: tt.err})

			_, result := runDoctorJSON(t, tt.cfg)
			if c := checkByID(t, result, checkIDTrustCert); c.Status != tt.status {
				t.Errorf("status = %s, want %s (%s)", c.Status, tt.status, c.Message)
			}
		})
	}
}

func TestDoctorHumanOutput(t *testing.T) {
	withEnv(t, nil)
	stubDoctor(t, stubOpts{pingErr: coded.New(coded.CodeControllerTimeout, "slow")})
	path := writeConfig(t, "")

	code, stdout, _ := runCLI("doctor", "--config", path)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	for _, want := range []string{"rpistatus doctor", "[FAIL] controller.ping", "-> Start the controller daemon", "Summary:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{7 * time.Minute, "7m"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{76 * time.Hour, "3d 4h"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
