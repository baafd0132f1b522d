package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpistatus/host/internal/errors"
	"github.com/rpistatus/host/internal/logger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

// TestLoad_AllFields verifies that all config fields are parsed correctly from TOML.
func TestLoad_AllFields(t *testing.T) {
	path := writeConfig(t, `
addr = "0.0.0.0:8080"
log_level = "debug"
update_interval_secs = 2
cpu_file = "/run/status/cpu"
ram_file = "/run/status/ram"
proc_file = "/run/status/proc"
ext_temp_file = ""
control_host = "10.0.0.2"
control_port = 4000
control_key = "1234"
connect_timeout_ms = 100
command_timeout_ms = 300
control_rate_limit = 1.5
control_rate_burst = 2
terminal_enabled = false
terminal_shell = "/bin/bash"
terminal_hangup_on_disconnect = true
tls = true
tls_cert = "/etc/rpistatus/host.crt"
tls_key = "/etc/rpistatus/host.key"
mdns_enabled = true
mdns_name = "bench-pi"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "0.0.0.0:8080")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.UpdateInterval() != 2*time.Second {
		t.Errorf("UpdateInterval() = %v, want 2s", cfg.UpdateInterval())
	}
	if cfg.CPUFile != "/run/status/cpu" || cfg.RAMFile != "/run/status/ram" || cfg.ProcFile != "/run/status/proc" {
		t.Errorf("files = %q %q %q", cfg.CPUFile, cfg.RAMFile, cfg.ProcFile)
	}
	if cfg.ExtTempFile != "" {
		t.Errorf("ExtTempFile = %q, want empty", cfg.ExtTempFile)
	}
	if cfg.ControlHost != "10.0.0.2" || cfg.ControlPort != 4000 {
		t.Errorf("control = %s:%d, want 10.0.0.2:4000", cfg.ControlHost, cfg.ControlPort)
	}
	if key, err := cfg.Key(); err != nil || key != 1234 {
		t.Errorf("Key() = %d, %v; want 1234", key, err)
	}
	if cfg.ConnectTimeout() != 100*time.Millisecond {
		t.Errorf("ConnectTimeout() = %v", cfg.ConnectTimeout())
	}
	if cfg.CommandTimeout() != 300*time.Millisecond {
		t.Errorf("CommandTimeout() = %v", cfg.CommandTimeout())
	}
	if cfg.ControlRateLimit != 1.5 || cfg.ControlRateBurst != 2 {
		t.Errorf("rate = %v/%d", cfg.ControlRateLimit, cfg.ControlRateBurst)
	}
	if cfg.TerminalEnabled {
		t.Error("TerminalEnabled = true, want false")
	}
	if cfg.TerminalShell != "/bin/bash" {
		t.Errorf("TerminalShell = %q", cfg.TerminalShell)
	}
	if !cfg.TerminalHangupOnDisconnect {
		t.Error("TerminalHangupOnDisconnect = false, want true")
	}
	if !cfg.TLS || cfg.TLSCert != "/etc/rpistatus/host.crt" || cfg.TLSKey != "/etc/rpistatus/host.key" {
		t.Errorf("tls = %v %q %q", cfg.TLS, cfg.TLSCert, cfg.TLSKey)
	}
	if !cfg.MdnsEnabled || cfg.MdnsName != "bench-pi" {
		t.Errorf("mdns = %v %q", cfg.MdnsEnabled, cfg.MdnsName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

// TestLoad_PartialConfig verifies that keys missing from the file keep their defaults.
func TestLoad_PartialConfig(t *testing.T) {
	path := writeConfig(t, `control_port = 9999`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ControlPort != 9999 {
		t.Errorf("ControlPort = %d, want 9999", cfg.ControlPort)
	}
	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want default %q", cfg.Addr, DefaultAddr)
	}
	if cfg.ExtTempFile != DefaultExtTempFile {
		t.Errorf("ExtTempFile = %q, want default", cfg.ExtTempFile)
	}
	if !cfg.TerminalEnabled {
		t.Error("TerminalEnabled = false, want default true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.UpdateInterval() != 5*time.Second {
		t.Errorf("UpdateInterval() = %v, want 5s", cfg.UpdateInterval())
	}
	if cfg.ConnectTimeout() != 2*time.Second {
		t.Errorf("ConnectTimeout() = %v, want 2s", cfg.ConnectTimeout())
	}
	if cfg.CommandTimeout() != 5*time.Second {
		t.Errorf("CommandTimeout() = %v, want 5s", cfg.CommandTimeout())
	}
	if key, err := cfg.Key(); err != nil || key != 0xDEADBEEF {
		t.Errorf("Key() = %#x, %v; want 0xdeadbeef", key, err)
	}
	if cfg.TerminalHangupOnDisconnect {
		t.Error("TerminalHangupOnDisconnect defaults to true")
	}
	if cfg.Level() != logger.LevelInfo {
		t.Errorf("Level() = %v, want info", cfg.Level())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoad_ExplicitMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
	if errors.GetCode(err) != errors.CodeConfigNotFound {
		t.Errorf("code = %q, want %q", errors.GetCode(err), errors.CodeConfigNotFound)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, `addr = [unterminated`)

	_, err := Load(path)
	if errors.GetCode(err) != errors.CodeConfigInvalid {
		t.Errorf("code = %q, want %q", errors.GetCode(err), errors.CodeConfigInvalid)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `repo = "/src"`)

	_, err := Load(path)
	if errors.GetCode(err) != errors.CodeConfigInvalid {
		t.Fatalf("code = %q, want %q", errors.GetCode(err), errors.CodeConfigInvalid)
	}
}

func TestLoad_DefaultPathMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want default", cfg.Addr)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBindAddress:    "0.0.0.0:3001",
		EnvUpdateInterval: "10",
		EnvLogLevel:       "warn",
		EnvCPUFile:        "/data/cpu",
		EnvRAMFile:        "/data/ram",
		EnvProcFile:       "/data/proc",
		EnvExtTempFile:    "/data/ext",
		EnvControlHost:    "192.168.1.5",
		EnvControlPort:    "40000",
		EnvControlKey:     "0x0000BEEF",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.ApplyEnv(lookup, nil)

	if cfg.Addr != "0.0.0.0:3001" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.UpdateIntervalSecs != 10 {
		t.Errorf("UpdateIntervalSecs = %d", cfg.UpdateIntervalSecs)
	}
	if cfg.Level() != logger.LevelWarn {
		t.Errorf("Level() = %v", cfg.Level())
	}
	if cfg.CPUFile != "/data/cpu" || cfg.RAMFile != "/data/ram" || cfg.ProcFile != "/data/proc" || cfg.ExtTempFile != "/data/ext" {
		t.Errorf("files not overridden: %+v", cfg)
	}
	if cfg.ControlHost != "192.168.1.5" || cfg.ControlPort != 40000 {
		t.Errorf("control = %s:%d", cfg.ControlHost, cfg.ControlPort)
	}
	if key, _ := cfg.Key(); key != 0xBEEF {
		t.Errorf("Key() = %#x, want 0xbeef", key)
	}
}

func TestApplyEnv_BadValuesKeepPrevious(t *testing.T) {
	env := map[string]string{
		EnvUpdateInterval: "soon",
		EnvControlPort:    "high",
		EnvControlKey:     "0xNOTHEX",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	log := logger.NewBufferLogger()

	cfg := Default()
	cfg.ApplyEnv(lookup, log)

	if cfg.UpdateIntervalSecs != DefaultUpdateIntervalSecs {
		t.Errorf("UpdateIntervalSecs = %d, want default", cfg.UpdateIntervalSecs)
	}
	if cfg.ControlPort != DefaultControlPort {
		t.Errorf("ControlPort = %d, want default", cfg.ControlPort)
	}
	if cfg.ControlKey != DefaultControlKey {
		t.Errorf("ControlKey = %q, want default", cfg.ControlKey)
	}
	if n := log.Count(logger.LevelWarn); n != 3 {
		t.Errorf("warn count = %d, want 3", n)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0xDEADBEEF", 0xDEADBEEF, false},
		{"0Xdeadbeef", 0xDEADBEEF, false},
		{"3735928559", 0xDEADBEEF, false},
		{" 42 ", 42, false},
		{"0x1FFFFFFFF", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKey(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	if errors.GetCode(cfg.Validate()) != errors.CodeConfigInvalid {
		t.Error("expected invalid log level to fail validation")
	}

	cfg = Default()
	cfg.TLS = true
	cfg.TLSCert = "/only/cert"
	if cfg.Validate() == nil {
		t.Error("expected cert without key to fail validation")
	}
}
