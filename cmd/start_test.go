package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rpistatus/host/internal/config"
	"github.com/rpistatus/host/internal/logger"
	"github.com/rpistatus/host/internal/server"
	"github.com/rpistatus/host/internal/status"
)

var servingRe = regexp.MustCompile(`serving on (https?)://(\S+)`)

// startAgent runs "rpistatus start" in the background with a controllable
// signal channel. It returns the base URL, a function that stops the agent
// and returns its exit code, and the captured stderr.
func startAgent(t *testing.T, cfgBody string, args ...string) (string, func() int, *syncBuffer) {
	t.Helper()

	sigCh := make(chan os.Signal, 1)
	origSignals := signalChannel
	signalChannel = func() (<-chan os.Signal, func()) { return sigCh, func() {} }
	t.Cleanup(func() {
		signalChannel = origSignals
		log.SetOutput(os.Stderr)
		logger.SetLevel(logger.LevelInfo)
	})

	path := writeConfig(t, cfgBody)
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	done := make(chan int, 1)
	go func() {
		done <- runStart(append([]string{"--config", path, "--addr", "127.0.0.1:0"}, args...), stdout, stderr)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m := servingRe.FindStringSubmatch(stdout.String()); m != nil {
			stop := func() int {
				sigCh <- syscall.SIGTERM
				select {
				case code := <-done:
					return code
				case <-time.After(10 * time.Second):
					t.Fatal("agent did not stop")
					return -1
				}
			}
			return m[1] + "://" + m[2], stop, stderr
		}
		select {
		case code := <-done:
			t.Fatalf("agent exited early with %d\nstderr: %s", code, stderr.String())
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("agent did not start\nstdout: %s\nstderr: %s", stdout.String(), stderr.String())
	return "", nil, nil
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: decode: %v", url, err)
	}
}

func TestStartServesSnapshotAndStops(t *testing.T) {
	withEnv(t, nil)
	fc := newFakeController(t, 0)
	base, stop, stderr := startAgent(t, writeSnapshotFiles(t)+fc.controllerConfig())

	// The first poll runs in the background; wait for it to publish.
	var health server.HealthResponse
	for i := 0; i < 100; i++ {
		getJSON(t, base+"/health", &health)
		if health.SnapshotVersion > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if health.Status != "ok" || !health.TerminalEnabled || health.TLSEnabled {
		t.Errorf("health = %+v", health)
	}
	if health.ControllerConnected == nil || !*health.ControllerConnected {
		t.Errorf("controller not connected after the initial ping: %+v", health)
	}

	var mem status.MemoryInfo
	getJSON(t, base+"/memory", &mem)
	if mem.Total == nil || *mem.Total != 1000 {
		t.Errorf("memory = %+v", mem)
	}

	resp, err := http.Post(base+"/control/process/kill", "application/json", strings.NewReader(`{"pid": 42}`))
	if err != nil {
		t.Fatalf("kill: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("kill status = %d", resp.StatusCode)
	}
	frames := fc.received()
	if len(frames) != 2 || frames[0][0] != 1 || frames[1][0] != 2 || frames[1][1] != 42 {
		t.Errorf("frames = %v, want ping then kill 42", frames)
	}

	if code := stop(); code != 0 {
		t.Errorf("exit code = %d\nstderr: %s", code, stderr.String())
	}
}

func TestStartControllerDownOnlyWarns(t *testing.T) {
	withEnv(t, nil)
	cfg := writeSnapshotFiles(t) + fmt.Sprintf("control_port = %d\nconnect_timeout_ms = 200\n", unusedPort(t))
	base, stop, stderr := startAgent(t, cfg, "--no-terminal")

	if !strings.Contains(stderr.String(), "Initial controller ping") {
		t.Errorf("missing ping warning in stderr: %s", stderr.String())
	}

	resp, err := http.Post(base+"/control/ping", "application/json", nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ping status = %d, want 503", resp.StatusCode)
	}

	var health server.HealthResponse
	getJSON(t, base+"/health", &health)
	if health.TerminalEnabled {
		t.Errorf("terminal enabled despite --no-terminal")
	}

	if code := stop(); code != 0 {
		t.Errorf("exit code = %d", code)
	}
}

func TestStartWithTLS(t *testing.T) {
	withEnv(t, nil)
	fc := newFakeController(t, 0)
	base, stop, _ := startAgent(t, writeSnapshotFiles(t)+fc.controllerConfig(), "--tls")

	if !strings.HasPrefix(base, "https://") {
		t.Fatalf("base = %s, want https", base)
	}
	certPath := os.Getenv("HOME") + "/.rpistatus/certs/agent.crt"
	if _, err := os.Stat(certPath); err != nil {
		t.Errorf("certificate not generated: %v", err)
	}

	if code := stop(); code != 0 {
		t.Errorf("exit code = %d", code)
	}
}

func TestStartFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  string
		args []string
		want string
	}{
		{"bad control port", "control_port = 0\n", nil, "controller.address_resolution"},
		{"bad control key", "control_key = \"nope\"\n", nil, "invalid control_key"},
		{"bad log level", "", []string{"--log-level", "loud"}, "invalid log_level"},
		{"unknown config key", "color = true\n", nil, "unknown keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, nil)
			t.Cleanup(func() { log.SetOutput(os.Stderr) })
			path := writeConfig(t, tt.cfg)

			code, _, stderr := runCLI(append([]string{"start", "--config", path, "--addr", "127.0.0.1:0"}, tt.args...)...)
			if code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr = %q, want %q", stderr, tt.want)
			}
		})
	}
}

func TestStartPortInUse(t *testing.T) {
	withEnv(t, nil)
	fc := newFakeController(t, 0)
	cfgBody := writeSnapshotFiles(t) + fc.controllerConfig()
	base, stop, _ := startAgent(t, cfgBody)
	defer stop()

	addr := strings.TrimPrefix(base, "http://")
	path := writeConfig(t, cfgBody)
	code, _, stderr := runCLI("start", "--config", path, "--addr", addr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "address already in use") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestStartFlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	f := &StartFlags{Addr: "0.0.0.0:9", UpdateInterval: 7, NoTerminal: true, Hangup: true}
	f.apply(cfg, map[string]bool{"addr": true, "update-interval": true, "no-terminal": true, "hangup-on-disconnect": true})

	if cfg.Addr != "0.0.0.0:9" || cfg.UpdateIntervalSecs != 7 {
		t.Errorf("addr/interval not applied: %+v", cfg)
	}
	if cfg.TerminalEnabled || !cfg.TerminalHangupOnDisconnect {
		t.Errorf("terminal flags not applied: %+v", cfg)
	}

	// Unset flags leave the config alone.
	g := &StartFlags{LogLevel: "debug"}
	g.apply(cfg, map[string]bool{})
	if cfg.LogLevel != "info" {
		t.Errorf("log level changed without the flag: %q", cfg.LogLevel)
	}
}
