package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// syncBuffer is a bytes.Buffer safe for a writer and a reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// withEnv replaces the command environment for the duration of the test.
// HOME points at an empty directory so no user config is picked up.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	orig := envLookup
	t.Cleanup(func() { envLookup = orig })
	envLookup = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// writeConfig writes a config file in a temp dir and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// writeSnapshotFiles writes a full set of snapshot files and returns a
// config body pointing at them.
func writeSnapshotFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"cpu":      "CPU temp: 51234\nFull CPU:\nUser norm: 100\nIdle: 900\nCore 0:\nUser norm: 60\n",
		"ram":      "Ram total: 1000 kB\nRam free: 250 kB\nRam available: 600 kB\n",
		"proc":     "Proc: 42 sshd\nState: S (sleeping)\nThreads: 1\n",
		"ext_temp": "Temp: 21.5\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fmt.Sprintf("cpu_file = %q\nram_file = %q\nproc_file = %q\next_temp_file = %q\n",
		filepath.Join(dir, "cpu"), filepath.Join(dir, "ram"),
		filepath.Join(dir, "proc"), filepath.Join(dir, "ext_temp"))
}

// fakeController accepts controller connections, checks nothing and
// answers every frame with reply.
type fakeController struct {
	ln    net.Listener
	reply byte

	mu     sync.Mutex
	frames [][]byte
}

func newFakeController(t *testing.T, reply byte) *fakeController {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fc := &fakeController{ln: ln, reply: reply}
	t.Cleanup(func() { ln.Close() })
	go fc.serve()
	return fc
}

func (fc *fakeController) serve() {
	for {
		conn, err := fc.ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			defer c.Close()
			key := make([]byte, 4)
			if _, err := io.ReadFull(c, key); err != nil {
				return
			}
			for {
				frame := make([]byte, 8)
				if _, err := io.ReadFull(c, frame); err != nil {
					return
				}
				fc.mu.Lock()
				fc.frames = append(fc.frames, frame)
				fc.mu.Unlock()
				if _, err := c.Write([]byte{fc.reply}); err != nil {
					return
				}
			}
		}(conn)
	}
}

func (fc *fakeController) received() [][]byte {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([][]byte(nil), fc.frames...)
}

func (fc *fakeController) port() int {
	return fc.ln.Addr().(*net.TCPAddr).Port
}

// controllerConfig returns config lines pointing at fc.
func (fc *fakeController) controllerConfig() string {
	return fmt.Sprintf("control_host = \"127.0.0.1\"\ncontrol_port = %d\nconnect_timeout_ms = 500\ncommand_timeout_ms = 500\n", fc.port())
}

// unusedPort returns a local port with nothing listening on it.
func unusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}
