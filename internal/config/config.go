// Package config provides TOML configuration file loading for the status agent.
// The configuration file lives at ~/.rpistatus/config.toml by default, but can be
// overridden with the --config flag. Environment variables override file values,
// and CLI flags override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rpistatus/host/internal/errors"
	"github.com/rpistatus/host/internal/logger"
)

// Config represents the agent configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the HTTP server.
	// Env: BIND_ADDRESS. Default: 127.0.0.1:3000
	Addr string `toml:"addr"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Env: LOG_LEVEL. Default: info
	LogLevel string `toml:"log_level"`

	// UpdateIntervalSecs is how often the snapshot files are re-read.
	// Env: UPDATE_INTERVAL_SECS. Default: 5
	UpdateIntervalSecs int `toml:"update_interval_secs"`

	// Snapshot files written by the monitor daemon.
	// Env: CPU_FILE, RAM_FILE, PROC_FILE, EXT_TEMP_FILE.
	// An empty ExtTempFile disables the external temperature section.
	CPUFile     string `toml:"cpu_file"`
	RAMFile     string `toml:"ram_file"`
	ProcFile    string `toml:"proc_file"`
	ExtTempFile string `toml:"ext_temp_file"`

	// ControlHost and ControlPort locate the controller daemon.
	// Env: CONTROL_HOST, CONTROL_PORT. Default: 127.0.0.1:31337
	ControlHost string `toml:"control_host"`
	ControlPort int    `toml:"control_port"`

	// ControlKey is the pre-shared key, decimal or 0x-prefixed hex.
	// Env: CONTROL_KEY. Default: 0xDEADBEEF
	ControlKey string `toml:"control_key"`

	// ConnectTimeoutMs bounds the controller TCP connect. Default: 2000
	ConnectTimeoutMs int `toml:"connect_timeout_ms"`

	// CommandTimeoutMs bounds each controller write and read. Default: 5000
	CommandTimeoutMs int `toml:"command_timeout_ms"`

	// ControlRateLimit is the sustained number of /control requests per
	// second; ControlRateBurst is how many may arrive at once.
	// Zero or negative disables limiting. Default: 5/s, burst 5
	ControlRateLimit float64 `toml:"control_rate_limit"`
	ControlRateBurst int     `toml:"control_rate_burst"`

	// TerminalEnabled serves /terminal/ws. Default: true
	TerminalEnabled bool `toml:"terminal_enabled"`

	// TerminalShell is the shell spawned per terminal session.
	// Default: /bin/sh (run as a login shell)
	TerminalShell string `toml:"terminal_shell"`

	// TerminalHangupOnDisconnect kills the shell when the WebSocket ends
	// instead of waiting for the shell to exit. Default: false
	TerminalHangupOnDisconnect bool `toml:"terminal_hangup_on_disconnect"`

	// TLS serves HTTPS/WSS with TLSCert and TLSKey, generating a
	// self-signed pair if they are missing. Default: false
	TLS     bool   `toml:"tls"`
	TLSCert string `toml:"tls_cert"`
	TLSKey  string `toml:"tls_key"`

	// MdnsEnabled advertises the agent as _rpistatus._tcp on the LAN.
	// MdnsName overrides the instance name (default: hostname).
	// Default: false
	MdnsEnabled bool   `toml:"mdns_enabled"`
	MdnsName    string `toml:"mdns_name"`
}

// Default returns a Config holding every default value.
func Default() *Config {
	return &Config{
		Addr:               DefaultAddr,
		LogLevel:           DefaultLogLevel,
		UpdateIntervalSecs: DefaultUpdateIntervalSecs,
		CPUFile:            DefaultCPUFile,
		RAMFile:            DefaultRAMFile,
		ProcFile:           DefaultProcFile,
		ExtTempFile:        DefaultExtTempFile,
		ControlHost:        DefaultControlHost,
		ControlPort:        DefaultControlPort,
		ControlKey:         DefaultControlKey,
		ConnectTimeoutMs:   DefaultConnectTimeoutMs,
		CommandTimeoutMs:   DefaultCommandTimeoutMs,
		ControlRateLimit:   DefaultControlRateLimit,
		ControlRateBurst:   DefaultControlRateBurst,
		TerminalEnabled:    true,
		TerminalShell:      DefaultTerminalShell,
	}
}

// DefaultConfigPath returns the default config file location: ~/.rpistatus/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rpistatus", "config.toml"), nil
}

// DefaultCertDir returns ~/.rpistatus/certs.
func DefaultCertDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rpistatus", "certs"), nil
}

// Load reads a TOML config file from the given path on top of the defaults.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.rpistatus/config.toml).
//     Returns the defaults without error if the default file doesn't exist.
//   - If path is specified, returns a "config.not_found" error if the file doesn't exist.
//   - Returns a "config.invalid" error if the file exists but cannot be parsed.
//
// Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrap(errors.CodeConfigNotFound,
			fmt.Sprintf("config file not found: %s", path), err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("unknown keys in %s: %s", path, strings.Join(keys, ", ")))
	}

	return cfg, nil
}

// LookupFunc returns an environment value and whether it was set.
// os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from the environment. A value that does not parse
// is logged and ignored, leaving the previous value in place.
func (c *Config) ApplyEnv(lookup LookupFunc, log logger.Logger) {
	if log == nil {
		log = logger.Noop()
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			log.Warn("Ignoring %s=%q: not an integer", key, v)
			return
		}
		*dst = n
	}

	str(EnvBindAddress, &c.Addr)
	num(EnvUpdateInterval, &c.UpdateIntervalSecs)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvCPUFile, &c.CPUFile)
	str(EnvRAMFile, &c.RAMFile)
	str(EnvProcFile, &c.ProcFile)
	str(EnvExtTempFile, &c.ExtTempFile)
	str(EnvControlHost, &c.ControlHost)
	num(EnvControlPort, &c.ControlPort)

	if v, ok := lookup(EnvControlKey); ok {
		if _, err := ParseKey(v); err != nil {
			log.Warn("Ignoring %s: %v", EnvControlKey, err)
		} else {
			c.ControlKey = v
		}
	}
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	if _, err := ParseKey(c.ControlKey); err != nil {
		return errors.Wrap(errors.CodeConfigInvalid, "invalid control_key", err)
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel))
	}
	if c.Addr == "" {
		return errors.New(errors.CodeConfigInvalid, "addr must not be empty")
	}
	if c.TLS && (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New(errors.CodeConfigInvalid, "tls_cert and tls_key must be set together")
	}
	return nil
}

// ParseKey parses a controller key written in decimal or 0x-prefixed hex.
func ParseKey(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		s, base = rest, 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("key %q is not a 32-bit decimal or 0x hex value", s)
	}
	return uint32(v), nil
}

// Key returns the parsed controller key.
func (c *Config) Key() (uint32, error) {
	return ParseKey(c.ControlKey)
}

// Level returns the parsed log level, info if it does not parse.
func (c *Config) Level() logger.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// UpdateInterval returns the poll interval. Non-positive values are left
// for the poller to replace with its default.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSecs) * time.Second
}

// ConnectTimeout returns the controller connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// CommandTimeout returns the controller command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}
