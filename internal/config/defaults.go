package config

// Defaults for every Config field.
const (
	DefaultAddr               = "127.0.0.1:3000"
	DefaultLogLevel           = "info"
	DefaultUpdateIntervalSecs = 5

	DefaultCPUFile     = "/tmp/cpu"
	DefaultRAMFile     = "/tmp/ram"
	DefaultProcFile    = "/tmp/proc"
	DefaultExtTempFile = "/tmp/ext_temp"

	DefaultControlHost      = "127.0.0.1"
	DefaultControlPort      = 31337
	DefaultControlKey       = "0xDEADBEEF"
	DefaultConnectTimeoutMs = 2000
	DefaultCommandTimeoutMs = 5000

	DefaultControlRateLimit = 5.0
	DefaultControlRateBurst = 5

	DefaultTerminalShell = "/bin/sh"
)

// Environment variables read by ApplyEnv.
const (
	EnvBindAddress    = "BIND_ADDRESS"
	EnvUpdateInterval = "UPDATE_INTERVAL_SECS"
	EnvLogLevel       = "LOG_LEVEL"
	EnvCPUFile        = "CPU_FILE"
	EnvRAMFile        = "RAM_FILE"
	EnvProcFile       = "PROC_FILE"
	EnvExtTempFile    = "EXT_TEMP_FILE"
	EnvControlHost    = "CONTROL_HOST"
	EnvControlPort    = "CONTROL_PORT"
	EnvControlKey     = "CONTROL_KEY"
)
