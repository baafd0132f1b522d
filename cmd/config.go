package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rpistatus/host/internal/config"
	"github.com/rpistatus/host/internal/controller"
	"github.com/rpistatus/host/internal/logger"
	"github.com/rpistatus/host/internal/status"
)

// envLookup is the environment seen by every command. Tests replace it.
var envLookup config.LookupFunc = os.LookupEnv

// loadConfig reads the config file, applies the environment and validates
// the result. Flags are applied by the caller afterwards.
func loadConfig(path string, log logger.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(envLookup, log)
	return cfg, nil
}

// visited returns the names of the flags set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})
	return explicit
}

// snapshotFiles returns the configured snapshot file paths.
func snapshotFiles(cfg *config.Config) status.Files {
	return status.Files{
		CPU:     cfg.CPUFile,
		RAM:     cfg.RAMFile,
		Proc:    cfg.ProcFile,
		ExtTemp: cfg.ExtTempFile,
	}
}

// newController builds a controller client from cfg.
func newController(cfg *config.Config, log logger.Logger) (*controller.Client, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	return controller.NewClient(cfg.ControlHost, cfg.ControlPort, key, controller.Options{
		ConnectTimeout: cfg.ConnectTimeout(),
		CommandTimeout: cfg.CommandTimeout(),
		Log:            log,
	})
}

// controlFlags registers the controller overrides shared by ctl and doctor.
type controlFlags struct {
	host string
	port int
	key  string
}

func (c *controlFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.host, "control-host", "", "Controller host (default: from config)")
	fs.IntVar(&c.port, "control-port", 0, "Controller port (default: from config)")
	fs.StringVar(&c.key, "control-key", "", "Controller key, decimal or 0x hex (default: from config)")
}

func (c *controlFlags) apply(cfg *config.Config, explicit map[string]bool) {
	if explicit["control-host"] {
		cfg.ControlHost = c.host
	}
	if explicit["control-port"] {
		cfg.ControlPort = c.port
	}
	if explicit["control-key"] {
		cfg.ControlKey = c.key
	}
}

// stderrLogger logs command diagnostics to w at the configured level.
func stderrLogger(w io.Writer, prefix string, cfg *config.Config) logger.Logger {
	level := logger.LevelWarn
	if cfg != nil {
		level = cfg.Level()
	}
	return logger.New(w, prefix, level)
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}
