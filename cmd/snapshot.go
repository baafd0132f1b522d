package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/rpistatus/host/internal/status"
)

// runSnapshot implements "rpistatus snapshot": one parse of the configured
// files, printed as JSON or YAML. Parse diagnostics go to stderr.
func runSnapshot(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.rpistatus/config.toml)")
	format := fs.String("format", "json", "Output format: json or yaml")
	section := fs.String("section", "", "Print one section: cpu, memory, processes or ext_temp")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rpistatus snapshot [options]\n\nParse the snapshot files once and print the result.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(*configPath, stderrLogger(stderr, "[config]", nil))
	if err != nil {
		printError(stderr, err)
		return 1
	}

	parser := status.NewParser(stderrLogger(stderr, "[status]", cfg))
	st := parser.ReadStatus(snapshotFiles(cfg))

	var out interface{}
	switch *section {
	case "":
		out = st
	case "cpu":
		out = st.CPU
	case "memory":
		out = st.Memory
	case "processes":
		out = st.Processes
	case "ext_temp":
		out = st.ExternalTemperature
	default:
		fmt.Fprintf(stderr, "Error: unknown section %q\n", *section)
		return 1
	}

	if err := writeFormatted(stdout, *format, out); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

// writeFormatted encodes v as indented JSON or as YAML.
func writeFormatted(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
