package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `rpistatus - status agent for a single-board computer

Usage:
  rpistatus <command> [options]

Commands:
  start                 Start the agent (HTTP API, controller bridge, terminal)
  snapshot              Parse the snapshot files once and print the result
  ctl ping              Ping the controller daemon
  ctl kill <pid>        Ask the controller to kill a process
  ctl shutdown          Ask the controller to power off the board
  ctl reboot            Ask the controller to reboot the board
  shell                 Open an interactive shell on a running agent
  doctor                Diagnose snapshot files, controller and host
  discover              Find agents advertised on the local network
  version               Print the version
Run 'rpistatus <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "start":
		return runStart(args[2:], stdout, stderr)
	case "snapshot":
		return runSnapshot(args[2:], stdout, stderr)
	case "ctl":
		return runCtl(args[2:], stdout, stderr)
	case "shell":
		return runShell(args[2:], stdout, stderr)
	case "doctor":
		return runDoctor(args[2:], stdout, stderr)
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "rpistatus %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
