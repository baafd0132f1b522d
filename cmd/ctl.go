package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/rpistatus/host/internal/controller"
	coded "github.com/rpistatus/host/internal/errors"
)

const ctlUsage = `Usage: rpistatus ctl <command> [options]

Commands:
  ping          Check that the controller answers
  kill <pid>    Kill a process
  shutdown      Power off the board
  reboot        Reboot the board

Options:
  --config <path>         Config file (default: ~/.rpistatus/config.toml)
  --control-host <host>   Controller host override
  --control-port <port>   Controller port override
  --control-key <key>     Controller key override
`

// runCtl implements "rpistatus ctl": one controller command over a fresh
// connection. Rejections print the controller's response code.
func runCtl(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stdout, ctlUsage)
		return 1
	}

	name := args[0]
	switch name {
	case "ping", "kill", "shutdown", "reboot":
	case "--help", "-h", "help":
		fmt.Fprint(stdout, ctlUsage)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown ctl command: %s\n", name)
		fmt.Fprint(stdout, ctlUsage)
		return 1
	}

	fs := flag.NewFlagSet("ctl "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	var cf controlFlags
	cf.register(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	var pid uint32
	if name == "kill" {
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "Usage: rpistatus ctl kill <pid>")
			return 1
		}
		n, err := strconv.ParseUint(fs.Arg(0), 10, 32)
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid pid: %s\n", fs.Arg(0))
			return 1
		}
		pid = uint32(n)
	}

	cfg, err := loadConfig(*configPath, stderrLogger(stderr, "[config]", nil))
	if err != nil {
		printError(stderr, err)
		return 1
	}
	cf.apply(cfg, visited(fs))

	client, err := newController(cfg, stderrLogger(stderr, "[controller]", cfg))
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer client.Close()

	ctx := context.Background()
	switch name {
	case "ping":
		err = client.Ping(ctx)
	case "kill":
		err = client.KillProcess(ctx, pid)
	case "shutdown":
		err = client.Shutdown(ctx)
	case "reboot":
		err = client.Reboot(ctx)
	}

	if err != nil {
		if rc, ok := controller.RejectedCode(err); ok {
			fmt.Fprintf(stderr, "Error: controller rejected %s: %s (code %d)\n",
				name, controller.ResponseCode(rc), rc)
		} else {
			fmt.Fprintf(stderr, "Error: [%s] %s\n", coded.GetCode(err), coded.GetMessage(err))
		}
		return 1
	}

	fmt.Fprintf(stdout, "%s: ok\n", name)
	return 0
}
