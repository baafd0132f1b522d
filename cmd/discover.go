package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rpistatus/host/internal/mdns"
)

// discoverAgents browses the LAN. Tests replace it.
var discoverAgents = mdns.Discover

// DiscoveredAgentJSON is one entry of `rpistatus discover --json`.
type DiscoveredAgentJSON struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Version     string `json:"version,omitempty"`
	TLS         bool   `json:"tls"`
	Terminal    bool   `json:"terminal"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rpistatus discover [options]\n\nFind agents advertised on the local network.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	agents, err := discoverAgents(ctx)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	if *jsonOutput {
		out := make([]DiscoveredAgentJSON, 0, len(agents))
		for _, a := range agents {
			out = append(out, DiscoveredAgentJSON{
				Name:        a.Name,
				URL:         a.URL(),
				Version:     a.Version,
				TLS:         a.TLS,
				Terminal:    a.Terminal,
				Fingerprint: a.Fingerprint,
			})
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			printError(stderr, err)
			return 1
		}
		return 0
	}

	if len(agents) == 0 {
		fmt.Fprintln(stdout, "No agents found.")
		return 0
	}
	for _, a := range agents {
		extra := ""
		if a.Terminal {
			extra = " (terminal)"
		}
		fmt.Fprintf(stdout, "%-24s %s%s\n", a.Name, a.URL(), extra)
	}
	return 0
}
