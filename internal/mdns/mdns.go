// Package mdns advertises the status agent on the local network with
// DNS-SD and finds other agents.
//
// The advertisement uses service type _rpistatus._tcp. TXT records carry
// the protocol version, the instance name, whether the server speaks TLS,
// the certificate fingerprint when it does, and whether the terminal
// endpoint is enabled.
package mdns

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type for status agents.
const ServiceType = "_rpistatus._tcp"

// Domain is the DNS-SD browse and register domain.
const Domain = "local."

// ProtocolVersion identifies the HTTP API generation in TXT records.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the HTTP server port to advertise.
	Port int

	// Name is the instance name. Defaults to the system hostname.
	Name string

	// TLS reports that the server is HTTPS/WSS.
	TLS bool

	// Fingerprint is the TLS certificate fingerprint, if TLS is on.
	Fingerprint string

	// Terminal reports that /terminal/ws is served.
	Terminal bool
}

// Advertiser manages one DNS-SD registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// instanceName returns the configured or host name.
func (a *Advertiser) instanceName() string {
	if a.config.Name != "" {
		return a.config.Name
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "rpistatus"
}

// TXTRecords returns the TXT strings that Start registers.
func (a *Advertiser) TXTRecords() []string {
	txt := []string{
		"version=" + ProtocolVersion,
		"name=" + a.instanceName(),
		"tls=" + boolFlag(a.config.TLS),
		"terminal=" + boolFlag(a.config.Terminal),
	}
	// SHA-256 fingerprints are 95 chars, inside the 255-byte TXT limit.
	if a.config.TLS && a.config.Fingerprint != "" {
		txt = append(txt, "fp="+a.config.Fingerprint)
	}
	return txt
}

// Start registers the service. Calling Start while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}
	if a.config.Port <= 0 {
		return fmt.Errorf("mdns register: invalid port %d", a.config.Port)
	}

	server, err := zeroconf.Register(
		a.instanceName(),
		ServiceType,
		Domain,
		a.config.Port,
		a.TXTRecords(),
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop unregisters the service. It is safe to call Stop multiple times or
// on an advertiser that was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// DiscoveredAgent is one agent found by Discover.
type DiscoveredAgent struct {
	Name        string
	Host        string
	Port        int
	Version     string
	TLS         bool
	Terminal    bool
	Fingerprint string
}

// URL returns the agent's base URL.
func (d DiscoveredAgent) URL() string {
	scheme := "http"
	if d.TLS {
		scheme = "https"
	}
	host := d.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, d.Port)
}

// Discover browses for agents until ctx is done and returns what it found.
func Discover(ctx context.Context) ([]DiscoveredAgent, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var agents []DiscoveredAgent
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return agents, nil
			}
			agents = append(agents, fromEntry(entry))
		case <-ctx.Done():
			return agents, nil
		}
	}
}

// fromEntry converts a resolved service entry, preferring IPv4.
func fromEntry(entry *zeroconf.ServiceEntry) DiscoveredAgent {
	agent := DiscoveredAgent{Name: entry.Instance, Port: entry.Port}

	if len(entry.AddrIPv4) > 0 {
		agent.Host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		agent.Host = entry.AddrIPv6[0].String()
	} else {
		agent.Host = strings.TrimSuffix(entry.HostName, ".")
	}

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			agent.Version = value
		case "name":
			agent.Name = value
		case "tls":
			agent.TLS = value == "1"
		case "terminal":
			agent.Terminal = value == "1"
		case "fp":
			agent.Fingerprint = value
		}
	}
	return agent
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
