package main

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rpistatus/host/internal/config"
	"github.com/rpistatus/host/internal/logger"
	"github.com/rpistatus/host/internal/mdns"
	"github.com/rpistatus/host/internal/pty"
	"github.com/rpistatus/host/internal/server"
	"github.com/rpistatus/host/internal/status"
	agenttls "github.com/rpistatus/host/internal/tls"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// initialPingTimeout bounds the startup controller ping.
const initialPingTimeout = 3 * time.Second

// StartFlags holds the command-line overrides for "rpistatus start".
type StartFlags struct {
	Config         string
	Addr           string
	LogLevel       string
	UpdateInterval int
	TLS            bool
	TLSCert        string
	TLSKey         string
	Mdns           bool
	MdnsName       string
	NoTerminal     bool
	Shell          string
	Hangup         bool
	controlFlags
}

// apply copies explicitly set flags over cfg.
func (f *StartFlags) apply(cfg *config.Config, explicit map[string]bool) {
	if explicit["addr"] {
		cfg.Addr = f.Addr
	}
	if explicit["log-level"] {
		cfg.LogLevel = f.LogLevel
	}
	if explicit["update-interval"] {
		cfg.UpdateIntervalSecs = f.UpdateInterval
	}
	if explicit["tls"] {
		cfg.TLS = f.TLS
	}
	if explicit["tls-cert"] {
		cfg.TLSCert = f.TLSCert
	}
	if explicit["tls-key"] {
		cfg.TLSKey = f.TLSKey
	}
	if explicit["mdns"] {
		cfg.MdnsEnabled = f.Mdns
	}
	if explicit["mdns-name"] {
		cfg.MdnsName = f.MdnsName
	}
	if explicit["no-terminal"] {
		cfg.TerminalEnabled = !f.NoTerminal
	}
	if explicit["shell"] {
		cfg.TerminalShell = f.Shell
	}
	if explicit["hangup-on-disconnect"] {
		cfg.TerminalHangupOnDisconnect = f.Hangup
	}
	f.controlFlags.apply(cfg, explicit)
}

// signalChannel delivers the signals that stop the agent. Tests replace it.
var signalChannel = func() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// runStart implements "rpistatus start".
//
// Startup order: controller client (address errors are fatal), initial
// ping (failure only warns), poller, HTTP server, optional mDNS. On SIGINT
// or SIGTERM the poller stops and the server shuts down gracefully.
func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &StartFlags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file (default: ~/.rpistatus/config.toml)")
	fs.StringVar(&f.Addr, "addr", "", "HTTP listen address (default: 127.0.0.1:3000)")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	fs.IntVar(&f.UpdateInterval, "update-interval", 0, "Seconds between snapshot file reads (default: 5)")
	fs.BoolVar(&f.TLS, "tls", false, "Serve HTTPS/WSS with a self-signed certificate")
	fs.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate path (default: ~/.rpistatus/certs/agent.crt)")
	fs.StringVar(&f.TLSKey, "tls-key", "", "TLS key path (default: ~/.rpistatus/certs/agent.key)")
	fs.BoolVar(&f.Mdns, "mdns", false, "Advertise the agent on the LAN via mDNS")
	fs.StringVar(&f.MdnsName, "mdns-name", "", "mDNS instance name (default: hostname)")
	fs.BoolVar(&f.NoTerminal, "no-terminal", false, "Disable the /terminal/ws shell endpoint")
	fs.StringVar(&f.Shell, "shell", "", "Shell spawned for terminal sessions (default: /bin/sh)")
	fs.BoolVar(&f.Hangup, "hangup-on-disconnect", false, "Kill the shell when its WebSocket closes")
	f.controlFlags.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rpistatus start [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// Config file, then environment, then flags.
	cfg, err := loadConfig(f.Config, logger.New(stderr, "[config]", logger.LevelWarn))
	if err != nil {
		printError(stderr, err)
		return 1
	}
	f.apply(cfg, visited(fs))
	if err := cfg.Validate(); err != nil {
		printError(stderr, err)
		return 1
	}

	sigCh, stopSignals := signalChannel()
	defer stopSignals()

	log.SetOutput(stderr)
	logger.SetLevel(cfg.Level())
	mainLog := logger.Std("[agent]")

	ctl, err := newController(cfg, logger.Std("[controller]"))
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer ctl.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), initialPingTimeout)
	if err := ctl.Ping(pingCtx); err != nil {
		mainLog.Warn("Initial controller ping to %s failed: %v", ctl.Addr(), err)
	} else {
		mainLog.Info("Controller at %s is reachable", ctl.Addr())
	}
	cancel()

	poller := status.NewPoller(status.PollerConfig{
		Files:    snapshotFiles(cfg),
		Interval: cfg.UpdateInterval(),
		Log:      logger.Std("[status]"),
	})
	poller.Start()
	defer poller.Stop()

	srvCfg := server.Config{
		Addr:         cfg.Addr,
		Status:       poller.Store(),
		Controller:   ctl,
		ControlRate:  cfg.ControlRateLimit,
		ControlBurst: cfg.ControlRateBurst,
		Version:      Version,
		Log:          logger.Std("[server]"),
	}
	if cfg.TerminalEnabled {
		srvCfg.Terminal = pty.NewBridge(pty.BridgeConfig{
			Shell:              cfg.TerminalShell,
			Args:               []string{"-l"},
			HangupOnDisconnect: cfg.TerminalHangupOnDisconnect,
			Log:                logger.Std("[pty]"),
		})
	}

	var (
		tlsConfig   *cryptotls.Config
		fingerprint string
	)
	if cfg.TLS {
		info, err := ensureCertificate(cfg)
		if err != nil {
			printError(stderr, err)
			return 1
		}
		if info.Generated {
			mainLog.Info("Generated TLS certificate %s", info.CertPath)
		}
		if info.ExpiresWithin(certExpiryWarning) {
			mainLog.Warn("TLS certificate %s expires %s", info.CertPath, info.NotAfter.Format(time.RFC3339))
		}
		tlsConfig, err = agenttls.ServerConfig(info.CertPath, info.KeyPath)
		if err != nil {
			printError(stderr, err)
			return 1
		}
		fingerprint = info.Fingerprint
	}

	srv := server.New(srvCfg)
	if err := <-srv.StartAsync(tlsConfig); err != nil {
		printError(stderr, err)
		return 1
	}

	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
	}
	fmt.Fprintf(stdout, "rpistatus %s serving on %s://%s\n", Version, scheme, srv.Addr())

	var advertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		advertiser = startAdvertiser(cfg, srv.Addr(), fingerprint, mainLog)
	}

	sig := <-sigCh
	fmt.Fprintf(stdout, "\nReceived signal %v, stopping...\n", sig)

	// Cleanup in reverse order of creation.
	if advertiser != nil {
		advertiser.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		mainLog.Warn("Server shutdown: %v", err)
	}
	poller.Stop()
	return 0
}

// certConfig locates the certificate pair: the configured paths, or the
// default directory when none are set.
func certConfig(cfg *config.Config) (agenttls.CertConfig, error) {
	certCfg := agenttls.CertConfig{CertPath: cfg.TLSCert, KeyPath: cfg.TLSKey}
	if certCfg.CertPath == "" || certCfg.KeyPath == "" {
		dir, err := config.DefaultCertDir()
		if err != nil {
			return certCfg, err
		}
		certCfg.Dir = dir
	}
	return certCfg, nil
}

// ensureCertificate loads or generates the configured certificate.
func ensureCertificate(cfg *config.Config) (*agenttls.CertInfo, error) {
	certCfg, err := certConfig(cfg)
	if err != nil {
		return nil, err
	}
	return agenttls.Ensure(certCfg)
}

// startAdvertiser registers the agent on the LAN. Failures only warn.
func startAdvertiser(cfg *config.Config, addr, fingerprint string, log logger.Logger) *mdns.Advertiser {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Warn("mDNS disabled: %v", err)
		return nil
	}
	port, _ := strconv.Atoi(portStr)

	adv := mdns.NewAdvertiser(mdns.Config{
		Port:        port,
		Name:        cfg.MdnsName,
		TLS:         cfg.TLS,
		Fingerprint: fingerprint,
		Terminal:    cfg.TerminalEnabled,
	})
	if err := adv.Start(); err != nil {
		log.Warn("mDNS advertisement failed: %v", err)
		return nil
	}
	log.Info("Advertising %s on port %d", mdns.ServiceType, port)
	return adv
}
