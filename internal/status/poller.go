package status

import (
	"sync"
	"time"

	"github.com/rpistatus/host/internal/logger"
)

// DefaultPollInterval is used when PollerConfig.Interval is not positive.
const DefaultPollInterval = 5 * time.Second

// PollerConfig holds configuration for the status poller.
type PollerConfig struct {
	// Files are the snapshot files to parse each cycle.
	Files Files

	// Interval is how often to re-read the files.
	Interval time.Duration

	// Store receives each new snapshot.
	Store *Store

	// Parser parses the files. If nil, a parser logging to Log is used.
	Parser *Parser

	// Log receives lifecycle messages. If nil, messages are discarded.
	Log logger.Logger
}

// Poller re-reads the snapshot files on a timer and publishes each result
// to its Store.
type Poller struct {
	config   PollerConfig
	parser   *Parser
	log      logger.Logger
	stopCh   chan struct{} // Signals the polling loop to stop.
	doneCh   chan struct{} // Closes when the polling loop exits.
	mu       sync.Mutex    // Guards lifecycle state.
	running  bool          // True while a pollLoop goroutine is active.
	stopping bool          // True while Stop is waiting for pollLoop to exit.
}

// NewPoller creates a new status poller with the given configuration.
func NewPoller(config PollerConfig) *Poller {
	log := config.Log
	if log == nil {
		log = logger.Noop()
	}
	parser := config.Parser
	if parser == nil {
		parser = NewParser(log)
	}
	if config.Store == nil {
		config.Store = NewStore()
	}
	return &Poller{
		config: config,
		parser: parser,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Store returns the store this poller publishes to.
func (p *Poller) Store() *Store {
	return p.config.Store
}

// Start begins polling in a goroutine. The first poll happens immediately.
// Start is safe to call after Stop - the poller will restart with fresh channels.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running || p.stopping {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.pollLoop(stopCh, doneCh)
}

// Stop halts the polling loop and waits for it to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running || p.stopping {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh

	p.mu.Lock()
	p.running = false
	p.stopping = false
	p.mu.Unlock()
}

// Done returns a channel that closes when the poller has stopped.
// The channel is recreated on each Start().
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

func (p *Poller) pollLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	p.PollOnce()

	interval := p.config.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce parses the files once, publishes the result and returns it.
func (p *Poller) PollOnce() SystemStatus {
	p.log.Info("Updating system status from files...")
	st := p.parser.ReadStatus(p.config.Files)
	p.config.Store.Replace(st)
	p.log.Info("System status update complete.")
	return st
}
