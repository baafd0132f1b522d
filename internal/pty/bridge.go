// Package pty runs interactive shells on pseudo-terminals and relays their
// bytes to a message stream such as a WebSocket connection.
package pty

import (
	"io"
	"os"
	"os/exec"
	"os/user"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rpistatus/host/internal/errors"
	"github.com/rpistatus/host/internal/logger"
)

// Defaults for BridgeConfig zero values.
const (
	DefaultShell     = "/bin/sh"
	DefaultRows      = 24
	DefaultCols      = 80
	DefaultQueueSize = 32
	DefaultReadSize  = 4096
)

// Stream is the network side of a session. *websocket.Conn satisfies it.
// Message types use the websocket package constants.
type Stream interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// BridgeConfig configures every session a Bridge starts.
type BridgeConfig struct {
	// Shell and Args form the command spawned on the terminal.
	// Defaults to "/bin/sh -l".
	Shell string
	Args  []string

	// Rows and Cols set the terminal geometry. Default 24x80.
	Rows uint16
	Cols uint16

	// Dir is the shell's working directory. Empty means the current
	// user's home directory, or "/" if that cannot be resolved.
	Dir string

	// QueueSize bounds how many terminal reads may wait for the network
	// side. A full queue stops the reader until the forwarder catches up.
	QueueSize int

	// ReadSize is the largest chunk read from the terminal at once.
	ReadSize int

	// HangupOnDisconnect closes the terminal and kills the shell as soon as
	// the network side ends. When false the session ends only after the
	// shell's output reaches end of file.
	HangupOnDisconnect bool

	Log logger.Logger
}

// Bridge starts independent terminal sessions for incoming streams.
// It is safe for concurrent use; sessions share nothing but the counter.
type Bridge struct {
	cfg    BridgeConfig
	log    logger.Logger
	active atomic.Int64
	total  atomic.Uint64
}

// NewBridge creates a Bridge, filling defaults for zero config values.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
		if cfg.Args == nil {
			cfg.Args = []string{"-l"}
		}
	}
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	log := cfg.Log
	if log == nil {
		log = logger.Noop()
	}
	return &Bridge{cfg: cfg, log: log}
}

// Active returns the number of sessions currently running.
func (b *Bridge) Active() int {
	return int(b.active.Load())
}

// Total returns the number of sessions started so far.
func (b *Bridge) Total() uint64 {
	return b.total.Load()
}

// Run spawns a shell for stream and relays bytes until the session ends.
// It blocks for the whole session. A spawn failure returns a
// "session.spawn_failed" error before anything is read from stream.
func (b *Bridge) Run(stream Stream) error {
	s, err := b.spawn()
	if err != nil {
		b.log.Error("PTY bridge: spawn failed: %v", err)
		return err
	}

	b.active.Add(1)
	b.total.Add(1)
	defer b.active.Add(-1)

	s.relay(stream)
	return nil
}

// session is one shell on one terminal bound to one stream.
type session struct {
	id   string
	cfg  *BridgeConfig
	log  logger.Logger
	cmd  *exec.Cmd
	ptmx *os.File

	exited chan struct{} // closed once cmd.Wait returns
}

func (b *Bridge) spawn() (*session, error) {
	dir := b.cfg.Dir
	if dir == "" {
		dir = homeDir(b.log)
	}

	cmd := exec.Command(b.cfg.Shell, b.cfg.Args...)
	cmd.Dir = dir

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: b.cfg.Rows, Cols: b.cfg.Cols})
	if err != nil {
		return nil, errors.SpawnFailed("start "+b.cfg.Shell+" on a terminal", err)
	}

	s := &session{
		id:     uuid.New().String(),
		cfg:    &b.cfg,
		log:    b.log,
		cmd:    cmd,
		ptmx:   ptmx,
		exited: make(chan struct{}),
	}

	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	b.log.Info("PTY bridge: session %s spawned %s %v in %s", s.id, b.cfg.Shell, b.cfg.Args, dir)
	return s, nil
}

// homeDir returns the current user's home directory, or "/".
func homeDir(log logger.Logger) string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	log.Warn("PTY: home directory not found; using / as cwd")
	return "/"
}

// relay runs the three session flows and returns when the network side has
// ended and the forwarder has finished.
func (s *session) relay(stream Stream) {
	queue := make(chan []byte, s.cfg.QueueSize)
	quit := make(chan struct{}) // closed when the forwarder stops sending
	var quitOnce sync.Once
	stopForwarding := func() { quitOnce.Do(func() { close(quit) }) }

	go s.readTerminal(queue, quit)

	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		defer stopForwarding()
		s.forward(stream, queue)
	}()

	s.readStream(stream)

	if s.cfg.HangupOnDisconnect {
		s.hangup()
	}

	<-forwarderDone
	s.close()
	s.log.Info("PTY bridge: session %s finished", s.id)
}

// readTerminal reads the terminal until end of file and hands each chunk
// to the forwarder. Once quit is closed chunks are dropped, but reading
// continues so the shell never blocks on a full terminal.
func (s *session) readTerminal(queue chan<- []byte, quit <-chan struct{}) {
	defer close(queue)

	for {
		buf := make([]byte, s.cfg.ReadSize)
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			select {
			case queue <- buf[:n]:
			case <-quit:
			}
		}
		if err != nil {
			if err == io.EOF {
				s.log.Info("PTY: EOF")
			} else {
				// Linux reports EIO once the shell has exited.
				s.log.Debug("PTY read ended: %v", err)
			}
			s.log.Info("PTY reader finished")
			return
		}
	}
}

// forward sends queued terminal output as binary messages. It is the only
// goroutine that writes to the stream.
func (s *session) forward(stream Stream, queue <-chan []byte) {
	for chunk := range queue {
		if err := stream.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.log.Error("WS send error: %v", err)
			return
		}
	}
}

// readStream copies message payloads into the terminal until the stream
// closes or fails.
func (s *session) readStream(stream Stream) {
	for {
		msgType, data, err := stream.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Info("WS: close received: %v", err)
			} else {
				s.log.Error("WS receive error: %v", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage, websocket.TextMessage:
			if _, err := s.ptmx.Write(data); err != nil {
				s.log.Error("PTY write error: %v", err)
				return
			}
		case websocket.CloseMessage:
			s.log.Info("WS: close received")
			return
		case websocket.PingMessage:
			s.log.Debug("WS: ping")
		case websocket.PongMessage:
			s.log.Debug("WS: pong")
		}
	}
}

// hangup ends the shell so the reader reaches end of file.
func (s *session) hangup() {
	s.log.Info("PTY bridge: session %s hanging up shell", s.id)
	s.ptmx.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// close releases the terminal once both directions are done.
func (s *session) close() {
	s.ptmx.Close()
	select {
	case <-s.exited:
	default:
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		<-s.exited
	}
}
