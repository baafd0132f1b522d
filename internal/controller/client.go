package controller

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rpistatus/host/internal/errors"
	"github.com/rpistatus/host/internal/logger"
)

const (
	// DefaultConnectTimeout bounds the TCP connect.
	DefaultConnectTimeout = 2 * time.Second

	// DefaultCommandTimeout bounds the key write and each command write
	// and response read.
	DefaultCommandTimeout = 5 * time.Second
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	Log            logger.Logger
}

// Client keeps one authenticated connection to the controller and runs
// commands over it.
//
// The client has two states. With conn == nil it is Disconnected; the next
// command connects and writes the key before anything else. With conn set it
// is Authenticated. Only fully authenticated sockets are ever stored in conn,
// and every command-path failure clears it.
//
// mu is held for the whole connect, authenticate, command and response
// sequence, so commands through one Client never interleave.
type Client struct {
	addr           string
	key            uint32
	connectTimeout time.Duration
	commandTimeout time.Duration
	log            logger.Logger
	dialer         net.Dialer

	mu       sync.Mutex
	conn     net.Conn
	connects uint64
}

// NewClient creates a client for the controller at host:port. The address
// must be an IP literal or a resolvable hostname with a port in 1-65535;
// anything else is a "controller.address_resolution" error. No connection
// is made until the first command.
func NewClient(host string, port int, key uint32, opts Options) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New(errors.CodeControllerAddress, "controller host is empty")
	}
	if port <= 0 || port > 65535 {
		return nil, errors.New(errors.CodeControllerAddress,
			fmt.Sprintf("controller port %d out of range", port))
	}

	joined := net.JoinHostPort(host, strconv.Itoa(port))
	tcpAddr, err := net.ResolveTCPAddr("tcp", joined)
	if err != nil {
		return nil, errors.Wrap(errors.CodeControllerAddress,
			fmt.Sprintf("invalid controller address %s", joined), err)
	}

	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}

	return &Client{
		addr:           tcpAddr.String(),
		key:            key,
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
		log:            opts.Log,
	}, nil
}

// Addr returns the resolved controller address.
func (c *Client) Addr() string {
	return c.addr
}

// Connected reports whether an authenticated socket is cached.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connects returns how many connect+authenticate sequences have succeeded.
func (c *Client) Connects() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Ping checks that the controller is up.
func (c *Client) Ping(ctx context.Context) error {
	return c.Send(ctx, Frame{Command: CommandPing})
}

// KillProcess asks the controller to kill pid.
func (c *Client) KillProcess(ctx context.Context, pid uint32) error {
	return c.Send(ctx, Frame{Command: CommandKillProcess, Arg: pid})
}

// Shutdown asks the controller to power the system off.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Send(ctx, Frame{Command: CommandShutdown})
}

// Reboot asks the controller to restart the system.
func (c *Client) Reboot(ctx context.Context) error {
	return c.Send(ctx, Frame{Command: CommandReboot})
}

// Close drops the cached connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Send runs one command and waits for its response byte. Deadlines from ctx
// shorten the built-in timeouts but never extend them.
func (c *Client) Send(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.CodeControllerTimeout, "command cancelled", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}

	if err := c.exchange(ctx, conn, f); err != nil {
		c.log.Warn("Command %s failed, dropping connection: %v", f.Command, err)
		c.invalidate()
		return err
	}

	c.log.Debug("Command %s succeeded", f.Command)
	return nil
}

// ensureConnected returns the cached socket if it passes the liveness probe,
// otherwise connects and authenticates a new one. Caller holds mu.
func (c *Client) ensureConnected(ctx context.Context) (net.Conn, error) {
	if c.conn != nil {
		// A read deadline left over from the last command would fail the probe.
		if err := c.conn.SetReadDeadline(time.Time{}); err == nil && peerAlive(c.conn) {
			return c.conn, nil
		}
		c.log.Warn("Cached controller connection failed liveness check, reconnecting")
		c.invalidate()
	}

	c.log.Info("Connecting to controller at %s", c.addr)

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		if isTimeout(err) || dialCtx.Err() != nil {
			c.log.Error("Timeout connecting to controller at %s", c.addr)
			return nil, errors.Wrap(errors.CodeControllerTimeout,
				fmt.Sprintf("connect to %s timed out", c.addr), err)
		}
		c.log.Error("Failed to connect to controller at %s: %v", c.addr, err)
		return nil, errors.Wrap(errors.CodeControllerConnect,
			fmt.Sprintf("cannot connect to %s", c.addr), err)
	}

	if err := c.authenticate(ctx, conn); err != nil {
		conn.Close()
		c.log.Error("Authentication with controller failed: %v", err)
		return nil, err
	}

	c.conn = conn
	c.connects++
	c.log.Info("Connected and authenticated with controller")
	return conn, nil
}

// authenticate writes the key. A completed write is the whole proof; the
// controller sends nothing back.
func (c *Client) authenticate(ctx context.Context, conn net.Conn) error {
	if err := conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return classify(errors.CodeControllerAuth, "authentication", err)
	}
	key := marshalKey(c.key)
	if _, err := conn.Write(key[:]); err != nil {
		return classify(errors.CodeControllerAuth, "authentication", err)
	}
	return nil
}

// exchange writes one frame and reads the one-byte response.
func (c *Client) exchange(ctx context.Context, conn net.Conn, f Frame) error {
	if err := conn.SetDeadline(c.deadline(ctx)); err != nil {
		return classify(errors.CodeControllerIO, "set deadline", err)
	}

	frame := f.Marshal()
	if _, err := conn.Write(frame[:]); err != nil {
		return classify(errors.CodeControllerIO, fmt.Sprintf("write %s", f.Command), err)
	}

	var resp [1]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return classify(errors.CodeControllerIO, fmt.Sprintf("read %s response", f.Command), err)
	}

	if code := ResponseCode(resp[0]); code != ResponseOK {
		return rejected(f.Command, code)
	}
	return nil
}

// deadline returns the command deadline, shortened by ctx if it expires first.
func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.commandTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

// invalidate closes and forgets the cached socket. Caller holds mu.
func (c *Client) invalidate() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
