package main

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"
)

// shellStdin is the local input for "rpistatus shell". Tests replace it.
var shellStdin io.Reader = os.Stdin

// closeGrace is how long the client waits for the agent after its input
// ends, and again after it sends a close frame.
const closeGrace = time.Second

// runShell implements "rpistatus shell": an interactive client for a
// running agent's /terminal/ws endpoint. When stdin is a terminal it is
// switched to raw mode for the duration of the session.
func runShell(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	fs.SetOutput(stderr)

	url := fs.String("url", "ws://127.0.0.1:3000/terminal/ws", "Terminal endpoint (ws:// or wss://)")
	insecure := fs.Bool("insecure", false, "Skip certificate verification for wss:// (self-signed agents)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rpistatus shell [options]\n\nOpen an interactive shell on a running agent.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	dialer := *websocket.DefaultDialer
	if *insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, _, err := dialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to connect to %s: %v\n", *url, err)
		return 1
	}
	defer conn.Close()

	if f, ok := shellStdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to enter raw mode: %v\n", err)
			return 1
		}
		defer term.Restore(int(f.Fd()), state)
	}

	if err := relayShell(conn, shellStdin, stdout); err != nil {
		fmt.Fprintf(stderr, "\r\nConnection error: %v\r\n", err)
		return 1
	}
	return 0
}

// relayShell copies in to the socket as binary frames and socket frames to
// out. It returns when the agent closes the socket, or once in has reached
// end of file and the agent has had closeGrace to finish.
func relayShell(conn *websocket.Conn, in io.Reader, out io.Writer) error {
	done := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					err = nil
				}
				done <- err
				return
			}
			if _, err := out.Write(data); err != nil {
				done <- err
				return
			}
		}
	}()

	inputEOF := make(chan struct{})
	go func() {
		defer close(inputEOF)
		buf := make([]byte, 4096)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-inputEOF:
	}

	// Input is exhausted; give the shell a moment to finish before closing.
	select {
	case err := <-done:
		return err
	case <-time.After(closeGrace):
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))

	select {
	case err := <-done:
		return err
	case <-time.After(closeGrace):
		return nil
	}
}
