package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rpistatus/host/internal/errors"
)

// writeWait bounds control frame writes on terminal sockets.
const writeWait = 10 * time.Second

// handleTerminal upgrades the request and runs one shell session on it.
// It returns when the session ends.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		s.log.Warn("%s: %v", errors.CodeServerUpgradeFailed, err)
		return
	}
	defer conn.Close()

	s.log.Info("Terminal connection from %s", r.RemoteAddr)

	conn.SetPingHandler(func(data string) error {
		s.log.Debug("WS: ping")
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		s.log.Debug("WS: pong")
		return nil
	})

	if err := s.terminal.Run(conn); err != nil {
		s.log.Error("Terminal session for %s failed: %v", r.RemoteAddr, err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, errors.GetCode(err))
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && err != websocket.ErrCloseSent {
		s.log.Debug("Terminal close for %s: %v", r.RemoteAddr, err)
	}
	s.log.Info("Terminal connection from %s closed", r.RemoteAddr)
}
