//go:build !unix

package controller

import "net"

// peerAlive has no socket-level check here; a dead peer surfaces on the
// next command instead.
func peerAlive(conn net.Conn) bool {
	return conn.RemoteAddr() != nil
}
