//go:build unix

package controller

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// peerAlive reports whether the controller is still attached to conn. It
// asks the kernel for the peer address, then peeks one byte without
// blocking: an empty peek means the controller sent FIN, and pending bytes
// mean the stream is out of step with our replies.
func peerAlive(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return true
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	alive := false
	err = raw.Read(func(fd uintptr) bool {
		if _, err := unix.Getpeername(int(fd)); err != nil {
			return true
		}
		var buf [1]byte
		_, _, err := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK)
		alive = err == unix.EAGAIN || err == unix.EWOULDBLOCK
		return true
	})
	return err == nil && alive
}
