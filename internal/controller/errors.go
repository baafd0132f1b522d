package controller

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"

	"github.com/rpistatus/host/internal/errors"
)

// RejectedError is the cause of a "controller.rejected" error. It carries
// the non-zero response byte.
type RejectedError struct {
	Command Command
	Code    ResponseCode
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("controller rejected %s: %s", e.Command, e.Code)
}

// RejectedCode returns the response byte carried by a rejected-command error.
// It reports false for every other error.
func RejectedCode(err error) (uint8, bool) {
	var rej *RejectedError
	if stderrors.As(err, &rej) {
		return uint8(rej.Code), true
	}
	return 0, false
}

func rejected(cmd Command, code ResponseCode) error {
	return errors.Wrap(errors.CodeControllerRejected,
		fmt.Sprintf("controller returned error code %d", code),
		&RejectedError{Command: cmd, Code: code})
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

// classify maps a socket error from the given phase to a coded error.
// Timeouts always map to "controller.timeout"; other failures map to code.
func classify(code, phase string, err error) error {
	if isTimeout(err) {
		return errors.Wrap(errors.CodeControllerTimeout, phase+" timed out", err)
	}
	return errors.Wrap(code, phase+" failed", err)
}
