// Package controller talks to the low-level controller daemon over its
// binary TCP protocol.
//
// Wire format:
//
//	connect -> [key:u32 LE]                     (authentication, no reply)
//	        -> [cmd:u8][arg:u32 LE][0x00 x3]    (one command frame)
//	        <- [code:u8]                        (0x00 success)
//
// Any number of command/response pairs may follow one authentication.
package controller

import (
	"encoding/binary"
	"fmt"
)

// FrameSize is the length of a serialized command frame.
const FrameSize = 8

// KeySize is the length of the authentication key on the wire.
const KeySize = 4

// Command identifies a controller operation.
type Command uint8

const (
	CommandPing        Command = 0x01
	CommandKillProcess Command = 0x02
	CommandShutdown    Command = 0x03
	CommandReboot      Command = 0x04
)

func (c Command) String() string {
	switch c {
	case CommandPing:
		return "ping"
	case CommandKillProcess:
		return "kill"
	case CommandShutdown:
		return "shutdown"
	case CommandReboot:
		return "reboot"
	}
	return fmt.Sprintf("command(0x%02x)", uint8(c))
}

// Frame is one command sent to the controller. Arg is the target pid for
// CommandKillProcess and zero for every other command.
type Frame struct {
	Command Command
	Arg     uint32
}

// Marshal serializes the frame. The three trailing bytes are always zero.
func (f Frame) Marshal() [FrameSize]byte {
	var b [FrameSize]byte
	b[0] = byte(f.Command)
	binary.LittleEndian.PutUint32(b[1:5], f.Arg)
	return b
}

// UnmarshalFrame decodes a serialized frame. It rejects input of the wrong
// length and frames whose padding is not zero.
func UnmarshalFrame(b []byte) (Frame, error) {
	if len(b) != FrameSize {
		return Frame{}, fmt.Errorf("frame must be %d bytes, got %d", FrameSize, len(b))
	}
	if b[5] != 0 || b[6] != 0 || b[7] != 0 {
		return Frame{}, fmt.Errorf("frame padding not zero: % x", b[5:])
	}
	return Frame{
		Command: Command(b[0]),
		Arg:     binary.LittleEndian.Uint32(b[1:5]),
	}, nil
}

// marshalKey serializes the pre-shared key for the authentication write.
func marshalKey(key uint32) [KeySize]byte {
	var b [KeySize]byte
	binary.LittleEndian.PutUint32(b[:], key)
	return b
}

// ResponseCode is the single byte the controller sends after each command.
type ResponseCode uint8

// Codes the controller firmware is known to send. Other values are passed
// through unchanged.
const (
	ResponseOK              ResponseCode = 0x00
	ResponseGeneric         ResponseCode = 0x01
	ResponseInvalidCommand  ResponseCode = 0x02
	ResponseInvalidArgument ResponseCode = 0x03
	ResponsePermission      ResponseCode = 0x04
)

func (r ResponseCode) String() string {
	switch r {
	case ResponseOK:
		return "ok"
	case ResponseGeneric:
		return "generic error"
	case ResponseInvalidCommand:
		return "invalid command"
	case ResponseInvalidArgument:
		return "invalid argument"
	case ResponsePermission:
		return "permission denied"
	}
	return fmt.Sprintf("code 0x%02x", uint8(r))
}
