package platform

import "errors"

// TransferMethod identifies which syscall strategy moves relayed bytes.
type TransferMethod int

const (
	ReadWrite  TransferMethod = iota
	SpliceMove                // Linux splice(2) with SPLICE_F_MOVE
)

func (m TransferMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case SpliceMove:
		return "splice"
	default:
		return "unknown"
	}
}

// Outcomes of a single transfer that the caller is expected to handle.
// Anything else is a broken descriptor invariant and panics.
var (
	// ErrBrokenPipe means the destination has no reader left.
	ErrBrokenPipe = errors.New("broken pipe")
	// ErrConnReset means the socket side was reset by the remote peer.
	ErrConnReset = errors.New("connection reset by peer")
	// ErrInvalidArgument means a descriptor does not support the transfer.
	ErrInvalidArgument = errors.New("invalid argument")
)
