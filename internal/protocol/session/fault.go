package session

import (
	"errors"
	"fmt"
)

// FaultKind classifies why a session was torn down. Every kind is fatal.
type FaultKind uint8

const (
	FaultTransport FaultKind = iota + 1
	FaultFraming
	FaultIntegrity
	FaultReplay
	FaultCrypto
)

func (k FaultKind) String() string {
	switch k {
	case FaultTransport:
		return "transport"
	case FaultFraming:
		return "framing"
	case FaultIntegrity:
		return "integrity"
	case FaultReplay:
		return "replay"
	case FaultCrypto:
		return "crypto"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

var (
	ErrFrameTooSmall      = errors.New("session: declared frame size below protocol floor")
	ErrFrameExceedsBuffer = errors.New("session: declared frame size exceeds receive buffer")
	ErrTagMismatch        = errors.New("session: integrity tag mismatch")
	ErrReplay             = errors.New("session: non-increasing sequence")
	ErrZeroRead           = errors.New("session: zero-byte read")
	ErrPeerClosed         = errors.New("session: peer closed connection")
	ErrClosed             = errors.New("session: closed")
	ErrAlreadyStarted     = errors.New("session: already started")
	ErrSendQueueFull      = errors.New("session: send queue limit exceeded")
	ErrSequenceExhausted  = errors.New("session: send sequence exhausted")
)

// Fault is a fatal session error.
type Fault struct {
	Kind FaultKind
	Err  error
}

func newFault(kind FaultKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

func (f *Fault) Error() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("session fault kind=%s: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault reports whether err is a Fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	return KindOf(err) == kind
}

// KindOf returns the fault kind carried by err, or zero.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
