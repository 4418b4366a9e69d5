package session

import (
	"fmt"

	"github.com/danmuck/wirelink/internal/protocol/frame"
	"github.com/danmuck/wirelink/internal/protocol/secure"
)

// State is the receive state machine position.
type State uint8

const (
	StateAwaitingHeader State = iota
	StateAwaitingFrame
	StateDispatching
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting_header"
	case StateAwaitingFrame:
		return "awaiting_frame"
	case StateDispatching:
		return "dispatching"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Reassembler extracts frames from a byte stream. It is not safe for
// concurrent use; a session drives it from its single receive goroutine.
type Reassembler struct {
	engine  *secure.Engine
	deliver func(frame.Frame)
	recvSeq uint32
	state   State
	fault   error
}

// NewReassembler builds a reassembler. A nil engine means plaintext mode.
// deliver is called synchronously once per validated frame; the frame's
// payload is only valid until deliver returns.
func NewReassembler(engine *secure.Engine, deliver func(frame.Frame)) *Reassembler {
	return &Reassembler{engine: engine, deliver: deliver}
}

func (r *Reassembler) State() State {
	return r.state
}

// LastSequence is the highest accepted incoming sequence.
func (r *Reassembler) LastSequence() uint32 {
	return r.recvSeq
}

// MinFrameLen is the smallest legal on-wire frame for the current mode.
func (r *Reassembler) MinFrameLen() int {
	if r.engine != nil {
		return frame.MinSealedLen
	}
	return frame.HeaderLen
}

// Pending returns the declared size of an incomplete frame at the head of b,
// or 0 when b holds no partial frame with a readable size prefix.
func (r *Reassembler) Pending(b []byte) int {
	v := frame.NewView(b)
	size, err := v.Uint16At(0)
	if err != nil || int(size) <= v.Len() {
		return 0
	}
	return int(size)
}

// Process consumes every complete frame in b and returns the bytes consumed.
// Any violation faults the reassembler permanently; the returned count is
// then only informational and the caller must tear the session down.
func (r *Reassembler) Process(b []byte) (int, error) {
	if r.state == StateFaulted {
		return 0, r.fault
	}
	v := frame.NewView(b)
	consumed := 0
	for v.Len() > 0 {
		r.state = StateAwaitingHeader
		size, err := v.Uint16At(0)
		if err != nil {
			break
		}
		if int(size) < r.MinFrameLen() {
			return consumed, r.fail(FaultFraming, fmt.Errorf("%w: size=%d min=%d", ErrFrameTooSmall, size, r.MinFrameLen()))
		}

		r.state = StateAwaitingFrame
		raw, err := v.Slice(0, int(size))
		if err != nil {
			break
		}
		f, err := r.open(raw)
		if err != nil {
			return consumed, err
		}
		if f.Header.HasSequence() {
			if f.Header.Sequence <= r.recvSeq {
				return consumed, r.fail(FaultReplay, fmt.Errorf("%w: got=%d last=%d opcode=%d", ErrReplay, f.Header.Sequence, r.recvSeq, f.Header.Opcode))
			}
			r.recvSeq = f.Header.Sequence
		}

		r.state = StateDispatching
		r.deliver(f)

		consumed += int(size)
		if v, err = v.Advance(int(size)); err != nil {
			return consumed, r.fail(FaultFraming, err)
		}
	}
	if v.Len() == 0 {
		r.state = StateAwaitingHeader
	}
	return consumed, nil
}

// open turns one raw frame into a plaintext frame, verifying and decrypting
// when an engine is configured.
func (r *Reassembler) open(raw frame.View) (frame.Frame, error) {
	if r.engine == nil {
		f, err := frame.Decode(raw.Bytes())
		if err != nil {
			return frame.Frame{}, r.fail(FaultFraming, err)
		}
		return f, nil
	}

	ctLen := raw.Len() - frame.SizeLen - frame.TagLen
	tag, err := raw.Slice(raw.Len()-frame.TagLen, frame.TagLen)
	if err != nil {
		return frame.Frame{}, r.fail(FaultFraming, err)
	}
	if !r.engine.VerifyTag(raw.Bytes(), frame.SizeLen, ctLen, tag.Bytes()) {
		return frame.Frame{}, r.fail(FaultIntegrity, ErrTagMismatch)
	}
	ct, err := raw.Slice(frame.SizeLen, ctLen)
	if err != nil {
		return frame.Frame{}, r.fail(FaultFraming, err)
	}
	body, err := r.engine.Decrypt(ct.Bytes())
	if err != nil {
		return frame.Frame{}, r.fail(FaultCrypto, err)
	}
	if len(body) < frame.BodyHeadLen {
		return frame.Frame{}, r.fail(FaultFraming, fmt.Errorf("%w: decrypted body=%d", ErrFrameTooSmall, len(body)))
	}

	plain := make([]byte, frame.SizeLen+len(body))
	if err := frame.PutSize(plain, len(plain)); err != nil {
		return frame.Frame{}, r.fail(FaultFraming, err)
	}
	copy(plain[frame.SizeLen:], body)
	f, err := frame.Decode(plain)
	if err != nil {
		return frame.Frame{}, r.fail(FaultFraming, err)
	}
	return f, nil
}

func (r *Reassembler) fail(kind FaultKind, err error) error {
	r.state = StateFaulted
	r.fault = newFault(kind, err)
	return r.fault
}
