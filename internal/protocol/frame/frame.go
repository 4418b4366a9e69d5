package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire layout (little-endian):
//
//	size(2) | opcode(2) | flags(1) | sequence(4) | payload
//
// size counts the whole frame including itself.
const (
	SizeLen      = 2
	HeaderLen    = 9
	BodyHeadLen  = HeaderLen - SizeLen
	MaxFrameLen  = 0xFFFF
	MaxPayload   = MaxFrameLen - HeaderLen
	TagLen       = 32
	BlockLen     = 16
	MinSealedLen = SizeLen + BlockLen + TagLen

	FlagHasSequence uint8 = 0x01
)

const (
	offOpcode   = 2
	offFlags    = 4
	offSequence = 5
)

var (
	ErrShortHeader   = errors.New("frame: short header")
	ErrSizeMismatch  = errors.New("frame: size field does not match frame length")
	ErrFrameTooLarge = errors.New("frame: frame exceeds max length")
)

// Header is the fixed plaintext header.
type Header struct {
	Size     uint16
	Opcode   uint16
	Flags    uint8
	Sequence uint32
}

// HasSequence reports whether the sequence field participates in replay checks.
func (h Header) HasSequence() bool {
	return h.Flags&FlagHasSequence != 0
}

// Frame is one complete plaintext frame. Payload may alias the buffer the
// frame was decoded from.
type Frame struct {
	Header  Header
	Payload []byte
}

func (f Frame) Opcode() uint16 {
	return f.Header.Opcode
}

// Encode lays out a plaintext frame. The size field is computed from the payload.
func Encode(opcode uint16, flags uint8, seq uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload=%d", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, HeaderLen+len(payload))
	PutHeader(buf, Header{
		Size:     uint16(len(buf)),
		Opcode:   opcode,
		Flags:    flags,
		Sequence: seq,
	})
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// PutHeader writes h into the first HeaderLen bytes of b.
func PutHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint16(b[0:2], h.Size)
	binary.LittleEndian.PutUint16(b[offOpcode:offOpcode+2], h.Opcode)
	b[offFlags] = h.Flags
	binary.LittleEndian.PutUint32(b[offSequence:offSequence+4], h.Sequence)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Size:     binary.LittleEndian.Uint16(b[0:2]),
		Opcode:   binary.LittleEndian.Uint16(b[offOpcode : offOpcode+2]),
		Flags:    b[offFlags],
		Sequence: binary.LittleEndian.Uint32(b[offSequence : offSequence+4]),
	}, nil
}

// Decode parses one plaintext frame. b must hold exactly one frame.
func Decode(b []byte) (Frame, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	if int(h.Size) != len(b) {
		return Frame{}, fmt.Errorf("%w: size=%d len=%d", ErrSizeMismatch, h.Size, len(b))
	}
	return Frame{Header: h, Payload: b[HeaderLen:]}, nil
}

// Stamp sets the sequence-bearing flag and overwrites the sequence field in place.
func Stamp(b []byte, seq uint32) error {
	if len(b) < HeaderLen {
		return fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	b[offFlags] |= FlagHasSequence
	binary.LittleEndian.PutUint32(b[offSequence:offSequence+4], seq)
	return nil
}

// ClearSequence drops the sequence-bearing flag so the sequence field is
// ignored by the receiver.
func ClearSequence(b []byte) error {
	if len(b) < HeaderLen {
		return fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	b[offFlags] &^= FlagHasSequence
	return nil
}

// PutSize writes the size prefix.
func PutSize(b []byte, size int) error {
	if size > MaxFrameLen {
		return fmt.Errorf("%w: size=%d", ErrFrameTooLarge, size)
	}
	if len(b) < SizeLen {
		return fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	binary.LittleEndian.PutUint16(b[0:2], uint16(size))
	return nil
}
