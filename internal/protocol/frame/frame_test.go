package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte{0xAA, 0xBB}
	buf, err := Encode(0x0007, 0, 0, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 11 {
		t.Fatalf("unexpected frame len=%d", len(buf))
	}
	want := []byte{0x0B, 0x00, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xAA, 0xBB}
	if !bytes.Equal(buf, want) {
		t.Fatalf("wire mismatch: got=%x want=%x", buf, want)
	}
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Opcode() != 7 || out.Header.HasSequence() || !bytes.Equal(out.Payload, payload) {
		t.Fatalf("unexpected frame: %+v", out)
	}
}

func TestDecodeShortHeader(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	buf, _ := Encode(1, 0, 0, []byte("abc"))
	_, err := Decode(buf[:len(buf)-1])
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	_, err := Encode(1, 0, 0, make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, err := Encode(1, 0, 0, make([]byte, MaxPayload)); err != nil {
		t.Fatalf("max payload should fit: %v", err)
	}
}

func TestStampSetsFlagAndSequence(t *testing.T) {
	buf, _ := Encode(3, 0, 0, []byte("x"))
	if err := Stamp(buf, 0x01020304); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if !h.HasSequence() || h.Sequence != 0x01020304 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if buf[5] != 0x04 || buf[8] != 0x01 {
		t.Fatalf("sequence not little-endian: %x", buf[5:9])
	}
}

func TestViewBoundsChecked(t *testing.T) {
	v := NewView([]byte{1, 2, 3, 4, 5, 6})
	sub, err := v.Slice(2, 3)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if !bytes.Equal(sub.Bytes(), []byte{3, 4, 5}) {
		t.Fatalf("unexpected slice: %v", sub.Bytes())
	}
	if _, err := sub.Uint32At(0); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds reading past window, got %v", err)
	}
	if got, err := sub.Uint16At(1); err != nil || got != 0x0504 {
		t.Fatalf("uint16 got=%x err=%v", got, err)
	}
	if _, err := v.Slice(5, 2); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := v.Slice(-1, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds for negative offset, got %v", err)
	}
	rest, err := v.Advance(4)
	if err != nil || rest.Len() != 2 {
		t.Fatalf("advance len=%d err=%v", rest.Len(), err)
	}
	if b, _ := rest.ByteAt(1); b != 6 {
		t.Fatalf("unexpected byte=%d", b)
	}
	if _, err := rest.Advance(3); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestViewBytesCapIsClipped(t *testing.T) {
	backing := []byte{1, 2, 3, 4}
	sub, _ := NewView(backing).Slice(0, 2)
	b := sub.Bytes()
	b = append(b, 9)
	if backing[2] != 3 {
		t.Fatalf("append spilled into backing array: %v", backing)
	}
	_ = b
}
