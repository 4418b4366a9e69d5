package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrOutOfBounds = errors.New("frame: view access out of bounds")

// View is an offset+length window over an owned buffer. Every accessor is
// checked against the window, never the backing array.
type View struct {
	buf []byte
	off int
	n   int
}

func NewView(b []byte) View {
	return View{buf: b, off: 0, n: len(b)}
}

func (v View) Len() int {
	return v.n
}

// Bytes returns the window. Its capacity is clipped so appends cannot spill
// into bytes beyond the window.
func (v View) Bytes() []byte {
	return v.buf[v.off : v.off+v.n : v.off+v.n]
}

func (v View) ByteAt(i int) (byte, error) {
	if err := v.check(i, 1); err != nil {
		return 0, err
	}
	return v.buf[v.off+i], nil
}

func (v View) Uint16At(i int) (uint16, error) {
	if err := v.check(i, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v.buf[v.off+i:]), nil
}

func (v View) Uint32At(i int) (uint32, error) {
	if err := v.check(i, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v.buf[v.off+i:]), nil
}

// Slice returns the sub-window [i, i+n).
func (v View) Slice(i, n int) (View, error) {
	if err := v.check(i, n); err != nil {
		return View{}, err
	}
	return View{buf: v.buf, off: v.off + i, n: n}, nil
}

// Advance drops the first n bytes of the window.
func (v View) Advance(n int) (View, error) {
	if err := v.check(0, n); err != nil {
		return View{}, err
	}
	return View{buf: v.buf, off: v.off + n, n: v.n - n}, nil
}

func (v View) check(i, n int) error {
	if i < 0 || n < 0 || i > v.n || n > v.n-i {
		return fmt.Errorf("%w: at=%d n=%d len=%d", ErrOutOfBounds, i, n, v.n)
	}
	return nil
}
