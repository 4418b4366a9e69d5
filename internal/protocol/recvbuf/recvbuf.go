// Package recvbuf holds bytes read from a socket that have not yet been
// consumed into frames.
//
// Invariant: 0 <= read <= write <= capacity. Only [read, write) is valid data.
package recvbuf

import (
	"errors"
	"fmt"
)

const (
	DefaultCapacity = 64 * 1024
	DefaultLowWater = 4 * 1024
)

var (
	ErrWriteOverflow = errors.New("recvbuf: write exceeds free space")
	ErrReadOverflow  = errors.New("recvbuf: read exceeds unread data")
	ErrExceedsMax    = errors.New("recvbuf: required capacity exceeds max capacity")
)

// Limits bounds buffer sizing.
type Limits struct {
	Initial  int
	Max      int
	LowWater int
}

func DefaultLimits() Limits {
	return Limits{
		Initial:  DefaultCapacity,
		Max:      DefaultCapacity,
		LowWater: DefaultLowWater,
	}
}

type Buffer struct {
	buf    []byte
	read   int
	write  int
	limits Limits
}

func New(limits Limits) *Buffer {
	if limits.Initial <= 0 {
		limits.Initial = DefaultCapacity
	}
	if limits.Max < limits.Initial {
		limits.Max = limits.Initial
	}
	if limits.LowWater < 0 {
		limits.LowWater = 0
	}
	return &Buffer{
		buf:    make([]byte, limits.Initial),
		limits: limits,
	}
}

func (b *Buffer) Capacity() int {
	return len(b.buf)
}

// DataSize is the number of unread bytes.
func (b *Buffer) DataSize() int {
	return b.write - b.read
}

// FreeSize is the writable tail space.
func (b *Buffer) FreeSize() int {
	return len(b.buf) - b.write
}

// ReadSegment returns the unread region [read, write).
func (b *Buffer) ReadSegment() []byte {
	return b.buf[b.read:b.write:b.write]
}

// WriteSegment returns the writable tail for the transport to fill.
func (b *Buffer) WriteSegment() []byte {
	return b.buf[b.write:]
}

func (b *Buffer) OnWrite(n int) error {
	if n < 0 || n > b.FreeSize() {
		return fmt.Errorf("%w: n=%d free=%d", ErrWriteOverflow, n, b.FreeSize())
	}
	b.write += n
	return nil
}

func (b *Buffer) OnRead(n int) error {
	if n < 0 || n > b.DataSize() {
		return fmt.Errorf("%w: n=%d unread=%d", ErrReadOverflow, n, b.DataSize())
	}
	b.read += n
	return nil
}

// Compact slides unread bytes to offset 0 once the free tail drops below
// the low-water mark. An empty buffer just resets its cursors.
func (b *Buffer) Compact() {
	if b.read == b.write {
		b.read, b.write = 0, 0
		return
	}
	if b.read == 0 || b.FreeSize() >= b.limits.LowWater {
		return
	}
	b.compact()
}

func (b *Buffer) compact() {
	if b.read == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.read:b.write])
	b.read, b.write = 0, n
}

// Reserve makes room for n bytes counted from the read cursor, compacting
// and then growing as needed. It fails once n would exceed Max.
func (b *Buffer) Reserve(n int) error {
	if n <= len(b.buf)-b.read {
		return nil
	}
	if n > b.limits.Max {
		return fmt.Errorf("%w: need=%d max=%d", ErrExceedsMax, n, b.limits.Max)
	}
	b.compact()
	if n <= len(b.buf) {
		return nil
	}
	size := len(b.buf)
	for size < n {
		size *= 2
	}
	if size > b.limits.Max {
		size = b.limits.Max
	}
	grown := make([]byte, size)
	copy(grown, b.buf[:b.write])
	b.buf = grown
	return nil
}

// Grow doubles capacity, bounded by Max.
func (b *Buffer) Grow() error {
	if len(b.buf) >= b.limits.Max {
		return fmt.Errorf("%w: capacity=%d", ErrExceedsMax, len(b.buf))
	}
	return b.Reserve(min(len(b.buf)*2, b.limits.Max))
}
