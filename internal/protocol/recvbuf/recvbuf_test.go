package recvbuf

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/danmuck/wirelink/internal/testutil/testlog"
)

func TestWriteReadCursors(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 16, Max: 16, LowWater: 4})
	n := copy(b.WriteSegment(), []byte("hello"))
	if err := b.OnWrite(n); err != nil {
		t.Fatalf("on write: %v", err)
	}
	if got := string(b.ReadSegment()); got != "hello" {
		t.Fatalf("read segment got=%q", got)
	}
	if err := b.OnRead(2); err != nil {
		t.Fatalf("on read: %v", err)
	}
	if got := string(b.ReadSegment()); got != "llo" {
		t.Fatalf("read segment got=%q", got)
	}
	if b.DataSize() != 3 || b.FreeSize() != 11 {
		t.Fatalf("unexpected sizes data=%d free=%d", b.DataSize(), b.FreeSize())
	}
}

func TestOnWriteOverflow(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 8, Max: 8})
	if err := b.OnWrite(9); !errors.Is(err, ErrWriteOverflow) {
		t.Fatalf("expected ErrWriteOverflow, got %v", err)
	}
	if err := b.OnWrite(-1); !errors.Is(err, ErrWriteOverflow) {
		t.Fatalf("expected ErrWriteOverflow for negative n, got %v", err)
	}
}

func TestOnReadOverflow(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 8, Max: 8})
	_ = b.OnWrite(3)
	if err := b.OnRead(4); !errors.Is(err, ErrReadOverflow) {
		t.Fatalf("expected ErrReadOverflow, got %v", err)
	}
}

func TestCompactPreservesUnread(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 8, Max: 8, LowWater: 4})
	copy(b.WriteSegment(), []byte("abcdefg"))
	_ = b.OnWrite(7)
	_ = b.OnRead(5)

	b.Compact()
	if got := string(b.ReadSegment()); got != "fg" {
		t.Fatalf("unread changed after compact: %q", got)
	}
	if b.FreeSize() != 6 {
		t.Fatalf("expected compaction to free tail, free=%d", b.FreeSize())
	}
}

func TestCompactSkipsWhenTailIsRoomy(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 64, Max: 64, LowWater: 8})
	_ = b.OnWrite(10)
	_ = b.OnRead(4)
	b.Compact()
	if b.FreeSize() != 54 || b.DataSize() != 6 {
		t.Fatalf("unexpected compaction: free=%d data=%d", b.FreeSize(), b.DataSize())
	}
}

func TestCompactEmptyResetsCursors(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 8, Max: 8})
	_ = b.OnWrite(8)
	_ = b.OnRead(8)
	b.Compact()
	if b.FreeSize() != 8 || b.DataSize() != 0 {
		t.Fatalf("expected reset, free=%d data=%d", b.FreeSize(), b.DataSize())
	}
}

func TestReserveGrowsUpToMax(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 8, Max: 32, LowWater: 2})
	copy(b.WriteSegment(), []byte("abcdef"))
	_ = b.OnWrite(6)
	_ = b.OnRead(2)

	if err := b.Reserve(20); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if b.Capacity() < 20 {
		t.Fatalf("expected growth, capacity=%d", b.Capacity())
	}
	if got := string(b.ReadSegment()); got != "cdef" {
		t.Fatalf("unread changed after growth: %q", got)
	}
	if err := b.Reserve(33); !errors.Is(err, ErrExceedsMax) {
		t.Fatalf("expected ErrExceedsMax, got %v", err)
	}
}

func TestGrowBoundedByMax(t *testing.T) {
	testlog.Start(t)
	b := New(Limits{Initial: 8, Max: 12})
	if err := b.Grow(); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if b.Capacity() != 12 {
		t.Fatalf("capacity=%d want 12", b.Capacity())
	}
	if err := b.Grow(); !errors.Is(err, ErrExceedsMax) {
		t.Fatalf("expected ErrExceedsMax, got %v", err)
	}
}

// Random walk over the public operations, checking the cursor invariant and
// that unread bytes always match a shadow copy.
func TestCursorInvariantRandomized(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(42))
	b := New(Limits{Initial: 32, Max: 256, LowWater: 8})
	var shadow []byte
	next := byte(0)

	for i := 0; i < 5000; i++ {
		switch rng.Intn(4) {
		case 0:
			seg := b.WriteSegment()
			n := 0
			if len(seg) > 0 {
				n = rng.Intn(len(seg) + 1)
			}
			for j := 0; j < n; j++ {
				seg[j] = next
				shadow = append(shadow, next)
				next++
			}
			if err := b.OnWrite(n); err != nil {
				t.Fatalf("on write: %v", err)
			}
		case 1:
			n := rng.Intn(b.DataSize() + 1)
			if err := b.OnRead(n); err != nil {
				t.Fatalf("on read: %v", err)
			}
			shadow = shadow[n:]
		case 2:
			b.Compact()
		case 3:
			_ = b.Reserve(rng.Intn(300))
		}
		if b.read < 0 || b.read > b.write || b.write > len(b.buf) {
			t.Fatalf("invariant broken read=%d write=%d cap=%d", b.read, b.write, len(b.buf))
		}
		if !bytes.Equal(b.ReadSegment(), shadow) {
			t.Fatalf("unread bytes diverged at step %d", i)
		}
	}
}
