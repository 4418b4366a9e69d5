package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/danmuck/wirelink/internal/protocol/frame"
	"github.com/danmuck/wirelink/internal/protocol/recvbuf"
	"github.com/danmuck/wirelink/internal/protocol/secure"
)

// DefaultKey is the pre-shared key deployed peers are provisioned with.
var DefaultKey = []byte("NamoServerKey123")

var (
	ErrKeyRequired        = errors.New("session: encryption enabled without key")
	ErrInvalidKeyLength   = errors.New("session: key must be 16 bytes")
	ErrRecvBufferTooSmall = errors.New("session: receive buffer max below max frame length")
	ErrInvalidQueueLimit  = errors.New("session: max pending sends must be positive")
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config is fixed at session construction. Encryption is a per-session
// value so sessions in one process never share a runtime toggle.
type Config struct {
	Encryption       bool
	Key              []byte
	IVMode           secure.IVMode
	SequencedOpcodes []uint16

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	RecvBufferSize  int
	RecvBufferMax   int
	CompactLowWater int
	MaxPendingSends int

	Backoff BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Encryption:      true,
		Key:             slices.Clone(DefaultKey),
		IVMode:          secure.IVFromKey,
		ReadTimeout:     0,
		WriteTimeout:    15 * time.Second,
		RecvBufferSize:  recvbuf.DefaultCapacity,
		RecvBufferMax:   recvbuf.DefaultCapacity,
		CompactLowWater: recvbuf.DefaultLowWater,
		MaxPendingSends: 4096,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued sizing fields. Encryption, key, and
// timeouts are taken as given.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.RecvBufferSize <= 0 {
		c.RecvBufferSize = def.RecvBufferSize
	}
	if c.RecvBufferMax <= 0 {
		c.RecvBufferMax = max(def.RecvBufferMax, c.RecvBufferSize)
	}
	if c.CompactLowWater <= 0 {
		c.CompactLowWater = def.CompactLowWater
	}
	if c.MaxPendingSends == 0 {
		c.MaxPendingSends = def.MaxPendingSends
	}
	if c.Backoff.InitialDelay == 0 && c.Backoff.MaxDelay == 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.Encryption {
		if len(c.Key) == 0 {
			return ErrKeyRequired
		}
		if len(c.Key) != secure.KeySize {
			return fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(c.Key))
		}
		if c.IVMode != secure.IVFromKey && c.IVMode != secure.IVDerived {
			return fmt.Errorf("%w: %s", secure.ErrInvalidIVMode, c.IVMode)
		}
	}
	if c.RecvBufferMax < frame.MaxFrameLen {
		return fmt.Errorf("%w: max=%d", ErrRecvBufferTooSmall, c.RecvBufferMax)
	}
	if c.MaxPendingSends < 0 {
		return ErrInvalidQueueLimit
	}
	return nil
}

// OpcodeSet is the static table of sequence-bearing opcodes.
type OpcodeSet map[uint16]struct{}

func NewOpcodeSet(opcodes ...uint16) OpcodeSet {
	set := make(OpcodeSet, len(opcodes))
	for _, op := range opcodes {
		set[op] = struct{}{}
	}
	return set
}

func (s OpcodeSet) Has(opcode uint16) bool {
	_, ok := s[opcode]
	return ok
}
