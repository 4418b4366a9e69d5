// Package dispatch routes validated frames to typed handlers by opcode.
//
// A Table is built once at composition time and handed to sessions by
// reference; registration after sessions start is not supported.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/danmuck/wirelink/internal/observability"
	"github.com/danmuck/wirelink/internal/protocol/frame"
	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDuplicateOpcode = errors.New("dispatch: opcode already registered")
	ErrNilRoute        = errors.New("dispatch: nil decoder or handler")
)

// Decoder parses a payload. The payload aliases the session receive buffer
// and is only valid for the duration of the call, so decoders must copy
// anything they keep.
type Decoder[T any] func(payload []byte) (T, error)

// HandlerFunc handles one decoded message.
type HandlerFunc[T any] func(ctx context.Context, s *session.Session, msg T)

// CustomHandler replaces per-opcode handlers for every decoded message.
type CustomHandler func(ctx context.Context, s *session.Session, opcode uint16, msg any)

type route struct {
	name   string
	decode func([]byte) (any, error)
	handle func(context.Context, *session.Session, any)
}

type Table struct {
	routes map[uint16]route
	custom CustomHandler
}

func NewTable() *Table {
	return &Table{routes: make(map[uint16]route)}
}

// Handle registers a decoder and handler pair for opcode.
func Handle[T any](t *Table, opcode uint16, name string, decode Decoder[T], handle HandlerFunc[T]) error {
	if decode == nil || handle == nil {
		return fmt.Errorf("%w: opcode=%d", ErrNilRoute, opcode)
	}
	if _, ok := t.routes[opcode]; ok {
		return fmt.Errorf("%w: opcode=%d name=%s", ErrDuplicateOpcode, opcode, name)
	}
	t.routes[opcode] = route{
		name: name,
		decode: func(b []byte) (any, error) {
			return decode(b)
		},
		handle: func(ctx context.Context, s *session.Session, msg any) {
			typed, ok := msg.(T)
			if !ok {
				log.Warn().Uint16("opcode", opcode).Str("route", name).Msgf("dispatch: unexpected message type %T", msg)
				return
			}
			handle(ctx, s, typed)
		},
	}
	return nil
}

// SetCustomHandler routes every decoded message to h instead of the
// registered handlers. A nil h restores per-opcode handling.
func (t *Table) SetCustomHandler(h CustomHandler) {
	t.custom = h
}

func (t *Table) Opcodes() []uint16 {
	ops := make([]uint16, 0, len(t.routes))
	for op := range t.routes {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Name returns the registered route name for opcode.
func (t *Table) Name(opcode uint16) (string, bool) {
	r, ok := t.routes[opcode]
	return r.name, ok
}

// Invoke runs the registered handler for an already decoded message. It
// reports false when opcode has no route.
func (t *Table) Invoke(ctx context.Context, s *session.Session, opcode uint16, msg any) bool {
	r, ok := t.routes[opcode]
	if !ok {
		return false
	}
	r.handle(ctx, s, msg)
	return true
}

// Dispatch implements session.Dispatcher. Unknown opcodes are dropped.
// Decode failures are logged and dropped; they do not fault the session.
func (t *Table) Dispatch(ctx context.Context, s *session.Session, f frame.Frame) {
	opcode := f.Opcode()
	r, ok := t.routes[opcode]
	if !ok {
		observability.RecordDispatch(opcode, observability.DispatchUnknown, 0)
		log.Debug().Uint64("session_id", sessionID(s)).Uint16("opcode", opcode).Msg("dispatch: dropped unknown opcode")
		return
	}

	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "dispatch "+r.name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int("wirelink.opcode", int(opcode)),
			attribute.Int64("wirelink.session_id", int64(sessionID(s))),
			attribute.Int("wirelink.payload_bytes", len(f.Payload)),
			attribute.Int64("wirelink.sequence", int64(f.Header.Sequence)),
		),
	)
	defer span.End()

	msg, err := r.decode(f.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		observability.RecordDispatch(opcode, observability.DispatchDecodeError, time.Since(start))
		log.Warn().Err(err).Uint64("session_id", sessionID(s)).Uint16("opcode", opcode).Str("route", r.name).Msg("dispatch: payload decode failed")
		return
	}

	if t.custom != nil {
		t.custom(ctx, s, opcode, msg)
	} else {
		r.handle(ctx, s, msg)
	}
	span.SetStatus(codes.Ok, "")
	observability.RecordDispatch(opcode, observability.DispatchHandled, time.Since(start))
}

func sessionID(s *session.Session) uint64 {
	if s == nil {
		return 0
	}
	return s.ID()
}
