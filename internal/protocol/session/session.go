package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wirelink/internal/observability"
	"github.com/danmuck/wirelink/internal/protocol/frame"
	"github.com/danmuck/wirelink/internal/protocol/recvbuf"
	"github.com/danmuck/wirelink/internal/protocol/secure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNilConn = errors.New("session: nil connection")

// Dispatcher routes one validated plaintext frame. It is called on the
// session's receive goroutine and must not block for long: the rest of the
// batch waits behind it.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *Session, f frame.Frame)
}

type DispatcherFunc func(ctx context.Context, s *Session, f frame.Frame)

func (fn DispatcherFunc) Dispatch(ctx context.Context, s *Session, f frame.Frame) {
	fn(ctx, s, f)
}

// Hooks are informational lifecycle callbacks. Any of them may be nil.
type Hooks struct {
	Connected    func(s *Session)
	Disconnected func(s *Session, cause error)
	Sent         func(s *Session, n int)
}

// Stats is a point-in-time traffic snapshot.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	BytesIn   uint64
	BytesOut  uint64
}

var nextSessionID atomic.Uint64

// Session owns one connection. The receive path runs on the goroutine that
// calls Run; Send may be called from any goroutine.
type Session struct {
	id         uint64
	conn       net.Conn
	remote     net.Addr
	cfg        Config
	engine     *secure.Engine
	sequenced  OpcodeSet
	dispatcher Dispatcher
	hooks      Hooks
	logger     zerolog.Logger

	// receive goroutine only
	recv  *recvbuf.Buffer
	reasm *Reassembler
	ctx   context.Context

	mu      sync.Mutex
	sendSeq uint32
	queue   sendQueue

	started      atomic.Bool
	disconnected atomic.Bool
	done         chan struct{}
	cause        error

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
}

// New wraps an established connection. The session takes ownership of conn.
func New(conn net.Conn, cfg Config, d Dispatcher, hooks Hooks) (*Session, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:         nextSessionID.Add(1),
		conn:       conn,
		remote:     conn.RemoteAddr(),
		cfg:        cfg,
		sequenced:  NewOpcodeSet(cfg.SequencedOpcodes...),
		dispatcher: d,
		hooks:      hooks,
		ctx:        context.Background(),
		done:       make(chan struct{}),
	}
	if cfg.Encryption {
		engine, err := secure.New(cfg.Key, secure.WithIVMode(cfg.IVMode))
		if err != nil {
			return nil, err
		}
		s.engine = engine
	}
	s.recv = recvbuf.New(recvbuf.Limits{
		Initial:  cfg.RecvBufferSize,
		Max:      cfg.RecvBufferMax,
		LowWater: cfg.CompactLowWater,
	})
	s.reasm = NewReassembler(s.engine, s.deliver)
	s.logger = log.With().
		Uint64("session_id", s.id).
		Str("remote", addrString(s.remote)).
		Logger()
	return s, nil
}

func (s *Session) ID() uint64 {
	return s.id
}

func (s *Session) RemoteAddr() net.Addr {
	return s.remote
}

func (s *Session) Encrypted() bool {
	return s.engine != nil
}

// Done is closed once the session has disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the disconnect cause, nil for explicit closes or while the
// session is still live.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.cause
	default:
		return nil
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		FramesIn:  s.framesIn.Load(),
		FramesOut: s.framesOut.Load(),
		BytesIn:   s.bytesIn.Load(),
		BytesOut:  s.bytesOut.Load(),
	}
}

// SendSequence returns the last sequence stamped on an outgoing frame.
func (s *Session) SendSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendSeq
}

// Run drives the receive path until the session disconnects and returns the
// disconnect cause. Cancelling ctx closes the session.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.disconnected.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx = ctx
	go func() {
		select {
		case <-ctx.Done():
			s.disconnect(nil)
		case <-s.done:
		}
	}()

	observability.RecordSessionOpened()
	s.logger.Info().Bool("encrypted", s.Encrypted()).Msg("session connected")
	if s.hooks.Connected != nil {
		s.hooks.Connected(s)
	}

	s.disconnect(s.receiveLoop())
	return s.Err()
}

// Close disconnects without a fault. It is safe to call more than once.
func (s *Session) Close() error {
	s.disconnect(nil)
	return nil
}

func (s *Session) receiveLoop() error {
	for {
		if err := s.prepareRecv(); err != nil {
			return err
		}
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		n, err := s.conn.Read(s.recv.WriteSegment())
		if n > 0 {
			if perr := s.onReceive(n); perr != nil {
				return perr
			}
		}
		if err != nil {
			if s.disconnected.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				err = ErrPeerClosed
			}
			return newFault(FaultTransport, err)
		}
		if n == 0 {
			return newFault(FaultTransport, ErrZeroRead)
		}
	}
}

// prepareRecv compacts the buffer and makes sure the frame at its head can
// fit, growing up to the configured max. Validate keeps RecvBufferMax at or
// above frame.MaxFrameLen, so the ErrFrameExceedsBuffer fault is a guard a
// validated config never reaches.
func (s *Session) prepareRecv() error {
	s.recv.Compact()
	need := max(s.reasm.Pending(s.recv.ReadSegment()), s.recv.DataSize()+1)
	if err := s.recv.Reserve(need); err != nil {
		return newFault(FaultFraming, fmt.Errorf("%w: %w", ErrFrameExceedsBuffer, err))
	}
	return nil
}

func (s *Session) onReceive(n int) error {
	if err := s.recv.OnWrite(n); err != nil {
		return newFault(FaultFraming, err)
	}
	s.bytesIn.Add(uint64(n))
	observability.RecordFrames(observability.DirectionIn, 0, n)

	consumed, err := s.reasm.Process(s.recv.ReadSegment())
	if err != nil {
		return err
	}
	if err := s.recv.OnRead(consumed); err != nil {
		return newFault(FaultFraming, err)
	}
	return nil
}

func (s *Session) deliver(f frame.Frame) {
	s.framesIn.Add(1)
	observability.RecordFrames(observability.DirectionIn, 1, 0)
	if s.dispatcher == nil || s.disconnected.Load() {
		return
	}
	s.dispatcher.Dispatch(s.ctx, s, f)
}

// SendMessage lays out a frame for opcode and payload and sends it.
func (s *Session) SendMessage(opcode uint16, payload []byte) error {
	b, err := frame.Encode(opcode, 0, 0, payload)
	if err != nil {
		return err
	}
	return s.Send(b)
}

// Send enqueues one plaintext frame laid out as
// size|opcode|flags|sequence|payload. The caller's buffer is not modified.
func (s *Session) Send(b []byte) error {
	return s.SendBatch([][]byte{b})
}

// SendBatch enqueues frames atomically: they hit the wire contiguously and
// in order.
func (s *Session) SendBatch(frames [][]byte) error {
	if len(frames) == 0 {
		return nil
	}
	if s.disconnected.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	if s.disconnected.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	sealed := make([][]byte, 0, len(frames))
	for _, b := range frames {
		out, err := s.sealLocked(b)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		sealed = append(sealed, out)
	}
	if s.queue.len()+len(sealed) > s.cfg.MaxPendingSends {
		s.mu.Unlock()
		s.disconnect(newFault(FaultTransport, ErrSendQueueFull))
		return ErrSendQueueFull
	}
	s.queue.push(sealed...)
	start := !s.queue.inFlight
	s.queue.inFlight = true
	s.mu.Unlock()

	if start {
		go s.flush()
	}
	return nil
}

// sealLocked stamps the sequence and, when encryption is on, reframes as
// size|ciphertext|tag. Callers hold s.mu so stamping order matches queue order.
func (s *Session) sealLocked(b []byte) ([]byte, error) {
	h, err := frame.DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if int(h.Size) != len(b) {
		return nil, fmt.Errorf("%w: size=%d len=%d", frame.ErrSizeMismatch, h.Size, len(b))
	}
	sealedLen := len(b)
	if s.engine != nil {
		sealedLen = frame.SizeLen + secure.EncryptedSize(len(b)-frame.SizeLen) + frame.TagLen
	}
	if sealedLen > frame.MaxFrameLen {
		return nil, fmt.Errorf("%w: sealed=%d", frame.ErrFrameTooLarge, sealedLen)
	}

	out := slices.Clone(b)
	if s.sequenced.Has(h.Opcode) {
		if s.sendSeq == math.MaxUint32 {
			return nil, ErrSequenceExhausted
		}
		s.sendSeq++
		if err := frame.Stamp(out, s.sendSeq); err != nil {
			return nil, err
		}
	} else if err := frame.ClearSequence(out); err != nil {
		return nil, err
	}
	if s.engine == nil {
		return out, nil
	}

	ct, err := s.engine.Encrypt(out[frame.SizeLen:])
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, sealedLen)
	if err := frame.PutSize(sealed, sealedLen); err != nil {
		return nil, err
	}
	copy(sealed[frame.SizeLen:], ct)
	tag, err := s.engine.Tag(sealed, frame.SizeLen, len(ct))
	if err != nil {
		return nil, err
	}
	copy(sealed[frame.SizeLen+len(ct):], tag[:])
	return sealed, nil
}

// flush is the single in-flight transmitter. It drains the queue batch by
// batch and exits once the queue is empty.
func (s *Session) flush() {
	for {
		s.mu.Lock()
		if s.disconnected.Load() {
			s.queue.clear()
			s.mu.Unlock()
			return
		}
		batch := s.queue.take()
		if len(batch) == 0 {
			s.queue.inFlight = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		count := len(batch)
		if s.cfg.WriteTimeout > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		bufs := net.Buffers(batch)
		n, err := bufs.WriteTo(s.conn)

		s.mu.Lock()
		s.queue.complete()
		s.mu.Unlock()

		if err != nil {
			s.disconnect(newFault(FaultTransport, err))
			return
		}
		s.framesOut.Add(uint64(count))
		s.bytesOut.Add(uint64(n))
		observability.RecordFrames(observability.DirectionOut, count, int(n))
		if s.hooks.Sent != nil {
			s.hooks.Sent(s, int(n))
		}
	}
}

// disconnect tears the session down exactly once.
func (s *Session) disconnect(cause error) {
	if !s.disconnected.CompareAndSwap(false, true) {
		return
	}
	s.cause = cause
	_ = s.conn.Close()

	s.mu.Lock()
	s.queue.clear()
	s.mu.Unlock()
	close(s.done)

	s.logDisconnect(cause)
	observability.RecordFault(faultLabel(cause))
	if s.started.Load() {
		observability.RecordSessionClosed()
	}
	if s.hooks.Disconnected != nil {
		s.hooks.Disconnected(s, cause)
	}
}

func (s *Session) logDisconnect(cause error) {
	stats := s.Stats()
	kind := KindOf(cause)
	var event *zerolog.Event
	switch {
	case cause == nil:
		event = s.logger.Info()
	case kind == FaultIntegrity || kind == FaultCrypto:
		event = s.logger.Error().Err(cause)
	case kind == FaultTransport:
		event = s.logger.Info().Err(cause)
	default:
		event = s.logger.Warn().Err(cause)
	}
	if kind != 0 {
		event = event.Str("fault", kind.String())
	}
	msg := "session disconnected"
	if kind == FaultIntegrity || kind == FaultCrypto {
		msg = "session tampering detected"
	}
	event.
		Uint64("frames_in", stats.FramesIn).
		Uint64("frames_out", stats.FramesOut).
		Uint64("bytes_in", stats.BytesIn).
		Uint64("bytes_out", stats.BytesOut).
		Msg(msg)
}

func faultLabel(cause error) string {
	if kind := KindOf(cause); kind != 0 {
		return kind.String()
	}
	return ""
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
