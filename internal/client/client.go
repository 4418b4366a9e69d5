// Package client dials a server and keeps a session alive, reconnecting with
// backoff whenever the session ends. Sessions never retry on their own.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/danmuck/wirelink/internal/transport/wsconn"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired   = errors.New("client: address required")
	ErrAttemptsExhausted = errors.New("client: connect attempts exhausted")
)

type Config struct {
	// Address is host:port for TCP or a ws:// or wss:// URL.
	Address     string
	Session     session.Config
	MaxAttempts int
	DialTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Session:     session.DefaultConfig(),
		DialTimeout: 5 * time.Second,
	}
}

type Dialer struct {
	cfg        Config
	dispatcher session.Dispatcher
	hooks      session.Hooks
	rng        *rand.Rand

	current atomic.Pointer[session.Session]
}

func New(cfg Config, d session.Dispatcher, hooks session.Hooks) (*Dialer, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultConfig().DialTimeout
	}
	return &Dialer{
		cfg:        cfg,
		dispatcher: d,
		hooks:      hooks,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Session returns the live session, or nil between connections.
func (d *Dialer) Session() *session.Session {
	return d.current.Load()
}

// Connect dials once and returns a session that has not been started.
func (d *Dialer) Connect(ctx context.Context) (*session.Session, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	s, err := session.New(conn, d.cfg.Session, d.dispatcher, d.hooks)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Run connects, runs the session until it ends, and reconnects with backoff.
// It returns nil when ctx is cancelled and ErrAttemptsExhausted once
// MaxAttempts consecutive dials have failed.
func (d *Dialer) Run(ctx context.Context) error {
	bo := session.NewBackoff(d.cfg.Session.Backoff, d.rng)
	for {
		s, err := d.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := bo.Next()
			attempt := bo.Attempt()
			log.Warn().Err(err).Int("attempt", attempt).Str("addr", d.cfg.Address).Msg("dial failed")
			if !d.shouldRetry(attempt) {
				return fmt.Errorf("%w: attempts=%d: %w", ErrAttemptsExhausted, attempt, err)
			}
			if err := sleep(ctx, delay); err != nil {
				return nil
			}
			continue
		}

		bo.Reset()
		d.current.Store(s)
		cause := s.Run(ctx)
		d.current.Store(nil)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(cause).Uint64("session_id", s.ID()).Str("addr", d.cfg.Address).Msg("session ended, reconnecting")
		if err := sleep(ctx, d.cfg.Session.Backoff.InitialDelay); err != nil {
			return nil
		}
	}
}

func (d *Dialer) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()
	addr := strings.TrimSpace(d.cfg.Address)
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return wsconn.Dial(ctx, addr, nil)
	}
	var nd net.Dialer
	return nd.DialContext(ctx, "tcp", addr)
}

func (d *Dialer) shouldRetry(attempt int) bool {
	if d.cfg.MaxAttempts <= 0 {
		return true
	}
	return attempt < d.cfg.MaxAttempts
}

func sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
