// Package config loads wirectl settings from TOML. Keys left out of a file
// keep their defaults.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/wirelink/internal/client"
	"github.com/danmuck/wirelink/internal/messages"
	"github.com/danmuck/wirelink/internal/protocol/secure"
	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/danmuck/wirelink/internal/server"
)

var (
	ErrInvalidKeyHex = errors.New("config: key_hex must be 32 hex characters")
	ErrInvalidOpcode = errors.New("config: sequenced opcode out of range")
	ErrUnknownKey    = errors.New("config: unknown key")
)

// File is the on-disk shape. Durations are Go duration strings.
type File struct {
	ListenAddr  string   `toml:"listen_addr"`
	AdminAddr   string   `toml:"admin_addr"`
	CORSOrigins []string `toml:"cors_origins"`
	AdminToken  string   `toml:"admin_token"`

	Encryption       bool   `toml:"encryption"`
	KeyHex           string `toml:"key_hex"`
	IVMode           string `toml:"iv_mode"`
	SequencedOpcodes []int  `toml:"sequenced_opcodes"`

	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	RecvBufferSize  int    `toml:"recv_buffer_size"`
	RecvBufferMax   int    `toml:"recv_buffer_max"`
	MaxPendingSends int    `toml:"max_pending_sends"`

	DialAddr          string `toml:"dial_addr"`
	ReconnectInitial  string `toml:"reconnect_initial"`
	ReconnectMax      string `toml:"reconnect_max"`
	ReconnectAttempts int    `toml:"reconnect_attempts"`
}

type Config struct {
	ListenAddr        string
	AdminAddr         string
	CORSOrigins       []string
	AdminToken        string
	DialAddr          string
	ReconnectAttempts int
	Session           session.Config
}

func Default() Config {
	srv := server.DefaultConfig()
	sess := session.DefaultConfig()
	sess.SequencedOpcodes = messages.Sequenced()
	return Config{
		ListenAddr: srv.ListenAddr,
		AdminAddr:  srv.AdminAddr,
		DialAddr:   "127.0.0.1:7777",
		Session:    sess,
	}
}

func (c Config) Server() server.Config {
	return server.Config{
		ListenAddr:  c.ListenAddr,
		AdminAddr:   c.AdminAddr,
		CORSOrigins: c.CORSOrigins,
		AdminToken:  c.AdminToken,
		Session:     c.Session,
	}
}

func (c Config) Client() client.Config {
	cfg := client.DefaultConfig()
	cfg.Address = c.DialAddr
	cfg.MaxAttempts = c.ReconnectAttempts
	cfg.Session = c.Session
	return cfg
}

// Load reads path and applies every defined key over Default.
func Load(path string) (Config, error) {
	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
	}
	cfg, err := apply(Default(), raw, meta.IsDefined)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg Config, raw File, defined func(...string) bool) (Config, error) {
	if defined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if defined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("cors_origins") {
		cfg.CORSOrigins = normalize(raw.CORSOrigins)
	}
	if defined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if defined("dial_addr") {
		cfg.DialAddr = strings.TrimSpace(raw.DialAddr)
	}
	if defined("reconnect_attempts") {
		cfg.ReconnectAttempts = raw.ReconnectAttempts
	}

	s := &cfg.Session
	if defined("encryption") {
		s.Encryption = raw.Encryption
	}
	if defined("key_hex") {
		key, err := hex.DecodeString(strings.TrimSpace(raw.KeyHex))
		if err != nil || len(key) != secure.KeySize {
			return Config{}, ErrInvalidKeyHex
		}
		s.Key = key
	}
	if defined("iv_mode") {
		mode, err := secure.ParseIVMode(raw.IVMode)
		if err != nil {
			return Config{}, fmt.Errorf("config: iv_mode: %w", err)
		}
		s.IVMode = mode
	}
	if defined("sequenced_opcodes") {
		ops := make([]uint16, 0, len(raw.SequencedOpcodes))
		for _, op := range raw.SequencedOpcodes {
			if op < 0 || op > math.MaxUint16 {
				return Config{}, fmt.Errorf("%w: %d", ErrInvalidOpcode, op)
			}
			ops = append(ops, uint16(op))
		}
		s.SequencedOpcodes = ops
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &s.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &s.WriteTimeout},
		{"reconnect_initial", raw.ReconnectInitial, &s.Backoff.InitialDelay},
		{"reconnect_max", raw.ReconnectMax, &s.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if defined("recv_buffer_size") {
		s.RecvBufferSize = raw.RecvBufferSize
	}
	if defined("recv_buffer_max") {
		s.RecvBufferMax = raw.RecvBufferMax
	}
	if defined("max_pending_sends") {
		s.MaxPendingSends = raw.MaxPendingSends
	}
	*s = s.WithDefaults()
	return cfg, nil
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
