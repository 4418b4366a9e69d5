package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ToFile renders cfg in its on-disk shape.
func ToFile(cfg Config) File {
	s := cfg.Session
	ops := make([]int, 0, len(s.SequencedOpcodes))
	for _, op := range s.SequencedOpcodes {
		ops = append(ops, int(op))
	}
	return File{
		ListenAddr:        cfg.ListenAddr,
		AdminAddr:         cfg.AdminAddr,
		CORSOrigins:       cfg.CORSOrigins,
		AdminToken:        cfg.AdminToken,
		Encryption:        s.Encryption,
		KeyHex:            hex.EncodeToString(s.Key),
		IVMode:            s.IVMode.String(),
		SequencedOpcodes:  ops,
		ReadTimeout:       s.ReadTimeout.String(),
		WriteTimeout:      s.WriteTimeout.String(),
		RecvBufferSize:    s.RecvBufferSize,
		RecvBufferMax:     s.RecvBufferMax,
		MaxPendingSends:   s.MaxPendingSends,
		DialAddr:          cfg.DialAddr,
		ReconnectInitial:  s.Backoff.InitialDelay.String(),
		ReconnectMax:      s.Backoff.MaxDelay.String(),
		ReconnectAttempts: cfg.ReconnectAttempts,
	}
}

// Template renders cfg as TOML.
func Template(cfg Config) (string, error) {
	out, err := toml.Marshal(ToFile(cfg))
	if err != nil {
		return "", fmt.Errorf("config: render template: %w", err)
	}
	return string(out), nil
}

func WriteTemplate(path string, cfg Config, overwrite bool) error {
	template, err := Template(cfg)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
