package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/danmuck/wirelink/internal/messages"
	"github.com/danmuck/wirelink/internal/protocol/secure"
	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/danmuck/wirelink/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wirectl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
listen_addr = "127.0.0.1:9000"
admin_token = " ops-token "
encryption = false
sequenced_opcodes = [3, 7]
write_timeout = "2s"
max_pending_sends = 16
reconnect_attempts = 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.ListenAddr != "127.0.0.1:9000" || cfg.AdminAddr != def.AdminAddr {
		t.Fatalf("unexpected addrs listen=%q admin=%q", cfg.ListenAddr, cfg.AdminAddr)
	}
	if cfg.Session.Encryption {
		t.Fatalf("encryption should be off")
	}
	if !slices.Equal(cfg.Session.SequencedOpcodes, []uint16{3, 7}) {
		t.Fatalf("unexpected opcodes %v", cfg.Session.SequencedOpcodes)
	}
	if cfg.Session.WriteTimeout != 2*time.Second || cfg.Session.MaxPendingSends != 16 {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if !bytes.Equal(cfg.Session.Key, session.DefaultKey) {
		t.Fatalf("key should keep its default")
	}

	cc := cfg.Client()
	if cc.Address != def.DialAddr || cc.MaxAttempts != 4 || cc.DialTimeout <= 0 {
		t.Fatalf("unexpected client config %+v", cc)
	}
	if sc := cfg.Server(); sc.ListenAddr != cfg.ListenAddr || sc.AdminToken != "ops-token" || sc.Session.Encryption {
		t.Fatalf("unexpected server config %+v", sc)
	}
}

func TestLoadKeyAndIVMode(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
key_hex = "000102030405060708090a0b0c0d0e0f"
iv_mode = "derived"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Key[15] != 0x0f || cfg.Session.IVMode != secure.IVDerived {
		t.Fatalf("unexpected key=%x mode=%s", cfg.Session.Key, cfg.Session.IVMode)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		body string
		want error
	}{
		{"short key", `key_hex = "0011"`, ErrInvalidKeyHex},
		{"not hex", `key_hex = "zz0102030405060708090a0b0c0d0e0f"`, ErrInvalidKeyHex},
		{"iv mode", `iv_mode = "random"`, secure.ErrInvalidIVMode},
		{"opcode", `sequenced_opcodes = [70000]`, ErrInvalidOpcode},
		{"unknown", `listen = ":1"`, ErrUnknownKey},
		{"small buffer", `recv_buffer_max = 128`, session.ErrRecvBufferTooSmall},
	}
	for _, tc := range cases {
		if _, err := Load(writeFile(t, tc.body)); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if _, err := Load(writeFile(t, `read_timeout = "soon"`)); err == nil {
		t.Fatalf("expected duration parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestTemplateLoadsBackToDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "wirectl.toml")
	if err := WriteTemplate(path, Default(), false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, Default(), false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := Default()
	if cfg.ListenAddr != def.ListenAddr || cfg.DialAddr != def.DialAddr {
		t.Fatalf("addrs drifted: %+v", cfg)
	}
	if !bytes.Equal(cfg.Session.Key, def.Session.Key) || cfg.Session.IVMode != def.Session.IVMode {
		t.Fatalf("crypto settings drifted")
	}
	if !slices.Equal(cfg.Session.SequencedOpcodes, messages.Sequenced()) {
		t.Fatalf("opcodes drifted: %v", cfg.Session.SequencedOpcodes)
	}
	if cfg.Session.WriteTimeout != def.Session.WriteTimeout || cfg.Session.Backoff != def.Session.Backoff {
		t.Fatalf("durations drifted: %+v", cfg.Session)
	}
}
