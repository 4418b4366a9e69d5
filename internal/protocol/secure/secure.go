// Package secure implements the session crypto engine: AES-128-CBC with
// PKCS#7 padding for confidentiality and HMAC-SHA256 tags for integrity.
//
// The engine is immutable after Init and safe for concurrent use.
//
// The IV is derived deterministically from the key and reused for every
// message. IVFromKey (IV == key) is what deployed peers speak. IVDerived
// separates the IV from the key via HKDF but is still static per key, so
// identical plaintext prefixes still produce identical ciphertext prefixes.
// A per-frame random IV would need a wire format change.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = 16
	BlockSize = aes.BlockSize
	TagSize   = sha256.Size

	ivInfo = "wirelink-iv"
)

var (
	ErrInvalidKeyLength   = errors.New("secure: key must be 16 bytes")
	ErrNotInitialized     = errors.New("secure: engine not initialized")
	ErrAlreadyInitialized = errors.New("secure: engine already initialized")
	ErrEmptyInput         = errors.New("secure: empty input")
	ErrNotBlockAligned    = errors.New("secure: ciphertext not a multiple of block size")
	ErrBadPadding         = errors.New("secure: malformed padding")
	ErrTagRange           = errors.New("secure: tag range out of bounds")
	ErrInvalidIVMode      = errors.New("secure: invalid iv mode")
)

// IVMode selects how the initialization block is derived from the key.
type IVMode uint8

const (
	IVFromKey IVMode = iota
	IVDerived
)

func (m IVMode) String() string {
	switch m {
	case IVFromKey:
		return "key"
	case IVDerived:
		return "derived"
	default:
		return fmt.Sprintf("ivmode(%d)", uint8(m))
	}
}

func ParseIVMode(raw string) (IVMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "key":
		return IVFromKey, nil
	case "derived", "hkdf":
		return IVDerived, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidIVMode, raw)
	}
}

type Option func(*Engine)

func WithIVMode(mode IVMode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

type Engine struct {
	key         [KeySize]byte
	iv          [BlockSize]byte
	block       cipher.Block
	mode        IVMode
	initialized bool
}

// New returns an initialized engine.
func New(key []byte, opts ...Option) (*Engine, error) {
	e := &Engine{}
	if err := e.Init(key, opts...); err != nil {
		return nil, err
	}
	return e, nil
}

// Init validates key and derives the IV. An engine can be initialized once.
func (e *Engine) Init(key []byte, opts ...Option) error {
	if e.initialized {
		return ErrAlreadyInitialized
	}
	if len(key) != KeySize {
		return fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(key))
	}
	for _, opt := range opts {
		opt(e)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	copy(e.key[:], key)
	switch e.mode {
	case IVFromKey:
		copy(e.iv[:], key)
	case IVDerived:
		r := hkdf.New(sha256.New, key, nil, []byte(ivInfo))
		if _, err := io.ReadFull(r, e.iv[:]); err != nil {
			return fmt.Errorf("secure: derive iv: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidIVMode, e.mode)
	}
	e.block = block
	e.initialized = true
	return nil
}

func (e *Engine) Initialized() bool {
	return e != nil && e.initialized
}

func (e *Engine) Mode() IVMode {
	return e.mode
}

// EncryptedSize is the exact ciphertext length for a plaintext of n bytes.
// Padding always adds at least one byte, so aligned input gains a full block.
func EncryptedSize(n int) int {
	return ((n / BlockSize) + 1) * BlockSize
}

func (e *Engine) Encrypt(plaintext []byte) ([]byte, error) {
	if !e.Initialized() {
		return nil, ErrNotInitialized
	}
	if len(plaintext) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]byte, EncryptedSize(len(plaintext)))
	copy(out, plaintext)
	pad := byte(len(out) - len(plaintext))
	for i := len(plaintext); i < len(out); i++ {
		out[i] = pad
	}
	cipher.NewCBCEncrypter(e.block, e.iv[:]).CryptBlocks(out, out)
	return out, nil
}

func (e *Engine) Decrypt(ciphertext []byte) ([]byte, error) {
	if !e.Initialized() {
		return nil, ErrNotInitialized
	}
	if len(ciphertext) == 0 {
		return nil, ErrEmptyInput
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: len=%d", ErrNotBlockAligned, len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(e.block, e.iv[:]).CryptBlocks(out, ciphertext)
	n, err := unpad(out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// unpad returns the plaintext length. All pad bytes are checked.
func unpad(b []byte) (int, error) {
	pad := int(b[len(b)-1])
	if pad == 0 || pad > BlockSize || pad > len(b) {
		return 0, ErrBadPadding
	}
	var bad byte
	for _, v := range b[len(b)-pad:] {
		bad |= v ^ byte(pad)
	}
	if bad != 0 {
		return 0, ErrBadPadding
	}
	return len(b) - pad, nil
}

// Tag computes the HMAC-SHA256 tag over data[offset:offset+length].
func (e *Engine) Tag(data []byte, offset, length int) ([TagSize]byte, error) {
	var tag [TagSize]byte
	if !e.Initialized() {
		return tag, ErrNotInitialized
	}
	if offset < 0 || length < 0 || offset > len(data) || length > len(data)-offset {
		return tag, fmt.Errorf("%w: offset=%d length=%d len=%d", ErrTagRange, offset, length, len(data))
	}
	mac := hmac.New(sha256.New, e.key[:])
	mac.Write(data[offset : offset+length])
	copy(tag[:], mac.Sum(nil))
	return tag, nil
}

// VerifyTag recomputes the tag and compares it in constant time.
func (e *Engine) VerifyTag(data []byte, offset, length int, claimed []byte) bool {
	tag, err := e.Tag(data, offset, length)
	if err != nil || len(claimed) != TagSize {
		return false
	}
	return subtle.ConstantTimeCompare(tag[:], claimed) == 1
}
