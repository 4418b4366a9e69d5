// Package messages is the bundled demo message set carried over sessions:
// ping/pong liveness, echo, and chat. Payloads use the tlv codec.
package messages

import (
	"fmt"

	"github.com/danmuck/wirelink/internal/protocol/frame"
	"github.com/danmuck/wirelink/internal/protocol/tlv"
)

const (
	OpPing      uint16 = 1
	OpPong      uint16 = 2
	OpEcho      uint16 = 3
	OpEchoReply uint16 = 4
	OpChat      uint16 = 7
)

// Sequenced lists the opcodes that carry replay protection.
func Sequenced() []uint16 {
	return []uint16{OpEcho, OpEchoReply, OpChat}
}

func Name(opcode uint16) string {
	switch opcode {
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	case OpEcho:
		return "echo"
	case OpEchoReply:
		return "echo_reply"
	case OpChat:
		return "chat"
	default:
		return fmt.Sprintf("opcode_%d", opcode)
	}
}

// Message is anything that can be laid out as a frame payload.
type Message interface {
	Opcode() uint16
	Payload() []byte
}

// Marshal lays out m as a plaintext frame ready for session.Send.
func Marshal(m Message) ([]byte, error) {
	return frame.Encode(m.Opcode(), 0, 0, m.Payload())
}

const (
	fieldNonce  uint16 = 1
	fieldSentAt uint16 = 2
	fieldData   uint16 = 1
	fieldFrom   uint16 = 1
	fieldText   uint16 = 2
)

type Ping struct {
	Nonce  uint64
	SentAt uint64 // unix millis
}

func (Ping) Opcode() uint16 { return OpPing }

func (m Ping) Payload() []byte {
	return tlv.EncodeFields(tlv.U64(fieldNonce, m.Nonce), tlv.U64(fieldSentAt, m.SentAt))
}

func DecodePing(b []byte) (Ping, error) {
	nonce, sentAt, err := decodeLiveness(b)
	return Ping{Nonce: nonce, SentAt: sentAt}, err
}

// Pong echoes the ping's nonce and timestamp back.
type Pong struct {
	Nonce  uint64
	SentAt uint64
}

func (Pong) Opcode() uint16 { return OpPong }

func (m Pong) Payload() []byte {
	return tlv.EncodeFields(tlv.U64(fieldNonce, m.Nonce), tlv.U64(fieldSentAt, m.SentAt))
}

func DecodePong(b []byte) (Pong, error) {
	nonce, sentAt, err := decodeLiveness(b)
	return Pong{Nonce: nonce, SentAt: sentAt}, err
}

func decodeLiveness(b []byte) (uint64, uint64, error) {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return 0, 0, err
	}
	nonce, err := fs.Uint64(fieldNonce)
	if err != nil {
		return 0, 0, err
	}
	sentAt, err := fs.Uint64(fieldSentAt)
	if err != nil {
		return 0, 0, err
	}
	return nonce, sentAt, nil
}

type Echo struct {
	Data []byte
}

func (Echo) Opcode() uint16 { return OpEcho }

func (m Echo) Payload() []byte {
	return tlv.EncodeFields(tlv.Bytes(fieldData, m.Data))
}

func DecodeEcho(b []byte) (Echo, error) {
	data, err := decodeData(b)
	return Echo{Data: data}, err
}

type EchoReply struct {
	Data []byte
}

func (EchoReply) Opcode() uint16 { return OpEchoReply }

func (m EchoReply) Payload() []byte {
	return tlv.EncodeFields(tlv.Bytes(fieldData, m.Data))
}

func DecodeEchoReply(b []byte) (EchoReply, error) {
	data, err := decodeData(b)
	return EchoReply{Data: data}, err
}

func decodeData(b []byte) ([]byte, error) {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return nil, err
	}
	return fs.Bytes(fieldData)
}

type Chat struct {
	From string
	Text string
}

func (Chat) Opcode() uint16 { return OpChat }

func (m Chat) Payload() []byte {
	return tlv.EncodeFields(tlv.String(fieldFrom, m.From), tlv.String(fieldText, m.Text))
}

func DecodeChat(b []byte) (Chat, error) {
	fs, err := tlv.DecodeFields(b)
	if err != nil {
		return Chat{}, err
	}
	from, err := fs.String(fieldFrom)
	if err != nil {
		return Chat{}, err
	}
	text, err := fs.String(fieldText)
	if err != nil {
		return Chat{}, err
	}
	return Chat{From: from, Text: text}, nil
}
