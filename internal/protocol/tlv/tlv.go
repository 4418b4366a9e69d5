// Package tlv is the payload codec for the bundled message set: a flat list
// of id|type|length|value fields. Unknown field ids are preserved.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is id(2) | type(1) | length(4), big-endian.
const HeaderLen = 7

var (
	ErrShortFieldHeader  = errors.New("tlv: short field header")
	ErrShortFieldValue   = errors.New("tlv: short field value")
	ErrFieldTypeMismatch = errors.New("tlv: field type mismatch")
	ErrInvalidLength     = errors.New("tlv: invalid value length")
	ErrInvalidBool       = errors.New("tlv: invalid bool value")
	ErrMissingField      = errors.New("tlv: missing field")
)

const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded TLV field. Value is owned by the field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

// Fields is a decoded payload in wire order.
type Fields []Field

// AppendField appends the wire form of f to dst.
func AppendField(dst []byte, f Field) []byte {
	var head [HeaderLen]byte
	binary.BigEndian.PutUint16(head[0:2], f.ID)
	head[2] = f.Type
	binary.BigEndian.PutUint32(head[3:7], uint32(len(f.Value)))
	dst = append(dst, head[:]...)
	return append(dst, f.Value...)
}

func EncodeFields(fields ...Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// DecodeFields parses payload. Values are copied so the result may outlive
// payload.
func DecodeFields(payload []byte) (Fields, error) {
	fields := make(Fields, 0, 4)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, fmt.Errorf("%w: offset=%d", ErrShortFieldHeader, i)
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint64(len(payload)-i) < uint64(l) {
			return nil, fmt.Errorf("%w: field=%d len=%d", ErrShortFieldValue, id, l)
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// Get returns the first field with id.
func (fs Fields) Get(id uint16) (Field, bool) {
	for _, f := range fs {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func (fs Fields) String(id uint16) (string, error) {
	f, err := fs.require(id)
	if err != nil {
		return "", err
	}
	return f.String()
}

func (fs Fields) Uint32(id uint16) (uint32, error) {
	f, err := fs.require(id)
	if err != nil {
		return 0, err
	}
	return f.Uint32()
}

func (fs Fields) Uint64(id uint16) (uint64, error) {
	f, err := fs.require(id)
	if err != nil {
		return 0, err
	}
	return f.Uint64()
}

func (fs Fields) Bytes(id uint16) ([]byte, error) {
	f, err := fs.require(id)
	if err != nil {
		return nil, err
	}
	return f.Bytes()
}

func (fs Fields) require(id uint16) (Field, error) {
	f, ok := fs.Get(id)
	if !ok {
		return Field{}, fmt.Errorf("%w: id=%d", ErrMissingField, id)
	}
	return f, nil
}
