package kv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Key is an ordered tuple of parts. Parts are string or int64 (int is
// accepted and widened). Encoded keys sort the same way the tuples do:
// part by part, strings bytewise and integers numerically.
type Key []any

var (
	ErrInvalidKey = errors.New("kv: invalid key")
)

const (
	tagString byte = 0x02
	tagInt    byte = 0x14

	// escape for 0x00 inside string parts
	escapeByte byte = 0xFF
	// upper bound for prefix ranges; greater than every part tag
	rangeEnd byte = 0xFF
)

// Encode returns the order-preserving binary form of k.
func (k Key) Encode() ([]byte, error) {
	var buf bytes.Buffer
	for i, part := range k {
		switch v := part.(type) {
		case string:
			buf.WriteByte(tagString)
			for j := 0; j < len(v); j++ {
				buf.WriteByte(v[j])
				if v[j] == 0x00 {
					buf.WriteByte(escapeByte)
				}
			}
			buf.WriteByte(0x00)
		case int64:
			writeInt(&buf, v)
		case int:
			writeInt(&buf, int64(v))
		default:
			return nil, fmt.Errorf("%w: part %d has unsupported type %T", ErrInvalidKey, i, part)
		}
	}
	return buf.Bytes(), nil
}

func writeInt(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)^(1<<63))
	buf.WriteByte(tagInt)
	buf.Write(b[:])
}

// DecodeKey is the inverse of Key.Encode. Integer parts decode as int64.
func DecodeKey(b []byte) (Key, error) {
	key := Key{}
	for i := 0; i < len(b); {
		switch b[i] {
		case tagString:
			i++
			var part []byte
			for {
				if i >= len(b) {
					return nil, fmt.Errorf("%w: unterminated string part", ErrInvalidKey)
				}
				c := b[i]
				if c == 0x00 {
					if i+1 < len(b) && b[i+1] == escapeByte {
						part = append(part, 0x00)
						i += 2
						continue
					}
					i++
					break
				}
				part = append(part, c)
				i++
			}
			key = append(key, string(part))
		case tagInt:
			if i+9 > len(b) {
				return nil, fmt.Errorf("%w: truncated int part", ErrInvalidKey)
			}
			key = append(key, int64(binary.BigEndian.Uint64(b[i+1:i+9])^(1<<63)))
			i += 9
		default:
			return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidKey, b[i])
		}
	}
	return key, nil
}

// String renders the key for logs and error messages.
func (k Key) String() string {
	return fmt.Sprint([]any(k))
}

// prefixRange returns the [start, end) byte range holding every key that
// strictly extends prefix.
func prefixRange(prefix Key) (start, end []byte, err error) {
	enc, err := prefix.Encode()
	if err != nil {
		return nil, nil, err
	}
	start = append(append([]byte{}, enc...), 0x00)
	end = append(append([]byte{}, enc...), rangeEnd)
	return start, end, nil
}

// successor returns the smallest key that sorts after b.
func successor(b []byte) []byte {
	return append(append([]byte{}, b...), 0x00)
}
