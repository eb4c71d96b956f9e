package kv

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

func encodeCursor(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// decodeCursor returns the encoded key a cursor points at. The key must lie
// strictly inside [start, end).
func decodeCursor(cursor string, start, end []byte) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if bytes.Compare(key, start) < 0 || bytes.Compare(key, end) >= 0 {
		return nil, ErrInvalidCursor
	}
	return key, nil
}

// Versionstamps are fixed-width hex so they compare lexicographically.
func formatVersionstamp(seq uint64) string {
	return fmt.Sprintf("%016x", seq)
}

const stampLen = 8

// packValue prefixes value with the big-endian commit sequence.
func packValue(seq uint64, value []byte) []byte {
	out := make([]byte, stampLen+len(value))
	binary.BigEndian.PutUint64(out, seq)
	copy(out[stampLen:], value)
	return out
}

func unpackValue(raw []byte) (string, []byte, error) {
	if len(raw) < stampLen {
		return "", nil, fmt.Errorf("kv: stored value too short (%d bytes)", len(raw))
	}
	value := make([]byte, len(raw)-stampLen)
	copy(value, raw[stampLen:])
	return formatVersionstamp(binary.BigEndian.Uint64(raw[:stampLen])), value, nil
}

func newEntry(encKey, raw []byte) (Entry, error) {
	key, err := DecodeKey(encKey)
	if err != nil {
		return Entry{}, err
	}
	stamp, value, err := unpackValue(raw)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Value: value, Versionstamp: stamp}, nil
}
