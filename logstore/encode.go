package logstore

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"ramstore/wire"
)

var (
	ErrBadEntry     = errors.New("logstore: malformed entry body")
	ErrChecksum     = errors.New("logstore: checksum mismatch")
	ErrWrongType    = errors.New("logstore: entry type mismatch")
)

// keyBytes serializes a Key as tableId(8) followed by a 'K' TLV record holding keyBytes.
func keyBytes(k Key) []byte {
	var tid [8]byte
	binary.BigEndian.PutUint64(tid[:], k.TableId)
	return wire.Concat(tid[:], wire.Record('K', k.Bytes))
}

func parseKey(b []byte) (Key, []byte, error) {
	if len(b) < 8 {
		return Key{}, nil, ErrBadEntry
	}
	tid := binary.BigEndian.Uint64(b[:8])
	body, rest := wire.Take('K', b[8:])
	if body == nil {
		return Key{}, nil, ErrBadEntry
	}
	return Key{TableId: tid, Bytes: body}, rest, nil
}

// encodeBody lays out the fields common to every entry type: a 4-byte
// creation timestamp followed by type-specific fields, followed by an
// 8-byte checksum of everything preceding it (spec.md 6).
func encodeBody(timestamp uint32, fields []byte) []byte {
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], timestamp)
	payload := wire.Concat(ts[:], fields)
	sum := wire.Checksum(payload)
	var cs [8]byte
	binary.BigEndian.PutUint64(cs[:], sum)
	return wire.Concat(payload, cs[:])
}

func splitBody(body []byte) (timestamp uint32, fields []byte, checksumOK bool, err error) {
	if len(body) < 4+8 {
		return 0, nil, false, ErrBadEntry
	}
	payload := body[:len(body)-8]
	wantBytes := body[len(body)-8:]
	want := binary.BigEndian.Uint64(wantBytes)
	timestamp = binary.BigEndian.Uint32(payload[:4])
	fields = payload[4:]
	checksumOK = wire.VerifyChecksum(payload, want)
	return
}

// EncodeObject serializes an object entry to its on-disk/in-log form.
func EncodeObject(e ObjectEntry) []byte {
	var ver [8]byte
	binary.BigEndian.PutUint64(ver[:], e.Version)
	fields := wire.Concat(keyBytes(e.Key), ver[:], wire.Record('B', e.Value))
	body := encodeBody(e.Timestamp, fields)
	return wire.Record(byte(TypeObject), body)
}

// DecodeObject parses an object entry body (post-TLV-unwrap, i.e. what
// GetEntry returns for a TypeObject reference).
func DecodeObject(body []byte) (ObjectEntry, bool, error) {
	timestamp, fields, ok, err := splitBody(body)
	if err != nil {
		return ObjectEntry{}, false, err
	}
	key, rest, err := parseKey(fields)
	if err != nil {
		return ObjectEntry{}, ok, err
	}
	if len(rest) < 8 {
		return ObjectEntry{}, ok, ErrBadEntry
	}
	version := binary.BigEndian.Uint64(rest[:8])
	value, _ := wire.Take('B', rest[8:])
	if value == nil {
		return ObjectEntry{}, ok, ErrBadEntry
	}
	return ObjectEntry{Key: key, Value: value, Version: version, Timestamp: timestamp}, ok, nil
}

// EncodeTombstone serializes a tombstone entry.
func EncodeTombstone(e TombstoneEntry) []byte {
	var ver, seg [8]byte
	binary.BigEndian.PutUint64(ver[:], e.ObjectVersion)
	binary.BigEndian.PutUint64(seg[:], e.SegmentId)
	fields := wire.Concat(keyBytes(e.Key), ver[:], seg[:])
	body := encodeBody(e.Timestamp, fields)
	return wire.Record(byte(TypeTombstone), body)
}

// DecodeTombstone parses a tombstone entry body.
func DecodeTombstone(body []byte) (TombstoneEntry, bool, error) {
	timestamp, fields, ok, err := splitBody(body)
	if err != nil {
		return TombstoneEntry{}, false, err
	}
	key, rest, err := parseKey(fields)
	if err != nil {
		return TombstoneEntry{}, ok, err
	}
	if len(rest) < 16 {
		return TombstoneEntry{}, ok, ErrBadEntry
	}
	version := binary.BigEndian.Uint64(rest[:8])
	segmentId := binary.BigEndian.Uint64(rest[8:16])
	return TombstoneEntry{Key: key, ObjectVersion: version, SegmentId: segmentId, Timestamp: timestamp}, ok, nil
}

// EncodeSafeVersion serializes the single-u64 SafeVersion high-water mark.
func EncodeSafeVersion(value uint64, timestamp uint32) []byte {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], value)
	body := encodeBody(timestamp, v[:])
	return wire.Record(byte(TypeSafeVersion), body)
}

// DecodeSafeVersion parses a SafeVersion entry body.
func DecodeSafeVersion(body []byte) (value uint64, ok bool, err error) {
	_, fields, ok, err := splitBody(body)
	if err != nil {
		return 0, false, err
	}
	if len(fields) < 8 {
		return 0, ok, ErrBadEntry
	}
	return binary.BigEndian.Uint64(fields[:8]), ok, nil
}

// EntryKey extracts the embedded key from an OBJECT or TOMBSTONE entry
// body without fully decoding it; used by index primitives (spec.md 4.B)
// which only need the key to compare candidates.
func EntryKey(t EntryType, body []byte) (Key, error) {
	_, fields, _, err := splitBody(body)
	if err != nil {
		return Key{}, err
	}
	switch t {
	case TypeObject, TypeTombstone:
		key, _, err := parseKey(fields)
		return key, err
	default:
		return Key{}, ErrWrongType
	}
}
