package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ramstore/wire"
)

func TakeAnyFixture(t *testing.T, rec []byte) (byte, []byte, []byte) {
	t.Helper()
	lit, body, rest := wire.TakeAny(rec)
	return lit, body, rest
}

func TestEncodeDecodeObject(t *testing.T) {
	key := Key{TableId: 7, Bytes: []byte("a/1")}
	entry := ObjectEntry{Key: key, Value: []byte("hello"), Version: 3, Timestamp: 1700000000}

	rec := EncodeObject(entry)
	lit, body, rest := TakeAnyFixture(t, rec)
	assert.Equal(t, byte(TypeObject), lit)
	assert.Equal(t, 0, len(rest))

	got, ok, err := DecodeObject(body)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestEncodeDecodeTombstone(t *testing.T) {
	key := Key{TableId: 7, Bytes: []byte("a/1")}
	entry := TombstoneEntry{Key: key, ObjectVersion: 3, SegmentId: 9, Timestamp: 1700000001}

	rec := EncodeTombstone(entry)
	lit, body, _ := TakeAnyFixture(t, rec)
	assert.Equal(t, byte(TypeTombstone), lit)

	got, ok, err := DecodeTombstone(body)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestEncodeDecodeSafeVersion(t *testing.T) {
	rec := EncodeSafeVersion(42, 1700000002)
	lit, body, _ := TakeAnyFixture(t, rec)
	assert.Equal(t, byte(TypeSafeVersion), lit)

	got, ok, err := DecodeSafeVersion(body)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), got)
}

func TestDecodeObjectDetectsChecksumMismatch(t *testing.T) {
	entry := ObjectEntry{Key: Key{TableId: 1, Bytes: []byte("k")}, Value: []byte("v"), Version: 1, Timestamp: 1}
	rec := EncodeObject(entry)
	rec[len(rec)-1] ^= 0xff // corrupt the trailing checksum byte

	_, body, _ := TakeAnyFixture(t, rec)
	_, ok, err := DecodeObject(body)
	require.NoError(t, err)
	assert.False(t, ok, "corrupted checksum must be reported, not silently accepted")
}

func TestEntryKeyExtractsWithoutFullDecode(t *testing.T) {
	key := Key{TableId: 4, Bytes: []byte("row/9")}
	entry := ObjectEntry{Key: key, Value: []byte("payload"), Version: 1, Timestamp: 1}
	rec := EncodeObject(entry)
	_, body, _ := TakeAnyFixture(t, rec)

	got, err := EntryKey(TypeObject, body)
	require.NoError(t, err)
	assert.True(t, got.Equal(key))
}
