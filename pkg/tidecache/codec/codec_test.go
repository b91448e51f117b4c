package codec

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
)

func randPayload(t *testing.T, n int, seed uint64) []byte {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed^0xDEADBEEF))
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(r.IntN(256))
	}
	return buf
}

func TestBinaryRoundTripNoCompression(t *testing.T) {
	c := New(WithFormat(Binary))
	expire := int64(123)
	e := entry.New("hello", []byte("world"), []string{"b", "a"}, &expire, 10)

	data, compressed, err := c.EncodeEnvelope(e)
	require.NoError(t, err)
	require.False(t, compressed)

	got, err := c.DecodeEnvelope(data, compressed)
	require.NoError(t, err)

	require.Equal(t, e.Key, got.Key)
	require.Equal(t, e.Payload, got.Payload)
	require.Equal(t, e.CreatedAt, got.CreatedAt)
	require.Equal(t, e.AccessedAt, got.AccessedAt)
	require.Equal(t, e.AccessCount, got.AccessCount)
	require.Equal(t, *e.ExpireTime, *got.ExpireTime)
	if diff := cmp.Diff(e.TagSlice(), got.TagSlice()); diff != "" {
		t.Fatalf("tag mismatch (-want +got):\n%s", diff)
	}
}

func TestBinaryRoundTripWithLZ4(t *testing.T) {
	c := New(WithFormat(Binary), WithCompressor(LZ4Compressor{}), WithThreshold(16))
	payload := bytes.Repeat([]byte("compress-me-"), 200) // compresses well
	e := entry.New("k", payload, nil, nil, 1)

	data, compressed, err := c.EncodeEnvelope(e)
	require.NoError(t, err)
	require.True(t, compressed)

	got, err := c.DecodeEnvelope(data, compressed)
	require.NoError(t, err)
	require.Equal(t, payload, got.Payload)
}

func TestCompressionSkippedBelowThreshold(t *testing.T) {
	c := New(WithCompressor(LZ4Compressor{}), WithThreshold(1024))
	e := entry.New("k", []byte("short"), nil, nil, 1)
	_, compressed, err := c.EncodeEnvelope(e)
	require.NoError(t, err)
	require.False(t, compressed)
}

func TestCompressionSkippedWhenNotBeneficial(t *testing.T) {
	c := New(WithCompressor(LZ4Compressor{}), WithThreshold(16))
	// Random bytes rarely compress below 90% of input size.
	payload := randPayload(t, 4096, 42)
	e := entry.New("k", payload, nil, nil, 1)
	_, compressed, err := c.EncodeEnvelope(e)
	require.NoError(t, err)
	require.False(t, compressed)
}

func TestJSONRoundTrip(t *testing.T) {
	c := New(WithFormat(JSON))
	e := entry.New("json-key", []byte{0x01, 0x02, 0x03}, []string{"x"}, nil, 5)

	data, compressed, err := c.EncodeEnvelope(e)
	require.NoError(t, err)
	require.False(t, compressed)

	got, err := c.DecodeEnvelope(data, compressed)
	require.NoError(t, err)
	require.Equal(t, e.Payload, got.Payload)
	require.Equal(t, e.Key, got.Key)
}

func TestZstdRoundTrip(t *testing.T) {
	z, err := NewZstdCompressor()
	require.NoError(t, err)
	c := New(WithCompressor(z), WithThreshold(16))
	payload := bytes.Repeat([]byte("zstd-payload-"), 300)
	e := entry.New("k", payload, nil, nil, 1)

	data, compressed, err := c.EncodeEnvelope(e)
	require.NoError(t, err)
	require.True(t, compressed)

	got, err := c.DecodeEnvelope(data, compressed)
	require.NoError(t, err)
	require.Equal(t, payload, got.Payload)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	c := New()
	_, err := c.DecodeEnvelope([]byte("not a valid envelope"), false)
	require.ErrorIs(t, err, ErrDeserialization)
}

// Round-trip property across many random (key, payload) pairs.
func TestRoundTripProperty(t *testing.T) {
	z, err := NewZstdCompressor()
	require.NoError(t, err)
	c := New(WithCompressor(z), WithThreshold(8))

	for i := 0; i < 50; i++ {
		n := i * 37 % 4096
		payload := randPayload(t, n, uint64(i)+1)
		e := entry.New("prop-key", payload, []string{"t1"}, nil, int64(i))
		data, compressed, err := c.EncodeEnvelope(e)
		require.NoError(t, err)
		got, err := c.DecodeEnvelope(data, compressed)
		require.NoError(t, err)
		require.Equal(t, payload, got.Payload)
	}
}
