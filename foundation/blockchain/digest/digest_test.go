package digest_test

import (
	"testing"

	"github.com/ardanlabs/powchain/foundation/blockchain/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownVectors(t *testing.T) {
	tt := []struct {
		name   string
		hasher digest.Hasher
		in     string
		exp    string
	}{
		{"sha256 abc", digest.SHA256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha256 empty", digest.SHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"keccak256 empty", digest.Keccak256, "", "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			got := tst.hasher.Sum([]byte(tst.in))
			assert.Equal(t, tst.exp, got)
			assert.Len(t, got, tst.hasher.HexLen())
		})
	}
}

func TestSumIsDeterministic(t *testing.T) {
	data := []byte(`{"index":0,"nonce":0,"payload":{"type":"genesis"},"previous_hash":"0","timestamp":0}`)

	for _, h := range []digest.Hasher{digest.SHA256, digest.Keccak256} {
		assert.Equal(t, h.Sum(data), h.Sum(data), h.Name())
	}
}

func TestLookup(t *testing.T) {
	h, err := digest.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, digest.SHA256.Name(), h.Name())

	h, err = digest.Lookup("KECCAK256")
	require.NoError(t, err)
	assert.Equal(t, digest.Keccak256.Name(), h.Name())

	_, err = digest.Lookup("md5")
	assert.Error(t, err)
}
