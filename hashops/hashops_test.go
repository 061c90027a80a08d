package hashops

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyHashSentinel(t *testing.T) {
	for _, hf := range []Func{SHA256Hex, SHA3256Hex, XXHash32Hex} {
		assert.Equal(t, "", hf(""))
	}
}

func TestHashAddEmptyCollapse(t *testing.T) {
	require.Equal(t, "", HashAdd(SHA256Hex, "", ""))
	assert.NotEqual(t, "", HashAdd(SHA256Hex, "", "x"))
	assert.Equal(t, SHA256Hex(""+"x"), HashAdd(SHA256Hex, "", "x"))
	assert.Equal(t, SHA256Hex("x"+""), HashAdd(SHA256Hex, "x", ""))
}

func TestToIntFromIntRoundTrip(t *testing.T) {
	cases := []struct {
		n      int64
		length int
	}{
		{0, 4}, {1, 4}, {255, 1}, {65535, 2}, {1, 32},
	}
	for _, c := range cases {
		h := FromInt(big.NewInt(c.n), c.length)
		if c.n == 0 {
			assert.Equal(t, "", h)
			continue
		}
		assert.Len(t, h, c.length*2)
		assert.Equal(t, big.NewInt(c.n), ToInt(h))
	}
}

func TestToIntEmpty(t *testing.T) {
	assert.Equal(t, big.NewInt(0), ToInt(""))
}

func TestParitySuffix(t *testing.T) {
	h := SHA256Hex("leaf")
	suf := ParitySuffix(h, 2)
	assert.Equal(t, h[len(h)-4:], suf)
	assert.Equal(t, "", ParitySuffix("", 2))
}

func TestXORParitySelfCancel(t *testing.T) {
	h := ParitySuffix(SHA256Hex("leaf"), 2)
	assert.Equal(t, "", XORParity(h, h, 2))
}

func TestXORParityWithEmpty(t *testing.T) {
	h := ParitySuffix(SHA256Hex("leaf"), 2)
	assert.Equal(t, h, XORParity(h, "", 2))
	assert.Equal(t, h, XORParity("", h, 2))
}
