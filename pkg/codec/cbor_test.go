package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	B string `cbor:"2,keyasint"`
	A string `cbor:"1,keyasint"`
	C int    `cbor:"3,keyasint,omitempty"`
}

func TestMarshal_Deterministic(t *testing.T) {
	first, err := Marshal(sample{A: "a", B: "b"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Marshal(sample{B: "b", A: "a"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	fromMap, err := Marshal(map[int]string{2: "b", 1: "a"})
	require.NoError(t, err)
	assert.Equal(t, first, fromMap, "struct and map with the same keys encode identically")
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	data, err := Marshal(sample{A: "x", B: "y", C: 7})
	require.NoError(t, err)

	var got sample
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, sample{A: "x", B: "y", C: 7}, got)
}

func TestUnmarshal_RejectsDuplicateKeys(t *testing.T) {
	// {1: "a", 1: "b"}
	data := []byte{0xa2, 0x01, 0x61, 'a', 0x01, 0x61, 'b'}

	var got map[int]string
	assert.Error(t, Unmarshal(data, &got))
}

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	var got sample
	assert.Error(t, Unmarshal([]byte{0xff, 0x00}, &got))
}
