package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncengine/engine/internal/codec"
)

type payload struct {
	V int `json:"v"`
}

func TestJSONRoundTrip(t *testing.T) {
	c := codec.JSON[payload]{}

	decoded, err := c.Decode(`{"v":5}`)
	require.NoError(t, err)
	assert.Equal(t, 5, decoded.V)

	encoded, err := c.Encode(payload{V: 9})
	require.NoError(t, err)
	assert.Equal(t, `{"v":9}`, encoded)
}

func TestJSONDecodeEmptyPayloadYieldsZeroValue(t *testing.T) {
	c := codec.JSON[payload]{}
	decoded, err := c.Decode("")
	require.NoError(t, err)
	assert.Equal(t, payload{}, decoded)
}

func TestJSONDecodeMalformedReturnsError(t *testing.T) {
	c := codec.JSON[payload]{}
	_, err := c.Decode("not json")
	assert.Error(t, err)
}
