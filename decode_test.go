package wirerpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArrayLen(t *testing.T) {
	tt := []struct {
		name    string
		input   []byte
		want    int
		wantN   int
		wantErr bool
	}{
		{"fixarray", []byte{0x93}, 3, 1, false},
		{"emptyFixarray", []byte{0x90}, 0, 1, false},
		{"array16", []byte{0xdc, 0x01, 0x00}, 256, 3, false},
		{"array32", []byte{0xdd, 0x00, 0x00, 0x01, 0x00}, 256, 5, false},
		{"notAnArray", []byte{0xc0}, 0, 0, true},
		{"empty", nil, 0, 0, true},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, n, err := decodeArrayLen(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantN, n)
		})
	}
}

func TestDecodeValueScalars(t *testing.T) {
	tt := []struct {
		name  string
		input []byte
		want  any
		wantN int
	}{
		{"positiveFixint", []byte{0x05}, uint64(5), 1},
		{"negativeFixint", []byte{0xff}, int64(-1), 1},
		{"nilValue", []byte{0xc0}, nil, 1},
		{"uint8", []byte{0xcc, 0x80}, uint64(128), 2},
		{"uint32", []byte{0xce, 0x00, 0x01, 0x00, 0x00}, uint64(65536), 5},
		{"int8", []byte{0xd0, 0xf6}, int64(-10), 2},
		{"fixstr", append([]byte{0xa3}, "abc"...), "abc", 4},
		{"str8", append([]byte{0xd9, 0x02}, "hi"...), "hi", 4},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, n, err := decodeValue(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantN, n)
		})
	}
}

func TestDecodeMethodAt(t *testing.T) {
	m, n, err := decodeMethodAt([]byte{0x07})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, m.Is(7))

	m, n, err = decodeMethodAt(append([]byte{0xa3}, "add"...))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, m.IsStr("add"))

	_, _, err = decodeMethodAt([]byte{0xc0})
	assert.Error(t, err)
}

func TestDecodeErrorAt(t *testing.T) {
	msg, isErr, n, err := decodeErrorAt([]byte{0xc0})
	require.NoError(t, err)
	assert.False(t, isErr)
	assert.Empty(t, msg)
	assert.Equal(t, 1, n)

	msg, isErr, n, err = decodeErrorAt(append([]byte{0xa4}, "boom"...))
	require.NoError(t, err)
	assert.True(t, isErr)
	assert.Equal(t, "boom", msg)
	assert.Equal(t, 5, n)
}
