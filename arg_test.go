package wirerpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestArgDecode(t *testing.T) {
	payload, err := msgpack.Marshal([]int{1, 2, 3})
	require.NoError(t, err)

	arg := Arg{Method: StrMethod("sum"), ID: 4, Bytes: payload}
	var nums []int
	require.NoError(t, arg.Decode(&nums))
	assert.Equal(t, []int{1, 2, 3}, nums)
}
