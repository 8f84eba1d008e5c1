package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneSlice(t *testing.T) {
	assert := assert.New(t)

	src := []byte("AT+ID?")
	clone := CloneSlice(src, 0)
	assert.Equal(src, clone)

	src[0] = 'X'
	assert.Equal(byte('A'), clone[0], "clone must not alias the source")

	padded := CloneSlice([]byte{1, 2}, 4)
	assert.Equal([]byte{1, 2, 0, 0}, padded)

	assert.Empty(CloneSlice([]byte{}, 0))
}
