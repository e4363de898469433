package util

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashUUID(t *testing.T) {
	type rec struct {
		Order  int
		Depths []int
	}
	a, err := HashUUID(rec{1, []int{3, 4}})
	require.NoError(t, err)
	b, err := HashUUID(rec{1, []int{3, 4}})
	require.NoError(t, err)
	c, err := HashUUID(rec{2, []int{3, 4}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, uuid.Nil, a)
	assert.Equal(t, uuid.Version(3), a.Version())

	_, err = HashUUID(func() {})
	assert.Error(t, err)
}
