package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	t.Run("zero non-empty slice", func(t *testing.T) {
		b := []byte{1, 2, 3, 4, 5}
		Zero(b)
		assert.Equal(t, []byte{0, 0, 0, 0, 0}, b)
	})

	t.Run("zero nil slice", func(t *testing.T) {
		var b []byte
		assert.NotPanics(t, func() { Zero(b) })
	})
}

func TestTenantKey_Wipe(t *testing.T) {
	key := []byte{9, 9, 9}
	k := &TenantKey{Key: key}

	k.Wipe()

	assert.Nil(t, k.Key)
	assert.Equal(t, []byte{0, 0, 0}, key)

	var nilKey *TenantKey
	assert.NotPanics(t, func() { nilKey.Wipe() })
}
