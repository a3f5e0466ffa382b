package crypto_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wekeepgrowing/bursar/internal/infrastructure/crypto"
)

var testKey = strings.Repeat("ab", 32)

func TestNewAESGCM(t *testing.T) {
	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{name: "valid", key: testKey, ok: true},
		{name: "not hex", key: strings.Repeat("zz", 32)},
		{name: "too short", key: "abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := crypto.NewAESGCM(tt.key)
			if tt.ok {
				require.NoError(t, err)
				assert.NotNil(t, c)
				return
			}
			assert.ErrorIs(t, err, crypto.ErrInvalidKey)
		})
	}
}

func TestAESGCM_SealOpen(t *testing.T) {
	c, err := crypto.NewAESGCM(testKey)
	require.NoError(t, err)

	sealed, nonce, err := c.Seal("pm_card_visa", "card:1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "pm_card_visa")

	plain, err := c.Open(sealed, nonce, "card:1")
	require.NoError(t, err)
	assert.Equal(t, "pm_card_visa", plain)

	_, err = c.Open(sealed, nonce, "card:2")
	assert.Error(t, err)

	_, err = c.Open("%%%", nonce, "card:1")
	assert.ErrorIs(t, err, crypto.ErrInvalidSealed)

	again, _, err := c.Seal("pm_card_visa", "card:1")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}
