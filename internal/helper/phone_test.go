package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneStripsFormatting(t *testing.T) {
	got, err := NormalizePhone("+1 (555) 123-4567")
	require.NoError(t, err)
	assert.Equal(t, "15551234567", got)
}

func TestNormalizePhoneKeepsUserSuffix(t *testing.T) {
	got, err := NormalizePhone("15551234567@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "15551234567@s.whatsapp.net", got)
}

func TestNormalizePhoneDropsZeroAfterCountryCode(t *testing.T) {
	// Three-digit country code followed by a domestic leading zero.
	got, err := NormalizePhone("+212 0655-123456")
	require.NoError(t, err)
	assert.Equal(t, "212655123456", got)

	// Two-digit country code.
	got, err = NormalizePhone("62 0812 3456 789")
	require.NoError(t, err)
	assert.Equal(t, "628123456789", got)
}

func TestNormalizePhoneKeepsLegitimateZero(t *testing.T) {
	// Zeros past the country-code positions are part of the number.
	got, err := NormalizePhone("15551230456")
	require.NoError(t, err)
	assert.Equal(t, "15551230456", got)
}

func TestNormalizePhoneGroupSkipsZeroCorrection(t *testing.T) {
	got, err := NormalizePhone("120363045678901234@g.us")
	require.NoError(t, err)
	assert.Equal(t, "120363045678901234@g.us", got)
}

func TestNormalizePhoneRejectsShortInput(t *testing.T) {
	for _, raw := range []string{"", "123", "12-34-56", "abc-def", "+++"} {
		_, err := NormalizePhone(raw)
		assert.ErrorIs(t, err, ErrInvalidAddress, "input %q", raw)
	}
}

func TestIsGroupAddress(t *testing.T) {
	assert.True(t, IsGroupAddress("120363045678901234@g.us"))
	assert.False(t, IsGroupAddress("15551234567@s.whatsapp.net"))
	assert.False(t, IsGroupAddress("15551234567"))
}
