package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJIDForAddressBareDigits(t *testing.T) {
	jid, err := JIDForAddress("15551234567")
	require.NoError(t, err)
	assert.Equal(t, "15551234567", jid.User)
	assert.Equal(t, "s.whatsapp.net", jid.Server)
}

func TestJIDForAddressUserSuffix(t *testing.T) {
	jid, err := JIDForAddress("15551234567@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "15551234567", jid.User)
	assert.Equal(t, "s.whatsapp.net", jid.Server)
}

func TestJIDForAddressGroupSuffix(t *testing.T) {
	jid, err := JIDForAddress("120363045678901234@g.us")
	require.NoError(t, err)
	assert.Equal(t, "120363045678901234", jid.User)
	assert.Equal(t, "g.us", jid.Server)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "conflict", StateConflict.String())
	assert.Equal(t, "unpaired", StateUnpaired.String())
	assert.Equal(t, "other", StateOther.String())
}
