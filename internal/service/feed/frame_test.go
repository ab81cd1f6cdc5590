package feed

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKeepalive(t *testing.T) {
	assert.True(t, isKeepalive([]byte("{}")))
	assert.True(t, isKeepalive([]byte(" {} \n")))
	assert.True(t, isKeepalive(nil))
	assert.False(t, isKeepalive([]byte(`{"id":1}`)))
}

func TestDecodePublication_Object(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(
		`{"data":{"bet":{"gameId":55,"status":1,"user":{"id":7,"name":"p1"},"deposit":{"items":["skin"]}}}}`))

	ev, err := decodePublication(payload)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.NotNil(t, ev.Bet)
	assert.Equal(t, int64(55), ev.Bet.GameID)
	assert.Equal(t, statusActive, ev.Bet.Status)
	assert.Equal(t, int64(7), ev.Bet.User.ID)
	assert.Len(t, ev.Bet.Deposit.Items, 1)
}

func TestDecodePublication_StringWrapped(t *testing.T) {
	// the data field itself arrives as a JSON-encoded string
	payload := base64.StdEncoding.EncodeToString([]byte(
		`{"data":"{\"bet\":{\"gameId\":56,\"status\":1,\"user\":{\"id\":8,\"name\":\"p2\"}}}"}`))

	ev, err := decodePublication(payload)
	require.NoError(t, err)
	require.NotNil(t, ev.Bet)
	assert.Equal(t, int64(56), ev.Bet.GameID)
	assert.Equal(t, int64(8), ev.Bet.User.ID)
}

func TestDecodePublication_EmptyData(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"other":1}`))

	ev, err := decodePublication(payload)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodePublication_BadBase64(t *testing.T) {
	_, err := decodePublication("not-base64!!!")
	assert.Error(t, err)
}

func TestDecodePublication_BadJSON(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`not json`))
	_, err := decodePublication(payload)
	assert.Error(t, err)
}
