package ticket

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "super-secret"

// issue builds a well-formed ticket from raw header and claims bytes.
func issue(t *testing.T, key string, header, claims []byte) string {
	t.Helper()
	h := base64.RawURLEncoding.EncodeToString(header)
	c := base64.RawURLEncoding.EncodeToString(claims)
	return h + "." + c + "." + Sign(key, h+"."+c)
}

func TestVerify_RoundTrip(t *testing.T) {
	claims := map[string]any{
		"channel_name": "presence-room",
		"user_id":      "u1",
		"user_info":    map[string]any{"name": "Ada"},
	}
	claimsJSON, err := json.Marshal(claims)
	require.NoError(t, err)

	token := issue(t, testKey, []byte(`{"alg":"HS256"}`), claimsJSON)

	payload, err := Verify(token, testKey)
	require.NoError(t, err)
	require.NotNil(t, payload.Claims)
	assert.Equal(t, "presence-room", payload.Claims.ChannelName)
	assert.Equal(t, "u1", payload.Claims.UserID)
	assert.JSONEq(t, `{"name":"Ada"}`, string(payload.Claims.UserInfo))
	assert.JSONEq(t, string(claimsJSON), payload.Raw)
}

func TestVerify_MalformedStructure(t *testing.T) {
	for _, token := range []string{
		"",
		"only-one-segment",
		"two.segments",
		"four.whole.dot.segments",
	} {
		_, err := Verify(token, testKey)
		assert.ErrorIs(t, err, ErrInvalidTicket, "token %q", token)
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	token := issue(t, testKey, []byte("h"), []byte(`{"user_id":"u1"}`))

	// Flip the last signature byte.
	tampered := token[:len(token)-1]
	if token[len(token)-1] == 'A' {
		tampered += "B"
	} else {
		tampered += "A"
	}

	_, err := Verify(tampered, testKey)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestVerify_WrongKey(t *testing.T) {
	token := issue(t, testKey, []byte("h"), []byte(`{"user_id":"u1"}`))
	_, err := Verify(token, "another-key")
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestVerify_TruncatedSignature(t *testing.T) {
	token := issue(t, testKey, []byte("h"), []byte(`{"user_id":"u1"}`))
	// Shorter supplied signature must be a mismatch, not a panic.
	_, err := Verify(token[:len(token)-10], testKey)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestVerify_NonJSONClaims(t *testing.T) {
	token := issue(t, testKey, []byte("h"), []byte("plain text claims"))

	payload, err := Verify(token, testKey)
	require.NoError(t, err)
	assert.Nil(t, payload.Claims)
	assert.Equal(t, "plain text claims", payload.Raw)
}

func TestVerify_NonObjectJSONClaims(t *testing.T) {
	token := issue(t, testKey, []byte("h"), []byte(`[1,2,3]`))

	payload, err := Verify(token, testKey)
	require.NoError(t, err)
	assert.Nil(t, payload.Claims)
	assert.Equal(t, "[1,2,3]", payload.Raw)
}

func TestVerify_UndecodableClaims(t *testing.T) {
	// A claims segment that is not valid base64url, signed correctly so the
	// failure comes from decoding.
	h := base64.RawURLEncoding.EncodeToString([]byte("h"))
	c := "!!!not-base64!!!"
	token := h + "." + c + "." + Sign(testKey, h+"."+c)

	_, err := Verify(token, testKey)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}
