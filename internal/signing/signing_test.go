package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := NewSigner("download-secret")
	require.NoError(t, err)

	token, err := s.Sign("uploads/2026/01/lead-1/abc_log.csv", NotificationTTL)
	require.NoError(t, err)

	key, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uploads/2026/01/lead-1/abc_log.csv", key)
}

func TestSignProducesUniqueTokens(t *testing.T) {
	s, err := NewSigner("download-secret")
	require.NoError(t, err)

	a, err := s.Sign("k", ConsoleTTL)
	require.NoError(t, err)
	b, err := s.Sign("k", ConsoleTTL)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsExpired(t *testing.T) {
	s, err := NewSigner("download-secret")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	token, err := s.Sign("k", time.Hour)
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Verify(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s, err := NewSigner("download-secret")
	require.NoError(t, err)
	other, err := NewSigner("another-secret")
	require.NoError(t, err)

	token, err := other.Sign("k", time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"wrong key": token,
		"truncated": token[:strings.LastIndex(token, ".")],
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(tok)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner(" ")
	require.Error(t, err)
}
