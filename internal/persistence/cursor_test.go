package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 789000, time.UTC), ID: "lead-9"}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestCursorTruncatesToMicroseconds(t *testing.T) {
	in := &domain.Cursor{CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 789999, time.UTC), ID: "lead-9"}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.Equal(t, 789000, out.CreatedAt.Nanosecond())
}

func TestDecodeCursorEmptyMeansFirstPage(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"yesterday","i":"lead-1"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":1767225600000000}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":0,"i":"lead-1"}`)),
	} {
		_, err := DecodeCursor(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}
