// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
)

// ErrInvalidCursor is returned for tokens EncodeCursor could not have produced.
var ErrInvalidCursor = errors.New("invalid cursor")

// cursorToken is the JSON body of a page token. Timestamps are kept in
// microseconds to match Postgres timestamptz precision.
type cursorToken struct {
	At int64  `json:"t"`
	ID string `json:"i"`
}

// EncodeCursor serialises the cursor to an opaque, URL-safe token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(cursorToken{At: c.CreatedAt.UnixMicro(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by EncodeCursor. A blank token means
// the first page.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var tok cursorToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if tok.ID == "" || tok.At <= 0 {
		return nil, ErrInvalidCursor
	}
	return &domain.Cursor{CreatedAt: time.UnixMicro(tok.At).UTC(), ID: tok.ID}, nil
}
