// Package persistence contains helpers shared by the store implementations.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
)

// ErrInvalidCursor is wrapped by every DecodeCursor failure.
var ErrInvalidCursor = errors.New("invalid cursor")

// cursorToken is the JSON body of a page token. At holds Unix microseconds,
// the precision activities are stored with.
type cursorToken struct {
	At int64  `json:"t"`
	ID string `json:"id"`
}

// EncodeCursor returns an opaque URL-safe token for c, or "" for nil.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(cursorToken{At: c.CompletedAt.UnixMicro(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor reverses EncodeCursor. A blank token means the first page.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var ct cursorToken
	if err := json.Unmarshal(raw, &ct); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if ct.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCursor)
	}
	return &domain.Cursor{CompletedAt: time.UnixMicro(ct.At).UTC(), ID: ct.ID}, nil
}
