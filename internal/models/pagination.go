package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor marks a position in a newest-first transaction listing
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode returns the cursor as an opaque token
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Cursor.Encode
func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, fmt.Errorf("invalid cursor format")
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}

	return &Cursor{CreatedAt: ts, ID: parsedID}, nil
}

// Before reports whether t sorts after the cursor in newest-first order
func (c Cursor) Before(t *Transaction) bool {
	if t.CreatedAt.Equal(c.CreatedAt) {
		return strings.Compare(t.ID.String(), c.ID.String()) < 0
	}
	return t.CreatedAt.Before(c.CreatedAt)
}
