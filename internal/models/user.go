package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity that owns accounts. The ledger only reads users.
type User struct {
	CreatedAt time.Time `db:"created_at"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	ID        uuid.UUID `db:"id"`
}

// CustomerProfile holds contact details used to resolve transfer recipients
type CustomerProfile struct {
	Phone  string    `db:"phone"`
	UserID uuid.UUID `db:"user_id"`
}
