// Package party maintains the registry of platform actors: patients,
// hospitals, insurers, and administrators. The claim engine consults it to
// verify that referenced parties carry the role a claim assigns them.
package party

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimate/api/internal/platform/identity"
)

// Party maps to the party table.
type Party struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Role      identity.Role `db:"role" json:"role"`
	Email     *string       `db:"email" json:"email,omitempty"`
	Active    bool          `db:"active" json:"active"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}
