package party

import (
	"context"

	"github.com/google/uuid"

	"github.com/medimate/api/internal/platform/identity"
)

type Repository interface {
	Create(ctx context.Context, p *Party) error
	GetByID(ctx context.Context, id uuid.UUID) (*Party, error)
	List(ctx context.Context, limit, offset int) ([]*Party, int, error)
	ListByRole(ctx context.Context, role identity.Role, limit, offset int) ([]*Party, int, error)
}
