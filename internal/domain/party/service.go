package party

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medimate/api/internal/platform/identity"
)

type Service struct {
	parties Repository
}

func NewService(parties Repository) *Service {
	return &Service{parties: parties}
}

func (s *Service) Create(ctx context.Context, p *Party) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("invalid role: %s", p.Role)
	}
	p.Active = true
	return s.parties.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Party, error) {
	return s.parties.GetByID(ctx, id)
}

// RoleOf resolves the registered role for an identity. Used by the claim
// engine to reject claims that assign a party a role it does not hold.
func (s *Service) RoleOf(ctx context.Context, id uuid.UUID) (identity.Role, error) {
	p, err := s.parties.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

func (s *Service) List(ctx context.Context, role identity.Role, limit, offset int) ([]*Party, int, error) {
	if role != "" {
		if !role.Valid() {
			return nil, 0, fmt.Errorf("invalid role: %s", role)
		}
		return s.parties.ListByRole(ctx, role, limit, offset)
	}
	return s.parties.List(ctx, limit, offset)
}
