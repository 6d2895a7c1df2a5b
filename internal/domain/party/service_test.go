package party

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medimate/api/internal/platform/identity"
)

// -- Mock Repository --

type mockRepo struct {
	items map[uuid.UUID]*Party
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Party)}
}

func (m *mockRepo) Create(_ context.Context, p *Party) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.items[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Party, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Party, int, error) {
	var result []*Party
	for _, p := range m.items {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockRepo) ListByRole(_ context.Context, role identity.Role, limit, offset int) ([]*Party, int, error) {
	var result []*Party
	for _, p := range m.items {
		if p.Role == role {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func TestCreate_ValidatesRole(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.Create(context.Background(), &Party{Name: "City Hospital", Role: "clinic"})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}

	err = svc.Create(context.Background(), &Party{Name: "City Hospital", Role: identity.RoleHospital})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_RequiresName(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.Create(context.Background(), &Party{Role: identity.RolePatient}); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestRoleOf(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := &Party{Name: "Acme Insurance", Role: identity.RoleInsurer}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	role, err := svc.RoleOf(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != identity.RoleInsurer {
		t.Errorf("expected insurer, got %s", role)
	}

	if _, err := svc.RoleOf(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for unknown party")
	}
}

func TestList_FiltersByRole(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	for _, p := range []*Party{
		{Name: "P1", Role: identity.RolePatient},
		{Name: "H1", Role: identity.RoleHospital},
		{Name: "H2", Role: identity.RoleHospital},
	} {
		if err := svc.Create(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := svc.List(context.Background(), identity.RoleHospital, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 hospitals, got %d", total)
	}

	if _, _, err := svc.List(context.Background(), "clinic", 20, 0); err == nil {
		t.Fatal("expected error for invalid role filter")
	}
}
