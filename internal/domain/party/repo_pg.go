package party

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimate/api/internal/platform/db"
	"github.com/medimate/api/internal/platform/identity"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const partyCols = `id, name, role, email, active, created_at, updated_at`

func scanParty(row pgx.Row) (*Party, error) {
	var p Party
	err := row.Scan(&p.ID, &p.Name, &p.Role, &p.Email, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, db.MapError(err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Party) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO party (id, name, role, email, active)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.Name, p.Role, p.Email, p.Active)
	return db.MapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Party, error) {
	return scanParty(r.pool.QueryRow(ctx, `SELECT `+partyCols+` FROM party WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Party, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM party`).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+partyCols+` FROM party ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var items []*Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) ListByRole(ctx context.Context, role identity.Role, limit, offset int) ([]*Party, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM party WHERE role = $1`, role).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+partyCols+` FROM party WHERE role = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, role, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var items []*Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
