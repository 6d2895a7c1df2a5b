package consent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimate/api/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const consentCols = `id, patient_id, entity_id, entity_type, status,
	view_records, share_with_third_party, research_use, marketing,
	granted_at, expires_at, revoked_at, attestation_token, attestation_confirmed,
	version_id, created_at, updated_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(&c.ID, &c.PatientID, &c.EntityID, &c.EntityType, &c.Status,
		&c.Permissions.ViewRecords, &c.Permissions.ShareWithThirdParty,
		&c.Permissions.ResearchUse, &c.Permissions.Marketing,
		&c.GrantedAt, &c.ExpiresAt, &c.RevokedAt, &c.AttestationToken, &c.AttestationConfirmed,
		&c.VersionID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, db.MapError(err)
	}
	return &c, nil
}

func appendAuditTx(ctx context.Context, tx pgx.Tx, consentID uuid.UUID, entries []*AuditEntry) error {
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.RecordedAt.IsZero() {
			e.RecordedAt = time.Now().UTC()
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO consent_audit (id, consent_id, seq, action, reason, recorded_at)
			VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM consent_audit WHERE consent_id = $2), $3, $4, $5)
			RETURNING seq`,
			e.ID, consentID, e.Action, e.Reason, e.RecordedAt).Scan(&e.Seq)
		if err != nil {
			return db.MapError(err)
		}
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, c *Consent, entries ...*AuditEntry) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.VersionID = uuid.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return db.MapError(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO consent (id, patient_id, entity_id, entity_type, status,
			view_records, share_with_third_party, research_use, marketing,
			granted_at, expires_at, attestation_token, attestation_confirmed, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		c.ID, c.PatientID, c.EntityID, c.EntityType, c.Status,
		c.Permissions.ViewRecords, c.Permissions.ShareWithThirdParty,
		c.Permissions.ResearchUse, c.Permissions.Marketing,
		c.GrantedAt, c.ExpiresAt, c.AttestationToken, c.AttestationConfirmed, c.VersionID)
	if err != nil {
		return db.MapError(err)
	}
	if err := appendAuditTx(ctx, tx, c.ID, entries); err != nil {
		return err
	}
	return db.MapError(tx.Commit(ctx))
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return scanConsent(r.pool.QueryRow(ctx, `SELECT `+consentCols+` FROM consent WHERE id = $1`, id))
}

func (r *repoPG) GetByKey(ctx context.Context, patientID, entityID uuid.UUID, entityType EntityType) (*Consent, error) {
	return scanConsent(r.pool.QueryRow(ctx, `
		SELECT `+consentCols+` FROM consent
		WHERE patient_id = $1 AND entity_id = $2 AND entity_type = $3`,
		patientID, entityID, entityType))
}

func (r *repoPG) Update(ctx context.Context, c *Consent, expectedVersion uuid.UUID, entries ...*AuditEntry) error {
	newVersion := uuid.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return db.MapError(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE consent SET status = $1,
			view_records = $2, share_with_third_party = $3, research_use = $4, marketing = $5,
			granted_at = $6, expires_at = $7, revoked_at = $8,
			attestation_token = $9, attestation_confirmed = $10,
			version_id = $11, updated_at = now()
		WHERE id = $12 AND version_id = $13`,
		c.Status,
		c.Permissions.ViewRecords, c.Permissions.ShareWithThirdParty,
		c.Permissions.ResearchUse, c.Permissions.Marketing,
		c.GrantedAt, c.ExpiresAt, c.RevokedAt,
		c.AttestationToken, c.AttestationConfirmed,
		newVersion, c.ID, expectedVersion)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return errConflict
	}
	if err := appendAuditTx(ctx, tx, c.ID, entries); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return db.MapError(err)
	}
	c.VersionID = newVersion
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Consent, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM consent`,
		`SELECT `+consentCols+` FROM consent ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		nil, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM consent WHERE patient_id = $1`,
		`SELECT `+consentCols+` FROM consent WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		&patientID, limit, offset)
}

func (r *repoPG) ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM consent WHERE entity_id = $1`,
		`SELECT `+consentCols+` FROM consent WHERE entity_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		&entityID, limit, offset)
}

func (r *repoPG) list(ctx context.Context, countSQL, pageSQL string, key *uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	var (
		total int
		err   error
	)
	if key != nil {
		err = r.pool.QueryRow(ctx, countSQL, *key).Scan(&total)
	} else {
		err = r.pool.QueryRow(ctx, countSQL).Scan(&total)
	}
	if err != nil {
		return nil, 0, db.MapError(err)
	}

	var rows pgx.Rows
	if key != nil {
		rows, err = r.pool.Query(ctx, pageSQL, *key, limit, offset)
	} else {
		rows, err = r.pool.Query(ctx, pageSQL, limit, offset)
	}
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var items []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

func (r *repoPG) ListAudit(ctx context.Context, consentID uuid.UUID) ([]*AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, consent_id, seq, action, reason, recorded_at
		FROM consent_audit WHERE consent_id = $1 ORDER BY seq`, consentID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.ConsentID, &e.Seq, &e.Action, &e.Reason, &e.RecordedAt); err != nil {
			return nil, db.MapError(err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}
