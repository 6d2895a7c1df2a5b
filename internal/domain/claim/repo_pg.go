package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimate/api/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const claimCols = `id, claim_number, patient_id, hospital_id, insurer_id, status,
	claimed_amount, approved_amount, currency, medical_info, financial_info,
	extraction_result, archived, version_id, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.PatientID, &c.HospitalID, &c.InsurerID, &c.Status,
		&c.ClaimedAmount, &c.ApprovedAmount, &c.Currency, &c.MedicalInfo, &c.FinancialInfo,
		&c.ExtractionResult, &c.Archived, &c.VersionID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, db.MapError(err)
	}
	return &c, nil
}

func appendTimelineTx(ctx context.Context, tx pgx.Tx, claimID uuid.UUID, e *TimelineEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO claim_timeline (id, claim_id, seq, status, actor_id, comment, recorded_at)
		VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM claim_timeline WHERE claim_id = $2), $3, $4, $5, $6)
		RETURNING seq`,
		e.ID, claimID, e.Status, e.ActorID, e.Comment, e.RecordedAt).Scan(&e.Seq)
	if err != nil {
		return db.MapError(err)
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, c *Claim, first *TimelineEntry) error {
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
		INSERT INTO claim (id, claim_number, patient_id, hospital_id, insurer_id, status,
			claimed_amount, approved_amount, currency, medical_info, financial_info,
			extraction_result, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, c.ClaimNumber, c.PatientID, c.HospitalID, c.InsurerID, c.Status,
		c.ClaimedAmount, c.ApprovedAmount, c.Currency, c.MedicalInfo, c.FinancialInfo,
		c.ExtractionResult, c.VersionID)
	if err != nil {
		return db.MapError(err)
	}
	if err := appendTimelineTx(ctx, tx, c.ID, first); err != nil {
		return err
	}
	return db.MapError(tx.Commit(ctx))
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(r.pool.QueryRow(ctx, `SELECT `+claimCols+` FROM claim WHERE id = $1`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, c *Claim, expectedVersion uuid.UUID, entry *TimelineEntry) error {
	newVersion := uuid.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return db.MapError(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE claim SET status = $1, approved_amount = $2, version_id = $3, updated_at = now()
		WHERE id = $4 AND version_id = $5`,
		c.Status, c.ApprovedAmount, newVersion, c.ID, expectedVersion)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return errConflict
	}
	if err := appendTimelineTx(ctx, tx, c.ID, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return db.MapError(err)
	}
	c.VersionID = newVersion
	return nil
}

func (r *repoPG) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE claim SET archived = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AttachDocument(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO claim_document (id, claim_id, category, name, storage_ref, uploaded_by, uploaded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.ClaimID, d.Category, d.Name, d.StorageRef, d.UploadedBy, d.UploadedAt)
	return db.MapError(err)
}

func (r *repoPG) ListTimeline(ctx context.Context, claimID uuid.UUID) ([]*TimelineEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, claim_id, seq, status, actor_id, comment, recorded_at
		FROM claim_timeline WHERE claim_id = $1 ORDER BY seq`, claimID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()

	var entries []*TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.Seq, &e.Status, &e.ActorID, &e.Comment, &e.RecordedAt); err != nil {
			return nil, db.MapError(err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func (r *repoPG) ListDocuments(ctx context.Context, claimID uuid.UUID) ([]*Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, claim_id, category, name, storage_ref, uploaded_by, uploaded_at
		FROM claim_document WHERE claim_id = $1 ORDER BY uploaded_at`, claimID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.Category, &d.Name, &d.StorageRef, &d.UploadedBy, &d.UploadedAt); err != nil {
			return nil, db.MapError(err)
		}
		docs = append(docs, &d)
	}
	return docs, nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Claim, int, error) {
	where := ""
	var args []any
	add := func(clause string, val any) {
		args = append(args, val)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, len(args))
	}

	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.HospitalID != nil {
		add("hospital_id = $%d", *f.HospitalID)
	}
	if f.InsurerID != nil {
		add("insurer_id = $%d", *f.InsurerID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if !f.IncludeArchived {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += "archived = false"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM claim`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	pageArgs := append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT `+claimCols+` FROM claim`+where+` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			len(args)+1, len(args)+2),
		pageArgs...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}
