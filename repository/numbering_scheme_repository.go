package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/database"
	"github.com/pesio-ai/be-gl-ledger/errors"
)

// NumberingSchemeRepository manages numbering scheme rows. The counter is
// mutated only through UpdateCounterTx while the row is held under an
// exclusive lock.
type NumberingSchemeRepository struct {
	db *database.DB
}

// NewNumberingSchemeRepository creates a new NumberingSchemeRepository.
func NewNumberingSchemeRepository(db *database.DB) *NumberingSchemeRepository {
	return &NumberingSchemeRepository{db: db}
}

const schemeColumns = `
	id, document_type, scope, prefix, date_format, padding, suffix, separator,
	next_number, reset_frequency, last_reset_date, is_active, created_at, updated_at`

// Create inserts a scheme. A second active scheme for the same
// (document_type, scope) violates the partial unique index and surfaces as
// a duplicate error.
func (r *NumberingSchemeRepository) Create(ctx context.Context, s *NumberingScheme) error {
	query := `
		INSERT INTO numbering_schemes
		    (id, document_type, scope, prefix, date_format, padding, suffix,
		     separator, next_number, reset_frequency, last_reset_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::reset_frequency, $11, $12)
		RETURNING created_at, updated_at
	`

	s.ID = uuid.NewString()
	err := r.db.QueryRow(ctx, query,
		s.ID,
		s.DocumentType,
		s.Scope,
		s.Prefix,
		s.DateFormat,
		s.Padding,
		s.Suffix,
		s.Separator,
		s.NextNumber,
		s.ResetFrequency,
		s.LastResetDate,
		s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return database.WrapError(err, "failed to create numbering scheme")
	}
	return nil
}

// GetActive resolves the active scheme for (documentType, scope) without
// locking it. A scope-specific scheme wins over the scope-less default.
func (r *NumberingSchemeRepository) GetActive(ctx context.Context, documentType string, scope *string) (*NumberingScheme, error) {
	return r.getActive(ctx, r.db, documentType, scope, "")
}

// GetActiveForUpdate resolves the active scheme and acquires an exclusive
// lock on its row for the remainder of the transaction.
func (r *NumberingSchemeRepository) GetActiveForUpdate(ctx context.Context, tx pgx.Tx, documentType string, scope *string) (*NumberingScheme, error) {
	return r.getActive(ctx, tx, documentType, scope, " FOR UPDATE")
}

func (r *NumberingSchemeRepository) getActive(ctx context.Context, q querier, documentType string, scope *string, lock string) (*NumberingScheme, error) {
	if scope != nil {
		query := `
			SELECT ` + schemeColumns + `
			FROM numbering_schemes
			WHERE document_type = $1 AND scope = $2 AND is_active` + lock

		s, err := r.scanScheme(q.QueryRow(ctx, query, documentType, *scope))
		if err == nil {
			return s, nil
		}
		if err != pgx.ErrNoRows {
			return nil, database.WrapError(err, "failed to get numbering scheme")
		}
		// fall through to the scope-less default
	}

	query := `
		SELECT ` + schemeColumns + `
		FROM numbering_schemes
		WHERE document_type = $1 AND scope IS NULL AND is_active` + lock

	s, err := r.scanScheme(q.QueryRow(ctx, query, documentType))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("numbering scheme", documentType)
	}
	if err != nil {
		return nil, database.WrapError(err, "failed to get numbering scheme")
	}
	return s, nil
}

// UpdateCounterTx persists the counter and last reset date. Must run in the
// transaction that locked the row.
func (r *NumberingSchemeRepository) UpdateCounterTx(ctx context.Context, tx pgx.Tx, id string, nextNumber int64, lastResetDate time.Time) error {
	query := `
		UPDATE numbering_schemes
		SET next_number     = $2,
		    last_reset_date = $3,
		    updated_at      = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, nextNumber, lastResetDate).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("numbering scheme", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to update numbering counter")
	}
	return nil
}

// SetActive toggles a scheme. Activating a scheme while another is active
// for the same pair fails on the partial unique index.
func (r *NumberingSchemeRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE numbering_schemes
		SET is_active  = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, active).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("numbering scheme", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to update numbering scheme")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type schemeScanner interface {
	Scan(dest ...any) error
}

func (r *NumberingSchemeRepository) scanScheme(row schemeScanner) (*NumberingScheme, error) {
	s := &NumberingScheme{}
	err := row.Scan(
		&s.ID,
		&s.DocumentType,
		&s.Scope,
		&s.Prefix,
		&s.DateFormat,
		&s.Padding,
		&s.Suffix,
		&s.Separator,
		&s.NextNumber,
		&s.ResetFrequency,
		&s.LastResetDate,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
