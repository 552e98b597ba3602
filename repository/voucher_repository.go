package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/database"
	"github.com/pesio-ai/be-gl-ledger/errors"
)

// VoucherRepository handles voucher headers and their entries. Headers and
// entries are always written together in one transaction; posted vouchers
// are frozen by a database trigger as well as by the service layer.
type VoucherRepository struct {
	db *database.DB
}

// NewVoucherRepository creates a new VoucherRepository.
func NewVoucherRepository(db *database.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

const voucherColumns = `
	id, voucher_number, voucher_type, voucher_date, party_ref, total_amount,
	currency, status, approval_request_id, narration, created_by, approved_by,
	posted_at, cancelled_at, created_at, updated_at`

const entryColumns = `
	id, voucher_id, line_number, account_id, description,
	debit_amount, credit_amount, cost_center, department, created_at`

// Create inserts a draft voucher with its entries in one transaction.
func (r *VoucherRepository) Create(ctx context.Context, v *Voucher) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return r.CreateTx(ctx, tx, v)
	})
}

// CreateTx inserts a draft voucher with its entries inside the caller's
// transaction. Used by the posting orchestrator so the document number
// allocation and the voucher share one atomic unit.
func (r *VoucherRepository) CreateTx(ctx context.Context, tx pgx.Tx, v *Voucher) error {
	query := `
		INSERT INTO vouchers
		    (id, voucher_number, voucher_type, voucher_date, party_ref,
		     total_amount, currency, status, narration, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::voucher_status, $9, $10)
		RETURNING created_at, updated_at
	`

	v.ID = uuid.NewString()
	err := tx.QueryRow(ctx, query,
		v.ID,
		v.VoucherNumber,
		v.VoucherType,
		v.VoucherDate,
		v.PartyRef,
		v.TotalAmount,
		v.Currency,
		v.Status,
		v.Narration,
		v.CreatedBy,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return database.WrapError(err, "failed to create voucher")
	}

	if err := r.insertEntries(ctx, tx, v.ID, v.Entries); err != nil {
		return err
	}
	return nil
}

func (r *VoucherRepository) insertEntries(ctx context.Context, tx pgx.Tx, voucherID string, entries []*VoucherEntry) error {
	query := `
		INSERT INTO voucher_entries
		    (id, voucher_id, line_number, account_id, description,
		     debit_amount, credit_amount, cost_center, department)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	for _, e := range entries {
		e.ID = uuid.NewString()
		e.VoucherID = voucherID

		err := tx.QueryRow(ctx, query,
			e.ID,
			e.VoucherID,
			e.LineNumber,
			e.AccountID,
			e.Description,
			e.DebitAmount,
			e.CreditAmount,
			e.CostCenter,
			e.Department,
		).Scan(&e.CreatedAt)
		if err != nil {
			return database.WrapError(err, "failed to create voucher entry")
		}
	}
	return nil
}

// GetByID retrieves a voucher with all entries.
func (r *VoucherRepository) GetByID(ctx context.Context, id string) (*Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE id = $1
	`

	v, err := r.scanVoucher(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("voucher", id)
	}
	if err != nil {
		return nil, database.WrapError(err, "failed to get voucher")
	}

	entries, err := r.getEntries(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	v.Entries = entries
	return v, nil
}

// GetByIDForUpdate retrieves the voucher header under an exclusive row lock.
// Entries are not loaded; use GetEntriesTx inside the same transaction.
func (r *VoucherRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE id = $1
		FOR UPDATE
	`

	v, err := r.scanVoucher(tx.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("voucher", id)
	}
	if err != nil {
		return nil, database.WrapError(err, "failed to lock voucher")
	}
	return v, nil
}

// GetEntriesTx re-reads the entries inside the caller's transaction, after
// the header row has been locked.
func (r *VoucherRepository) GetEntriesTx(ctx context.Context, tx pgx.Tx, voucherID string) ([]*VoucherEntry, error) {
	return r.getEntries(ctx, tx, voucherID)
}

func (r *VoucherRepository) getEntries(ctx context.Context, q querier, voucherID string) ([]*VoucherEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM voucher_entries
		WHERE voucher_id = $1
		ORDER BY line_number
	`

	rows, err := q.Query(ctx, query, voucherID)
	if err != nil {
		return nil, database.WrapError(err, "failed to get voucher entries")
	}
	defer rows.Close()

	entries := make([]*VoucherEntry, 0)
	for rows.Next() {
		e := &VoucherEntry{}
		err := rows.Scan(
			&e.ID,
			&e.VoucherID,
			&e.LineNumber,
			&e.AccountID,
			&e.Description,
			&e.DebitAmount,
			&e.CreditAmount,
			&e.CostCenter,
			&e.Department,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, database.WrapError(err, "failed to scan voucher entry")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ReplaceEntriesTx swaps the entry set of a draft voucher and refreshes the
// header total. The caller must hold the header lock and have verified the
// voucher is still a draft.
func (r *VoucherRepository) ReplaceEntriesTx(ctx context.Context, tx pgx.Tx, v *Voucher, entries []*VoucherEntry) error {
	if _, err := tx.Exec(ctx, `DELETE FROM voucher_entries WHERE voucher_id = $1`, v.ID); err != nil {
		return database.WrapError(err, "failed to clear voucher entries")
	}

	if err := r.insertEntries(ctx, tx, v.ID, entries); err != nil {
		return err
	}

	query := `
		UPDATE vouchers
		SET total_amount = $2,
		    updated_at   = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, v.ID, v.TotalAmount); err != nil {
		return database.WrapError(err, "failed to update voucher total")
	}
	return nil
}

// MarkPostedTx transitions a locked draft voucher to posted.
func (r *VoucherRepository) MarkPostedTx(ctx context.Context, tx pgx.Tx, id, approvedBy string) error {
	query := `
		UPDATE vouchers
		SET status      = 'posted'::voucher_status,
		    approved_by = $2,
		    posted_at   = NOW(),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, approvedBy).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("voucher", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to post voucher")
	}
	return nil
}

// MarkCancelledTx flags a locked posted voucher as cancelled. Historical
// entries are left untouched.
func (r *VoucherRepository) MarkCancelledTx(ctx context.Context, tx pgx.Tx, id string) error {
	query := `
		UPDATE vouchers
		SET status       = 'cancelled'::voucher_status,
		    cancelled_at = NOW(),
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("voucher", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to cancel voucher")
	}
	return nil
}

// LinkApprovalRequestTx attaches an approval request to the voucher.
func (r *VoucherRepository) LinkApprovalRequestTx(ctx context.Context, tx pgx.Tx, voucherID, requestID string) error {
	query := `
		UPDATE vouchers
		SET approval_request_id = $2,
		    updated_at          = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, voucherID, requestID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("voucher", voucherID)
	}
	if err != nil {
		return database.WrapError(err, "failed to link approval request")
	}
	return nil
}

// ListFilter narrows List results. Nil fields are ignored.
type ListFilter struct {
	Status      *VoucherStatus
	VoucherType *VoucherType
	FromDate    *time.Time
	ToDate      *time.Time
	Limit       int
	Offset      int
}

// List retrieves voucher headers with filtering and pagination, newest first.
// Entries are not loaded.
func (r *VoucherRepository) List(ctx context.Context, filter ListFilter) ([]*Voucher, int64, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE TRUE
	`
	countQuery := `SELECT COUNT(*) FROM vouchers WHERE TRUE`

	args := []any{}
	argCount := 1

	if filter.Status != nil {
		cond := fmt.Sprintf(" AND status = $%d::voucher_status", argCount)
		query += cond
		countQuery += cond
		args = append(args, *filter.Status)
		argCount++
	}

	if filter.VoucherType != nil {
		cond := fmt.Sprintf(" AND voucher_type = $%d", argCount)
		query += cond
		countQuery += cond
		args = append(args, *filter.VoucherType)
		argCount++
	}

	if filter.FromDate != nil {
		cond := fmt.Sprintf(" AND voucher_date >= $%d", argCount)
		query += cond
		countQuery += cond
		args = append(args, *filter.FromDate)
		argCount++
	}

	if filter.ToDate != nil {
		cond := fmt.Sprintf(" AND voucher_date <= $%d", argCount)
		query += cond
		countQuery += cond
		args = append(args, *filter.ToDate)
		argCount++
	}

	query += " ORDER BY voucher_date DESC, voucher_number DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, filter.Limit, filter.Offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, database.WrapError(err, "failed to count vouchers")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, database.WrapError(err, "failed to list vouchers")
	}
	defer rows.Close()

	vouchers := make([]*Voucher, 0)
	for rows.Next() {
		v, err := r.scanVoucher(rows)
		if err != nil {
			return nil, 0, database.WrapError(err, "failed to scan voucher")
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, total, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type voucherScanner interface {
	Scan(dest ...any) error
}

func (r *VoucherRepository) scanVoucher(row voucherScanner) (*Voucher, error) {
	v := &Voucher{}
	err := row.Scan(
		&v.ID,
		&v.VoucherNumber,
		&v.VoucherType,
		&v.VoucherDate,
		&v.PartyRef,
		&v.TotalAmount,
		&v.Currency,
		&v.Status,
		&v.ApprovalRequestID,
		&v.Narration,
		&v.CreatedBy,
		&v.ApprovedBy,
		&v.PostedAt,
		&v.CancelledAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}
