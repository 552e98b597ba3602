package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/database"
	"github.com/pesio-ai/be-gl-ledger/errors"
)

// ApprovalRequestRepository manages in-flight approval requests. Every
// mutation runs inside the caller's transaction so the request row and its
// audit action commit or roll back together.
type ApprovalRequestRepository struct {
	db *database.DB
}

// NewApprovalRequestRepository creates a new ApprovalRequestRepository.
func NewApprovalRequestRepository(db *database.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: db}
}

const requestColumns = `
	id, workflow_id, document_type, document_id, amount, current_level,
	current_approver, status, requested_by, request_date, completion_date,
	created_at, updated_at`

// CreateTx inserts a pending request. A concurrent open request for the same
// document violates the partial unique index and surfaces as a duplicate.
func (r *ApprovalRequestRepository) CreateTx(ctx context.Context, tx pgx.Tx, req *ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests
		    (id, workflow_id, document_type, document_id, amount,
		     current_level, current_approver, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::approval_request_status, $9)
		RETURNING request_date, created_at, updated_at
	`

	req.ID = uuid.NewString()
	err := tx.QueryRow(ctx, query,
		req.ID,
		req.WorkflowID,
		req.DocumentType,
		req.DocumentID,
		req.Amount,
		req.CurrentLevel,
		req.CurrentApprover,
		req.Status,
		req.RequestedBy,
	).Scan(&req.RequestDate, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return database.WrapError(err, "failed to create approval request")
	}
	return nil
}

// ExistsOpenTx reports whether a pending or approved request already exists
// for (documentType, documentID).
func (r *ApprovalRequestRepository) ExistsOpenTx(ctx context.Context, tx pgx.Tx, documentType, documentID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM approval_requests
			WHERE document_type = $1 AND document_id = $2
			  AND status IN ('pending', 'approved')
		)
	`

	var exists bool
	if err := tx.QueryRow(ctx, query, documentType, documentID).Scan(&exists); err != nil {
		return false, database.WrapError(err, "failed to check for open approval request")
	}
	return exists, nil
}

// GetByID retrieves a request without locking it.
func (r *ApprovalRequestRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE id = $1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval request", id)
	}
	if err != nil {
		return nil, database.WrapError(err, "failed to get approval request")
	}
	return req, nil
}

// GetByIDForUpdate retrieves a request under an exclusive row lock. Every
// approve/reject/delegate decision re-reads the row through this method
// immediately before deciding the next state.
func (r *ApprovalRequestRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE id = $1
		FOR UPDATE
	`

	req, err := r.scanRequest(tx.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval request", id)
	}
	if err != nil {
		return nil, database.WrapError(err, "failed to lock approval request")
	}
	return req, nil
}

// AdvanceTx moves a locked pending request to the next level and approver.
func (r *ApprovalRequestRepository) AdvanceTx(ctx context.Context, tx pgx.Tx, id string, nextLevel int, nextApprover string) error {
	query := `
		UPDATE approval_requests
		SET current_level    = $2,
		    current_approver = $3,
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, nextLevel, nextApprover).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval request", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to advance approval request")
	}
	return nil
}

// CompleteTx moves a locked request to a terminal status and stamps the
// completion date.
func (r *ApprovalRequestRepository) CompleteTx(ctx context.Context, tx pgx.Tx, id string, status RequestStatus) error {
	query := `
		UPDATE approval_requests
		SET status          = $2::approval_request_status,
		    completion_date = NOW(),
		    updated_at      = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval request", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to complete approval request")
	}
	return nil
}

// DelegateTx reassigns the current approver, leaving level and status alone.
func (r *ApprovalRequestRepository) DelegateTx(ctx context.Context, tx pgx.Tx, id, newApprover string) error {
	query := `
		UPDATE approval_requests
		SET current_approver = $2,
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, newApprover).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval request", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to delegate approval request")
	}
	return nil
}

// ListPendingForApprover returns all requests awaiting action from a user,
// oldest first.
func (r *ApprovalRequestRepository) ListPendingForApprover(ctx context.Context, approver string) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE current_approver = $1 AND status = 'pending'
		ORDER BY request_date ASC
	`

	rows, err := r.db.Query(ctx, query, approver)
	if err != nil {
		return nil, database.WrapError(err, "failed to list pending approvals")
	}
	defer rows.Close()

	requests := make([]*ApprovalRequest, 0)
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, database.WrapError(err, "failed to scan approval request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRequestRepository) scanRequest(row requestScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	err := row.Scan(
		&req.ID,
		&req.WorkflowID,
		&req.DocumentType,
		&req.DocumentID,
		&req.Amount,
		&req.CurrentLevel,
		&req.CurrentApprover,
		&req.Status,
		&req.RequestedBy,
		&req.RequestDate,
		&req.CompletionDate,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
