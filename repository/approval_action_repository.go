package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/database"
)

// ApprovalActionRepository appends and reads the immutable audit trail. The
// table carries a trigger forbidding UPDATE and DELETE, so append is the only
// mutation exposed.
type ApprovalActionRepository struct {
	db *database.DB
}

// NewApprovalActionRepository creates a new ApprovalActionRepository.
func NewApprovalActionRepository(db *database.DB) *ApprovalActionRepository {
	return &ApprovalActionRepository{db: db}
}

// AppendTx inserts one audit row inside the caller's transaction. It is
// never called outside the transaction that mutates the request, so the
// audit entry cannot be lost relative to the state change it documents.
func (r *ApprovalActionRepository) AppendTx(ctx context.Context, tx pgx.Tx, a *ApprovalAction) error {
	query := `
		INSERT INTO approval_actions
		    (id, request_id, action, level, acted_by, comments, ip_address)
		VALUES ($1, $2, $3::approval_action_type, $4, $5, $6, $7)
		RETURNING created_at
	`

	a.ID = uuid.NewString()
	err := tx.QueryRow(ctx, query,
		a.ID,
		a.RequestID,
		a.Action,
		a.Level,
		a.ActedBy,
		a.Comments,
		a.IPAddress,
	).Scan(&a.CreatedAt)
	if err != nil {
		return database.WrapError(err, "failed to append approval action")
	}
	return nil
}

// ListByRequest returns the full audit trail for a request, oldest first.
func (r *ApprovalActionRepository) ListByRequest(ctx context.Context, requestID string) ([]*ApprovalAction, error) {
	query := `
		SELECT id, request_id, action, level, acted_by, comments, ip_address, created_at
		FROM approval_actions
		WHERE request_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, database.WrapError(err, "failed to get approval actions")
	}
	defer rows.Close()

	actions := make([]*ApprovalAction, 0)
	for rows.Next() {
		a := &ApprovalAction{}
		err := rows.Scan(
			&a.ID,
			&a.RequestID,
			&a.Action,
			&a.Level,
			&a.ActedBy,
			&a.Comments,
			&a.IPAddress,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, database.WrapError(err, "failed to scan approval action")
		}
		actions = append(actions, a)
	}
	return actions, nil
}
