package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/database"
	"github.com/pesio-ai/be-gl-ledger/errors"
)

// ApprovalWorkflowRepository manages workflow definitions and their levels.
// Workflow + level creation is always done together in a single transaction.
type ApprovalWorkflowRepository struct {
	db *database.DB
}

// NewApprovalWorkflowRepository creates a new ApprovalWorkflowRepository.
func NewApprovalWorkflowRepository(db *database.DB) *ApprovalWorkflowRepository {
	return &ApprovalWorkflowRepository{db: db}
}

const workflowColumns = `
	id, workflow_name, document_type, is_active, created_by, created_at, updated_at`

const levelColumns = `
	id, workflow_id, level_number, approver, min_amount, max_amount, is_mandatory, created_at`

// Create inserts a workflow and its levels in one transaction. Creating a
// second active workflow for the same document type violates the partial
// unique index and surfaces as a duplicate error.
func (r *ApprovalWorkflowRepository) Create(ctx context.Context, wf *ApprovalWorkflow) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		wfQuery := `
			INSERT INTO approval_workflows
			    (id, workflow_name, document_type, is_active, created_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`

		wf.ID = uuid.NewString()
		err := tx.QueryRow(ctx, wfQuery,
			wf.ID,
			wf.WorkflowName,
			wf.DocumentType,
			wf.IsActive,
			wf.CreatedBy,
		).Scan(&wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			return database.WrapError(err, "failed to create approval workflow")
		}

		levelQuery := `
			INSERT INTO approval_levels
			    (id, workflow_id, level_number, approver, min_amount, max_amount, is_mandatory)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`

		for _, level := range wf.Levels {
			level.ID = uuid.NewString()
			level.WorkflowID = wf.ID

			err := tx.QueryRow(ctx, levelQuery,
				level.ID,
				level.WorkflowID,
				level.LevelNumber,
				level.Approver,
				level.MinAmount,
				level.MaxAmount,
				level.IsMandatory,
			).Scan(&level.CreatedAt)
			if err != nil {
				return database.WrapError(err, "failed to create approval level")
			}
		}

		return nil
	})
}

// GetByID retrieves a workflow with its levels ordered by level number.
func (r *ApprovalWorkflowRepository) GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE id = $1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval workflow", id)
	}
	if err != nil {
		return nil, database.WrapError(err, "failed to get approval workflow")
	}

	levels, err := r.GetLevels(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.Levels = levels
	return wf, nil
}

// GetActiveByDocumentType returns the single active workflow for a document
// type, with levels, or NotFound when none is configured.
func (r *ApprovalWorkflowRepository) GetActiveByDocumentType(ctx context.Context, documentType string) (*ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE document_type = $1 AND is_active
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, documentType))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("active approval workflow", documentType)
	}
	if err != nil {
		return nil, database.WrapError(err, "failed to get active approval workflow")
	}

	levels, err := r.GetLevels(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.Levels = levels
	return wf, nil
}

// GetLevels returns all levels of a workflow ordered by level_number.
func (r *ApprovalWorkflowRepository) GetLevels(ctx context.Context, workflowID string) ([]*ApprovalLevel, error) {
	query := `
		SELECT ` + levelColumns + `
		FROM approval_levels
		WHERE workflow_id = $1
		ORDER BY level_number ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, database.WrapError(err, "failed to get approval levels")
	}
	defer rows.Close()

	levels := make([]*ApprovalLevel, 0)
	for rows.Next() {
		l := &ApprovalLevel{}
		err := rows.Scan(
			&l.ID,
			&l.WorkflowID,
			&l.LevelNumber,
			&l.Approver,
			&l.MinAmount,
			&l.MaxAmount,
			&l.IsMandatory,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, database.WrapError(err, "failed to scan approval level")
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// Deactivate retires a workflow so a replacement can be activated.
func (r *ApprovalWorkflowRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE approval_workflows
		SET is_active  = FALSE,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval workflow", id)
	}
	if err != nil {
		return database.WrapError(err, "failed to deactivate approval workflow")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalWorkflowRepository) scanWorkflow(row workflowScanner) (*ApprovalWorkflow, error) {
	wf := &ApprovalWorkflow{}
	err := row.Scan(
		&wf.ID,
		&wf.WorkflowName,
		&wf.DocumentType,
		&wf.IsActive,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
