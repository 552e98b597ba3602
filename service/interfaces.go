// Package service implements the ledger's public operations: document number
// generation, voucher bookkeeping, the monetary approval workflow and the
// posting orchestrator that composes them.
package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/repository"
)

// DocumentTypeVoucher is the document type under which vouchers are routed
// through the approval engine.
const DocumentTypeVoucher = "voucher"

// DB runs a function inside one atomic unit of work. Row locks taken by fn
// are held until commit. *database.DB implements it; tests substitute an
// in-memory runner.
type DB interface {
	InTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// SchemeStore is the persistence surface the numbering service needs.
type SchemeStore interface {
	Create(ctx context.Context, s *repository.NumberingScheme) error
	GetActive(ctx context.Context, documentType string, scope *string) (*repository.NumberingScheme, error)
	GetActiveForUpdate(ctx context.Context, tx pgx.Tx, documentType string, scope *string) (*repository.NumberingScheme, error)
	UpdateCounterTx(ctx context.Context, tx pgx.Tx, id string, nextNumber int64, lastResetDate time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

// VoucherStore is the persistence surface the ledger and posting services need.
type VoucherStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, v *repository.Voucher) error
	GetByID(ctx context.Context, id string) (*repository.Voucher, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*repository.Voucher, error)
	GetEntriesTx(ctx context.Context, tx pgx.Tx, voucherID string) ([]*repository.VoucherEntry, error)
	ReplaceEntriesTx(ctx context.Context, tx pgx.Tx, v *repository.Voucher, entries []*repository.VoucherEntry) error
	MarkPostedTx(ctx context.Context, tx pgx.Tx, id, approvedBy string) error
	MarkCancelledTx(ctx context.Context, tx pgx.Tx, id string) error
	LinkApprovalRequestTx(ctx context.Context, tx pgx.Tx, voucherID, requestID string) error
	List(ctx context.Context, filter repository.ListFilter) ([]*repository.Voucher, int64, error)
}

// WorkflowStore is the persistence surface for workflow definitions.
type WorkflowStore interface {
	Create(ctx context.Context, wf *repository.ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalWorkflow, error)
	GetActiveByDocumentType(ctx context.Context, documentType string) (*repository.ApprovalWorkflow, error)
	GetLevels(ctx context.Context, workflowID string) ([]*repository.ApprovalLevel, error)
	Deactivate(ctx context.Context, id string) error
}

// RequestStore is the persistence surface for in-flight approval requests.
type RequestStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req *repository.ApprovalRequest) error
	ExistsOpenTx(ctx context.Context, tx pgx.Tx, documentType, documentID string) (bool, error)
	GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*repository.ApprovalRequest, error)
	AdvanceTx(ctx context.Context, tx pgx.Tx, id string, nextLevel int, nextApprover string) error
	CompleteTx(ctx context.Context, tx pgx.Tx, id string, status repository.RequestStatus) error
	DelegateTx(ctx context.Context, tx pgx.Tx, id, newApprover string) error
	ListPendingForApprover(ctx context.Context, approver string) ([]*repository.ApprovalRequest, error)
}

// ActionStore appends and reads the immutable audit trail.
type ActionStore interface {
	AppendTx(ctx context.Context, tx pgx.Tx, a *repository.ApprovalAction) error
	ListByRequest(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error)
}

// EventPublisher emits lifecycle events after a mutation commits. A nil
// *events.Publisher satisfies the contract by dropping everything.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, resourceType, resourceID, actorID string, payload map[string]any)
}
