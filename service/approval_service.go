package service

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-gl-ledger/errors"
	"github.com/pesio-ai/be-gl-ledger/events"
	"github.com/pesio-ai/be-gl-ledger/logger"
	"github.com/pesio-ai/be-gl-ledger/repository"
)

// ApprovalService runs the multi-level, amount-banded approval engine:
// workflow administration, request initiation, approve / reject / delegate
// and the append-only audit trail.
//
// Routing rules:
//   - every request enters at level 1, regardless of amount;
//   - after an approval, the next stop is the lowest-numbered mandatory
//     level above the current one whose band contains the request amount;
//   - when no such level exists the request completes as approved;
//   - the requester may never approve their own request, at any level;
//   - one rejection terminates the request.
type ApprovalService struct {
	db        DB
	workflows WorkflowStore
	requests  RequestStore
	actions   ActionStore
	events    EventPublisher
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(db DB, workflows WorkflowStore, requests RequestStore, actions ActionStore, events EventPublisher, log *logger.Logger) *ApprovalService {
	return &ApprovalService{db: db, workflows: workflows, requests: requests, actions: actions, events: events, log: log}
}

// ── workflow administration ──────────────────────────────────────────────────

// LevelInput is one approval level of a new workflow.
type LevelInput struct {
	LevelNumber int
	Approver    string
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	IsMandatory bool
}

// CreateWorkflowRequest describes a new approval workflow.
type CreateWorkflowRequest struct {
	WorkflowName string
	DocumentType string
	CreatedBy    string
	Levels       []*LevelInput
}

// CreateWorkflow registers an approval workflow. At most one workflow per
// document type may be active; a second registration returns a duplicate
// error and the existing workflow must be deactivated first.
func (s *ApprovalService) CreateWorkflow(ctx context.Context, req *CreateWorkflowRequest) (*repository.ApprovalWorkflow, error) {
	if err := validateWorkflowRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.workflows.GetActiveByDocumentType(ctx, req.DocumentType); err == nil {
		return nil, errors.Newf(errors.ErrCodeDuplicate, "an active workflow already exists for document type %s", req.DocumentType)
	} else if !errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	levels := make([]*repository.ApprovalLevel, 0, len(req.Levels))
	for _, in := range req.Levels {
		levels = append(levels, &repository.ApprovalLevel{
			LevelNumber: in.LevelNumber,
			Approver:    in.Approver,
			MinAmount:   in.MinAmount,
			MaxAmount:   in.MaxAmount,
			IsMandatory: in.IsMandatory,
		})
	}

	workflow := &repository.ApprovalWorkflow{
		WorkflowName: req.WorkflowName,
		DocumentType: req.DocumentType,
		IsActive:     true,
		CreatedBy:    req.CreatedBy,
		Levels:       levels,
	}
	if err := s.workflows.Create(ctx, workflow); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", workflow.ID).
		Str("workflow_name", workflow.WorkflowName).
		Str("document_type", workflow.DocumentType).
		Int("levels", len(workflow.Levels)).
		Msg("Approval workflow created")

	return workflow, nil
}

// DeactivateWorkflow retires a workflow. In-flight requests keep routing
// against the level set they started with.
func (s *ApprovalService) DeactivateWorkflow(ctx context.Context, workflowID string) error {
	return s.workflows.Deactivate(ctx, workflowID)
}

// GetWorkflow returns a workflow with its levels.
func (s *ApprovalService) GetWorkflow(ctx context.Context, workflowID string) (*repository.ApprovalWorkflow, error) {
	return s.workflows.GetByID(ctx, workflowID)
}

// ── request lifecycle ────────────────────────────────────────────────────────

// Initiate opens an approval request in its own transaction.
func (s *ApprovalService) Initiate(ctx context.Context, documentType, documentID string, amount decimal.Decimal, requestedBy string) (*repository.ApprovalRequest, error) {
	var request *repository.ApprovalRequest
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		request, err = s.InitiateTx(ctx, tx, documentType, documentID, amount, requestedBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventApprovalRequested, request.ID, requestedBy, map[string]any{
		"document_type": documentType,
		"document_id":   documentID,
		"amount":        amount.String(),
	})
	return request, nil
}

// InitiateTx opens an approval request inside the caller's transaction. The
// request always starts at level 1 even when the amount is outside the
// level-1 band.
func (s *ApprovalService) InitiateTx(ctx context.Context, tx pgx.Tx, documentType, documentID string, amount decimal.Decimal, requestedBy string) (*repository.ApprovalRequest, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, errors.InvalidInput("document_id", "document is required")
	}
	if strings.TrimSpace(requestedBy) == "" {
		return nil, errors.InvalidInput("requested_by", "requester is required")
	}
	if amount.IsNegative() {
		return nil, errors.InvalidInput("amount", "amount must not be negative")
	}

	workflow, err := s.workflows.GetActiveByDocumentType(ctx, documentType)
	if err != nil {
		return nil, err
	}

	open, err := s.requests.ExistsOpenTx(ctx, tx, documentType, documentID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, errors.Newf(errors.ErrCodeDuplicate, "document %s already has an open approval request", documentID)
	}

	// CreateWorkflow guarantees a mandatory level 1, but workflows seeded
	// directly into the store may not honor that.
	if len(workflow.Levels) == 0 {
		return nil, errors.Newf(errors.ErrCodeValidation, "workflow %s has no approval levels", workflow.WorkflowName)
	}
	entry := workflow.Levels[0]
	if entry.LevelNumber != 1 || !entry.IsMandatory {
		return nil, errors.Newf(errors.ErrCodeValidation, "workflow %s has no mandatory entry level", workflow.WorkflowName)
	}

	request := &repository.ApprovalRequest{
		WorkflowID:      workflow.ID,
		DocumentType:    documentType,
		DocumentID:      documentID,
		Amount:          amount,
		CurrentLevel:    entry.LevelNumber,
		CurrentApprover: entry.Approver,
		Status:          repository.RequestStatusPending,
		RequestedBy:     requestedBy,
		RequestDate:     time.Now().UTC(),
	}
	if err := s.requests.CreateTx(ctx, tx, request); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", request.ID).
		Str("document_id", documentID).
		Str("amount", amount.String()).
		Str("current_approver", request.CurrentApprover).
		Msg("Approval request initiated")

	return request, nil
}

// ApproveResult reports what an approval changed.
type ApproveResult struct {
	// Approved is true when the request completed; otherwise it advanced to
	// NextLevel / NextApprover.
	Approved     bool
	NextLevel    int
	NextApprover string
}

// Approve records an approval at the current level and either advances the
// request to the next applicable level or completes it. Only the current
// approver may act, and never the requester.
func (s *ApprovalService) Approve(ctx context.Context, requestID, approver string, comments, ipAddress *string) (*ApproveResult, error) {
	result := &ApproveResult{}
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		request, err := s.requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := checkActionable(request, approver); err != nil {
			return err
		}
		if approver == request.RequestedBy {
			return errors.New(errors.ErrCodeUnauthorized, "a requester cannot approve their own request")
		}

		levels, err := s.workflows.GetLevels(ctx, request.WorkflowID)
		if err != nil {
			return err
		}

		if err := s.actions.AppendTx(ctx, tx, &repository.ApprovalAction{
			RequestID: requestID,
			Action:    repository.ActionApproved,
			Level:     request.CurrentLevel,
			ActedBy:   approver,
			Comments:  comments,
			IPAddress: ipAddress,
		}); err != nil {
			return err
		}

		next := findNextLevel(levels, request.CurrentLevel, request.Amount)
		if next == nil {
			result.Approved = true
			return s.requests.CompleteTx(ctx, tx, requestID, repository.RequestStatusApproved)
		}

		result.NextLevel = next.LevelNumber
		result.NextApprover = next.Approver
		return s.requests.AdvanceTx(ctx, tx, requestID, next.LevelNumber, next.Approver)
	})
	if err != nil {
		return nil, err
	}

	if result.Approved {
		s.log.Info().
			Str("request_id", requestID).
			Str("acted_by", approver).
			Msg("Approval request approved")
		s.publish(ctx, events.EventApprovalApproved, requestID, approver, nil)
	} else {
		s.log.Info().
			Str("request_id", requestID).
			Str("acted_by", approver).
			Int("next_level", result.NextLevel).
			Str("next_approver", result.NextApprover).
			Msg("Approval request advanced")
		s.publish(ctx, events.EventApprovalAdvanced, requestID, approver, map[string]any{
			"next_level":    result.NextLevel,
			"next_approver": result.NextApprover,
		})
	}
	return result, nil
}

// Reject terminates a pending request. A single rejection is final; the
// document owner must start a new request after amending the document.
func (s *ApprovalService) Reject(ctx context.Context, requestID, approver string, comments, ipAddress *string) error {
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		request, err := s.requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := checkActionable(request, approver); err != nil {
			return err
		}

		if err := s.actions.AppendTx(ctx, tx, &repository.ApprovalAction{
			RequestID: requestID,
			Action:    repository.ActionRejected,
			Level:     request.CurrentLevel,
			ActedBy:   approver,
			Comments:  comments,
			IPAddress: ipAddress,
		}); err != nil {
			return err
		}
		return s.requests.CompleteTx(ctx, tx, requestID, repository.RequestStatusRejected)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("acted_by", approver).
		Msg("Approval request rejected")
	s.publish(ctx, events.EventApprovalRejected, requestID, approver, nil)
	return nil
}

// Delegate reassigns the current level to another approver. The level number
// and the rest of the routing are unchanged, and the delegation is recorded
// in the audit trail.
func (s *ApprovalService) Delegate(ctx context.Context, requestID, approver, delegateTo string, comments, ipAddress *string) error {
	if strings.TrimSpace(delegateTo) == "" {
		return errors.InvalidInput("delegate_to", "delegate is required")
	}
	if delegateTo == approver {
		return errors.InvalidInput("delegate_to", "cannot delegate to yourself")
	}

	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		request, err := s.requests.GetByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := checkActionable(request, approver); err != nil {
			return err
		}

		if err := s.actions.AppendTx(ctx, tx, &repository.ApprovalAction{
			RequestID: requestID,
			Action:    repository.ActionDelegated,
			Level:     request.CurrentLevel,
			ActedBy:   approver,
			Comments:  comments,
			IPAddress: ipAddress,
		}); err != nil {
			return err
		}
		return s.requests.DelegateTx(ctx, tx, requestID, delegateTo)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("acted_by", approver).
		Str("delegate_to", delegateTo).
		Msg("Approval request delegated")
	s.publish(ctx, events.EventApprovalDelegated, requestID, approver, map[string]any{
		"delegate_to": delegateTo,
	})
	return nil
}

// GetPendingApprovals returns the pending requests waiting on one approver,
// oldest first.
func (s *ApprovalService) GetPendingApprovals(ctx context.Context, approver string) ([]*repository.ApprovalRequest, error) {
	return s.requests.ListPendingForApprover(ctx, approver)
}

// GetRequest returns one approval request.
func (s *ApprovalService) GetRequest(ctx context.Context, requestID string) (*repository.ApprovalRequest, error) {
	return s.requests.GetByID(ctx, requestID)
}

// GetAuditTrail returns the immutable action history of a request, oldest
// first.
func (s *ApprovalService) GetAuditTrail(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error) {
	return s.actions.ListByRequest(ctx, requestID)
}

func (s *ApprovalService) publish(ctx context.Context, eventType, requestID, actorID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, eventType, "approval_request", requestID, actorID, payload)
}

// ── routing ──────────────────────────────────────────────────────────────────

// checkActionable verifies that a request can still be acted on and that the
// actor is its current approver.
func checkActionable(request *repository.ApprovalRequest, actor string) error {
	if request.Status.IsTerminal() {
		return errors.Newf(errors.ErrCodeState, "approval request is already %s", request.Status)
	}
	if actor != request.CurrentApprover {
		return errors.Newf(errors.ErrCodeUnauthorized, "%s is not the current approver of this request", actor)
	}
	return nil
}

// findNextLevel returns the lowest-numbered mandatory level above current
// whose band contains amount, or nil when the chain is exhausted. Levels are
// expected in ascending level order.
func findNextLevel(levels []*repository.ApprovalLevel, current int, amount decimal.Decimal) *repository.ApprovalLevel {
	for _, l := range levels {
		if l.LevelNumber <= current || !l.IsMandatory {
			continue
		}
		if l.Contains(amount) {
			return l
		}
	}
	return nil
}

func validateWorkflowRequest(req *CreateWorkflowRequest) error {
	if strings.TrimSpace(req.WorkflowName) == "" {
		return errors.InvalidInput("workflow_name", "workflow name is required")
	}
	if strings.TrimSpace(req.DocumentType) == "" {
		return errors.InvalidInput("document_type", "document type is required")
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		return errors.InvalidInput("created_by", "creator is required")
	}
	if len(req.Levels) == 0 {
		return errors.InvalidInput("levels", "at least one approval level is required")
	}
	for i, l := range req.Levels {
		if l.LevelNumber != i+1 {
			return errors.InvalidInput("levels", "level numbers must be consecutive starting at 1")
		}
		if strings.TrimSpace(l.Approver) == "" {
			return errors.Newf(errors.ErrCodeValidation, "level %d: approver is required", l.LevelNumber)
		}
		if l.MinAmount.IsNegative() {
			return errors.Newf(errors.ErrCodeValidation, "level %d: min amount must not be negative", l.LevelNumber)
		}
		if l.MaxAmount.LessThan(l.MinAmount) {
			return errors.Newf(errors.ErrCodeValidation, "level %d: max amount must not be below min amount", l.LevelNumber)
		}
	}
	if !req.Levels[0].IsMandatory {
		return errors.InvalidInput("levels", "level 1 must be mandatory")
	}
	return nil
}
