package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/errors"
	"github.com/pesio-ai/be-gl-ledger/events"
	"github.com/pesio-ai/be-gl-ledger/logger"
	"github.com/pesio-ai/be-gl-ledger/repository"
)

// PostingService orchestrates the full document flow across the other
// services: number allocation plus voucher creation in one transaction,
// submission into the approval engine, and final posting once the request
// completes.
type PostingService struct {
	db        DB
	numbering *NumberingService
	ledger    *LedgerService
	approval  *ApprovalService
	vouchers  VoucherStore
	requests  RequestStore
	events    EventPublisher
	log       *logger.Logger
}

// NewPostingService creates a new PostingService.
func NewPostingService(db DB, numbering *NumberingService, ledger *LedgerService, approval *ApprovalService, vouchers VoucherStore, requests RequestStore, events EventPublisher, log *logger.Logger) *PostingService {
	return &PostingService{
		db:        db,
		numbering: numbering,
		ledger:    ledger,
		approval:  approval,
		vouchers:  vouchers,
		requests:  requests,
		events:    events,
		log:       log,
	}
}

// CreateVoucher allocates the next document number and creates the draft
// voucher in one transaction, so a failed creation rolls the number back and
// the sequence stays gapless.
func (s *PostingService) CreateVoucher(ctx context.Context, req *CreateVoucherRequest, scope *string) (*repository.Voucher, error) {
	if req.VoucherNumber != "" {
		return nil, errors.InvalidInput("voucher_number", "voucher number is assigned, not supplied")
	}

	var voucher *repository.Voucher
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		number, err := s.numbering.GenerateNumberTx(ctx, tx, string(req.VoucherType), scope, req.VoucherDate)
		if err != nil {
			return err
		}

		// The caller's request is left untouched so a failed attempt can be
		// amended and retried without tripping the assigned-number guard.
		numbered := *req
		numbered.VoucherNumber = number

		voucher, err = s.ledger.CreateVoucherTx(ctx, tx, &numbered)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.Publish(ctx, events.EventVoucherCreated, "voucher", voucher.ID, req.CreatedBy, map[string]any{
			"voucher_number": voucher.VoucherNumber,
			"voucher_type":   string(voucher.VoucherType),
			"total_amount":   voucher.TotalAmount.String(),
		})
	}
	return voucher, nil
}

// SubmitForApproval routes a draft voucher into the approval engine. The
// voucher must already balance: catching an unbalanced document before the
// first approver sees it beats catching it at posting time. The request is
// opened and linked to the voucher in one transaction.
func (s *PostingService) SubmitForApproval(ctx context.Context, voucherID, requestedBy string) (*repository.ApprovalRequest, error) {
	var request *repository.ApprovalRequest
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		voucher, err := s.vouchers.GetByIDForUpdate(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		if voucher.Status != repository.VoucherStatusDraft {
			return errors.Newf(errors.ErrCodeState, "voucher %s cannot be submitted from status %s", voucher.VoucherNumber, voucher.Status)
		}

		entries, err := s.vouchers.GetEntriesTx(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		if err := ValidateEntryBalance(entries); err != nil {
			return err
		}

		request, err = s.approval.InitiateTx(ctx, tx, DocumentTypeVoucher, voucherID, voucher.TotalAmount, requestedBy)
		if err != nil {
			return err
		}
		return s.vouchers.LinkApprovalRequestTx(ctx, tx, voucherID, request.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("voucher_id", voucherID).
		Str("request_id", request.ID).
		Str("requested_by", requestedBy).
		Msg("Voucher submitted for approval")

	if s.events != nil {
		s.events.Publish(ctx, events.EventApprovalRequested, "approval_request", request.ID, requestedBy, map[string]any{
			"document_type": DocumentTypeVoucher,
			"document_id":   voucherID,
			"amount":        request.Amount.String(),
		})
	}
	return request, nil
}

// FinalizePosting posts a voucher whose linked approval request completed as
// approved. Posting without a completed approval is a state error.
func (s *PostingService) FinalizePosting(ctx context.Context, voucherID string) error {
	voucher, err := s.vouchers.GetByID(ctx, voucherID)
	if err != nil {
		return err
	}
	if voucher.ApprovalRequestID == nil {
		return errors.Newf(errors.ErrCodeState, "voucher %s was never submitted for approval", voucher.VoucherNumber)
	}

	request, err := s.requests.GetByID(ctx, *voucher.ApprovalRequestID)
	if err != nil {
		return err
	}
	if request.Status != repository.RequestStatusApproved {
		return errors.Newf(errors.ErrCodeState, "approval request for voucher %s is %s, not approved", voucher.VoucherNumber, request.Status)
	}

	// The last approver of record becomes the posting authority.
	return s.ledger.Post(ctx, voucherID, request.CurrentApprover)
}
