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

// LedgerService owns the voucher lifecycle: draft creation, the double-entry
// balance invariant, posting and cancellation. Posted vouchers are never
// mutated; corrections go through a reversing voucher.
type LedgerService struct {
	db       DB
	vouchers VoucherStore
	events   EventPublisher
	log      *logger.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(db DB, vouchers VoucherStore, events EventPublisher, log *logger.Logger) *LedgerService {
	return &LedgerService{db: db, vouchers: vouchers, events: events, log: log}
}

// CreateVoucherRequest describes a new draft voucher.
type CreateVoucherRequest struct {
	VoucherNumber string
	VoucherType   repository.VoucherType
	VoucherDate   time.Time
	PartyRef      *string
	Currency      string
	Narration     *string
	CreatedBy     string
	Entries       []*EntryInput
}

// EntryInput is one requested debit or credit line.
type EntryInput struct {
	AccountID    string
	Description  *string
	DebitAmount  decimal.Decimal
	CreditAmount decimal.Decimal
	CostCenter   *string
	Department   *string
}

// CreateVoucher creates a draft voucher in its own transaction. Entry shape
// is validated but balance is not: an unbalanced draft is legal and is only
// rejected at posting time.
func (s *LedgerService) CreateVoucher(ctx context.Context, req *CreateVoucherRequest) (*repository.Voucher, error) {
	var voucher *repository.Voucher
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		voucher, err = s.CreateVoucherTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventVoucherCreated, voucher.ID, req.CreatedBy, map[string]any{
		"voucher_number": voucher.VoucherNumber,
		"voucher_type":   string(voucher.VoucherType),
		"total_amount":   voucher.TotalAmount.String(),
	})
	return voucher, nil
}

// CreateVoucherTx creates a draft voucher inside the caller's transaction.
func (s *LedgerService) CreateVoucherTx(ctx context.Context, tx pgx.Tx, req *CreateVoucherRequest) (*repository.Voucher, error) {
	if err := validateVoucherRequest(req); err != nil {
		return nil, err
	}

	entries := make([]*repository.VoucherEntry, 0, len(req.Entries))
	totalDebit := decimal.Zero
	for i, in := range req.Entries {
		entries = append(entries, &repository.VoucherEntry{
			LineNumber:   i + 1,
			AccountID:    in.AccountID,
			Description:  in.Description,
			DebitAmount:  in.DebitAmount,
			CreditAmount: in.CreditAmount,
			CostCenter:   in.CostCenter,
			Department:   in.Department,
		})
		totalDebit = totalDebit.Add(in.DebitAmount)
	}

	voucher := &repository.Voucher{
		VoucherNumber: req.VoucherNumber,
		VoucherType:   req.VoucherType,
		VoucherDate:   req.VoucherDate,
		PartyRef:      req.PartyRef,
		TotalAmount:   totalDebit,
		Currency:      strings.ToUpper(req.Currency),
		Status:        repository.VoucherStatusDraft,
		Narration:     req.Narration,
		CreatedBy:     req.CreatedBy,
		Entries:       entries,
	}

	if err := s.vouchers.CreateTx(ctx, tx, voucher); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("voucher_id", voucher.ID).
		Str("voucher_number", voucher.VoucherNumber).
		Str("voucher_type", string(voucher.VoucherType)).
		Str("total_amount", voucher.TotalAmount.String()).
		Msg("Voucher created")

	return voucher, nil
}

// ValidateEntryBalance enforces the double-entry invariant: the debit and
// credit sums must be exactly equal, with no tolerance.
func ValidateEntryBalance(entries []*repository.VoucherEntry) error {
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, e := range entries {
		totalDebit = totalDebit.Add(e.DebitAmount)
		totalCredit = totalCredit.Add(e.CreditAmount)
	}
	if !totalDebit.Equal(totalCredit) {
		return errors.Newf(errors.ErrCodeInvariant,
			"voucher is not balanced: total debit %s != total credit %s",
			totalDebit.String(), totalCredit.String())
	}
	return nil
}

// ValidateDoubleEntry loads a voucher's entries and checks the balance
// invariant without changing any state.
func (s *LedgerService) ValidateDoubleEntry(ctx context.Context, voucherID string) error {
	voucher, err := s.vouchers.GetByID(ctx, voucherID)
	if err != nil {
		return err
	}
	return ValidateEntryBalance(voucher.Entries)
}

// Post transitions a draft voucher to posted. Reposting is always an error,
// even with identical input. The voucher row is locked so a concurrent Post
// or Cancel observes the committed status.
func (s *LedgerService) Post(ctx context.Context, voucherID, approvedBy string) error {
	if approvedBy == "" {
		return errors.InvalidInput("approved_by", "approver is required")
	}

	var voucherNumber string
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		voucher, err := s.vouchers.GetByIDForUpdate(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		if voucher.Status != repository.VoucherStatusDraft {
			return errors.Newf(errors.ErrCodeState, "voucher %s cannot be posted from status %s", voucher.VoucherNumber, voucher.Status)
		}

		entries, err := s.vouchers.GetEntriesTx(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		if err := ValidateEntryBalance(entries); err != nil {
			return err
		}

		voucherNumber = voucher.VoucherNumber
		return s.vouchers.MarkPostedTx(ctx, tx, voucherID, approvedBy)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("voucher_id", voucherID).
		Str("voucher_number", voucherNumber).
		Str("approved_by", approvedBy).
		Msg("Voucher posted")

	s.publish(ctx, events.EventVoucherPosted, voucherID, approvedBy, map[string]any{
		"voucher_number": voucherNumber,
	})
	return nil
}

// Cancel marks a posted voucher cancelled. Cancellation does not touch the
// entries; the accounting correction is a separate reversing voucher.
func (s *LedgerService) Cancel(ctx context.Context, voucherID, cancelledBy string) error {
	var voucherNumber string
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		voucher, err := s.vouchers.GetByIDForUpdate(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		if voucher.Status != repository.VoucherStatusPosted {
			return errors.Newf(errors.ErrCodeState, "voucher %s cannot be cancelled from status %s", voucher.VoucherNumber, voucher.Status)
		}
		voucherNumber = voucher.VoucherNumber
		return s.vouchers.MarkCancelledTx(ctx, tx, voucherID)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("voucher_id", voucherID).
		Str("voucher_number", voucherNumber).
		Str("cancelled_by", cancelledBy).
		Msg("Voucher cancelled")

	s.publish(ctx, events.EventVoucherCancelled, voucherID, cancelledBy, map[string]any{
		"voucher_number": voucherNumber,
	})
	return nil
}

// UpdateDraftEntries replaces the entry lines of a draft voucher. Posted and
// cancelled vouchers are immutable.
func (s *LedgerService) UpdateDraftEntries(ctx context.Context, voucherID string, inputs []*EntryInput) error {
	if len(inputs) == 0 {
		return errors.InvalidInput("entries", "at least one entry is required")
	}
	for i, in := range inputs {
		if err := validateEntryInput(i, in); err != nil {
			return err
		}
	}

	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		voucher, err := s.vouchers.GetByIDForUpdate(ctx, tx, voucherID)
		if err != nil {
			return err
		}
		if voucher.Status != repository.VoucherStatusDraft {
			return errors.Newf(errors.ErrCodeState, "entries of voucher %s cannot change in status %s", voucher.VoucherNumber, voucher.Status)
		}

		entries := make([]*repository.VoucherEntry, 0, len(inputs))
		totalDebit := decimal.Zero
		for i, in := range inputs {
			entries = append(entries, &repository.VoucherEntry{
				VoucherID:    voucherID,
				LineNumber:   i + 1,
				AccountID:    in.AccountID,
				Description:  in.Description,
				DebitAmount:  in.DebitAmount,
				CreditAmount: in.CreditAmount,
				CostCenter:   in.CostCenter,
				Department:   in.Department,
			})
			totalDebit = totalDebit.Add(in.DebitAmount)
		}
		voucher.TotalAmount = totalDebit

		return s.vouchers.ReplaceEntriesTx(ctx, tx, voucher, entries)
	})
}

// GetVoucher returns a voucher with its entries.
func (s *LedgerService) GetVoucher(ctx context.Context, voucherID string) (*repository.Voucher, error) {
	return s.vouchers.GetByID(ctx, voucherID)
}

// ListVouchers returns a filtered page of vouchers plus the total match count.
func (s *LedgerService) ListVouchers(ctx context.Context, filter repository.ListFilter) ([]*repository.Voucher, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.vouchers.List(ctx, filter)
}

func (s *LedgerService) publish(ctx context.Context, eventType, voucherID, actorID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, eventType, "voucher", voucherID, actorID, payload)
}

// ── validation ───────────────────────────────────────────────────────────────

func validateVoucherRequest(req *CreateVoucherRequest) error {
	if strings.TrimSpace(req.VoucherNumber) == "" {
		return errors.InvalidInput("voucher_number", "voucher number is required")
	}
	switch req.VoucherType {
	case repository.VoucherTypeJournal, repository.VoucherTypeSalesInvoice, repository.VoucherTypePurchaseInvoice,
		repository.VoucherTypeCashReceipt, repository.VoucherTypeCashPayment,
		repository.VoucherTypeBankReceipt, repository.VoucherTypeBankPayment:
	default:
		return errors.InvalidInput("voucher_type", "unknown voucher type")
	}
	if req.VoucherDate.IsZero() {
		return errors.InvalidInput("voucher_date", "voucher date is required")
	}
	if len(req.Currency) != 3 {
		return errors.InvalidInput("currency", "currency must be a 3-letter code")
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		return errors.InvalidInput("created_by", "creator is required")
	}
	if len(req.Entries) == 0 {
		return errors.InvalidInput("entries", "at least one entry is required")
	}
	for i, in := range req.Entries {
		if err := validateEntryInput(i, in); err != nil {
			return err
		}
	}
	return nil
}

func validateEntryInput(i int, in *EntryInput) error {
	if strings.TrimSpace(in.AccountID) == "" {
		return errors.Newf(errors.ErrCodeValidation, "entry %d: account is required", i+1)
	}
	if in.DebitAmount.IsNegative() || in.CreditAmount.IsNegative() {
		return errors.Newf(errors.ErrCodeValidation, "entry %d: amounts must not be negative", i+1)
	}
	debitSet := in.DebitAmount.IsPositive()
	creditSet := in.CreditAmount.IsPositive()
	if debitSet == creditSet {
		return errors.Newf(errors.ErrCodeValidation, "entry %d: exactly one of debit or credit must be set", i+1)
	}
	return nil
}
