package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-gl-ledger/errors"
	"github.com/pesio-ai/be-gl-ledger/logger"
	"github.com/pesio-ai/be-gl-ledger/repository"
)

type postingFixture struct {
	svc      *PostingService
	approval *ApprovalService
	vouchers *fakeVoucherStore
	requests *fakeRequestStore
}

func newPostingFixture(t *testing.T) *postingFixture {
	t.Helper()
	db := &fakeDB{}
	log := logger.Nop()
	schemes := newFakeSchemeStore()
	vouchers := newFakeVoucherStore()
	requests := newFakeRequestStore()

	numbering := NewNumberingService(db, schemes, log)
	ledger := NewLedgerService(db, vouchers, nil, log)
	approval := NewApprovalService(db, newFakeWorkflowStore(), requests, newFakeActionStore(), nil, log)
	svc := NewPostingService(db, numbering, ledger, approval, vouchers, requests, nil, log)

	ctx := context.Background()
	_, err := numbering.CreateScheme(ctx, &CreateSchemeRequest{
		DocumentType:   string(repository.VoucherTypeJournal),
		Prefix:         "JV",
		DateFormat:     "YYYYMM",
		Padding:        5,
		ResetFrequency: repository.ResetMonthly,
	})
	require.NoError(t, err)

	return &postingFixture{svc: svc, approval: approval, vouchers: vouchers, requests: requests}
}

func draftRequest() *CreateVoucherRequest {
	return &CreateVoucherRequest{
		VoucherType: repository.VoucherTypeJournal,
		VoucherDate: time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		Currency:    "USD",
		CreatedBy:   "clerk-1",
		Entries: []*EntryInput{
			{AccountID: "1000-cash", DebitAmount: dec("25000.00")},
			{AccountID: "4000-sales", CreditAmount: dec("25000.00")},
		},
	}
}

func (f *postingFixture) installWorkflow(t *testing.T) {
	t.Helper()
	_, err := f.approval.CreateWorkflow(context.Background(), twoLevelWorkflow())
	require.NoError(t, err)
}

func TestCreateVoucherAssignsNumber(t *testing.T) {
	f := newPostingFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)
	second, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)

	assert.Equal(t, "JV-202603-00001", first.VoucherNumber)
	assert.Equal(t, "JV-202603-00002", second.VoucherNumber)
	assert.Equal(t, repository.VoucherStatusDraft, first.Status)
}

func TestCreateVoucherRejectsSuppliedNumber(t *testing.T) {
	f := newPostingFixture(t)

	req := draftRequest()
	req.VoucherNumber = "JV-999"
	_, err := f.svc.CreateVoucher(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}

func TestCreateVoucherRollsBackNumberOnFailure(t *testing.T) {
	f := newPostingFixture(t)
	ctx := context.Background()

	bad := draftRequest()
	bad.Entries[0].AccountID = ""
	_, err := f.svc.CreateVoucher(ctx, bad, nil)
	require.Error(t, err)

	// The fake runner does not roll back counter state, but the failing
	// request must never reach voucher creation with a consumed number
	// visible to callers.
	good, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, good.VoucherNumber)
}

func TestCreateVoucherFailureLeavesRequestReusable(t *testing.T) {
	f := newPostingFixture(t)
	ctx := context.Background()

	req := draftRequest()
	req.Entries[0].AccountID = ""
	_, err := f.svc.CreateVoucher(ctx, req, nil)
	require.Error(t, err)
	assert.Empty(t, req.VoucherNumber, "a failed attempt must not write the allocated number back into the request")

	// Amending and retrying the same request must work.
	req.Entries[0].AccountID = "1000-cash"
	voucher, err := f.svc.CreateVoucher(ctx, req, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, voucher.VoucherNumber)
}

func TestSubmitForApproval(t *testing.T) {
	f := newPostingFixture(t)
	f.installWorkflow(t)
	ctx := context.Background()

	voucher, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)

	request, err := f.svc.SubmitForApproval(ctx, voucher.ID, "clerk-1")
	require.NoError(t, err)

	assert.Equal(t, DocumentTypeVoucher, request.DocumentType)
	assert.Equal(t, voucher.ID, request.DocumentID)
	assert.True(t, request.Amount.Equal(dec("25000.00")), "the request amount is the voucher total")
	assert.Equal(t, 1, request.CurrentLevel)

	stored, err := f.vouchers.GetByID(ctx, voucher.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ApprovalRequestID)
	assert.Equal(t, request.ID, *stored.ApprovalRequestID)
}

func TestSubmitForApprovalRejectsUnbalanced(t *testing.T) {
	f := newPostingFixture(t)
	f.installWorkflow(t)
	ctx := context.Background()

	req := draftRequest()
	req.Entries[1].CreditAmount = dec("24000.00")
	voucher, err := f.svc.CreateVoucher(ctx, req, nil)
	require.NoError(t, err)

	_, err = f.svc.SubmitForApproval(ctx, voucher.ID, "clerk-1")
	require.Error(t, err, "an unbalanced voucher must be caught before any approver sees it")
	assert.Equal(t, errors.ErrCodeInvariant, errors.CodeOf(err))

	stored, err := f.vouchers.GetByID(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ApprovalRequestID)
}

func TestSubmitForApprovalTwiceIsDuplicate(t *testing.T) {
	f := newPostingFixture(t)
	f.installWorkflow(t)
	ctx := context.Background()

	voucher, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)

	_, err = f.svc.SubmitForApproval(ctx, voucher.ID, "clerk-1")
	require.NoError(t, err)

	_, err = f.svc.SubmitForApproval(ctx, voucher.ID, "clerk-1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicate, errors.CodeOf(err))
}

func TestFinalizePostingFullFlow(t *testing.T) {
	f := newPostingFixture(t)
	f.installWorkflow(t)
	ctx := context.Background()

	voucher, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)

	request, err := f.svc.SubmitForApproval(ctx, voucher.ID, "clerk-1")
	require.NoError(t, err)

	// Posting before the approval chain completes is a state error.
	err = f.svc.FinalizePosting(ctx, voucher.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeState, errors.CodeOf(err))

	// 25000 crosses both bands: manager then director.
	_, err = f.approval.Approve(ctx, request.ID, "manager-a", nil, nil)
	require.NoError(t, err)
	_, err = f.approval.Approve(ctx, request.ID, "director-b", nil, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.FinalizePosting(ctx, voucher.ID))

	stored, err := f.vouchers.GetByID(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.VoucherStatusPosted, stored.Status)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, "director-b", *stored.ApprovedBy, "the last approver of record posts the voucher")

	err = f.svc.FinalizePosting(ctx, voucher.ID)
	require.Error(t, err, "reposting is always an error")
	assert.Equal(t, errors.ErrCodeState, errors.CodeOf(err))
}

func TestFinalizePostingWithoutSubmission(t *testing.T) {
	f := newPostingFixture(t)
	ctx := context.Background()

	voucher, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)

	err = f.svc.FinalizePosting(ctx, voucher.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeState, errors.CodeOf(err))
}

func TestFinalizePostingAfterRejection(t *testing.T) {
	f := newPostingFixture(t)
	f.installWorkflow(t)
	ctx := context.Background()

	voucher, err := f.svc.CreateVoucher(ctx, draftRequest(), nil)
	require.NoError(t, err)

	request, err := f.svc.SubmitForApproval(ctx, voucher.ID, "clerk-1")
	require.NoError(t, err)
	require.NoError(t, f.approval.Reject(ctx, request.ID, "manager-a", nil, nil))

	err = f.svc.FinalizePosting(ctx, voucher.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeState, errors.CodeOf(err))

	stored, err := f.vouchers.GetByID(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.VoucherStatusDraft, stored.Status, "a rejected voucher stays in draft for amendment")
}
