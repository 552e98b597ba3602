package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/errors"
	"github.com/pesio-ai/be-gl-ledger/repository"
)

// fakeDB emulates the transaction runner. The mutex stands in for the row
// locks a real transaction would hold: concurrent callers serialize the same
// way callers of SELECT ... FOR UPDATE do.
type fakeDB struct {
	mu sync.Mutex
}

func (d *fakeDB) InTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(nil)
}

// ── scheme store ─────────────────────────────────────────────────────────────

type fakeSchemeStore struct {
	schemes map[string]*repository.NumberingScheme
}

func newFakeSchemeStore() *fakeSchemeStore {
	return &fakeSchemeStore{schemes: make(map[string]*repository.NumberingScheme)}
}

func (f *fakeSchemeStore) Create(_ context.Context, s *repository.NumberingScheme) error {
	s.ID = uuid.NewString()
	cp := *s
	f.schemes[s.ID] = &cp
	return nil
}

func (f *fakeSchemeStore) GetActive(_ context.Context, documentType string, scope *string) (*repository.NumberingScheme, error) {
	if scope != nil {
		for _, s := range f.schemes {
			if s.IsActive && s.DocumentType == documentType && s.Scope != nil && *s.Scope == *scope {
				cp := *s
				return &cp, nil
			}
		}
	}
	for _, s := range f.schemes {
		if s.IsActive && s.DocumentType == documentType && s.Scope == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, errors.NotFound("numbering scheme", documentType)
}

func (f *fakeSchemeStore) GetActiveForUpdate(ctx context.Context, _ pgx.Tx, documentType string, scope *string) (*repository.NumberingScheme, error) {
	return f.GetActive(ctx, documentType, scope)
}

func (f *fakeSchemeStore) UpdateCounterTx(_ context.Context, _ pgx.Tx, id string, nextNumber int64, lastResetDate time.Time) error {
	s, ok := f.schemes[id]
	if !ok {
		return errors.NotFound("numbering scheme", id)
	}
	s.NextNumber = nextNumber
	s.LastResetDate = lastResetDate
	return nil
}

func (f *fakeSchemeStore) SetActive(_ context.Context, id string, active bool) error {
	s, ok := f.schemes[id]
	if !ok {
		return errors.NotFound("numbering scheme", id)
	}
	s.IsActive = active
	return nil
}

// ── voucher store ────────────────────────────────────────────────────────────

type fakeVoucherStore struct {
	vouchers map[string]*repository.Voucher
}

func newFakeVoucherStore() *fakeVoucherStore {
	return &fakeVoucherStore{vouchers: make(map[string]*repository.Voucher)}
}

func (f *fakeVoucherStore) CreateTx(_ context.Context, _ pgx.Tx, v *repository.Voucher) error {
	v.ID = uuid.NewString()
	for _, e := range v.Entries {
		e.ID = uuid.NewString()
		e.VoucherID = v.ID
	}
	f.vouchers[v.ID] = v
	return nil
}

func (f *fakeVoucherStore) GetByID(_ context.Context, id string) (*repository.Voucher, error) {
	v, ok := f.vouchers[id]
	if !ok {
		return nil, errors.NotFound("voucher", id)
	}
	return v, nil
}

func (f *fakeVoucherStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id string) (*repository.Voucher, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeVoucherStore) GetEntriesTx(_ context.Context, _ pgx.Tx, voucherID string) ([]*repository.VoucherEntry, error) {
	v, ok := f.vouchers[voucherID]
	if !ok {
		return nil, errors.NotFound("voucher", voucherID)
	}
	return v.Entries, nil
}

func (f *fakeVoucherStore) ReplaceEntriesTx(_ context.Context, _ pgx.Tx, v *repository.Voucher, entries []*repository.VoucherEntry) error {
	stored, ok := f.vouchers[v.ID]
	if !ok {
		return errors.NotFound("voucher", v.ID)
	}
	for _, e := range entries {
		e.ID = uuid.NewString()
	}
	stored.Entries = entries
	stored.TotalAmount = v.TotalAmount
	return nil
}

func (f *fakeVoucherStore) MarkPostedTx(_ context.Context, _ pgx.Tx, id, approvedBy string) error {
	v, ok := f.vouchers[id]
	if !ok {
		return errors.NotFound("voucher", id)
	}
	now := time.Now().UTC()
	v.Status = repository.VoucherStatusPosted
	v.ApprovedBy = &approvedBy
	v.PostedAt = &now
	return nil
}

func (f *fakeVoucherStore) MarkCancelledTx(_ context.Context, _ pgx.Tx, id string) error {
	v, ok := f.vouchers[id]
	if !ok {
		return errors.NotFound("voucher", id)
	}
	now := time.Now().UTC()
	v.Status = repository.VoucherStatusCancelled
	v.CancelledAt = &now
	return nil
}

func (f *fakeVoucherStore) LinkApprovalRequestTx(_ context.Context, _ pgx.Tx, voucherID, requestID string) error {
	v, ok := f.vouchers[voucherID]
	if !ok {
		return errors.NotFound("voucher", voucherID)
	}
	v.ApprovalRequestID = &requestID
	return nil
}

func (f *fakeVoucherStore) List(_ context.Context, filter repository.ListFilter) ([]*repository.Voucher, int64, error) {
	var out []*repository.Voucher
	for _, v := range f.vouchers {
		if filter.Status != nil && v.Status != *filter.Status {
			continue
		}
		if filter.VoucherType != nil && v.VoucherType != *filter.VoucherType {
			continue
		}
		out = append(out, v)
	}
	return out, int64(len(out)), nil
}

// ── workflow store ───────────────────────────────────────────────────────────

type fakeWorkflowStore struct {
	workflows map[string]*repository.ApprovalWorkflow
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{workflows: make(map[string]*repository.ApprovalWorkflow)}
}

func (f *fakeWorkflowStore) Create(_ context.Context, wf *repository.ApprovalWorkflow) error {
	wf.ID = uuid.NewString()
	for _, l := range wf.Levels {
		l.ID = uuid.NewString()
		l.WorkflowID = wf.ID
	}
	f.workflows[wf.ID] = wf
	return nil
}

func (f *fakeWorkflowStore) GetByID(_ context.Context, id string) (*repository.ApprovalWorkflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, errors.NotFound("approval workflow", id)
	}
	return wf, nil
}

func (f *fakeWorkflowStore) GetActiveByDocumentType(_ context.Context, documentType string) (*repository.ApprovalWorkflow, error) {
	for _, wf := range f.workflows {
		if wf.IsActive && wf.DocumentType == documentType {
			return wf, nil
		}
	}
	return nil, errors.NotFound("approval workflow", documentType)
}

func (f *fakeWorkflowStore) GetLevels(_ context.Context, workflowID string) ([]*repository.ApprovalLevel, error) {
	wf, ok := f.workflows[workflowID]
	if !ok {
		return nil, errors.NotFound("approval workflow", workflowID)
	}
	return wf.Levels, nil
}

func (f *fakeWorkflowStore) Deactivate(_ context.Context, id string) error {
	wf, ok := f.workflows[id]
	if !ok {
		return errors.NotFound("approval workflow", id)
	}
	wf.IsActive = false
	return nil
}

// ── request store ────────────────────────────────────────────────────────────

type fakeRequestStore struct {
	requests map[string]*repository.ApprovalRequest
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[string]*repository.ApprovalRequest)}
}

func (f *fakeRequestStore) CreateTx(_ context.Context, _ pgx.Tx, req *repository.ApprovalRequest) error {
	req.ID = uuid.NewString()
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRequestStore) ExistsOpenTx(_ context.Context, _ pgx.Tx, documentType, documentID string) (bool, error) {
	for _, r := range f.requests {
		if r.DocumentType == documentType && r.DocumentID == documentID &&
			(r.Status == repository.RequestStatusPending || r.Status == repository.RequestStatusApproved) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRequestStore) GetByID(_ context.Context, id string) (*repository.ApprovalRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, errors.NotFound("approval request", id)
	}
	return r, nil
}

func (f *fakeRequestStore) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id string) (*repository.ApprovalRequest, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRequestStore) AdvanceTx(_ context.Context, _ pgx.Tx, id string, nextLevel int, nextApprover string) error {
	r, ok := f.requests[id]
	if !ok {
		return errors.NotFound("approval request", id)
	}
	r.CurrentLevel = nextLevel
	r.CurrentApprover = nextApprover
	return nil
}

func (f *fakeRequestStore) CompleteTx(_ context.Context, _ pgx.Tx, id string, status repository.RequestStatus) error {
	r, ok := f.requests[id]
	if !ok {
		return errors.NotFound("approval request", id)
	}
	now := time.Now().UTC()
	r.Status = status
	r.CompletionDate = &now
	return nil
}

func (f *fakeRequestStore) DelegateTx(_ context.Context, _ pgx.Tx, id, newApprover string) error {
	r, ok := f.requests[id]
	if !ok {
		return errors.NotFound("approval request", id)
	}
	r.CurrentApprover = newApprover
	return nil
}

func (f *fakeRequestStore) ListPendingForApprover(_ context.Context, approver string) ([]*repository.ApprovalRequest, error) {
	var out []*repository.ApprovalRequest
	for _, r := range f.requests {
		if r.Status == repository.RequestStatusPending && r.CurrentApprover == approver {
			out = append(out, r)
		}
	}
	return out, nil
}

// ── action store ─────────────────────────────────────────────────────────────

type fakeActionStore struct {
	actions []*repository.ApprovalAction
}

func newFakeActionStore() *fakeActionStore {
	return &fakeActionStore{}
}

func (f *fakeActionStore) AppendTx(_ context.Context, _ pgx.Tx, a *repository.ApprovalAction) error {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	f.actions = append(f.actions, a)
	return nil
}

func (f *fakeActionStore) ListByRequest(_ context.Context, requestID string) ([]*repository.ApprovalAction, error) {
	var out []*repository.ApprovalAction
	for _, a := range f.actions {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ── event publisher ──────────────────────────────────────────────────────────

type recordedEvent struct {
	eventType    string
	resourceType string
	resourceID   string
	actorID      string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakePublisher) Publish(_ context.Context, eventType, resourceType, resourceID, actorID string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType, resourceType, resourceID, actorID})
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.eventType
	}
	return out
}
