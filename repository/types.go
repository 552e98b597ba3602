package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── enumerations ─────────────────────────────────────────────────────────────

// VoucherStatus is the posting state of a voucher.
type VoucherStatus string

const (
	VoucherStatusDraft     VoucherStatus = "draft"
	VoucherStatusPosted    VoucherStatus = "posted"
	VoucherStatusCancelled VoucherStatus = "cancelled"
)

// VoucherType classifies accounting documents.
type VoucherType string

const (
	VoucherTypeJournal         VoucherType = "JE"  // journal entry
	VoucherTypeSalesInvoice    VoucherType = "SI"  // sales invoice
	VoucherTypePurchaseInvoice VoucherType = "PI"  // purchase invoice
	VoucherTypeCashReceipt     VoucherType = "CRV" // cash receipt voucher
	VoucherTypeCashPayment     VoucherType = "CPV" // cash payment voucher
	VoucherTypeBankReceipt     VoucherType = "BRV" // bank receipt voucher
	VoucherTypeBankPayment     VoucherType = "BPV" // bank payment voucher
)

// RequestStatus is the lifecycle state of an approval request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether no further action may mutate the request.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// ActionType is the kind of state-changing event recorded in the audit trail.
type ActionType string

const (
	ActionApproved  ActionType = "approved"
	ActionRejected  ActionType = "rejected"
	ActionDelegated ActionType = "delegated"
	ActionReturned  ActionType = "returned"
)

// ResetFrequency controls periodic counter resets on a numbering scheme.
type ResetFrequency string

const (
	ResetNever   ResetFrequency = "never"
	ResetYearly  ResetFrequency = "yearly"
	ResetMonthly ResetFrequency = "monthly"
	ResetDaily   ResetFrequency = "daily"
)

// ── numbering ────────────────────────────────────────────────────────────────

// NumberingScheme governs sequential document number generation for one
// (document_type, scope) pair. A nil Scope marks the fallback default scheme.
// next_number is mutated only under an exclusive row lock.
type NumberingScheme struct {
	ID             string
	DocumentType   string
	Scope          *string
	Prefix         string
	DateFormat     string // YYYY | YY | YYYYMM | YYMM | YYYYMMDD | "" for none
	Padding        int
	Suffix         string
	Separator      string
	NextNumber     int64
	ResetFrequency ResetFrequency
	LastResetDate  time.Time
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ── vouchers ─────────────────────────────────────────────────────────────────

// Voucher is a double-entry document header owning an ordered set of entries.
// It is created in draft and transitions to posted only through the ledger
// service; entries of a posted voucher are immutable.
type Voucher struct {
	ID                string
	VoucherNumber     string
	VoucherType       VoucherType
	VoucherDate       time.Time
	PartyRef          *string
	TotalAmount       decimal.Decimal
	Currency          string
	Status            VoucherStatus
	ApprovalRequestID *string
	Narration         *string
	CreatedBy         string
	ApprovedBy        *string
	PostedAt          *time.Time
	CancelledAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Entries           []*VoucherEntry
}

// VoucherEntry is one debit or credit line of a voucher. Exactly one of
// DebitAmount / CreditAmount is non-zero.
type VoucherEntry struct {
	ID           string
	VoucherID    string
	LineNumber   int
	AccountID    string
	Description  *string
	DebitAmount  decimal.Decimal
	CreditAmount decimal.Decimal
	CostCenter   *string
	Department   *string
	CreatedAt    time.Time
}

// ── approval workflow ────────────────────────────────────────────────────────

// ApprovalWorkflow maps a document type to an ordered set of approval levels.
// At most one workflow per document type is active.
type ApprovalWorkflow struct {
	ID           string
	WorkflowName string
	DocumentType string
	IsActive     bool
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Levels       []*ApprovalLevel
}

// ApprovalLevel is one monetary authority band within a workflow.
type ApprovalLevel struct {
	ID          string
	WorkflowID  string
	LevelNumber int
	Approver    string
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	IsMandatory bool
	CreatedAt   time.Time
}

// Contains reports whether amount falls inside the level's inclusive band.
func (l *ApprovalLevel) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(l.MinAmount) && amount.LessThanOrEqual(l.MaxAmount)
}

// ApprovalRequest is an in-flight (or completed) approval for one document.
// Terminal statuses are immutable.
type ApprovalRequest struct {
	ID              string
	WorkflowID      string
	DocumentType    string
	DocumentID      string
	Amount          decimal.Decimal
	CurrentLevel    int
	CurrentApprover string
	Status          RequestStatus
	RequestedBy     string
	RequestDate     time.Time
	CompletionDate  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApprovalAction is one immutable audit-trail row. The table forbids UPDATE
// and DELETE, so append is the only mutation.
type ApprovalAction struct {
	ID        string
	RequestID string
	Action    ActionType
	Level     int
	ActedBy   string
	Comments  *string
	IPAddress *string
	CreatedAt time.Time
}
