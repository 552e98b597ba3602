package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-gl-ledger/errors"
	"github.com/pesio-ai/be-gl-ledger/logger"
	"github.com/pesio-ai/be-gl-ledger/repository"
)

// dateFormatLayouts maps the configurable date tokens onto Go layouts. An
// empty token omits the date component entirely.
var dateFormatLayouts = map[string]string{
	"":         "",
	"YYYY":     "2006",
	"YY":       "06",
	"YYYYMM":   "200601",
	"YYMM":     "0601",
	"YYYYMMDD": "20060102",
}

// NumberingService issues unique, human-readable sequential document numbers
// per (document type, optional scope) with periodic counter reset.
//
// Concurrency contract: the exclusive row lock taken by the scheme store is
// the only correctness mechanism. The counter is re-read under lock on every
// call and never cached in memory, so two concurrent calls against the same
// scheme can never emit the same number.
type NumberingService struct {
	db      DB
	schemes SchemeStore
	log     *logger.Logger
}

// NewNumberingService creates a new NumberingService.
func NewNumberingService(db DB, schemes SchemeStore, log *logger.Logger) *NumberingService {
	return &NumberingService{db: db, schemes: schemes, log: log}
}

// CreateSchemeRequest describes a new numbering scheme.
type CreateSchemeRequest struct {
	DocumentType   string
	Scope          *string
	Prefix         string
	DateFormat     string
	Padding        int
	Suffix         string
	Separator      string
	StartNumber    int64
	ResetFrequency repository.ResetFrequency
}

// CreateScheme registers a numbering scheme. Exactly one active scheme may
// exist per (document_type, scope); violations surface as duplicate errors.
func (s *NumberingService) CreateScheme(ctx context.Context, req *CreateSchemeRequest) (*repository.NumberingScheme, error) {
	if strings.TrimSpace(req.DocumentType) == "" {
		return nil, errors.InvalidInput("document_type", "document type is required")
	}
	if _, ok := dateFormatLayouts[req.DateFormat]; !ok {
		return nil, errors.InvalidInput("date_format", "date format must be one of YYYY, YY, YYYYMM, YYMM, YYYYMMDD or empty")
	}
	if req.Padding < 1 || req.Padding > 12 {
		return nil, errors.InvalidInput("padding", "padding must be between 1 and 12")
	}
	switch req.ResetFrequency {
	case repository.ResetNever, repository.ResetYearly, repository.ResetMonthly, repository.ResetDaily:
	default:
		return nil, errors.InvalidInput("reset_frequency", "reset frequency must be never, yearly, monthly or daily")
	}

	start := req.StartNumber
	if start < 1 {
		start = 1
	}
	separator := req.Separator
	if separator == "" {
		separator = "-"
	}

	scheme := &repository.NumberingScheme{
		DocumentType:   req.DocumentType,
		Scope:          req.Scope,
		Prefix:         req.Prefix,
		DateFormat:     req.DateFormat,
		Padding:        req.Padding,
		Suffix:         req.Suffix,
		Separator:      separator,
		NextNumber:     start,
		ResetFrequency: req.ResetFrequency,
		LastResetDate:  time.Now().UTC(),
		IsActive:       true,
	}

	if err := s.schemes.Create(ctx, scheme); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("scheme_id", scheme.ID).
		Str("document_type", scheme.DocumentType).
		Str("reset_frequency", string(scheme.ResetFrequency)).
		Msg("Numbering scheme created")

	return scheme, nil
}

// SetSchemeActive activates or retires a scheme. Retiring a scoped scheme
// makes its documents fall back to the scope-less default.
func (s *NumberingService) SetSchemeActive(ctx context.Context, schemeID string, active bool) error {
	if err := s.schemes.SetActive(ctx, schemeID, active); err != nil {
		return err
	}
	s.log.Info().
		Str("scheme_id", schemeID).
		Bool("active", active).
		Msg("Numbering scheme activation changed")
	return nil
}

// GenerateNumber allocates the next document number in its own transaction.
func (s *NumberingService) GenerateNumber(ctx context.Context, documentType string, scope *string, asOf time.Time) (string, error) {
	var number string
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		number, err = s.GenerateNumberTx(ctx, tx, documentType, scope, asOf)
		return err
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// GenerateNumberTx allocates the next number inside the caller's transaction.
// The posting orchestrator uses this form so a failed voucher creation rolls
// the allocation back and no number is consumed.
func (s *NumberingService) GenerateNumberTx(ctx context.Context, tx pgx.Tx, documentType string, scope *string, asOf time.Time) (string, error) {
	scheme, err := s.schemes.GetActiveForUpdate(ctx, tx, documentType, scope)
	if err != nil {
		return "", err
	}

	lastReset := scheme.LastResetDate
	current := scheme.NextNumber
	if shouldReset(scheme.ResetFrequency, scheme.LastResetDate, asOf) {
		current = 1
		lastReset = asOf
	}

	number := formatNumber(scheme, asOf, current)

	if err := s.schemes.UpdateCounterTx(ctx, tx, scheme.ID, current+1, lastReset); err != nil {
		return "", err
	}
	return number, nil
}

// PreviewNextNumber renders the number the next GenerateNumber call would
// return, without mutating the counter and without locking the scheme.
func (s *NumberingService) PreviewNextNumber(ctx context.Context, documentType string, scope *string) (string, error) {
	scheme, err := s.schemes.GetActive(ctx, documentType, scope)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	current := scheme.NextNumber
	if shouldReset(scheme.ResetFrequency, scheme.LastResetDate, now) {
		current = 1
	}
	return formatNumber(scheme, now, current), nil
}

// ResetCounter is an administrative override that rewinds (or forwards) the
// counter. The scheme row is locked for the duration of the call.
func (s *NumberingService) ResetCounter(ctx context.Context, documentType string, scope *string, resetTo int64) error {
	if resetTo < 1 {
		return errors.InvalidInput("reset_to", "counter must be reset to 1 or higher")
	}

	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		scheme, err := s.schemes.GetActiveForUpdate(ctx, tx, documentType, scope)
		if err != nil {
			return err
		}

		if err := s.schemes.UpdateCounterTx(ctx, tx, scheme.ID, resetTo, time.Now().UTC()); err != nil {
			return err
		}

		s.log.Info().
			Str("scheme_id", scheme.ID).
			Str("document_type", documentType).
			Int64("reset_to", resetTo).
			Msg("Numbering counter reset")
		return nil
	})
}

// shouldReset reports whether asOf falls in a strictly later reset period
// than lastReset. Backdated dates never reset: a voucher dated in an earlier
// period continues the current counter, so numbers already issued in that
// period are never re-emitted and last_reset_date never moves backwards.
func shouldReset(freq repository.ResetFrequency, lastReset, asOf time.Time) bool {
	if freq == repository.ResetNever {
		return false
	}
	return periodStart(freq, asOf).After(periodStart(freq, lastReset))
}

// periodStart truncates t to the start of its reset period in UTC.
func periodStart(freq repository.ResetFrequency, t time.Time) time.Time {
	t = t.UTC()
	switch freq {
	case repository.ResetYearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case repository.ResetMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case repository.ResetDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

// formatNumber renders prefix, date component, zero-padded counter and
// suffix joined by the scheme separator.
func formatNumber(scheme *repository.NumberingScheme, asOf time.Time, n int64) string {
	parts := make([]string, 0, 4)
	if scheme.Prefix != "" {
		parts = append(parts, scheme.Prefix)
	}
	if layout := dateFormatLayouts[scheme.DateFormat]; layout != "" {
		parts = append(parts, asOf.Format(layout))
	}
	parts = append(parts, fmt.Sprintf("%0*d", scheme.Padding, n))
	if scheme.Suffix != "" {
		parts = append(parts, scheme.Suffix)
	}
	return strings.Join(parts, scheme.Separator)
}
