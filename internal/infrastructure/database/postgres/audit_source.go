package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"lending-ledger/internal/domain/audit"
	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/pkg/apperrors"
)

// AuditSource gives the auditor a read-only view of the whole ledger. It
// reuses the loan repository's queries where they exist.
type AuditSource struct {
	db     DBPool
	loans  *LoanRepository
	logger *slog.Logger
}

var _ audit.Source = (*AuditSource)(nil)

func NewAuditSource(db DBPool, loans *LoanRepository, logger *slog.Logger) *AuditSource {
	return &AuditSource{
		db:     db,
		loans:  loans,
		logger: logger.With("component", "AuditSource"),
	}
}

func (s *AuditSource) ListCustomerIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM customers ORDER BY id ASC`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query customer ids", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ids, nil
}

func (s *AuditSource) ListLoans(ctx context.Context) ([]*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans ORDER BY id ASC`
	return s.loans.queryLoans(ctx, query)
}

func (s *AuditSource) ListRepaymentsByLoan(ctx context.Context, loanID int64) ([]loan.Repayment, error) {
	return s.loans.ListRepaymentsByLoan(ctx, loanID)
}

func (s *AuditSource) ListCompoundEventsByLoan(ctx context.Context, loanID int64) ([]loan.CompoundBalanceEvent, error) {
	return s.loans.ListCompoundEventsByLoan(ctx, loanID)
}
