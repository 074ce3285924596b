package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-ledger/internal/domain/bank"
	"lending-ledger/internal/domain/customer"
	"lending-ledger/internal/event"
	"lending-ledger/internal/infrastructure/monitoring"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

type Money = money.Money

// CustomerSummary is one row of the per-customer overview: lifetime totals
// plus the current cached balance state.
type CustomerSummary struct {
	CustomerID       int64
	CustomerCode     string
	Name             string
	LoanCount        int
	TotalLoaned      Money
	TotalRepaid      Money
	TotalFees        Money
	ProjectedBalance Money
}

// Records bundles the loans opened and repayments received inside a time
// range, for the dated activity report.
type Records struct {
	From       time.Time
	To         time.Time
	Loans      []*Loan
	Repayments []Repayment
}

// OverallReport aggregates the whole book over an optional time range.
type OverallReport struct {
	From           time.Time
	To             time.Time
	LoanCount      int
	RepaymentCount int
	TotalLoaned    Money
	TotalRepaid    Money
	FeeIncome      Money
	OutstandingSum Money
}

type LoanService interface {
	CreateLoan(ctx context.Context, customerID int64, principal, fee Money, createdAt time.Time) (*Loan, error)

	GetLoan(ctx context.Context, loanID int64) (*Loan, error)

	RecordRepayment(ctx context.Context, loanID int64, amount Money, paidAt time.Time) (*Repayment, error)

	// GetBalance replays the loan's full history and returns the projected
	// truth. It never trusts the cached fields.
	GetBalance(ctx context.Context, loanID int64) (Projection, error)

	// AdvanceLoan brings one loan's compounding schedule current as of the
	// given timestamp. All elapsed periods commit together or not at all.
	AdvanceLoan(ctx context.Context, loanID int64, asOf time.Time) (Advance, error)

	// AdvanceAllDue sweeps every due loan. Per-loan failures are counted
	// and logged; the sweep continues.
	AdvanceAllDue(ctx context.Context, asOf time.Time) (SweepResult, error)

	GetTimeline(ctx context.Context, loanID int64) ([]CompoundBalanceEvent, error)

	ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error)

	ListCustomerLoans(ctx context.Context, customerID int64) ([]*Loan, error)

	GetCustomerSummaries(ctx context.Context) ([]CustomerSummary, error)

	GetOverallReport(ctx context.Context, from, to time.Time) (*OverallReport, error)

	// GetRecords returns the raw loans and repayments dated inside the range.
	GetRecords(ctx context.Context, from, to time.Time) (*Records, error)
}

type SweepResult struct {
	LoansExamined  int
	LoansAdvanced  int
	PeriodsApplied int
	Errors         int
}

type loanServiceImpl struct {
	repo            Repository
	customerService customer.CustomerService
	engine          *Engine
	publisher       event.EventPublisher
	bank            bank.BankService
	logger          *slog.Logger
}

// NewLoanService wires the loan domain. publisher and bankService may be nil;
// event publishing and cash-ledger recording are then skipped.
func NewLoanService(r Repository, cs customer.CustomerService, engine *Engine, publisher event.EventPublisher, bankService bank.BankService, logger *slog.Logger) LoanService {
	return &loanServiceImpl{
		repo:            r,
		customerService: cs,
		engine:          engine,
		publisher:       publisher,
		bank:            bankService,
		logger:          logger.With("component", "LoanService"),
	}
}

func (s *loanServiceImpl) CreateLoan(ctx context.Context, customerID int64, principal, fee Money, createdAt time.Time) (*Loan, error) {
	s.logger.InfoContext(ctx, "Creating new loan", "customerID", customerID)

	if _, err := s.customerService.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer %d not found", apperrors.ErrValidation, customerID)
		}
		return nil, fmt.Errorf("failed to verify customer: %w", err)
	}

	l, err := NewLoan(customerID, principal, fee, createdAt)
	if err != nil {
		s.logger.ErrorContext(ctx, "Rejected loan parameters", slog.Any("error", err))
		return nil, err
	}

	created, err := s.repo.CreateLoan(ctx, l)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save loan", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to save loan: %v", apperrors.ErrInternalServer, err)
	}

	monitoring.RecordLoanCreated()
	s.publishLoanCreated(ctx, created)
	s.recordDisbursement(ctx, created)
	s.logger.InfoContext(ctx, "Loan created", "loanID", created.ID, "code", created.Code,
		"disbursed", created.DisbursedAmount().StringFixed(2))
	return created, nil
}

func (s *loanServiceImpl) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("%w: failed to get loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	return l, nil
}

// RecordRepayment applies a payment inside a per-loan transaction. Accrual
// periods due strictly before the payment timestamp are brought current
// first; a period due exactly at the payment timestamp stays pending so its
// interest accrues on the reduced balance.
func (s *loanServiceImpl) RecordRepayment(ctx context.Context, loanID int64, amount Money, paidAt time.Time) (r *Repayment, err error) {
	logCtx := s.logger.With(slog.Int64("loanID", loanID))
	logCtx.InfoContext(ctx, "Recording repayment", "amount", amount.StringFixed(2))

	if !amount.IsPositive() {
		monitoring.RecordRepayment("failure_amount")
		return nil, fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrInvalidRepaymentAmount)
	}
	if paidAt.IsZero() {
		monitoring.RecordRepayment("failure_amount")
		return nil, fmt.Errorf("%w: payment timestamp is required", apperrors.ErrInvalidArgument)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		monitoring.RecordRepayment("failure_internal")
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		}
		if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			monitoring.RecordRepayment("failure_not_found")
			return nil, fmt.Errorf("%w: cannot record repayment, loan ID %d not found", apperrors.ErrNotFound, loanID)
		}
		monitoring.RecordRepayment("failure_internal")
		return nil, fmt.Errorf("%w: could not lock loan: %v", apperrors.ErrInternalServer, err)
	}

	adv := s.engine.AdvanceBefore(l, paidAt)
	remaining := adv.ProjectedBalance.Sub(amount)
	if remaining.IsNegative() {
		monitoring.RecordRepayment("failure_exceeds_balance")
		logCtx.ErrorContext(ctx, "Repayment exceeds projected balance",
			"amount", amount.StringFixed(2), "balance", adv.ProjectedBalance.StringFixed(2))
		return nil, fmt.Errorf("%w: balance is %s, repayment is %s",
			apperrors.ErrBalanceExhausted, adv.ProjectedBalance.StringFixed(2), amount.StringFixed(2))
	}

	if adv.Due() {
		if err = s.repo.ApplyAdvanceInTx(ctx, tx, loanID, adv); err != nil {
			monitoring.RecordRepayment("failure_internal")
			return nil, fmt.Errorf("%w: could not apply pending accruals: %v", apperrors.ErrInternalServer, err)
		}
	}

	r, err = s.repo.CreateRepaymentInTx(ctx, tx, &Repayment{LoanID: loanID, Amount: amount, PaidAt: paidAt})
	if err != nil {
		monitoring.RecordRepayment("failure_internal")
		return nil, fmt.Errorf("%w: could not save repayment: %v", apperrors.ErrInternalServer, err)
	}

	lastPrincipal := l.LastPrincipal.Sub(amount)
	err = s.repo.UpdateLoanBalancesInTx(ctx, tx, loanID, lastPrincipal, remaining, adv.NextCompoundingAt)
	if err != nil {
		monitoring.RecordRepayment("failure_internal")
		return nil, fmt.Errorf("%w: could not update loan balances: %v", apperrors.ErrInternalServer, err)
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		monitoring.RecordRepayment("failure_internal")
		return nil, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrInternalServer, err)
	}

	monitoring.RecordRepayment("success")
	if adv.Due() {
		// Catch-up accruals are accounted the same way AdvanceLoan accounts
		// its own.
		monitoring.RecordCompoundingPeriods(len(adv.Events))
		s.publishLoanCompounded(ctx, l, adv)
	}
	s.publishRepaymentRecorded(ctx, l, r, remaining)
	s.recordRepaymentReceipt(ctx, l, r)
	logCtx.InfoContext(ctx, "Repayment recorded", "repaymentID", r.ID, "newBalance", remaining.StringFixed(2))
	return r, nil
}

func (s *loanServiceImpl) GetBalance(ctx context.Context, loanID int64) (Projection, error) {
	l, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return Projection{}, err
	}
	repayments, err := s.repo.ListRepaymentsByLoan(ctx, loanID)
	if err != nil {
		return Projection{}, fmt.Errorf("%w: failed to list repayments for loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	events, err := s.repo.ListCompoundEventsByLoan(ctx, loanID)
	if err != nil {
		return Projection{}, fmt.Errorf("%w: failed to list balance events for loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	return Project(l, repayments, events), nil
}

func (s *loanServiceImpl) AdvanceLoan(ctx context.Context, loanID int64, asOf time.Time) (adv Advance, err error) {
	logCtx := s.logger.With(slog.Int64("loanID", loanID))

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return Advance{}, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}
	defer func() {
		if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Advance{}, fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
		}
		return Advance{}, fmt.Errorf("%w: could not lock loan: %v", apperrors.ErrInternalServer, err)
	}

	adv = s.engine.AdvanceIfDue(l, asOf)
	if !adv.Due() {
		// Nothing elapsed; release the lock without touching the row.
		if err = s.repo.RollbackTx(ctx, tx); err != nil {
			return Advance{}, fmt.Errorf("%w: could not release loan lock: %v", apperrors.ErrInternalServer, err)
		}
		return adv, nil
	}

	if err = s.repo.ApplyAdvanceInTx(ctx, tx, loanID, adv); err != nil {
		return Advance{}, fmt.Errorf("%w: could not apply advance: %v", apperrors.ErrInternalServer, err)
	}
	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return Advance{}, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrInternalServer, err)
	}

	monitoring.RecordCompoundingPeriods(len(adv.Events))
	s.publishLoanCompounded(ctx, l, adv)
	logCtx.InfoContext(ctx, "Loan compounded",
		"periods", len(adv.Events),
		"newBalance", adv.ProjectedBalance.StringFixed(2),
		"nextCompoundingAt", adv.NextCompoundingAt)
	return adv, nil
}

func (s *loanServiceImpl) AdvanceAllDue(ctx context.Context, asOf time.Time) (SweepResult, error) {
	var res SweepResult

	ids, err := s.repo.ListDueLoanIDs(ctx, asOf)
	if err != nil {
		return res, fmt.Errorf("cannot run sweep, failed to list due loans: %w", err)
	}
	res.LoansExamined = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		adv, err := s.AdvanceLoan(ctx, id, asOf)
		if err != nil {
			res.Errors++
			s.logger.ErrorContext(ctx, "Failed to advance loan during sweep", "loanID", id, slog.Any("error", err))
			continue
		}
		if adv.Due() {
			res.LoansAdvanced++
			res.PeriodsApplied += len(adv.Events)
		}
	}
	return res, nil
}

func (s *loanServiceImpl) GetTimeline(ctx context.Context, loanID int64) ([]CompoundBalanceEvent, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListCompoundEventsByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list balance events for loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	return events, nil
}

func (s *loanServiceImpl) ListRepayments(ctx context.Context, loanID int64) ([]Repayment, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	repayments, err := s.repo.ListRepaymentsByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list repayments for loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	return repayments, nil
}

func (s *loanServiceImpl) ListCustomerLoans(ctx context.Context, customerID int64) ([]*Loan, error) {
	if _, err := s.customerService.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer with ID %d not found", apperrors.ErrNotFound, customerID)
		}
		return nil, fmt.Errorf("failed to verify customer: %w", err)
	}
	loans, err := s.repo.ListLoansByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list loans for customer %d: %v", apperrors.ErrInternalServer, customerID, err)
	}
	return loans, nil
}

func (s *loanServiceImpl) GetCustomerSummaries(ctx context.Context) ([]CustomerSummary, error) {
	summaries, err := s.repo.GetCustomerSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build customer summaries: %v", apperrors.ErrInternalServer, err)
	}
	return summaries, nil
}

func (s *loanServiceImpl) GetOverallReport(ctx context.Context, from, to time.Time) (*OverallReport, error) {
	report, err := s.repo.GetOverallReport(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build overall report: %v", apperrors.ErrInternalServer, err)
	}
	return report, nil
}

func (s *loanServiceImpl) GetRecords(ctx context.Context, from, to time.Time) (*Records, error) {
	if !to.IsZero() && !from.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: range end precedes range start", apperrors.ErrInvalidArgument)
	}
	loans, err := s.repo.ListLoansCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list loans in range: %v", apperrors.ErrInternalServer, err)
	}
	repayments, err := s.repo.ListRepaymentsPaidBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list repayments in range: %v", apperrors.ErrInternalServer, err)
	}
	return &Records{From: from, To: to, Loans: loans, Repayments: repayments}, nil
}

func (s *loanServiceImpl) publishLoanCreated(ctx context.Context, l *Loan) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishLoanCreated(ctx, event.LoanCreatedEvent{
		Timestamp: l.CreatedAt,
		Payload: event.LoanEventPayload{
			LoanID:           l.ID,
			CustomerID:       l.CustomerID,
			Code:             l.Code,
			Principal:        l.Principal.StringFixed(2),
			Fee:              l.Fee.StringFixed(2),
			ProjectedBalance: l.ProjectedBalance.StringFixed(2),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish loan.created event", "loanID", l.ID, slog.Any("error", err))
	}
}

func (s *loanServiceImpl) publishRepaymentRecorded(ctx context.Context, l *Loan, r *Repayment, balance Money) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishRepaymentRecorded(ctx, event.RepaymentRecordedEvent{
		Timestamp: r.PaidAt,
		Payload: event.RepaymentEventPayload{
			RepaymentID:      r.ID,
			LoanID:           l.ID,
			Amount:           r.Amount.StringFixed(2),
			ProjectedBalance: balance.StringFixed(2),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish repayment.recorded event", "loanID", l.ID, slog.Any("error", err))
	}
}

func (s *loanServiceImpl) publishLoanCompounded(ctx context.Context, l *Loan, adv Advance) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishLoanCompounded(ctx, event.LoanCompoundedEvent{
		Timestamp: adv.Events[len(adv.Events)-1].OccurredAt,
		Payload: event.CompoundedEventPayload{
			LoanID:            l.ID,
			Periods:           len(adv.Events),
			ProjectedBalance:  adv.ProjectedBalance.StringFixed(2),
			NextCompoundingAt: adv.NextCompoundingAt,
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish loan.compounded event", "loanID", l.ID, slog.Any("error", err))
	}
}

// Cash-ledger entries mirror committed loan activity. A failed entry is
// logged and skipped, never rolled back.
func (s *loanServiceImpl) recordDisbursement(ctx context.Context, l *Loan) {
	if s.bank == nil {
		return
	}
	if err := s.bank.RecordDisbursement(ctx, l.ID, l.CustomerID, l.Code, l.DisbursedAmount()); err != nil {
		s.logger.WarnContext(ctx, "Failed to record disbursement in bank ledger", "loanID", l.ID, slog.Any("error", err))
	}
}

func (s *loanServiceImpl) recordRepaymentReceipt(ctx context.Context, l *Loan, r *Repayment) {
	if s.bank == nil {
		return
	}
	if err := s.bank.RecordRepaymentReceipt(ctx, r.ID, l.ID, l.CustomerID, r.Amount); err != nil {
		s.logger.WarnContext(ctx, "Failed to record repayment receipt in bank ledger", "repaymentID", r.ID, slog.Any("error", err))
	}
}
