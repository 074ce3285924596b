// Package audit recomputes every loan's balance from its event history and
// compares the result against the stored cached fields. It is read-only: it
// reports discrepancies and never corrects them.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/infrastructure/monitoring"
	"lending-ledger/internal/pkg/money"
)

// DefaultTolerance is the absolute discrepancy allowed before a balance
// mismatch is flagged. It also absorbs benign races with live writers, since
// the auditor does not take a consistent snapshot.
var DefaultTolerance = money.MustFromString("0.01")

// Class separates fatal data-quality problems from numeric drift.
type Class string

const (
	// ClassIntegrity covers missing or duplicate identifiers and invalid
	// references.
	ClassIntegrity Class = "integrity"

	// ClassReconciliation covers balance mismatches beyond tolerance and
	// negative balances.
	ClassReconciliation Class = "reconciliation"
)

const (
	CheckCustomerRef      = "customer_reference"
	CheckLoanIDUnique     = "loan_id_unique"
	CheckRepaymentRef     = "repayment_reference"
	CheckRepaymentAmount  = "repayment_amount"
	CheckProjectedBalance = "projected_balance"
	CheckLastPrincipal    = "last_principal"
	CheckLastEventBalance = "last_event_balance"
	CheckNegativeBalance  = "negative_event_balance"
)

type Finding struct {
	LoanID   int64  `json:"loanId"`
	Check    string `json:"check"`
	Class    Class  `json:"class"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Delta    string `json:"delta,omitempty"`
	Message  string `json:"message"`
}

type Report struct {
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	Tolerance       string    `json:"tolerance"`
	LoansChecked    int       `json:"loansChecked"`
	RepaymentsSeen  int       `json:"repaymentsSeen"`
	EventsSeen      int       `json:"eventsSeen"`
	IntegrityCount  int       `json:"integrityCount"`
	ReconcileCount  int       `json:"reconciliationCount"`
	Findings        []Finding `json:"findings"`
}

// Clean reports whether the audit found nothing.
func (r *Report) Clean() bool { return len(r.Findings) == 0 }

func (r *Report) add(f Finding) {
	switch f.Class {
	case ClassIntegrity:
		r.IntegrityCount++
	case ClassReconciliation:
		r.ReconcileCount++
	}
	r.Findings = append(r.Findings, f)
	monitoring.RecordAuditFinding(string(f.Class))
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "audit: %d loans, %d repayments, %d events, tolerance %s\n",
		r.LoansChecked, r.RepaymentsSeen, r.EventsSeen, r.Tolerance)
	for _, f := range r.Findings {
		if f.Delta != "" {
			fmt.Fprintf(w, "  [%s] loan %d %s: expected %s, actual %s (delta %s)\n",
				f.Class, f.LoanID, f.Check, f.Expected, f.Actual, f.Delta)
			continue
		}
		fmt.Fprintf(w, "  [%s] loan %d %s: %s\n", f.Class, f.LoanID, f.Check, f.Message)
	}
	if r.Clean() {
		fmt.Fprintln(w, "result: PASS")
		return
	}
	fmt.Fprintf(w, "result: FAIL (%d integrity, %d reconciliation)\n", r.IntegrityCount, r.ReconcileCount)
}

// Source is the read-only view of the ledger the auditor walks.
type Source interface {
	ListCustomerIDs(ctx context.Context) ([]int64, error)

	ListLoans(ctx context.Context) ([]*loan.Loan, error)

	ListRepaymentsByLoan(ctx context.Context, loanID int64) ([]loan.Repayment, error)

	ListCompoundEventsByLoan(ctx context.Context, loanID int64) ([]loan.CompoundBalanceEvent, error)
}

type Auditor struct {
	source Source
	logger *slog.Logger
}

func NewAuditor(source Source, logger *slog.Logger) *Auditor {
	return &Auditor{
		source: source,
		logger: logger.With("component", "Auditor"),
	}
}

// Run walks every loan and returns the report. Cancellation between loans
// returns the partial report alongside the context error; findings gathered
// so far stay valid.
func (a *Auditor) Run(ctx context.Context, tolerance money.Money) (*Report, error) {
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("tolerance must not be negative, got %s", tolerance)
	}

	report := &Report{
		StartedAt: time.Now().UTC(),
		Tolerance: tolerance.StringFixed(2),
	}

	customerIDs, err := a.source.ListCustomerIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	customers := make(map[int64]bool, len(customerIDs))
	for _, id := range customerIDs {
		customers[id] = true
	}

	loans, err := a.source.ListLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}

	seenLoanIDs := make(map[int64]bool, len(loans))
	for _, l := range loans {
		if ctx.Err() != nil {
			report.FinishedAt = time.Now().UTC()
			return report, ctx.Err()
		}

		report.LoansChecked++
		a.checkIdentity(report, l, customers, seenLoanIDs)

		repayments, err := a.source.ListRepaymentsByLoan(ctx, l.ID)
		if err != nil {
			return report, fmt.Errorf("failed to list repayments for loan %d: %w", l.ID, err)
		}
		events, err := a.source.ListCompoundEventsByLoan(ctx, l.ID)
		if err != nil {
			return report, fmt.Errorf("failed to list events for loan %d: %w", l.ID, err)
		}
		report.RepaymentsSeen += len(repayments)
		report.EventsSeen += len(events)

		a.checkRepayments(report, l, repayments)
		a.checkBalances(report, l, repayments, events, tolerance)
		a.checkEvents(report, l, events)
	}

	report.FinishedAt = time.Now().UTC()
	a.logger.InfoContext(ctx, "Audit run finished",
		"loans", report.LoansChecked,
		"integrity", report.IntegrityCount,
		"reconciliation", report.ReconcileCount)
	return report, nil
}

func (a *Auditor) checkIdentity(report *Report, l *loan.Loan, customers map[int64]bool, seen map[int64]bool) {
	if !customers[l.CustomerID] {
		report.add(Finding{
			LoanID:  l.ID,
			Check:   CheckCustomerRef,
			Class:   ClassIntegrity,
			Message: fmt.Sprintf("loan references missing customer %d", l.CustomerID),
		})
	}
	if seen[l.ID] {
		report.add(Finding{
			LoanID:  l.ID,
			Check:   CheckLoanIDUnique,
			Class:   ClassIntegrity,
			Message: fmt.Sprintf("duplicate loan id %d", l.ID),
		})
	}
	seen[l.ID] = true
}

func (a *Auditor) checkRepayments(report *Report, l *loan.Loan, repayments []loan.Repayment) {
	for _, r := range repayments {
		if r.LoanID != l.ID {
			report.add(Finding{
				LoanID:  l.ID,
				Check:   CheckRepaymentRef,
				Class:   ClassIntegrity,
				Message: fmt.Sprintf("repayment %d references loan %d", r.ID, r.LoanID),
			})
		}
		if !r.Amount.IsPositive() {
			report.add(Finding{
				LoanID:  l.ID,
				Check:   CheckRepaymentAmount,
				Class:   ClassIntegrity,
				Message: fmt.Sprintf("repayment %d has non-positive amount %s", r.ID, r.Amount.StringFixed(2)),
			})
		}
	}
}

func (a *Auditor) checkBalances(report *Report, l *loan.Loan, repayments []loan.Repayment, events []loan.CompoundBalanceEvent, tolerance money.Money) {
	p := loan.Project(l, repayments, events)

	if !money.WithinTolerance(p.Balance, l.ProjectedBalance, tolerance) {
		report.add(mismatch(l.ID, CheckProjectedBalance, p.Balance, l.ProjectedBalance))
	}
	if !money.WithinTolerance(p.LastPrincipal, l.LastPrincipal, tolerance) {
		report.add(mismatch(l.ID, CheckLastPrincipal, p.LastPrincipal, l.LastPrincipal))
	}

	if len(events) > 0 {
		last := latestEvent(events)
		if !money.WithinTolerance(last.BalanceAfter, l.ProjectedBalance, tolerance) {
			// A repayment after the last accrual legitimately moves the
			// cached balance below the event's balance-after.
			if !repaymentAfter(repayments, last.OccurredAt) {
				report.add(mismatch(l.ID, CheckLastEventBalance, last.BalanceAfter, l.ProjectedBalance))
			}
		}
	}
}

// checkEvents flags negative balances. Negative is always a finding, the
// tolerance never excuses it.
func (a *Auditor) checkEvents(report *Report, l *loan.Loan, events []loan.CompoundBalanceEvent) {
	for _, ev := range events {
		if ev.BalanceAfter.IsNegative() {
			report.add(Finding{
				LoanID:  l.ID,
				Check:   CheckNegativeBalance,
				Class:   ClassReconciliation,
				Actual:  ev.BalanceAfter.StringFixed(2),
				Message: fmt.Sprintf("event %d has negative balance-after %s", ev.ID, ev.BalanceAfter.StringFixed(2)),
			})
		}
	}
}

func mismatch(loanID int64, check string, expected, actual money.Money) Finding {
	return Finding{
		LoanID:   loanID,
		Check:    check,
		Class:    ClassReconciliation,
		Expected: expected.StringFixed(2),
		Actual:   actual.StringFixed(2),
		Delta:    actual.Sub(expected).Abs().StringFixed(2),
		Message:  "stored value disagrees with replayed history",
	}
}

func latestEvent(events []loan.CompoundBalanceEvent) loan.CompoundBalanceEvent {
	evs := make([]loan.CompoundBalanceEvent, len(events))
	copy(evs, events)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].OccurredAt.Before(evs[j].OccurredAt) })
	return evs[len(evs)-1]
}

func repaymentAfter(repayments []loan.Repayment, t time.Time) bool {
	for _, r := range repayments {
		if r.PaidAt.After(t) || r.PaidAt.Equal(t) {
			return true
		}
	}
	return false
}
