package loan

import (
	"time"

	"lending-ledger/internal/pkg/money"
)

// Engine computes interest accrual. It never reads a clock and never touches
// storage: callers pass the reference timestamp in and persist the returned
// advance atomically, so one AdvanceIfDue is all-or-nothing.
type Engine struct {
	rate money.Money
}

func NewEngine(monthlyRate money.Money) *Engine {
	return &Engine{rate: monthlyRate}
}

func (e *Engine) Rate() money.Money { return e.rate }

// Advance is the result of one engine invocation: the events for every
// elapsed period plus the loan's new cached state. Empty Events means the
// call was a no-op.
type Advance struct {
	Events            []CompoundBalanceEvent
	ProjectedBalance  money.Money
	NextCompoundingAt time.Time
}

func (a Advance) Due() bool { return len(a.Events) > 0 }

// AdvanceIfDue walks every whole period due at or before asOf. Each period
// compounds the running balance at the monthly rate, rounded half-up to
// cents, and emits one event stamped with that period's due timestamp. A
// zero balance still advances the schedule and emits a zero-accrual event.
func (e *Engine) AdvanceIfDue(l *Loan, asOf time.Time) Advance {
	return e.advance(l, asOf, true)
}

// AdvanceBefore is AdvanceIfDue with an exclusive cutoff: periods due
// exactly at the cutoff are left pending. Repayment application uses it so a
// repayment timestamped on a due date reduces the balance before that
// period's accrual.
func (e *Engine) AdvanceBefore(l *Loan, cutoff time.Time) Advance {
	return e.advance(l, cutoff, false)
}

func (e *Engine) advance(l *Loan, asOf time.Time, inclusive bool) Advance {
	adv := Advance{
		ProjectedBalance:  l.ProjectedBalance,
		NextCompoundingAt: l.NextCompoundingAt,
	}
	if l.NextCompoundingAt.IsZero() {
		return adv
	}

	balance := l.ProjectedBalance
	next := l.NextCompoundingAt
	for periodDue(next, asOf, inclusive) {
		after := money.ApplyMonthlyRate(balance, e.rate)
		adv.Events = append(adv.Events, CompoundBalanceEvent{
			LoanID:        l.ID,
			OccurredAt:    next,
			BalanceBefore: balance,
			BalanceAfter:  after,
			Rate:          e.rate,
		})
		balance = after
		next = money.AddMonths(next, 1)
	}

	adv.ProjectedBalance = balance
	adv.NextCompoundingAt = next
	return adv
}

func periodDue(next, asOf time.Time, inclusive bool) bool {
	if inclusive {
		return !next.After(asOf)
	}
	return next.Before(asOf)
}
