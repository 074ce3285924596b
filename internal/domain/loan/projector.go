package loan

import (
	"sort"
	"time"

	"lending-ledger/internal/pkg/money"
)

// Projection is the replayed truth for a loan: what the cached fields should
// say if every event was applied correctly.
type Projection struct {
	// Balance is principal plus accrued unpaid interest after replaying the
	// full history.
	Balance money.Money

	// LastPrincipal is the disbursed principal net of repayments, with no
	// interest component.
	LastPrincipal money.Money

	// LastAccrualAt is the timestamp of the most recent compounding event,
	// zero if none, for schedule-continuity checks.
	LastAccrualAt time.Time
}

// Project replays a loan's full history and returns the balance it implies.
// It is pure: same history in, same balance out. Both the live read path and
// the auditor call this one function, so the two can never drift.
//
// Replay starts from the disbursed principal (principal minus fee) and walks
// repayments and compounding events in nondecreasing timestamp order. Each
// compounding event applies its recorded rate to the running balance; each
// repayment subtracts its amount. When a repayment and an accrual share a
// timestamp the repayment is applied first, so interest for that period
// accrues on the post-repayment balance.
func Project(l *Loan, repayments []Repayment, events []CompoundBalanceEvent) Projection {
	reps := make([]Repayment, len(repayments))
	copy(reps, repayments)
	sort.SliceStable(reps, func(i, j int) bool { return reps[i].PaidAt.Before(reps[j].PaidAt) })

	evs := make([]CompoundBalanceEvent, len(events))
	copy(evs, events)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].OccurredAt.Before(evs[j].OccurredAt) })

	balance := l.DisbursedAmount()
	lastPrincipal := balance
	var lastAccrual time.Time

	i, j := 0, 0
	for i < len(reps) || j < len(evs) {
		// Repayment wins the tie: a payment at the due timestamp reduces
		// the base before that period's accrual.
		if i < len(reps) && (j >= len(evs) || !reps[i].PaidAt.After(evs[j].OccurredAt)) {
			balance = balance.Sub(reps[i].Amount)
			lastPrincipal = lastPrincipal.Sub(reps[i].Amount)
			i++
			continue
		}
		balance = money.ApplyMonthlyRate(balance, evs[j].Rate)
		lastAccrual = evs[j].OccurredAt
		j++
	}

	return Projection{
		Balance:       money.RoundCents(balance),
		LastPrincipal: money.RoundCents(lastPrincipal),
		LastAccrualAt: lastAccrual,
	}
}
