package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lending-ledger/internal/domain/loan"
)

// CompoundingSweepJob brings every due loan's accrual schedule current. Each
// loan is advanced in its own transaction, so a failure on one loan never
// blocks the rest.
type CompoundingSweepJob struct {
	loanService loan.LoanService
	logger      *slog.Logger
}

func NewCompoundingSweepJob(loanSvc loan.LoanService, logger *slog.Logger) *CompoundingSweepJob {
	if loanSvc == nil || logger == nil {
		panic("CompoundingSweepJob dependencies cannot be nil")
	}
	return &CompoundingSweepJob{
		loanService: loanSvc,
		logger:      logger.With("job", "CompoundingSweep"),
	}
}

func (j *CompoundingSweepJob) Run(ctx context.Context) error {
	startTime := time.Now()
	asOf := startTime.UTC()
	j.logger.InfoContext(ctx, "Starting compounding sweep job.", "asOf", asOf)

	res, err := j.loanService.AdvanceAllDue(ctx, asOf)
	if err != nil {
		j.logger.ErrorContext(ctx, "Compounding sweep aborted.", slog.Any("error", err))
		return fmt.Errorf("compounding sweep failed: %w", err)
	}

	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("loans_examined", res.LoansExamined),
		slog.Int("loans_advanced", res.LoansAdvanced),
		slog.Int("periods_applied", res.PeriodsApplied),
		slog.Int("errors_encountered", res.Errors),
	)
	if res.Errors > 0 {
		summaryLog.WarnContext(ctx, "Compounding sweep finished with errors.")
		return fmt.Errorf("job completed with %d errors", res.Errors)
	}
	summaryLog.InfoContext(ctx, "Compounding sweep finished successfully.")
	return nil
}
