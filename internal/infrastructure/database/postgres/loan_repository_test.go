package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

const pgxmockExpectationsNotMetMsg = "pgxmock expectations were not met"

func setupLoanRepo(t *testing.T) (context.Context, *LoanRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	return context.Background(), NewLoanRepository(mockPool, testLogger), mockPool
}

func loanRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "customer_id", "code", "principal", "fee", "created_at",
		"last_principal", "projected_balance", "next_compounding_at", "updated_at",
	})
}

func TestGetLoanByIDWhenSuccess(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mockPool.ExpectQuery(`SELECT (.+) FROM loans WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(loanRows().AddRow(
			int64(1), int64(7), "LN-20250101000000-1234",
			money.MustFromString("500"), money.MustFromString("50"), createdAt,
			money.MustFromString("450"), money.MustFromString("450"),
			time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), createdAt,
		))

	l, err := repo.GetLoanByID(ctx, 1)

	require.NoError(t, err)
	assert.Equal(t, int64(1), l.ID)
	assert.Equal(t, "450.00", l.ProjectedBalance.StringFixed(2))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetLoanByIDWhenNotFound(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(`SELECT (.+) FROM loans WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(loanRows())

	_, err := repo.GetLoanByID(ctx, 404)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestCreateLoanWhenSuccess(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l, err := loan.NewLoan(7, money.MustFromString("500"), money.MustFromString("50"), createdAt)
	require.NoError(t, err)

	mockPool.ExpectQuery(`INSERT INTO loans`).
		WithArgs(l.CustomerID, l.Code, l.Principal, l.Fee, l.CreatedAt,
			l.LastPrincipal, l.ProjectedBalance, l.NextCompoundingAt).
		WillReturnRows(loanRows().AddRow(
			int64(1), l.CustomerID, l.Code, l.Principal, l.Fee, l.CreatedAt,
			l.LastPrincipal, l.ProjectedBalance, l.NextCompoundingAt, createdAt,
		))

	created, err := repo.CreateLoan(ctx, l)

	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestListDueLoanIDs(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	asOf := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mockPool.ExpectQuery(`SELECT id FROM loans WHERE next_compounding_at <= \$1`).
		WithArgs(asOf).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(3)))

	ids, err := repo.ListDueLoanIDs(ctx, asOf)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestApplyAdvanceInTxInsertsEventsAndUpdatesLoan(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l, err := loan.NewLoan(7, money.MustFromString("1000"), money.Zero(), createdAt)
	require.NoError(t, err)
	l.ID = 1

	engine := loan.NewEngine(loan.DefaultMonthlyRate)
	adv := engine.AdvanceIfDue(l, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	require.Len(t, adv.Events, 2)

	mockPool.ExpectBegin()
	batch := mockPool.ExpectBatch()
	for _, ev := range adv.Events {
		batch.ExpectExec(`INSERT INTO compound_balance_events`).
			WithArgs(l.ID, ev.OccurredAt, ev.BalanceBefore, ev.BalanceAfter, ev.Rate).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mockPool.ExpectExec(`UPDATE loans`).
		WithArgs(adv.ProjectedBalance, adv.NextCompoundingAt, l.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectCommit()

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.ApplyAdvanceInTx(ctx, tx, l.ID, adv))
	require.NoError(t, repo.CommitTx(ctx, tx))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateLoanBalancesInTx(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	next := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	lastPrincipal := money.MustFromString("560")
	projected := money.MustFromString("1000")

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`UPDATE loans`).
		WithArgs(lastPrincipal, projected, next, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectRollback()

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateLoanBalancesInTx(ctx, tx, 1, lastPrincipal, projected, next))
	require.NoError(t, repo.RollbackTx(ctx, tx))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestListCompoundEventsByLoan(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	occurredAt := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mockPool.ExpectQuery(`SELECT (.+) FROM compound_balance_events`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "loan_id", "occurred_at", "balance_before", "balance_after", "rate"}).
			AddRow(int64(10), int64(1), occurredAt,
				money.MustFromString("1000"), money.MustFromString("1200"), loan.DefaultMonthlyRate))

	events, err := repo.ListCompoundEventsByLoan(ctx, 1)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1200.00", events[0].BalanceAfter.StringFixed(2))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetOverallReport(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(`SELECT`).
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"loans", "repayments", "loaned", "repaid", "fees", "outstanding"}).
			AddRow(3, 5, money.MustFromString("3000"), money.MustFromString("1200"),
				money.MustFromString("150"), money.MustFromString("2400")))

	report, err := repo.GetOverallReport(ctx, from, to)

	require.NoError(t, err)
	assert.Equal(t, 3, report.LoanCount)
	assert.Equal(t, "1200.00", report.TotalRepaid.StringFixed(2))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}
