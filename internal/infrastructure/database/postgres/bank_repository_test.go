package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-ledger/internal/domain/bank"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

func setupBankRepo(t *testing.T) (context.Context, *BankRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	return context.Background(), NewBankRepository(mockPool, testLogger), mockPool
}

func bankRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "transaction_type", "amount", "balance_after",
		"reference_type", "reference_id", "customer_id", "note", "created_at",
	})
}

func TestRecordDerivesBalanceFromLatestEntry(t *testing.T) {
	ctx, repo, mockPool := setupBankRepo(t)
	defer mockPool.Close()

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txn := &bank.Transaction{
		Type:          bank.TypeLoanDisbursement,
		Amount:        money.MustFromString("-450"),
		ReferenceType: "loan",
		ReferenceID:   1,
		CustomerID:    7,
		Note:          "loan LN-20250101000000-1234 disbursed",
	}

	mockPool.ExpectQuery(`INSERT INTO bank_transactions`).
		WithArgs(txn.Type, txn.Amount, txn.ReferenceType, txn.ReferenceID, txn.CustomerID, txn.Note).
		WillReturnRows(pgxmock.NewRows([]string{"id", "balance_after", "created_at"}).
			AddRow(int64(3), money.MustFromString("550"), createdAt))

	created, err := repo.Record(ctx, txn)

	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)
	assert.Equal(t, "550.00", created.BalanceAfter.StringFixed(2))
	assert.Equal(t, createdAt, created.CreatedAt)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetBalanceWhenLedgerEmpty(t *testing.T) {
	ctx, repo, mockPool := setupBankRepo(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(`SELECT COALESCE`).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(money.Zero()))

	balance, err := repo.GetBalance(ctx)

	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestListBetweenReturnsEntriesAndTotal(t *testing.T) {
	ctx, repo, mockPool := setupBankRepo(t)
	defer mockPool.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(`SELECT COUNT\(id\) FROM bank_transactions`).
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))

	mockPool.ExpectQuery(`SELECT (.+) FROM bank_transactions`).
		WithArgs(from, to, 2, 0).
		WillReturnRows(bankRows().
			AddRow(int64(1), bank.TypeLoanDisbursement, money.MustFromString("-450"),
				money.MustFromString("-450"), "loan", int64(1), int64(7), "", from).
			AddRow(int64(2), bank.TypeRepaymentReceipt, money.MustFromString("200"),
				money.MustFromString("-250"), "repayment", int64(1), int64(7), "", from.Add(24*time.Hour)))

	entries, total, err := repo.ListBetween(ctx, from, to, 2, 0)

	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, entries, 2)
	assert.Equal(t, bank.TypeLoanDisbursement, entries[0].Type)
	assert.Equal(t, "-250.00", entries[1].BalanceAfter.StringFixed(2))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestListBetweenWhenCountFails(t *testing.T) {
	ctx, repo, mockPool := setupBankRepo(t)
	defer mockPool.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(`SELECT COUNT\(id\) FROM bank_transactions`).
		WithArgs(from, to).
		WillReturnError(assert.AnError)

	_, _, err := repo.ListBetween(ctx, from, to, 20, 0)

	assert.ErrorIs(t, err, apperrors.ErrDatabase)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}
