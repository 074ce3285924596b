package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lending-ledger/internal/domain/bank"
	"lending-ledger/internal/infrastructure/monitoring"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

const bankColumns = "id, transaction_type, amount, balance_after, reference_type, reference_id, customer_id, note, created_at"

type BankRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ bank.Repository = (*BankRepository)(nil)

func NewBankRepository(db DBPool, logger *slog.Logger) *BankRepository {
	if db == nil {
		panic("DBPool cannot be nil for BankRepository")
	}
	return &BankRepository{
		db:     db,
		logger: logger.With("component", "BankRepository"),
	}
}

// Record appends one ledger entry. The running balance is derived from the
// latest stored entry inside the INSERT itself, so two concurrent writers
// cannot both build on the same predecessor.
func (r *BankRepository) Record(ctx context.Context, t *bank.Transaction) (*bank.Transaction, error) {
	query := `
        INSERT INTO bank_transactions (transaction_type, amount, balance_after, reference_type, reference_id, customer_id, note, created_at)
        VALUES ($1, $2,
                COALESCE((SELECT balance_after FROM bank_transactions ORDER BY id DESC LIMIT 1), 0) + $2,
                $3, $4, $5, $6, NOW())
        RETURNING id, balance_after, created_at`

	status := "success"
	startTime := time.Now()

	err := r.db.QueryRow(ctx, query,
		t.Type, t.Amount, t.ReferenceType, t.ReferenceID, t.CustomerID, t.Note,
	).Scan(&t.ID, &t.BalanceAfter, &t.CreatedAt)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("RecordBankTransaction", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert bank transaction", "type", t.Type, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return t, nil
}

func (r *BankRepository) GetBalance(ctx context.Context) (bank.Money, error) {
	query := `SELECT COALESCE((SELECT balance_after FROM bank_transactions ORDER BY id DESC LIMIT 1), 0)`

	var balance bank.Money
	if err := r.db.QueryRow(ctx, query).Scan(&balance); err != nil {
		r.logger.ErrorContext(ctx, "Failed to read bank balance", "error", err)
		return money.Zero(), fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return balance, nil
}

func (r *BankRepository) ListBetween(ctx context.Context, from, to time.Time, limit, offset int) ([]bank.Transaction, int, error) {
	countQuery := `SELECT COUNT(id) FROM bank_transactions WHERE created_at >= $1 AND created_at <= $2`

	var total int
	if err := r.db.QueryRow(ctx, countQuery, from, to).Scan(&total); err != nil {
		r.logger.ErrorContext(ctx, "Failed to count bank transactions", "error", err)
		return nil, 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	query := `
        SELECT ` + bankColumns + `
        FROM bank_transactions
        WHERE created_at >= $1 AND created_at <= $2
        ORDER BY created_at ASC, id ASC
        LIMIT $3 OFFSET $4`

	rows, err := r.db.Query(ctx, query, from, to, limit, offset)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query bank transactions", "error", err)
		return nil, 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	entries := make([]bank.Transaction, 0)
	for rows.Next() {
		var t bank.Transaction
		err := rows.Scan(&t.ID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.ReferenceType, &t.ReferenceID, &t.CustomerID, &t.Note, &t.CreatedAt)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan bank transaction row", "error", err)
			return nil, 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		entries = append(entries, t)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating bank transaction rows", "error", err)
		return nil, 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return entries, total, nil
}
