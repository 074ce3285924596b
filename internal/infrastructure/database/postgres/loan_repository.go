package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"

	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/infrastructure/monitoring"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

var _ DBPool = (pgxmock.PgxPoolIface)(nil)

var errMsgFormat = "%w: %w"

const loanColumns = "id, customer_id, code, principal, fee, created_at, last_principal, projected_balance, next_compounding_at, updated_at"

type LoanRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ loan.Repository = (*LoanRepository)(nil)

func NewLoanRepository(db DBPool, logger *slog.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger.With("component", "LoanRepository")}
}

func (r *LoanRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (r *LoanRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *LoanRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	err := row.Scan(
		&l.ID, &l.CustomerID, &l.Code, &l.Principal, &l.Fee, &l.CreatedAt,
		&l.LastPrincipal, &l.ProjectedBalance, &l.NextCompoundingAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LoanRepository) CreateLoan(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	query := `
        INSERT INTO loans (customer_id, code, principal, fee, created_at, last_principal, projected_balance, next_compounding_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        RETURNING ` + loanColumns

	status := "success"
	startTime := time.Now()

	created, err := scanLoan(r.db.QueryRow(ctx, query,
		l.CustomerID, l.Code, l.Principal, l.Fee, l.CreatedAt,
		l.LastPrincipal, l.ProjectedBalance, l.NextCompoundingAt,
	))

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("CreateLoan", status, time.Since(startTime))

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			r.logger.WarnContext(ctx, "Loan insert violates customer reference", "customer_id", l.CustomerID)
			return nil, fmt.Errorf("%w: customer %d does not exist", apperrors.ErrValidation, l.CustomerID)
		}
		r.logger.ErrorContext(ctx, "Failed to insert loan", "error", err)
		return nil, fmt.Errorf("%w: failed to insert loan: %w", apperrors.ErrDatabase, err)
	}
	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID)
	return created, nil
}

func (r *LoanRepository) GetLoanByID(ctx context.Context, loanID int64) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	status := "success"
	startTime := time.Now()

	l, err := scanLoan(r.db.QueryRow(ctx, query, loanID))

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetLoanByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get loan by ID", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return l, nil
}

func (r *LoanRepository) queryLoans(ctx context.Context, query string, args ...any) ([]*loan.Loan, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query loans", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	loans := make([]*loan.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan loan row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		loans = append(loans, l)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating loan rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return loans, nil
}

func (r *LoanRepository) ListLoansByCustomer(ctx context.Context, customerID int64) ([]*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE customer_id = $1 ORDER BY created_at ASC`
	return r.queryLoans(ctx, query, customerID)
}

func (r *LoanRepository) ListLoansCreatedBetween(ctx context.Context, from, to time.Time) ([]*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`
	return r.queryLoans(ctx, query, from, to)
}

func (r *LoanRepository) ListDueLoanIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	query := `SELECT id FROM loans WHERE next_compounding_at <= $1 ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query due loans", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan due loan id", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating due loan rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ids, nil
}

func (r *LoanRepository) queryRepayments(ctx context.Context, query string, args ...any) ([]loan.Repayment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query repayments", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	repayments := make([]loan.Repayment, 0)
	for rows.Next() {
		var rep loan.Repayment
		err := rows.Scan(&rep.ID, &rep.LoanID, &rep.Amount, &rep.PaidAt, &rep.Note, &rep.CreatedAt)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan repayment row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		repayments = append(repayments, rep)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating repayment rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return repayments, nil
}

func (r *LoanRepository) ListRepaymentsByLoan(ctx context.Context, loanID int64) ([]loan.Repayment, error) {
	query := `
        SELECT id, loan_id, amount, paid_at, note, created_at
        FROM repayments
        WHERE loan_id = $1
        ORDER BY paid_at ASC, id ASC`
	return r.queryRepayments(ctx, query, loanID)
}

func (r *LoanRepository) ListRepaymentsPaidBetween(ctx context.Context, from, to time.Time) ([]loan.Repayment, error) {
	query := `
        SELECT id, loan_id, amount, paid_at, note, created_at
        FROM repayments
        WHERE paid_at >= $1 AND paid_at < $2
        ORDER BY paid_at ASC, id ASC`
	return r.queryRepayments(ctx, query, from, to)
}

func (r *LoanRepository) ListCompoundEventsByLoan(ctx context.Context, loanID int64) ([]loan.CompoundBalanceEvent, error) {
	query := `
        SELECT id, loan_id, occurred_at, balance_before, balance_after, rate
        FROM compound_balance_events
        WHERE loan_id = $1
        ORDER BY occurred_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query balance events", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	events := make([]loan.CompoundBalanceEvent, 0)
	for rows.Next() {
		var ev loan.CompoundBalanceEvent
		err := rows.Scan(&ev.ID, &ev.LoanID, &ev.OccurredAt, &ev.BalanceBefore, &ev.BalanceAfter, &ev.Rate)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan balance event row", "loan_id", loanID, "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating balance event rows", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return events, nil
}

// GetLoanForUpdate locks the loan row until the transaction ends, so
// concurrent advances and repayments on the same loan serialize.
func (r *LoanRepository) GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`

	l, err := scanLoan(tx.QueryRow(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found for update", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to lock loan for update", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return l, nil
}

// ApplyAdvanceInTx appends every event of the advance and moves the loan's
// cached balance and schedule in the same transaction. A multi-period
// catch-up lands whole or not at all.
func (r *LoanRepository) ApplyAdvanceInTx(ctx context.Context, tx pgx.Tx, loanID int64, adv loan.Advance) error {
	eventSQL := `
        INSERT INTO compound_balance_events (loan_id, occurred_at, balance_before, balance_after, rate)
        VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, ev := range adv.Events {
		batch.Queue(eventSQL, loanID, ev.OccurredAt, ev.BalanceBefore, ev.BalanceAfter, ev.Rate)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range adv.Events {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.logger.ErrorContext(ctx, "Failed executing event batch insert", "error", err, "event_index", i, "loan_id", loanID)
			return fmt.Errorf("%w: failed inserting balance event %d: %w", apperrors.ErrDatabase, i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Failed closing event batch results", "error", err, "loan_id", loanID)
		return fmt.Errorf("%w: closing batch results failed: %w", apperrors.ErrDatabase, err)
	}

	updateSQL := `
        UPDATE loans
        SET projected_balance = $1, next_compounding_at = $2, updated_at = NOW()
        WHERE id = $3`

	cmdTag, err := tx.Exec(ctx, updateSQL, adv.ProjectedBalance, adv.NextCompoundingAt, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan after advance", "loan_id", loanID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: loan %d disappeared during advance", apperrors.ErrDatabase, loanID)
	}

	r.logger.InfoContext(ctx, "Advance applied in DB", "loan_id", loanID, "periods", len(adv.Events))
	return nil
}

func (r *LoanRepository) CreateRepaymentInTx(ctx context.Context, tx pgx.Tx, rep *loan.Repayment) (*loan.Repayment, error) {
	query := `
        INSERT INTO repayments (loan_id, amount, paid_at, note, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING id, loan_id, amount, paid_at, note, created_at`

	var created loan.Repayment
	err := tx.QueryRow(ctx, query, rep.LoanID, rep.Amount, rep.PaidAt, rep.Note).Scan(
		&created.ID, &created.LoanID, &created.Amount, &created.PaidAt, &created.Note, &created.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert repayment", "loan_id", rep.LoanID, "error", err)
		return nil, fmt.Errorf("%w: failed to insert repayment: %w", apperrors.ErrDatabase, err)
	}
	return &created, nil
}

func (r *LoanRepository) UpdateLoanBalancesInTx(ctx context.Context, tx pgx.Tx, loanID int64, lastPrincipal, projectedBalance money.Money, nextCompoundingAt time.Time) error {
	query := `
        UPDATE loans
        SET last_principal = $1, projected_balance = $2, next_compounding_at = $3, updated_at = NOW()
        WHERE id = $4`

	cmdTag, err := tx.Exec(ctx, query, lastPrincipal, projectedBalance, nextCompoundingAt, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan balances", "loan_id", loanID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: loan %d not found for balance update", apperrors.ErrNotFound, loanID)
	}
	return nil
}

func (r *LoanRepository) GetCustomerSummaries(ctx context.Context) ([]loan.CustomerSummary, error) {
	query := `
        SELECT c.id, c.code, c.name,
               COUNT(l.id),
               COALESCE(SUM(l.principal), 0),
               COALESCE((SELECT SUM(rp.amount) FROM repayments rp JOIN loans l2 ON rp.loan_id = l2.id WHERE l2.customer_id = c.id), 0),
               COALESCE(SUM(l.fee), 0),
               COALESCE(SUM(l.projected_balance), 0)
        FROM customers c
        LEFT JOIN loans l ON l.customer_id = c.id
        GROUP BY c.id, c.code, c.name
        ORDER BY c.id ASC`

	status := "success"
	startTime := time.Now()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		monitoring.RecordDBQuery("GetCustomerSummaries", "error", time.Since(startTime))
		r.logger.ErrorContext(ctx, "Failed to query customer summaries", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	summaries := make([]loan.CustomerSummary, 0)
	for rows.Next() {
		var s loan.CustomerSummary
		err := rows.Scan(&s.CustomerID, &s.CustomerCode, &s.Name, &s.LoanCount,
			&s.TotalLoaned, &s.TotalRepaid, &s.TotalFees, &s.ProjectedBalance)
		if err != nil {
			monitoring.RecordDBQuery("GetCustomerSummaries", "error", time.Since(startTime))
			r.logger.ErrorContext(ctx, "Failed to scan customer summary row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		summaries = append(summaries, s)
	}
	if err = rows.Err(); err != nil {
		monitoring.RecordDBQuery("GetCustomerSummaries", "error", time.Since(startTime))
		r.logger.ErrorContext(ctx, "Error iterating customer summary rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	monitoring.RecordDBQuery("GetCustomerSummaries", status, time.Since(startTime))
	return summaries, nil
}

func (r *LoanRepository) GetOverallReport(ctx context.Context, from, to time.Time) (*loan.OverallReport, error) {
	query := `
        SELECT
            (SELECT COUNT(*) FROM loans WHERE created_at >= $1 AND created_at < $2),
            (SELECT COUNT(*) FROM repayments WHERE paid_at >= $1 AND paid_at < $2),
            (SELECT COALESCE(SUM(principal), 0) FROM loans WHERE created_at >= $1 AND created_at < $2),
            (SELECT COALESCE(SUM(amount), 0) FROM repayments WHERE paid_at >= $1 AND paid_at < $2),
            (SELECT COALESCE(SUM(fee), 0) FROM loans WHERE created_at >= $1 AND created_at < $2),
            (SELECT COALESCE(SUM(projected_balance), 0) FROM loans)`

	status := "success"
	startTime := time.Now()

	report := loan.OverallReport{From: from, To: to}
	err := r.db.QueryRow(ctx, query, from, to).Scan(
		&report.LoanCount, &report.RepaymentCount, &report.TotalLoaned,
		&report.TotalRepaid, &report.FeeIncome, &report.OutstandingSum,
	)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetOverallReport", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to build overall report", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &report, nil
}
