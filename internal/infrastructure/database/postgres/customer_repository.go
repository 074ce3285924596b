package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lending-ledger/internal/domain/customer"
	"lending-ledger/internal/pkg/apperrors"
)

const customerColumns = "id, code, name, phone, address, note, created_at, updated_at"

type CustomerRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ customer.CustomerRepository = (*CustomerRepository)(nil)

func NewCustomerRepository(db DBPool, logger *slog.Logger) *CustomerRepository {
	if db == nil {
		panic("DBPool cannot be nil for CustomerRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewCustomerRepository, using default stderr handler")
	}
	return &CustomerRepository{
		db:     db,
		logger: logger.With("component", "CustomerRepository"),
	}
}

func scanCustomer(row pgx.Row) (*customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.CustomerID, &c.Code, &c.Name, &c.Phone, &c.Address, &c.Note, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepository) Save(ctx context.Context, cust *customer.Customer) error {
	if cust == nil {
		return fmt.Errorf("%w: customer cannot be nil", apperrors.ErrInvalidArgument)
	}
	if cust.CustomerID == 0 {
		return r.createCustomer(ctx, cust)
	}
	return r.updateCustomer(ctx, cust)
}

func (r *CustomerRepository) createCustomer(ctx context.Context, cust *customer.Customer) error {
	r.logger.InfoContext(ctx, "Attempting to insert new customer", slog.String("name", cust.Name))

	query := `
        INSERT INTO customers (code, name, phone, address, note, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		cust.Code,
		cust.Name,
		cust.Phone,
		cust.Address,
		cust.Note,
	).Scan(
		&cust.CustomerID,
		&cust.CreatedAt,
		&cust.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.WarnContext(ctx, "Customer code collision", slog.String("code", cust.Code))
			return customer.ErrDuplicateCode
		}
		r.logger.ErrorContext(ctx, "Failed to insert customer", slog.Any("error", err))
		return fmt.Errorf("%w: failed to insert customer: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Customer created in DB", slog.Int64("customerID", cust.CustomerID))
	return nil
}

func (r *CustomerRepository) updateCustomer(ctx context.Context, cust *customer.Customer) error {
	query := `
        UPDATE customers
        SET name = $1, phone = $2, address = $3, note = $4, updated_at = NOW()
        WHERE id = $5`

	cmdTag, err := r.db.Exec(ctx, query, cust.Name, cust.Phone, cust.Address, cust.Note, cust.CustomerID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update customer", slog.Any("error", err))
		return fmt.Errorf("%w: failed to update customer: %w", apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Customer not found for update", slog.Int64("customerID", cust.CustomerID))
		return customer.ErrNotFound
	}
	return nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID int64) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	c, err := scanCustomer(r.db.QueryRow(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Customer not found", slog.Int64("customerID", customerID))
			return nil, customer.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find customer by ID", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to find customer: %w", apperrors.ErrDatabase, err)
	}
	return c, nil
}

func (r *CustomerRepository) FindByCode(ctx context.Context, code string) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE code = $1`

	c, err := scanCustomer(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Customer not found by code", slog.String("code", code))
			return nil, customer.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find customer by code", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to find customer by code: %w", apperrors.ErrDatabase, err)
	}
	return c, nil
}

func (r *CustomerRepository) FindAll(ctx context.Context) ([]*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query customers", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to query customers: %w", apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	customers := make([]*customer.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan customer row", slog.Any("error", err))
			return nil, fmt.Errorf("%w: failed to scan customer: %w", apperrors.ErrDatabase, err)
		}
		customers = append(customers, c)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating customer rows", slog.Any("error", err))
		return nil, fmt.Errorf("%w: error iterating customers: %w", apperrors.ErrDatabase, err)
	}
	return customers, nil
}

func (r *CustomerRepository) Delete(ctx context.Context, customerID int64) error {
	query := `DELETE FROM customers WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, query, customerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			// Loans still reference this customer.
			r.logger.WarnContext(ctx, "Cannot delete customer with loans", slog.Int64("customerID", customerID))
			return fmt.Errorf("%w: customer %d still has loans", apperrors.ErrConflict, customerID)
		}
		r.logger.ErrorContext(ctx, "Failed to delete customer", slog.Any("error", err))
		return fmt.Errorf("%w: failed to delete customer: %w", apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}
