package customer

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("customer not found")

	ErrDuplicateCode = errors.New("customer code already in use")
)

type CustomerRepository interface {
	Save(ctx context.Context, customer *Customer) error

	FindByID(ctx context.Context, customerID int64) (*Customer, error)

	FindByCode(ctx context.Context, code string) (*Customer, error)

	FindAll(ctx context.Context) ([]*Customer, error)

	Delete(ctx context.Context, customerID int64) error
}
