package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"lending-ledger/internal/event"
)

const customerNotFound = "Customer not found by repository"

type CustomerService interface {
	CreateNewCustomer(ctx context.Context, name, phone, address, note string) (*Customer, error)
	GetCustomer(ctx context.Context, customerID int64) (*Customer, error)
	GetCustomerByCode(ctx context.Context, code string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]*Customer, error)
	UpdateCustomerContact(ctx context.Context, customerID int64, phone, address string) error
}

var _ CustomerService = (*customerService)(nil)

type customerService struct {
	repo   CustomerRepository
	pub    event.EventPublisher
	logger *slog.Logger
}

func NewCustomerService(repo CustomerRepository, eventPublisher event.EventPublisher, logger *slog.Logger) CustomerService {
	if repo == nil {
		panic("customer repository cannot be nil")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewCustomerService, using default stderr handler")
	}

	if eventPublisher == nil {
		eventPublisher = event.NoopEventPublisher{}
	}

	return &customerService{
		repo:   repo,
		pub:    eventPublisher,
		logger: logger.With(slog.String("component", "customerService")),
	}
}

func (s *customerService) CreateNewCustomer(ctx context.Context, name, phone, address, note string) (*Customer, error) {
	s.logger.InfoContext(ctx, "Attempting to create new customer")

	name = strings.TrimSpace(name)
	if name == "" {
		s.logger.WarnContext(ctx, "Validation failed: name is empty")
		return nil, errors.New("customer name cannot be empty")
	}

	customer := NewCustomer(name, strings.TrimSpace(phone), strings.TrimSpace(address), strings.TrimSpace(note))

	err := s.repo.Save(ctx, customer)
	if err != nil {
		s.logger.ErrorContext(ctx, "Repository failed to save new customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save new customer: %w", err)
	}

	createdEvent := event.CustomerCreatedEvent{
		Timestamp: time.Now(),
		Payload: event.CustomerEventPayload{
			CustomerID: customer.CustomerID,
			Code:       customer.Code,
			Name:       customer.Name,
			Phone:      customer.Phone,
			Address:    customer.Address,
			CreatedAt:  customer.CreatedAt,
		},
	}
	if pubErr := s.pub.PublishCustomerCreated(ctx, createdEvent); pubErr != nil {
		s.logger.ErrorContext(ctx, "Customer created, but FAILED to publish creation event", slog.Any("error", pubErr))
	}

	s.logger.InfoContext(ctx, "Successfully created new customer",
		slog.Int64("customerID", customer.CustomerID), slog.String("code", customer.Code))
	return customer, nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID int64) (*Customer, error) {
	customer, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, customerNotFound, slog.Int64("customerID", customerID))
			return nil, ErrNotFound
		}
		s.logger.ErrorContext(ctx, "Repository error finding customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get customer %d: %w", customerID, err)
	}
	return customer, nil
}

func (s *customerService) GetCustomerByCode(ctx context.Context, code string) (*Customer, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("customer code cannot be empty")
	}

	customer, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, customerNotFound, slog.String("code", code))
			return nil, ErrNotFound
		}
		s.logger.ErrorContext(ctx, "Repository error finding customer by code", slog.Any("error", err))
		return nil, fmt.Errorf("failed to find customer by code %s: %w", code, err)
	}
	return customer, nil
}

func (s *customerService) ListCustomers(ctx context.Context) ([]*Customer, error) {
	customers, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Repository error listing customers", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	s.logger.InfoContext(ctx, "Successfully retrieved customers", slog.Int("count", len(customers)))
	return customers, nil
}

func (s *customerService) UpdateCustomerContact(ctx context.Context, customerID int64, phone, address string) error {
	s.logger.InfoContext(ctx, "Attempting to update customer contact details", slog.Int64("customerID", customerID))

	customer, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "Customer not found by repository for update")
			return ErrNotFound
		}
		s.logger.ErrorContext(ctx, "Repository error finding customer for update", slog.Any("error", err))
		return fmt.Errorf("cannot find customer %d to update contact: %w", customerID, err)
	}

	phone = strings.TrimSpace(phone)
	address = strings.TrimSpace(address)
	if customer.Phone == phone && customer.Address == address {
		s.logger.InfoContext(ctx, "No contact change needed, skipping save")
		return nil
	}

	customer.Phone = phone
	customer.Address = address
	customer.UpdatedAt = time.Now().UTC()

	if err := s.repo.Save(ctx, customer); err != nil {
		s.logger.ErrorContext(ctx, "Repository failed to save updated contact", slog.Any("error", err))
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save updated contact for customer %d: %w", customerID, err)
	}

	s.logger.InfoContext(ctx, "Successfully updated customer contact details")
	return nil
}
