package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lending-ledger/internal/pkg/apperrors"
)

const (
	maxLedgerPageSize     = 200
	defaultLedgerPageSize = 20
)

type BankService interface {
	// RecordDisbursement posts the cash leaving the bank when a loan is
	// disbursed. The amount is the disbursed amount, passed positive.
	RecordDisbursement(ctx context.Context, loanID, customerID int64, loanCode string, amount Money) error

	// RecordRepaymentReceipt posts the cash received for a repayment.
	RecordRepaymentReceipt(ctx context.Context, repaymentID, loanID, customerID int64, amount Money) error

	CreateManualAdjustment(ctx context.Context, direction string, amount Money, note string) (*Transaction, error)

	GetBalance(ctx context.Context) (Money, error)

	GetLedger(ctx context.Context, from, to time.Time, limit, offset int) (*Ledger, error)
}

type bankService struct {
	repo   Repository
	logger *slog.Logger
}

func NewBankService(repo Repository, logger *slog.Logger) BankService {
	if repo == nil {
		panic("BankService requires a non-nil Repository")
	}
	return &bankService{
		repo:   repo,
		logger: logger.With("component", "BankService"),
	}
}

func (s *bankService) RecordDisbursement(ctx context.Context, loanID, customerID int64, loanCode string, amount Money) error {
	if amount.IsZero() {
		return nil
	}
	_, err := s.repo.Record(ctx, &Transaction{
		Type:          TypeLoanDisbursement,
		Amount:        amount.Abs().Neg(),
		ReferenceType: "loan",
		ReferenceID:   loanID,
		CustomerID:    customerID,
		Note:          fmt.Sprintf("disbursement for loan %s", loanCode),
	})
	if err != nil {
		return fmt.Errorf("failed to record disbursement for loan %d: %w", loanID, err)
	}
	return nil
}

func (s *bankService) RecordRepaymentReceipt(ctx context.Context, repaymentID, loanID, customerID int64, amount Money) error {
	if amount.IsZero() {
		return nil
	}
	_, err := s.repo.Record(ctx, &Transaction{
		Type:          TypeRepaymentReceipt,
		Amount:        amount.Abs(),
		ReferenceType: "repayment",
		ReferenceID:   repaymentID,
		CustomerID:    customerID,
		Note:          fmt.Sprintf("repayment %d for loan %d", repaymentID, loanID),
	})
	if err != nil {
		return fmt.Errorf("failed to record repayment receipt %d: %w", repaymentID, err)
	}
	return nil
}

func (s *bankService) CreateManualAdjustment(ctx context.Context, direction string, amount Money, note string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: adjustment amount must be greater than zero", apperrors.ErrInvalidArgument)
	}

	var txType string
	signed := amount
	switch direction {
	case DirectionDeposit:
		txType = TypeManualDeposit
	case DirectionWithdrawal:
		txType = TypeManualWithdrawal
		signed = amount.Neg()
	default:
		return nil, fmt.Errorf("%w: direction must be %q or %q", apperrors.ErrInvalidArgument, DirectionDeposit, DirectionWithdrawal)
	}

	entry, err := s.repo.Record(ctx, &Transaction{
		Type:   txType,
		Amount: signed,
		Note:   note,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to record manual adjustment: %v", apperrors.ErrInternalServer, err)
	}

	s.logger.InfoContext(ctx, "Recorded manual bank adjustment",
		slog.String("direction", direction),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("balance", entry.BalanceAfter.StringFixed(2)))
	return entry, nil
}

func (s *bankService) GetBalance(ctx context.Context) (Money, error) {
	balance, err := s.repo.GetBalance(ctx)
	if err != nil {
		return Money{}, fmt.Errorf("%w: failed to read bank balance: %v", apperrors.ErrInternalServer, err)
	}
	return balance, nil
}

func (s *bankService) GetLedger(ctx context.Context, from, to time.Time, limit, offset int) (*Ledger, error) {
	if limit <= 0 {
		limit = defaultLedgerPageSize
	}
	if limit > maxLedgerPageSize {
		limit = maxLedgerPageSize
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.repo.ListBetween(ctx, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list bank transactions: %v", apperrors.ErrInternalServer, err)
	}
	balance, err := s.repo.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read bank balance: %v", apperrors.ErrInternalServer, err)
	}

	return &Ledger{
		Balance:      balance,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
		Transactions: entries,
	}, nil
}
