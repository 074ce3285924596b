package dto

import (
	"fmt"
	"time"

	"lending-ledger/internal/domain/bank"
	"lending-ledger/internal/pkg/money"
)

type BankTransactionResponse struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balanceAfter"`
	ReferenceType string    `json:"referenceType,omitempty"`
	ReferenceID   int64     `json:"referenceId,omitempty"`
	CustomerID    int64     `json:"customerId,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func NewBankTransactionResponse(t *bank.Transaction) BankTransactionResponse {
	return BankTransactionResponse{
		ID:            t.ID,
		Type:          t.Type,
		Amount:        t.Amount.StringFixed(2),
		BalanceAfter:  t.BalanceAfter.StringFixed(2),
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		CustomerID:    t.CustomerID,
		Note:          t.Note,
		CreatedAt:     t.CreatedAt,
	}
}

type BankLedgerResponse struct {
	Balance      string                    `json:"balance"`
	Total        int                       `json:"total"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
	Transactions []BankTransactionResponse `json:"transactions"`
}

func NewBankLedgerResponse(l *bank.Ledger) BankLedgerResponse {
	out := make([]BankTransactionResponse, 0, len(l.Transactions))
	for i := range l.Transactions {
		out = append(out, NewBankTransactionResponse(&l.Transactions[i]))
	}
	return BankLedgerResponse{
		Balance:      l.Balance.StringFixed(2),
		Total:        l.Total,
		Limit:        l.Limit,
		Offset:       l.Offset,
		Transactions: out,
	}
}

type ManualAdjustmentRequest struct {
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
	Note      string `json:"note,omitempty"`
}

func (r *ManualAdjustmentRequest) Validate() error {
	if r.Direction != bank.DirectionDeposit && r.Direction != bank.DirectionWithdrawal {
		return fmt.Errorf("direction must be %q or %q", bank.DirectionDeposit, bank.DirectionWithdrawal)
	}
	if r.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	amount, err := money.FromString(r.Amount)
	if err != nil {
		return fmt.Errorf("amount is not a valid amount: %v", err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}
