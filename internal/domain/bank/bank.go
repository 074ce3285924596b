// Package bank keeps the cash-side ledger: one signed entry per movement of
// money, with a running balance. Disbursements leave the bank, repayments
// come back in, and operators can post manual adjustments.
package bank

import (
	"time"

	"lending-ledger/internal/pkg/money"
)

type Money = money.Money

const (
	TypeLoanDisbursement = "loan_disbursement"
	TypeRepaymentReceipt = "repayment_receipt"
	TypeManualDeposit    = "manual_deposit"
	TypeManualWithdrawal = "manual_withdrawal"
)

const (
	DirectionDeposit    = "deposit"
	DirectionWithdrawal = "withdrawal"
)

// Transaction is one immutable ledger entry. Amount is signed: negative for
// cash leaving the bank, positive for cash coming in. BalanceAfter is the
// running balance once this entry is applied.
type Transaction struct {
	ID            int64       `json:"id"`
	Type          string      `json:"type"`
	Amount        money.Money `json:"amount"`
	BalanceAfter  money.Money `json:"balanceAfter"`
	ReferenceType string      `json:"referenceType,omitempty"`
	ReferenceID   int64       `json:"referenceId,omitempty"`
	CustomerID    int64       `json:"customerId,omitempty"`
	Note          string      `json:"note,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Ledger is one page of the bank ledger plus the current balance.
type Ledger struct {
	Balance      money.Money
	Total        int
	Limit        int
	Offset       int
	Transactions []Transaction
}
