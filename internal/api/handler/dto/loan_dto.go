package dto

import (
	"fmt"
	"time"

	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/pkg/money"
)

type ErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Monetary amounts cross the wire as decimal strings, never floats.
type CreateLoanRequest struct {
	CustomerID int64  `json:"customerId"`
	Principal  string `json:"principal"`
	Fee        string `json:"fee"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

func (r *CreateLoanRequest) Validate() error {
	if r.CustomerID <= 0 {
		return fmt.Errorf("customerId must be positive")
	}
	if r.Principal == "" {
		return fmt.Errorf("principal is required")
	}
	if _, err := money.FromString(r.Principal); err != nil {
		return fmt.Errorf("principal is not a valid amount: %v", err)
	}
	if r.Fee != "" {
		if _, err := money.FromString(r.Fee); err != nil {
			return fmt.Errorf("fee is not a valid amount: %v", err)
		}
	}
	if r.CreatedAt != "" {
		if _, err := time.Parse(time.RFC3339, r.CreatedAt); err != nil {
			return fmt.Errorf("createdAt must be RFC 3339: %v", err)
		}
	}
	return nil
}

type LoanResponse struct {
	ID                int64     `json:"id"`
	CustomerID        int64     `json:"customerId"`
	Code              string    `json:"code"`
	Principal         string    `json:"principal"`
	Fee               string    `json:"fee"`
	DisbursedAmount   string    `json:"disbursedAmount"`
	LastPrincipal     string    `json:"lastPrincipal"`
	ProjectedBalance  string    `json:"projectedBalance"`
	NextCompoundingAt time.Time `json:"nextCompoundingAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

func NewLoanResponse(l *loan.Loan) LoanResponse {
	return LoanResponse{
		ID:                l.ID,
		CustomerID:        l.CustomerID,
		Code:              l.Code,
		Principal:         l.Principal.StringFixed(2),
		Fee:               l.Fee.StringFixed(2),
		DisbursedAmount:   l.DisbursedAmount().StringFixed(2),
		LastPrincipal:     l.LastPrincipal.StringFixed(2),
		ProjectedBalance:  l.ProjectedBalance.StringFixed(2),
		NextCompoundingAt: l.NextCompoundingAt,
		CreatedAt:         l.CreatedAt,
	}
}

func NewLoanListResponse(loans []*loan.Loan) []LoanResponse {
	out := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, NewLoanResponse(l))
	}
	return out
}

type BalanceResponse struct {
	LoanID        int64      `json:"loanId"`
	Balance       string     `json:"balance"`
	LastPrincipal string     `json:"lastPrincipal"`
	LastAccrualAt *time.Time `json:"lastAccrualAt,omitempty"`
}

func NewBalanceResponse(loanID int64, p loan.Projection) BalanceResponse {
	resp := BalanceResponse{
		LoanID:        loanID,
		Balance:       p.Balance.StringFixed(2),
		LastPrincipal: p.LastPrincipal.StringFixed(2),
	}
	if !p.LastAccrualAt.IsZero() {
		t := p.LastAccrualAt
		resp.LastAccrualAt = &t
	}
	return resp
}

type CreateRepaymentRequest struct {
	Amount string `json:"amount"`
	PaidAt string `json:"paidAt,omitempty"`
	Note   string `json:"note,omitempty"`
}

func (r *CreateRepaymentRequest) Validate() error {
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
	if r.PaidAt != "" {
		if _, err := time.Parse(time.RFC3339, r.PaidAt); err != nil {
			return fmt.Errorf("paidAt must be RFC 3339: %v", err)
		}
	}
	return nil
}

type RepaymentResponse struct {
	ID     int64     `json:"id"`
	LoanID int64     `json:"loanId"`
	Amount string    `json:"amount"`
	PaidAt time.Time `json:"paidAt"`
	Note   string    `json:"note,omitempty"`
}

func NewRepaymentResponse(r *loan.Repayment) RepaymentResponse {
	return RepaymentResponse{
		ID:     r.ID,
		LoanID: r.LoanID,
		Amount: r.Amount.StringFixed(2),
		PaidAt: r.PaidAt,
		Note:   r.Note,
	}
}

func NewRepaymentListResponse(repayments []loan.Repayment) []RepaymentResponse {
	out := make([]RepaymentResponse, 0, len(repayments))
	for i := range repayments {
		out = append(out, NewRepaymentResponse(&repayments[i]))
	}
	return out
}

type TimelineEventResponse struct {
	ID            int64     `json:"id"`
	OccurredAt    time.Time `json:"occurredAt"`
	BalanceBefore string    `json:"balanceBefore"`
	BalanceAfter  string    `json:"balanceAfter"`
	Rate          string    `json:"rate"`
}

func NewTimelineResponse(events []loan.CompoundBalanceEvent) []TimelineEventResponse {
	out := make([]TimelineEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, TimelineEventResponse{
			ID:            ev.ID,
			OccurredAt:    ev.OccurredAt,
			BalanceBefore: ev.BalanceBefore.StringFixed(2),
			BalanceAfter:  ev.BalanceAfter.StringFixed(2),
			Rate:          ev.Rate.String(),
		})
	}
	return out
}

type AdvanceResponse struct {
	LoanID            int64     `json:"loanId"`
	PeriodsApplied    int       `json:"periodsApplied"`
	ProjectedBalance  string    `json:"projectedBalance"`
	NextCompoundingAt time.Time `json:"nextCompoundingAt"`
}

type CustomerSummaryResponse struct {
	CustomerID       int64  `json:"customerId"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	LoanCount        int    `json:"loanCount"`
	TotalLoaned      string `json:"totalLoaned"`
	TotalRepaid      string `json:"totalRepaid"`
	TotalFees        string `json:"totalFees"`
	ProjectedBalance string `json:"projectedBalance"`
}

func NewCustomerSummaryResponse(summaries []loan.CustomerSummary) []CustomerSummaryResponse {
	out := make([]CustomerSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, CustomerSummaryResponse{
			CustomerID:       s.CustomerID,
			Code:             s.CustomerCode,
			Name:             s.Name,
			LoanCount:        s.LoanCount,
			TotalLoaned:      s.TotalLoaned.StringFixed(2),
			TotalRepaid:      s.TotalRepaid.StringFixed(2),
			TotalFees:        s.TotalFees.StringFixed(2),
			ProjectedBalance: s.ProjectedBalance.StringFixed(2),
		})
	}
	return out
}

type RecordsResponse struct {
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
	Loans      []LoanResponse      `json:"loans"`
	Repayments []RepaymentResponse `json:"repayments"`
}

func NewRecordsResponse(rec *loan.Records) RecordsResponse {
	return RecordsResponse{
		From:       rec.From,
		To:         rec.To,
		Loans:      NewLoanListResponse(rec.Loans),
		Repayments: NewRepaymentListResponse(rec.Repayments),
	}
}

type OverallReportResponse struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	LoanCount      int       `json:"loanCount"`
	RepaymentCount int       `json:"repaymentCount"`
	TotalLoaned    string    `json:"totalLoaned"`
	TotalRepaid    string    `json:"totalRepaid"`
	FeeIncome      string    `json:"feeIncome"`
	OutstandingSum string    `json:"outstandingSum"`
}

func NewOverallReportResponse(r *loan.OverallReport) OverallReportResponse {
	return OverallReportResponse{
		From:           r.From,
		To:             r.To,
		LoanCount:      r.LoanCount,
		RepaymentCount: r.RepaymentCount,
		TotalLoaned:    r.TotalLoaned.StringFixed(2),
		TotalRepaid:    r.TotalRepaid.StringFixed(2),
		FeeIncome:      r.FeeIncome.StringFixed(2),
		OutstandingSum: r.OutstandingSum.StringFixed(2),
	}
}
