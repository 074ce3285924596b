package event

import "time"

type CustomerEventPayload struct {
	CustomerID int64     `json:"customerId"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CustomerCreatedEvent struct {
	Timestamp time.Time            `json:"timestamp"`
	Payload   CustomerEventPayload `json:"payload"`
}

type LoanEventPayload struct {
	LoanID           int64  `json:"loanId"`
	CustomerID       int64  `json:"customerId"`
	Code             string `json:"code"`
	Principal        string `json:"principal"`
	Fee              string `json:"fee"`
	ProjectedBalance string `json:"projectedBalance"`
}

type LoanCreatedEvent struct {
	Timestamp time.Time        `json:"timestamp"`
	Payload   LoanEventPayload `json:"payload"`
}

type RepaymentEventPayload struct {
	RepaymentID      int64  `json:"repaymentId"`
	LoanID           int64  `json:"loanId"`
	Amount           string `json:"amount"`
	ProjectedBalance string `json:"projectedBalance"`
}

type RepaymentRecordedEvent struct {
	Timestamp time.Time             `json:"timestamp"`
	Payload   RepaymentEventPayload `json:"payload"`
}

type CompoundedEventPayload struct {
	LoanID            int64     `json:"loanId"`
	Periods           int       `json:"periods"`
	ProjectedBalance  string    `json:"projectedBalance"`
	NextCompoundingAt time.Time `json:"nextCompoundingAt"`
}

type LoanCompoundedEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Payload   CompoundedEventPayload `json:"payload"`
}
