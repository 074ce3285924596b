package customer

import (
	"crypto/rand"
	"math/big"
	"time"
)

type Customer struct {
	CustomerID int64     `json:"customerId"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func NewCustomer(name, phone, address, note string) *Customer {
	now := time.Now().UTC()
	return &Customer{
		Code:      NewCustomerCode(),
		Name:      name,
		Phone:     phone,
		Address:   address,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewCustomerCode returns a short human-readable identifier like CUST-7GK2QF.
func NewCustomerCode() string {
	b := make([]byte, 6)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			panic(err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return "CUST-" + string(b)
}
