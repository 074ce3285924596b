package dto

import (
	"fmt"
	"strings"
	"time"

	"lending-ledger/internal/domain/customer"
)

type CreateCustomerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Note    string `json:"note,omitempty"`
}

func (r *CreateCustomerRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

type UpdateContactRequest struct {
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type CustomerResponse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewCustomerResponse(c *customer.Customer) CustomerResponse {
	return CustomerResponse{
		ID:        c.CustomerID,
		Code:      c.Code,
		Name:      c.Name,
		Phone:     c.Phone,
		Address:   c.Address,
		Note:      c.Note,
		CreatedAt: c.CreatedAt,
	}
}

func NewCustomerListResponse(customers []*customer.Customer) []CustomerResponse {
	out := make([]CustomerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, NewCustomerResponse(c))
	}
	return out
}
