package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lending-ledger/internal/api/handler/dto"
	"lending-ledger/internal/domain/customer"
	"lending-ledger/internal/pkg/apperrors"
)

type CustomerHandler struct {
	service customer.CustomerService
	logger  *slog.Logger
}

func NewCustomerHandler(s customer.CustomerService, l *slog.Logger) *CustomerHandler {
	return &CustomerHandler{
		service: s,
		logger:  l.With("component", "CustomerHandler"),
	}
}

func getCustomerIDFromURL(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "customerID")
	if idStr == "" {
		return 0, fmt.Errorf("customerID not found in URL path")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	c, err := h.service.CreateNewCustomer(r.Context(), req.Name, req.Phone, req.Address, req.Note)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewCustomerResponse(c))
}

func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := getCustomerIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	c, err := h.service.GetCustomer(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			respondError(w, apperrors.ErrNotFound)
			return
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCustomerResponse(c))
}

func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("code"); code != "" {
		c, err := h.service.GetCustomerByCode(r.Context(), code)
		if err != nil {
			if errors.Is(err, customer.ErrNotFound) {
				respondError(w, apperrors.ErrNotFound)
				return
			}
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, dto.NewCustomerListResponse([]*customer.Customer{c}))
		return
	}

	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCustomerListResponse(customers))
}

func (h *CustomerHandler) UpdateCustomerContact(w http.ResponseWriter, r *http.Request) {
	customerID, err := getCustomerIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.UpdateContactRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.UpdateCustomerContact(r.Context(), customerID, req.Phone, req.Address); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			respondError(w, apperrors.ErrNotFound)
			return
		}
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
