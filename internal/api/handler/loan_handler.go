package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lending-ledger/internal/api/handler/dto"
	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

type LoanHandler struct {
	service loan.LoanService
	logger  *slog.Logger
}

func NewLoanHandler(s loan.LoanService, l *slog.Logger) *LoanHandler {
	return &LoanHandler{
		service: s,
		logger:  l.With("component", "LoanHandler"),
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, err error) {
	status, message, field := http.StatusInternalServerError, "An unexpected error occurred.", ""
	var validationError *apperrors.ValidationError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, message = http.StatusNotFound, "Resource not found."
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrInvalidRepaymentAmount), errors.Is(err, apperrors.ErrBalanceExhausted):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &validationError):
		status, message, field = http.StatusBadRequest, validationError.Message, validationError.Field
	case errors.As(err, &appErr):
		message = appErr.Error()
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	resp := dto.ErrorResponse{
		Error: dto.ErrorDetail{
			Message: message,
			Field:   field,
		},
	}
	respondJSON(w, status, resp)
}

func getLoanIDFromURL(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "loanID")
	if idStr == "" {
		return 0, fmt.Errorf("loanID not found in URL path")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// parseTimeParam reads an RFC 3339 query parameter, defaulting to now. The
// engine itself never reads a clock; the default is applied here at the edge.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC 3339: %v", name, err)
	}
	return t, nil
}

func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	principal := money.MustFromString(req.Principal)
	fee := money.Zero()
	if req.Fee != "" {
		fee = money.MustFromString(req.Fee)
	}
	createdAt := time.Now().UTC()
	if req.CreatedAt != "" {
		createdAt, _ = time.Parse(time.RFC3339, req.CreatedAt)
	}

	created, err := h.service.CreateLoan(r.Context(), req.CustomerID, principal, fee, createdAt)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewLoanResponse(created))
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	l, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewLoanResponse(l))
}

// GetBalance returns the replayed balance, not the cached one.
func (h *LoanHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	p, err := h.service.GetBalance(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewBalanceResponse(loanID, p))
}

func (h *LoanHandler) MakeRepayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.CreateRepaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	paidAt := time.Now().UTC()
	if req.PaidAt != "" {
		paidAt, _ = time.Parse(time.RFC3339, req.PaidAt)
	}

	rep, err := h.service.RecordRepayment(r.Context(), loanID, money.MustFromString(req.Amount), paidAt)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewRepaymentResponse(rep))
}

func (h *LoanHandler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	repayments, err := h.service.ListRepayments(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewRepaymentListResponse(repayments))
}

func (h *LoanHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	events, err := h.service.GetTimeline(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewTimelineResponse(events))
}

func (h *LoanHandler) AdvanceLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	asOf, err := parseTimeParam(r, "asOf")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	adv, err := h.service.AdvanceLoan(r.Context(), loanID, asOf)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.AdvanceResponse{
		LoanID:            loanID,
		PeriodsApplied:    len(adv.Events),
		ProjectedBalance:  adv.ProjectedBalance.StringFixed(2),
		NextCompoundingAt: adv.NextCompoundingAt,
	})
}

func (h *LoanHandler) GetCustomerSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.GetCustomerSummaries(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCustomerSummaryResponse(summaries))
}

func (h *LoanHandler) GetOverallReport(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if r.URL.Query().Get("from") == "" {
		// Default range: everything up to "to".
		from = time.Time{}
	}

	report, err := h.service.GetOverallReport(r.Context(), from, to)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewOverallReportResponse(report))
}

func (h *LoanHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if r.URL.Query().Get("from") == "" {
		from = time.Time{}
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	records, err := h.service.GetRecords(r.Context(), from, to)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewRecordsResponse(records))
}

func (h *LoanHandler) ListCustomerLoans(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "customerID")
	customerID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondError(w, fmt.Errorf("%w: customerID must be an integer", apperrors.ErrInvalidArgument))
		return
	}

	loans, err := h.service.ListCustomerLoans(r.Context(), customerID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewLoanListResponse(loans))
}
