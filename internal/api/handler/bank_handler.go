package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lending-ledger/internal/api/handler/dto"
	"lending-ledger/internal/domain/bank"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

type BankHandler struct {
	service bank.BankService
	logger  *slog.Logger
}

func NewBankHandler(s bank.BankService, l *slog.Logger) *BankHandler {
	return &BankHandler{
		service: s,
		logger:  l.With("component", "BankHandler"),
	}
}

func parseIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %v", name, err)
	}
	return v, nil
}

func (h *BankHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
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

	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	ledger, err := h.service.GetLedger(r.Context(), from, to, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewBankLedgerResponse(ledger))
}

func (h *BankHandler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req dto.ManualAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	entry, err := h.service.CreateManualAdjustment(r.Context(), req.Direction, money.MustFromString(req.Amount), req.Note)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewBankTransactionResponse(entry))
}
