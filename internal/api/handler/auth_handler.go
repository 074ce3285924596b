package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lending-ledger/internal/api/handler/dto"
	"lending-ledger/internal/config"
	"lending-ledger/internal/pkg/apperrors"
)

type AuthHandler struct {
	cfg    config.Config
	logger *slog.Logger
}

func NewAuthHandler(cfg config.Config, l *slog.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:    cfg,
		logger: l.With("component", "AuthHandler"),
	}
}

func (h *AuthHandler) GenerateBearerToken(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request body", "error", err)
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if req.Username == "" {
		respondError(w, fmt.Errorf("%w: username is required", apperrors.ErrInvalidArgument))
		return
	}
	claims := jwt.MapClaims{
		"username": req.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(h.cfg.Server.Auth.JWTSecret))
	if err != nil {
		respondError(w, fmt.Errorf("%w: failed to sign token: %v", apperrors.ErrInternalServer, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": fmt.Sprintf("Bearer %s", tokenString)})
}
