package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"lending-ledger/internal/api/handler/dto"
	"lending-ledger/internal/domain/loan"
	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) CreateLoan(ctx context.Context, customerID int64, principal, fee loan.Money, createdAt time.Time) (*loan.Loan, error) {
	args := m.Called(ctx, customerID, principal, fee, createdAt)
	if created, ok := args.Get(0).(*loan.Loan); ok {
		return created, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) GetLoan(ctx context.Context, loanID int64) (*loan.Loan, error) {
	args := m.Called(ctx, loanID)
	if l, ok := args.Get(0).(*loan.Loan); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) RecordRepayment(ctx context.Context, loanID int64, amount loan.Money, paidAt time.Time) (*loan.Repayment, error) {
	args := m.Called(ctx, loanID, amount, paidAt)
	if rep, ok := args.Get(0).(*loan.Repayment); ok {
		return rep, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) GetBalance(ctx context.Context, loanID int64) (loan.Projection, error) {
	args := m.Called(ctx, loanID)
	if p, ok := args.Get(0).(loan.Projection); ok {
		return p, args.Error(1)
	}
	return loan.Projection{}, args.Error(1)
}

func (m *MockLoanService) AdvanceLoan(ctx context.Context, loanID int64, asOf time.Time) (loan.Advance, error) {
	args := m.Called(ctx, loanID, asOf)
	if adv, ok := args.Get(0).(loan.Advance); ok {
		return adv, args.Error(1)
	}
	return loan.Advance{}, args.Error(1)
}

func (m *MockLoanService) AdvanceAllDue(ctx context.Context, asOf time.Time) (loan.SweepResult, error) {
	args := m.Called(ctx, asOf)
	if res, ok := args.Get(0).(loan.SweepResult); ok {
		return res, args.Error(1)
	}
	return loan.SweepResult{}, args.Error(1)
}

func (m *MockLoanService) GetTimeline(ctx context.Context, loanID int64) ([]loan.CompoundBalanceEvent, error) {
	args := m.Called(ctx, loanID)
	if evs, ok := args.Get(0).([]loan.CompoundBalanceEvent); ok {
		return evs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) ListRepayments(ctx context.Context, loanID int64) ([]loan.Repayment, error) {
	args := m.Called(ctx, loanID)
	if reps, ok := args.Get(0).([]loan.Repayment); ok {
		return reps, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) GetCustomerSummaries(ctx context.Context) ([]loan.CustomerSummary, error) {
	args := m.Called(ctx)
	if sums, ok := args.Get(0).([]loan.CustomerSummary); ok {
		return sums, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) GetOverallReport(ctx context.Context, from, to time.Time) (*loan.OverallReport, error) {
	args := m.Called(ctx, from, to)
	if rep, ok := args.Get(0).(*loan.OverallReport); ok {
		return rep, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) ListCustomerLoans(ctx context.Context, customerID int64) ([]*loan.Loan, error) {
	args := m.Called(ctx, customerID)
	if loans, ok := args.Get(0).([]*loan.Loan); ok {
		return loans, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoanService) GetRecords(ctx context.Context, from, to time.Time) (*loan.Records, error) {
	args := m.Called(ctx, from, to)
	if rec, ok := args.Get(0).(*loan.Records); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func withLoanID(req *http.Request, id string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, &chi.Context{
		URLParams: chi.RouteParams{Keys: []string{"loanID"}, Values: []string{id}},
	}))
}

func newTestLoanHandler(mockService *MockLoanService) *LoanHandler {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewLoanHandler(mockService, logger)
}

func TestLoanHandlerGetLoan(t *testing.T) {
	mockService := new(MockLoanService)
	handler := newTestLoanHandler(mockService)

	t.Run("successfully retrieves loan details", func(t *testing.T) {
		loanID := int64(123)
		mockLoan := &loan.Loan{
			ID:               loanID,
			CustomerID:       7,
			Code:             "LN-20250110093000-0001",
			Principal:        money.MustFromString("500"),
			Fee:              money.MustFromString("50"),
			LastPrincipal:    money.MustFromString("450"),
			ProjectedBalance: money.MustFromString("450"),
		}

		mockService.On("GetLoan", mock.Anything, loanID).Return(mockLoan, nil)

		req := withLoanID(httptest.NewRequest(http.MethodGet, "/loans/123", nil), "123")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.LoanResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, loanID, resp.ID)
		assert.Equal(t, "450.00", resp.DisbursedAmount)
		assert.Equal(t, "450.00", resp.ProjectedBalance)
		mockService.AssertExpectations(t)
	})

	t.Run("returns error for invalid loan ID", func(t *testing.T) {
		req := withLoanID(httptest.NewRequest(http.MethodGet, "/loans/invalid", nil), "invalid")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp dto.ErrorResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Contains(t, resp.Error.Message, "invalid syntax")
	})

	t.Run("returns error when loan not found", func(t *testing.T) {
		loanID := int64(2)
		mockService.On("GetLoan", mock.Anything, loanID).Return((*loan.Loan)(nil), apperrors.ErrNotFound)

		req := withLoanID(httptest.NewRequest(http.MethodGet, "/loans/2", nil), "2")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp dto.ErrorResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, "Resource not found.", resp.Error.Message)
		mockService.AssertExpectations(t)
	})

	t.Run("returns internal server error for unexpected errors", func(t *testing.T) {
		loanID := int64(3)
		mockService.On("GetLoan", mock.Anything, loanID).Return((*loan.Loan)(nil), errors.New("unexpected error"))

		req := withLoanID(httptest.NewRequest(http.MethodGet, "/loans/3", nil), "3")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp dto.ErrorResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, "An unexpected error occurred.", resp.Error.Message)
		mockService.AssertExpectations(t)
	})
}

func TestLoanHandlerGetBalance(t *testing.T) {
	mockService := new(MockLoanService)
	handler := newTestLoanHandler(mockService)

	accruedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mockService.On("GetBalance", mock.Anything, int64(5)).Return(loan.Projection{
		Balance:       money.MustFromString("648.00"),
		LastPrincipal: money.MustFromString("450.00"),
		LastAccrualAt: accruedAt,
	}, nil)

	req := withLoanID(httptest.NewRequest(http.MethodGet, "/loans/5/balance", nil), "5")
	rec := httptest.NewRecorder()

	handler.GetBalance(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.BalanceResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	assert.NoError(t, err)
	assert.Equal(t, "648.00", resp.Balance)
	assert.Equal(t, "450.00", resp.LastPrincipal)
	if assert.NotNil(t, resp.LastAccrualAt) {
		assert.True(t, accruedAt.Equal(*resp.LastAccrualAt))
	}
	mockService.AssertExpectations(t)
}

func TestLoanHandlerMakeRepayment(t *testing.T) {
	t.Run("successfully records a repayment", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		paidAt := time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)
		mockService.On("RecordRepayment", mock.Anything, int64(9),
			mock.MatchedBy(func(m loan.Money) bool { return m.StringFixed(2) == "100.00" }),
			paidAt,
		).Return(&loan.Repayment{ID: 4, LoanID: 9, Amount: money.MustFromString("100"), PaidAt: paidAt}, nil)

		body := `{"amount": "100.00", "paidAt": "2025-02-15T12:00:00Z"}`
		req := withLoanID(httptest.NewRequest(http.MethodPost, "/loans/9/repayments", strings.NewReader(body)), "9")
		rec := httptest.NewRecorder()

		handler.MakeRepayment(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp dto.RepaymentResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, int64(4), resp.ID)
		assert.Equal(t, "100.00", resp.Amount)
		mockService.AssertExpectations(t)
	})

	t.Run("rejects a non-positive amount before calling the service", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		body := `{"amount": "-5.00"}`
		req := withLoanID(httptest.NewRequest(http.MethodPost, "/loans/9/repayments", strings.NewReader(body)), "9")
		rec := httptest.NewRecorder()

		handler.MakeRepayment(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "RecordRepayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("maps an overpayment to a bad request", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		mockService.On("RecordRepayment", mock.Anything, int64(9), mock.Anything, mock.Anything).
			Return((*loan.Repayment)(nil), apperrors.ErrBalanceExhausted)

		body := `{"amount": "99999.00"}`
		req := withLoanID(httptest.NewRequest(http.MethodPost, "/loans/9/repayments", strings.NewReader(body)), "9")
		rec := httptest.NewRecorder()

		handler.MakeRepayment(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertExpectations(t)
	})
}

func TestLoanHandlerAdvanceLoan(t *testing.T) {
	mockService := new(MockLoanService)
	handler := newTestLoanHandler(mockService)

	asOf := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	mockService.On("AdvanceLoan", mock.Anything, int64(11), asOf).Return(loan.Advance{
		Events:            []loan.CompoundBalanceEvent{{LoanID: 11}, {LoanID: 11}},
		ProjectedBalance:  money.MustFromString("648.00"),
		NextCompoundingAt: next,
	}, nil)

	req := withLoanID(httptest.NewRequest(http.MethodPost, "/loans/11/advance?asOf=2025-04-01T00:00:00Z", nil), "11")
	rec := httptest.NewRecorder()

	handler.AdvanceLoan(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.AdvanceResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	assert.NoError(t, err)
	assert.Equal(t, 2, resp.PeriodsApplied)
	assert.Equal(t, "648.00", resp.ProjectedBalance)
	assert.True(t, next.Equal(resp.NextCompoundingAt))
	mockService.AssertExpectations(t)
}

func TestLoanHandlerCreateLoan(t *testing.T) {
	t.Run("successfully creates a loan", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		created := &loan.Loan{
			ID:               21,
			CustomerID:       3,
			Code:             "LN-20250110093000-0002",
			Principal:        money.MustFromString("500"),
			Fee:              money.MustFromString("50"),
			LastPrincipal:    money.MustFromString("450"),
			ProjectedBalance: money.MustFromString("450"),
		}
		mockService.On("CreateLoan", mock.Anything, int64(3),
			mock.MatchedBy(func(m loan.Money) bool { return m.StringFixed(2) == "500.00" }),
			mock.MatchedBy(func(m loan.Money) bool { return m.StringFixed(2) == "50.00" }),
			mock.AnythingOfType("time.Time"),
		).Return(created, nil)

		body := `{"customerId": 3, "principal": "500.00", "fee": "50.00"}`
		req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.CreateLoan(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp dto.LoanResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, int64(21), resp.ID)
		assert.Equal(t, "450.00", resp.LastPrincipal)
		mockService.AssertExpectations(t)
	})

	t.Run("rejects an unparseable principal", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		body := `{"customerId": 3, "principal": "five hundred"}`
		req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.CreateLoan(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "CreateLoan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown fields in the body", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		body := `{"customerId": 3, "principal": "500.00", "weeks": 50}`
		req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.CreateLoan(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func withCustomerID(req *http.Request, id string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, &chi.Context{
		URLParams: chi.RouteParams{Keys: []string{"customerID"}, Values: []string{id}},
	}))
}

func TestLoanHandlerListCustomerLoans(t *testing.T) {
	t.Run("returns the customer's loans", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		mockService.On("ListCustomerLoans", mock.Anything, int64(7)).Return([]*loan.Loan{
			{
				ID:               1,
				CustomerID:       7,
				Code:             "LN-20250110093000-0001",
				Principal:        money.MustFromString("500"),
				Fee:              money.MustFromString("50"),
				LastPrincipal:    money.MustFromString("450"),
				ProjectedBalance: money.MustFromString("450"),
			},
		}, nil)

		req := withCustomerID(httptest.NewRequest(http.MethodGet, "/customers/7/loans", nil), "7")
		rec := httptest.NewRecorder()

		handler.ListCustomerLoans(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp []dto.LoanResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		if assert.Len(t, resp, 1) {
			assert.Equal(t, int64(7), resp[0].CustomerID)
		}
		mockService.AssertExpectations(t)
	})

	t.Run("returns not found for an unknown customer", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		mockService.On("ListCustomerLoans", mock.Anything, int64(99)).Return(nil, apperrors.ErrNotFound)

		req := withCustomerID(httptest.NewRequest(http.MethodGet, "/customers/99/loans", nil), "99")
		rec := httptest.NewRecorder()

		handler.ListCustomerLoans(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects a non-numeric customer ID", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		req := withCustomerID(httptest.NewRequest(http.MethodGet, "/customers/abc/loans", nil), "abc")
		rec := httptest.NewRecorder()

		handler.ListCustomerLoans(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "ListCustomerLoans", mock.Anything, mock.Anything)
	})
}

func TestLoanHandlerGetRecords(t *testing.T) {
	t.Run("returns loans and repayments in the range", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
		mockService.On("GetRecords", mock.Anything, from, to).Return(&loan.Records{
			From: from,
			To:   to,
			Loans: []*loan.Loan{{
				ID:               1,
				CustomerID:       7,
				Principal:        money.MustFromString("500"),
				Fee:              money.MustFromString("50"),
				LastPrincipal:    money.MustFromString("450"),
				ProjectedBalance: money.MustFromString("450"),
				CreatedAt:        from,
			}},
			Repayments: []loan.Repayment{
				{ID: 3, LoanID: 1, Amount: money.MustFromString("100"), PaidAt: from.AddDate(0, 0, 10)},
			},
		}, nil)

		target := "/reports/records?from=2025-01-01T00:00:00Z&to=2025-02-01T00:00:00Z"
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()

		handler.GetRecords(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.RecordsResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Len(t, resp.Loans, 1)
		assert.Len(t, resp.Repayments, 1)
		assert.Equal(t, "100.00", resp.Repayments[0].Amount)
		mockService.AssertExpectations(t)
	})

	t.Run("defaults from to the beginning of time", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		mockService.On("GetRecords", mock.Anything, time.Time{}, mock.AnythingOfType("time.Time")).
			Return(&loan.Records{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/reports/records", nil)
		rec := httptest.NewRecorder()

		handler.GetRecords(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("rejects a malformed range bound", func(t *testing.T) {
		mockService := new(MockLoanService)
		handler := newTestLoanHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reports/records?from=yesterday", nil)
		rec := httptest.NewRecorder()

		handler.GetRecords(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "GetRecords", mock.Anything, mock.Anything, mock.Anything)
	})
}
