package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

func TestAsAppErrorClassification(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"validation", ValidationError{Message: "quantity must be positive"}, CodeValidation, http.StatusBadRequest},
		{"conflict", ConflictError{Message: "invoice number already exists"}, CodeConflict, http.StatusConflict},
		{"not found", NotFoundError{Resource: "purchase"}, CodeNotFound, http.StatusNotFound},
		{"business rule", BusinessRuleError{Message: "payment exceeds pending amount"}, CodeBusinessRule, http.StatusUnprocessableEntity},
		{"insufficient stock", InsufficientStockError{StockType: "RICE", Variety: "Sona", Current: decimal.NewFromInt(5), Required: decimal.NewFromInt(8)}, CodeInsufficientStock, http.StatusUnprocessableEntity},
		{"unknown maps to internal", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
		{"wrapped app error survives", fmt.Errorf("while deleting: %w", NotFoundError{Resource: "sale"}), CodeNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := AsAppError(tc.err)
			if appErr == nil {
				t.Fatalf("AsAppError returned nil for %v", tc.err)
			}
			if appErr.Code() != tc.wantCode {
				t.Fatalf("code = %s, want %s", appErr.Code(), tc.wantCode)
			}
			if appErr.HTTPStatus() != tc.wantStatus {
				t.Fatalf("status = %d, want %d", appErr.HTTPStatus(), tc.wantStatus)
			}
		})
	}

	if AsAppError(nil) != nil {
		t.Fatalf("nil error should classify to nil")
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql 1062", &mysqlDriver.MySQLError{Number: 1062}, true},
		{"wrapped 1062", fmt.Errorf("insert purchase: %w", &mysqlDriver.MySQLError{Number: 1062}), true},
		{"other mysql error", &mysqlDriver.MySQLError{Number: 1452}, false},
		{"plain error", errors.New("duplicate entry"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyError(tc.err); got != tc.want {
				t.Fatalf("IsDuplicateKeyError = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := InsufficientStockError{
		StockType: "PADDY",
		Variety:   "IR64",
		Current:   decimal.NewFromInt(30),
		Required:  decimal.NewFromInt(50),
	}
	want := "insufficient stock for PADDY/IR64: current 30, required 50"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}
