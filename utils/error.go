package utils

import (
	"errors"
	"fmt"
	"net/http"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// Stable error codes surfaced to API clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeConflict          = "CONFLICT"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeBusinessRule      = "BUSINESS_RULE"
	CodeInternal          = "INTERNAL"
)

// AppError is implemented by every error the mutation layer surfaces to callers.
type AppError interface {
	error
	Code() string
	HTTPStatus() int
}

var ErrorRecordNotFound = NotFoundError{Resource: "record"}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string   { return e.Message }
func (e ValidationError) Code() string    { return CodeValidation }
func (e ValidationError) HTTPStatus() int { return http.StatusBadRequest }

type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string   { return e.Message }
func (e ConflictError) Code() string    { return CodeConflict }
func (e ConflictError) HTTPStatus() int { return http.StatusConflict }

type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "record not found"
	}
	return e.Resource + " not found"
}
func (e NotFoundError) Code() string    { return CodeNotFound }
func (e NotFoundError) HTTPStatus() int { return http.StatusNotFound }

// InsufficientStockError reports current vs required so clients can show the shortfall.
type InsufficientStockError struct {
	StockType string
	Variety   string
	Current   decimal.Decimal
	Required  decimal.Decimal
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s/%s: current %s, required %s",
		e.StockType, e.Variety, e.Current.String(), e.Required.String())
}
func (e InsufficientStockError) Code() string    { return CodeInsufficientStock }
func (e InsufficientStockError) HTTPStatus() int { return http.StatusUnprocessableEntity }

type BusinessRuleError struct {
	Message string
}

func (e BusinessRuleError) Error() string   { return e.Message }
func (e BusinessRuleError) Code() string    { return CodeBusinessRule }
func (e BusinessRuleError) HTTPStatus() int { return http.StatusUnprocessableEntity }

type InternalError struct {
	Err error
}

func (e InternalError) Error() string {
	if e.Err == nil {
		return "internal error"
	}
	return e.Err.Error()
}
func (e InternalError) Code() string    { return CodeInternal }
func (e InternalError) HTTPStatus() int { return http.StatusInternalServerError }
func (e InternalError) Unwrap() error   { return e.Err }

// IsDuplicateKeyError reports whether err is a MySQL 1062 unique-index
// violation. Insert paths racing past an application-level uniqueness check
// use this to translate the index rejection into a ConflictError.
func IsDuplicateKeyError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// AsAppError classifies err for the HTTP layer. Unknown errors map to InternalError.
func AsAppError(err error) AppError {
	if err == nil {
		return nil
	}
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError{Err: err}
}
