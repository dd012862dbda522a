// Package apperr classifies errors returned by handlers into the fixed set of
// API error responses: token problems, database connectivity, other database
// failures, validation failures and everything else.
package apperr

import (
	"database/sql/driver"
	"errors"
	"net/http"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
)

// Error codes carried in the "error" field of failure envelopes.
const (
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeDBConnection   = "DATABASE_CONNECTION_ERROR"
	CodeDatabase       = "DATABASE_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
	DefaultInternalMsg = "internal server error"
)

// MySQL server error numbers that mean the server could not be used at all.
const (
	mysqlAccessDenied = 1045
)

// ValidationError reports request fields that failed validation.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "validation error"
	}
	return e.Message
}

// Classification is the HTTP rendering of an error.
type Classification struct {
	Status  int
	Message string
	Code    string
	Fields  map[string]string
}

// Classify maps err onto the API error taxonomy.
func Classify(err error) Classification {
	var ve *ValidationError
	var myErr *mysql.MySQLError

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Classification{Status: http.StatusUnauthorized, Message: "token expired", Code: CodeTokenExpired}
	case isTokenError(err):
		return Classification{Status: http.StatusUnauthorized, Message: "invalid token", Code: CodeInvalidToken}
	case errors.As(err, &ve):
		return Classification{Status: http.StatusBadRequest, Message: "validation error", Code: CodeValidation, Fields: ve.Fields}
	case isConnectionError(err):
		return Classification{Status: http.StatusServiceUnavailable, Message: "database connection error", Code: CodeDBConnection}
	case errors.As(err, &myErr):
		return Classification{Status: http.StatusInternalServerError, Message: "database error", Code: CodeDatabase}
	}

	msg := DefaultInternalMsg
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Classification{Status: http.StatusInternalServerError, Message: msg, Code: CodeInternal}
}

func isTokenError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidSubject,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlAccessDenied
}
