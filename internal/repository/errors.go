// Package repository holds the MySQL data access layer.  It defines error
// values that are reused across repositories so that handlers can
// distinguish failure scenarios without looking at driver errors.  For
// example, ErrForbidden indicates that the caller does not own the order it
// tries to change, while ErrConflict signals that an operation cannot
// proceed because of existing dependent records or a terminal state.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate this into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state, such as deleting a product that still has
// orders or moving an order out of cancelled.  Handlers translate this into
// 409.
var ErrConflict = errors.New("conflict")

var (
	ErrEmailExists     = errors.New("email already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrNotPending      = errors.New("order is not pending")
	ErrTokenInvalid    = errors.New("refresh token invalid or expired")
)

// ProductMissingError reports a checkout line whose product does not exist.
type ProductMissingError struct{ ID uint64 }

func (e *ProductMissingError) Error() string {
	return fmt.Sprintf("product with id %d not found", e.ID)
}

// Is lets errors.Is(err, ErrProductNotFound) match.
func (e *ProductMissingError) Is(target error) bool { return target == ErrProductNotFound }

// InsufficientStockError reports a checkout line asking for more units than
// the product has.
type InsufficientStockError struct {
	ProductID uint64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. available: %d, requested: %d", e.Name, e.Available, e.Requested)
}

// MySQL server error numbers the repositories translate.
const (
	errDupEntry        = 1062
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
)

func mysqlErrno(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}
