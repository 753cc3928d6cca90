package utils

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Error kinds surfaced to API callers. Wrap them with %w for detail.
var (
	ErrValidation        = errors.New("validation error")
	ErrPermission        = errors.New("permission denied")
	ErrSession           = errors.New("session expired")
	ErrNetwork           = errors.New("network error")
	ErrConflict          = errors.New("record already exists")
	ErrConstraint        = errors.New("constraint violation")
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid stage transition")
)

var kinds = []error{
	ErrValidation,
	ErrPermission,
	ErrSession,
	ErrNetwork,
	ErrConflict,
	ErrConstraint,
	ErrNotFound,
	ErrInvalidTransition,
}

// DetailError carries a message that is safe to show to the user verbatim.
type DetailError struct {
	Kind error
	Msg  string
}

func (e *DetailError) Error() string { return e.Kind.Error() + ": " + e.Msg }
func (e *DetailError) Unwrap() error { return e.Kind }

// ValidationError builds a user-facing validation failure.
func ValidationError(format string, args ...interface{}) error {
	return &DetailError{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// TransitionError builds a user-facing invalid stage transition failure.
func TransitionError(format string, args ...interface{}) error {
	return &DetailError{Kind: ErrInvalidTransition, Msg: fmt.Sprintf(format, args...)}
}

// PermissionError hides the cause behind ErrPermission while keeping it for logs.
func PermissionError(action string) error {
	return fmt.Errorf("%w: %s", ErrPermission, action)
}

// UserMessage maps any error to the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var detail *DetailError
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition):
		if errors.As(err, &detail) {
			return detail.Msg
		}
		if errors.Is(err, ErrInvalidTransition) {
			return "This stage change is not allowed"
		}
		return "Invalid input"
	case errors.Is(err, ErrPermission):
		return "You do not have permission to perform this action"
	case errors.Is(err, ErrSession):
		return "Session expired, please log in again"
	case errors.Is(err, ErrNetwork):
		return "Network error, check your connection"
	case errors.Is(err, ErrConflict):
		return "This record already exists"
	case errors.Is(err, ErrConstraint):
		return "Invalid data provided"
	case errors.Is(err, ErrNotFound):
		return "Record not found"
	}
	return "Something went wrong, please try again"
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrPermission):
		return fiber.StatusForbidden
	case errors.Is(err, ErrSession):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrNetwork):
		return fiber.StatusBadGateway
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, ErrConstraint):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

// TranslateDBError converts driver and ORM failures into the error kinds above.
// Errors that already carry a kind are returned unchanged.
func TranslateDBError(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return fmt.Errorf("%w: %s", ErrConflict, myErr.Message)
		case 1048, 1406, 1451, 1452, 3819:
			return fmt.Errorf("%w: %s", ErrConstraint, myErr.Message)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return err
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(TranslateDBError(err), ErrConflict)
}
