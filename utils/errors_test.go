package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "validation verbatim", err: ValidationError("student_name is required"), want: "student_name is required"},
		{name: "wrapped validation", err: fmt.Errorf("create lead: %w", ValidationError("phone_number is required")), want: "phone_number is required"},
		{name: "transition verbatim", err: TransitionError("cannot move lead from lost to demo"), want: "cannot move lead from lost to demo"},
		{name: "permission", err: PermissionError("convert lead"), want: "You do not have permission to perform this action"},
		{name: "session", err: ErrSession, want: "Session expired, please log in again"},
		{name: "network", err: fmt.Errorf("%w: dial tcp", ErrNetwork), want: "Network error, check your connection"},
		{name: "conflict", err: fmt.Errorf("%w: phone", ErrConflict), want: "This record already exists"},
		{name: "constraint", err: ErrConstraint, want: "Invalid data provided"},
		{name: "not found", err: ErrNotFound, want: "Record not found"},
		{name: "unknown", err: errors.New("boom"), want: "Something went wrong, please try again"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := UserMessage(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: ValidationError("x"), want: fiber.StatusBadRequest},
		{err: PermissionError("x"), want: fiber.StatusForbidden},
		{err: ErrSession, want: fiber.StatusUnauthorized},
		{err: ErrConflict, want: fiber.StatusConflict},
		{err: TransitionError("x"), want: fiber.StatusConflict},
		{err: ErrConstraint, want: fiber.StatusUnprocessableEntity},
		{err: ErrNotFound, want: fiber.StatusNotFound},
		{err: errors.New("x"), want: fiber.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestTranslateDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "duplicate entry", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, want: ErrConflict},
		{name: "foreign key", err: &mysql.MySQLError{Number: 1452, Message: "fk"}, want: ErrConstraint},
		{name: "check constraint", err: &mysql.MySQLError{Number: 3819, Message: "check"}, want: ErrConstraint},
		{name: "record not found", err: gorm.ErrRecordNotFound, want: ErrNotFound},
		{name: "gorm duplicated key", err: gorm.ErrDuplicatedKey, want: ErrConflict},
		{name: "bad connection", err: mysql.ErrInvalidConn, want: ErrNetwork},
		{name: "already classified", err: ValidationError("x"), want: ErrValidation},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := TranslateDBError(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if TranslateDBError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	plain := errors.New("syntax")
	if got := TranslateDBError(plain); got != plain {
		t.Fatalf("unclassified error must pass through, got %v", got)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if !IsDuplicateKey(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062})) {
		t.Fatalf("wrapped 1062 should be a duplicate")
	}
	if IsDuplicateKey(&mysql.MySQLError{Number: 1452}) {
		t.Fatalf("1452 is not a duplicate")
	}
}
