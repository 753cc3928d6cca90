package utils

import (
	"errors"
	"testing"
)

type sampleRequest struct {
	Name  string `json:"student_name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Days  int    `json:"days" validate:"gte=0,lte=30"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     sampleRequest
		wantMsg string
	}{
		{name: "valid", req: sampleRequest{Name: "Asha"}},
		{name: "missing name", req: sampleRequest{}, wantMsg: "student_name is required"},
		{name: "bad email", req: sampleRequest{Name: "Asha", Email: "nope"}, wantMsg: "email must be a valid email address"},
		{name: "days too high", req: sampleRequest{Name: "Asha", Days: 45}, wantMsg: "days must be less than or equal to 30"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStruct(tc.req)
			if tc.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := UserMessage(err); got != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, got)
			}
		})
	}
}
