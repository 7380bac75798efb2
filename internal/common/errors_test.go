package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("room ABC: %w", ErrNotFound), http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("join: %w", ErrFull), http.StatusConflict},
		{ErrInvalidState, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatusFromError(tc.err); got != tc.want {
			t.Fatalf("HTTPStatusFromError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWireCodeRoundTripKeepsSentinel(t *testing.T) {
	for _, sentinel := range []error{ErrNotFound, ErrForbidden, ErrFull, ErrInvalidState, ErrValidation} {
		wrapped := fmt.Errorf("context: %w", sentinel)
		back := ErrorFromCode(CodeFromError(wrapped))
		if !errors.Is(back, sentinel) {
			t.Fatalf("code round trip for %v produced %v", sentinel, back)
		}
	}
	if ErrorFromCode("SOMETHING_ELSE") != nil {
		t.Fatalf("expected unknown code to map to nil")
	}
}

func TestRespondWithDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithDomainError(rec, fmt.Errorf("room XYZ: %w", ErrFull))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"code":"FULL"`) {
		t.Fatalf("expected FULL code in body, got %s", body)
	}
}
