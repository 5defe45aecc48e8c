package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("chat not found"), http.StatusNotFound},
		{Forbidden("nope"), http.StatusForbidden},
		{Validation("bad"), http.StatusBadRequest},
		{Authentication("who"), http.StatusUnauthorized},
		{Conflict("race"), http.StatusConflict},
		{Internal("boom", errors.New("db down")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("send message: %w", Forbidden("not a participant"))
	if !Is(err, KindForbidden) {
		t.Fatalf("expected forbidden kind, got %s", KindOf(err))
	}
	if got := PublicMessage(err); got != "not a participant" {
		t.Fatalf("unexpected public message %q", got)
	}
}

func TestPublicMessageHidesUntypedErrors(t *testing.T) {
	if got := PublicMessage(errors.New("pq: connection refused")); got != "Internal server error" {
		t.Fatalf("leaked internal error: %q", got)
	}
}
