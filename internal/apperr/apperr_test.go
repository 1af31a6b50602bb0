package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Validation("ERR_X", "bad"), 400},
		{NotReady("ERR_X", "not ready"), 400},
		{NotFound("ERR_X", "missing"), 404},
		{Conflict("ERR_X", "dup", "profileId", "p1"), 409},
		{Internal("boom", errors.New("db down")), 500},
	}
	for _, tt := range tests {
		if got := tt.err.Status(); got != tt.want {
			t.Errorf("%s: Status() = %d, want %d", tt.err.Message, got, tt.want)
		}
	}
}

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	base := NotFound("ERR_NOT_FOUND", "Transcript not found")
	wrapped := fmt.Errorf("generate profile: %w", base)

	got := As(wrapped)
	if got != base {
		t.Fatalf("As() = %v, want original error", got)
	}
	if !IsKind(wrapped, KindNotFound) {
		t.Error("IsKind(wrapped, KindNotFound) = false")
	}
}

func TestAsWrapsUnknownAsInternal(t *testing.T) {
	got := As(errors.New("unexpected"))
	if got.Kind != KindInternal || got.Status() != 500 {
		t.Errorf("As() = %+v, want internal", got)
	}
}
