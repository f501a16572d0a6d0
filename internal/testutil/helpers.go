package testutil

import (
	"testing"

	"github.com/Baaaki/mealmender/pkg/apperror"
)

// RequireCode fails the test unless err carries the given apperror code.
func RequireCode(t *testing.T, err error, code apperror.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := apperror.CodeOf(err); got != code {
		t.Fatalf("expected %s error, got %s (%v)", code, got, err)
	}
}

func Float(v float64) *float64 {
	return &v
}
