package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/invgraph/graphcore/pkg/errs"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"not found", errs.NotFound("no such subscriber"), errs.KindNotFound},
		{"wrapped internal", fmt.Errorf("while loading: %w", errs.Internal("boom", errors.New("x"))), errs.KindInternal},
		{"plain error", errors.New("unclassified"), errs.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errs.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := errs.Conflict("revision mismatch")
	b := errs.Conflict("different message")
	if !errors.Is(a, b) {
		t.Error("expected two Conflict errors to match via errors.Is")
	}
	if errors.Is(a, errs.NotFound("")) {
		t.Error("expected Conflict and NotFound not to match")
	}
}

func TestParseErrorIncludesPosition(t *testing.T) {
	err := errs.ParseError("unexpected token", 12)
	want := "parse_error: unexpected token (at position 12)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
