package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrTransport, "catalog", "submit", "post RawDatasets", cause)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if !strings.Contains(err.Error(), "catalog: submit: post RawDatasets") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{Wrap(ErrIndexRead, "ledger", "read index", "", nil), true},
		{Wrap(ErrLedgerRead, "ledger", "load", "", nil), true},
		{fmt.Errorf("pass: %w", Wrap(ErrLedgerWrite, "ledger", "append", "", nil)), true},
		{Wrap(ErrSubmission, "catalog", "submit", "", nil), false},
		{Wrap(ErrAuthentication, "catalog", "login", "", nil), false},
	}
	for _, tc := range cases {
		if got := IsFatal(tc.err); got != tc.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestKind(t *testing.T) {
	if got := Kind(Wrap(ErrAuthentication, "catalog", "login", "", nil)); got != "auth" {
		t.Fatalf("expected auth, got %q", got)
	}
	if got := Kind(errors.New("other")); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
	if got := Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}
