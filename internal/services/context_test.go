package services

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = WithScan(ctx, "scan_00001")
	ctx = WithBeamtime(ctx, "99001234")
	ctx = WithPassID(ctx, "pass-1")
	ctx = WithRequestID(ctx, "req-123")

	if scan, ok := ScanFromContext(ctx); !ok || scan != "scan_00001" {
		t.Fatalf("unexpected scan: %q %v", scan, ok)
	}
	if id, ok := BeamtimeFromContext(ctx); !ok || id != "99001234" {
		t.Fatalf("unexpected beamtime: %q %v", id, ok)
	}
	if id, ok := PassIDFromContext(ctx); !ok || id != "pass-1" {
		t.Fatalf("unexpected pass id: %q %v", id, ok)
	}
	if rid, ok := RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %q %v", rid, ok)
	}
}

func TestContextHelpersIgnoreEmpty(t *testing.T) {
	ctx := WithScan(context.Background(), "")
	if _, ok := ScanFromContext(ctx); ok {
		t.Fatal("expected empty scan to be ignored")
	}
	if _, ok := RequestIDFromContext(WithRequestID(context.Background(), "")); ok {
		t.Fatal("expected empty request id to be ignored")
	}
}
