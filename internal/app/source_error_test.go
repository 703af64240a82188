package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAnnotateSourceErrorTimeout(t *testing.T) {
	deadline := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	err := annotateSourceError(ctx, "source.list_events", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if !strings.Contains(err.Error(), "source.list_events timed out after deadline 2024-01-01T09:00:00Z") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	meta := sourceErrorMeta(err)
	if meta["phase"] != "source.list_events" || meta["kind"] != "timeout" || meta["deadline"] != "2024-01-01T09:00:00Z" {
		t.Fatalf("meta = %v", meta)
	}
}

func TestAnnotateSourceErrorCanceled(t *testing.T) {
	err := annotateSourceError(context.Background(), "source.doctor", context.Canceled)
	if got := err.Error(); got != "source.doctor canceled: context canceled" {
		t.Fatalf("message = %q", got)
	}
	if meta := sourceErrorMeta(err); meta["kind"] != "canceled" {
		t.Fatalf("meta = %v", meta)
	}
}

func TestAnnotateSourceErrorPassthrough(t *testing.T) {
	if annotateSourceError(context.Background(), "x", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	plain := errors.New("bad json")
	if got := annotateSourceError(context.Background(), "x", plain); got != plain {
		t.Fatalf("expected error unchanged, got %v", got)
	}
	if sourceErrorMeta(plain) != nil {
		t.Fatalf("expected no meta for plain error")
	}
}
