package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/release-tracker/internal/tracker"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "chromium/schedule.json", "application/json",
		bytes.NewReader([]byte(`{"mstones":[]}`)))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://chromium/schedule.json" {
		t.Fatalf("unexpected uri %s", uri)
	}

	got, err := store.GetObject(context.Background(), "chromium/schedule.json")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	got[0] = 'X'
	again, _ := store.GetObject(context.Background(), "chromium/schedule.json")
	if string(again) != `{"mstones":[]}` {
		t.Fatalf("expected stored copy to be immutable, got %q", again)
	}
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	if !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewBlobStore().PutObject(context.Background(), " ", "", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty path")
	}
}
