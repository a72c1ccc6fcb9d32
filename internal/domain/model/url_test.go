package model

import (
	"errors"
	"testing"
)

func TestNewURLRecord(t *testing.T) {
	rec, err := NewURLRecord("https://example.com/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != ScrapeStatusWaiting {
		t.Errorf("expected status waiting, got %s", rec.Status)
	}
	if rec.ID == "" {
		t.Error("expected non-empty id")
	}

	if _, err := NewURLRecord(""); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
}

func TestURLRecord_Lifecycle(t *testing.T) {
	rec, _ := NewURLRecord("https://example.com")

	if err := rec.MarkProcessing(); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if rec.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}

	if err := rec.MarkDone(&ScrapeResult{HTMLLength: 10}); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if rec.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if rec.Result == nil || rec.Result.HTMLLength != 10 {
		t.Error("expected result to be stored")
	}

	// Terminal states are final.
	if err := rec.MarkProcessing(); !errors.Is(err, ErrInvalidScrapeTransition) {
		t.Errorf("expected ErrInvalidScrapeTransition, got %v", err)
	}
}

func TestURLRecord_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*URLRecord)
		wantErr error
	}{
		{
			name:  "cancel from waiting",
			setup: func(r *URLRecord) {},
		},
		{
			name: "cancel from processing",
			setup: func(r *URLRecord) {
				r.MarkProcessing()
			},
		},
		{
			name: "cancel from done fails",
			setup: func(r *URLRecord) {
				r.MarkProcessing()
				r.MarkDone(nil)
			},
			wantErr: ErrNotCancellable,
		},
		{
			name: "cancel from error fails",
			setup: func(r *URLRecord) {
				r.MarkProcessing()
				r.MarkError("boom")
			},
			wantErr: ErrNotCancellable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := NewURLRecord("https://example.com")
			tt.setup(rec)
			err := rec.MarkCancelled()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Status != ScrapeStatusCancelled {
				t.Errorf("expected cancelled, got %s", rec.Status)
			}
			if rec.CompletedAt == nil {
				t.Error("expected CompletedAt to be set")
			}
		})
	}
}
