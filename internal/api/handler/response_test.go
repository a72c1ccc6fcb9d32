package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

func TestError_EnvelopeCarriesStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, http.StatusNotFound, "video record not found")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if resp.Code != http.StatusNotFound || resp.Error != "video record not found" {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestVideoError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", repository.ErrVideoNotFound, http.StatusNotFound},
		{"storage not configured", repository.ErrStorageNotConfigured, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			videoError(rr, tt.err)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestStorageError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"storage not configured", repository.ErrStorageNotConfigured, http.StatusBadRequest},
		{"scan in progress", repository.ErrScanInProgress, http.StatusConflict},
		{"object not found", repository.ErrObjectNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			storageError(rr, tt.err)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
