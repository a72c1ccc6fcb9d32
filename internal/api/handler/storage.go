package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

// StorageHandler serves the admin storage endpoints.
type StorageHandler struct {
	storage    repository.ObjectStorage
	reconciler *usecase.Reconciler
}

func NewStorageHandler(storage repository.ObjectStorage, reconciler *usecase.Reconciler) *StorageHandler {
	return &StorageHandler{storage: storage, reconciler: reconciler}
}

func (h *StorageHandler) Status(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]bool{"configured": h.storage.IsConfigured()})
}

// Test handles POST /admin/api/storage/test (HEAD on the bucket).
func (h *StorageHandler) Test(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.ValidateConnection(r.Context()); err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *StorageHandler) Scan(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	inventory, err := h.reconciler.ScanStorage(r.Context(), force)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"objects": len(inventory)})
}

func (h *StorageHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	report, err := h.reconciler.Reconcile(r.Context(), force)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}

// Orphans lists stored objects with no tracker record.
func (h *StorageHandler) Orphans(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Reconcile(r.Context(), false)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"orphans": report.OrphanFiles,
		"total":   len(report.OrphanFiles),
	})
}

type orphanRequest struct {
	Key  string   `json:"key"`
	Keys []string `json:"keys,omitempty"`
}

func (h *StorageHandler) ImportOrphan(w http.ResponseWriter, r *http.Request) {
	var req orphanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		Error(w, http.StatusBadRequest, "key is required")
		return
	}
	rec, err := h.reconciler.ImportOrphan(r.Context(), req.Key)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusCreated, rec)
}

func (h *StorageHandler) BulkImportOrphans(w http.ResponseWriter, r *http.Request) {
	var req orphanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 {
		Error(w, http.StatusBadRequest, "keys is required")
		return
	}
	n, err := h.reconciler.ImportOrphans(r.Context(), req.Keys)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (h *StorageHandler) BulkDeleteOrphans(w http.ResponseWriter, r *http.Request) {
	var req orphanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 {
		Error(w, http.StatusBadRequest, "keys is required")
		return
	}
	n, err := h.reconciler.DeleteOrphans(r.Context(), req.Keys)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"deleted": n})
}

type fixMissingRequest struct {
	IDs []string `json:"ids"`
}

func (h *StorageHandler) FixMissing(w http.ResponseWriter, r *http.Request) {
	var req fixMissingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		Error(w, http.StatusBadRequest, "ids is required")
		return
	}
	n, err := h.reconciler.FixMissingInS3(r.Context(), req.IDs)
	if err != nil {
		storageError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"fixed": n})
}

// ClearCache drops the cached storage inventory.
func (h *StorageHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.reconciler.Invalidate()
	JSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrStorageNotConfigured):
		Error(w, http.StatusBadRequest, "object storage is not configured")
	case errors.Is(err, repository.ErrScanInProgress):
		Error(w, http.StatusConflict, "a storage scan is already running")
	case errors.Is(err, repository.ErrObjectNotFound):
		Error(w, http.StatusNotFound, "object not found in storage")
	case errors.Is(err, repository.ErrBucketNotFound):
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
