package handler

import (
	"net/http"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

type HealthResponse struct {
	Status      string `json:"status"`
	RedisRemote bool   `json:"redis_remote"`
	Storage     bool   `json:"storage_configured"`
}

// NewHealth reports liveness plus backend reachability.
func NewHealth(store repository.StateStore, storage repository.ObjectStorage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, HealthResponse{
			Status:      "ok",
			RedisRemote: store.Available(),
			Storage:     storage.IsConfigured(),
		})
	}
}
