package repository

import (
	"context"

	"github.com/hszk-dev/mediagate/internal/domain/model"
)

// URLRepository persists scrape request records.
// Implementations are backed by the state store's "urls" hash.
type URLRepository interface {
	// Create persists a new record. Returns error on persistence failure.
	Create(ctx context.Context, rec *model.URLRecord) error

	// GetByID retrieves a record. Returns ErrURLNotFound when absent.
	GetByID(ctx context.Context, id string) (*model.URLRecord, error)

	// GetAll returns every record. Filtering and pagination happen in the
	// service layer; the hash store has no query capability.
	GetAll(ctx context.Context) ([]*model.URLRecord, error)

	// Update persists changes to an existing record.
	Update(ctx context.Context, rec *model.URLRecord) error

	// Delete removes a record. Returns ErrURLNotFound when absent.
	Delete(ctx context.Context, id string) error
}

// VideoRepository persists video records.
// Implementations are backed by the state store's "videos" hash.
type VideoRepository interface {
	Create(ctx context.Context, rec *model.VideoRecord) error

	// GetByID retrieves a record. Returns ErrVideoNotFound when absent.
	GetByID(ctx context.Context, id string) (*model.VideoRecord, error)

	GetAll(ctx context.Context) ([]*model.VideoRecord, error)

	Update(ctx context.Context, rec *model.VideoRecord) error

	// Delete removes a record. Returns ErrVideoNotFound when absent.
	Delete(ctx context.Context, id string) error
}
