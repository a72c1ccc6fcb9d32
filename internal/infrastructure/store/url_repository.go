package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

const urlsHash = "urls"

// URLRepository persists scrape request records as JSON fields of the "urls"
// hash in the state store.
type URLRepository struct {
	store repository.StateStore
}

var _ repository.URLRepository = (*URLRepository)(nil)

func NewURLRepository(store repository.StateStore) *URLRepository {
	return &URLRepository{store: store}
}

func (r *URLRepository) Create(ctx context.Context, rec *model.URLRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal url record: %w", err)
	}
	if err := r.store.HSet(ctx, urlsHash, rec.ID, string(data)); err != nil {
		return fmt.Errorf("store url record: %w", err)
	}
	return nil
}

func (r *URLRepository) GetByID(ctx context.Context, id string) (*model.URLRecord, error) {
	data, err := r.store.HGet(ctx, urlsHash, id)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return nil, repository.ErrURLNotFound
		}
		return nil, fmt.Errorf("load url record: %w", err)
	}
	var rec model.URLRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal url record: %w", err)
	}
	return &rec, nil
}

func (r *URLRepository) GetAll(ctx context.Context) ([]*model.URLRecord, error) {
	fields, err := r.store.HGetAll(ctx, urlsHash)
	if err != nil {
		return nil, fmt.Errorf("load url records: %w", err)
	}
	recs := make([]*model.URLRecord, 0, len(fields))
	for _, data := range fields {
		var rec model.URLRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			// Skip corrupt fields rather than failing the whole listing.
			continue
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

func (r *URLRepository) Update(ctx context.Context, rec *model.URLRecord) error {
	return r.Create(ctx, rec)
}

func (r *URLRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	if err := r.store.HDel(ctx, urlsHash, id); err != nil {
		return fmt.Errorf("delete url record: %w", err)
	}
	return nil
}
