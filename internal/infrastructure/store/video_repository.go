package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

const videosHash = "videos"

// VideoRepository persists video records as JSON fields of the "videos" hash
// in the state store.
type VideoRepository struct {
	store repository.StateStore
}

var _ repository.VideoRepository = (*VideoRepository)(nil)

func NewVideoRepository(store repository.StateStore) *VideoRepository {
	return &VideoRepository{store: store}
}

func (r *VideoRepository) Create(ctx context.Context, rec *model.VideoRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal video record: %w", err)
	}
	if err := r.store.HSet(ctx, videosHash, rec.ID, string(data)); err != nil {
		return fmt.Errorf("store video record: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*model.VideoRecord, error) {
	data, err := r.store.HGet(ctx, videosHash, id)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return nil, repository.ErrVideoNotFound
		}
		return nil, fmt.Errorf("load video record: %w", err)
	}
	var rec model.VideoRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal video record: %w", err)
	}
	return &rec, nil
}

func (r *VideoRepository) GetAll(ctx context.Context) ([]*model.VideoRecord, error) {
	fields, err := r.store.HGetAll(ctx, videosHash)
	if err != nil {
		return nil, fmt.Errorf("load video records: %w", err)
	}
	recs := make([]*model.VideoRecord, 0, len(fields))
	for _, data := range fields {
		var rec model.VideoRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

func (r *VideoRepository) Update(ctx context.Context, rec *model.VideoRecord) error {
	return r.Create(ctx, rec)
}

func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	if err := r.store.HDel(ctx, videosHash, id); err != nil {
		return fmt.Errorf("delete video record: %w", err)
	}
	return nil
}
