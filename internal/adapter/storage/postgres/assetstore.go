package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

type AssetStore struct {
	pool *pgxpool.Pool
}

func NewAssetStore(store *Store) *AssetStore {
	return &AssetStore{pool: store.pool}
}

// MergeRenditions unions into the asset's rendition map in one statement,
// so merges from concurrent jobs never drop each other's labels.
func (s *AssetStore) MergeRenditions(ctx context.Context, assetID uuid.UUID, renditions map[string]string) error {
	if len(renditions) == 0 {
		return nil
	}

	payload, err := json.Marshal(renditions)
	if err != nil {
		return fmt.Errorf("encode renditions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO assets (id, renditions, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE
SET renditions = assets.renditions || EXCLUDED.renditions, updated_at = now()`,
		assetID, payload)
	if err != nil {
		return fmt.Errorf("merge renditions for asset %s: %w", assetID, err)
	}
	return nil
}

func (s *AssetStore) Renditions(ctx context.Context, assetID uuid.UUID) (map[string]string, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT renditions FROM assets WHERE id = $1`, assetID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, fmt.Errorf("get renditions for asset %s: %w", assetID, err)
	}

	renditions := make(map[string]string)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &renditions); err != nil {
			return nil, fmt.Errorf("decode renditions: %w", err)
		}
	}
	return renditions, nil
}

var _ port.AssetStore = (*AssetStore)(nil)
