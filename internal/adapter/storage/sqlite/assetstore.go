package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

type AssetStore struct {
	db *sql.DB
}

func NewAssetStore(store *Store) *AssetStore {
	return &AssetStore{db: store.db}
}

// MergeRenditions reads, unions and writes back inside one transaction.
// The single writer connection serializes merges, so none is lost.
func (s *AssetStore) MergeRenditions(ctx context.Context, assetID uuid.UUID, renditions map[string]string) error {
	if len(renditions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT renditions FROM assets WHERE id = ?`, assetID.String()).Scan(&existing)

	merged := make(map[string]string)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read renditions for asset %s: %w", assetID, err)
	default:
		if existing != "" {
			if err := json.Unmarshal([]byte(existing), &merged); err != nil {
				return fmt.Errorf("decode renditions: %w", err)
			}
		}
	}

	for quality, key := range renditions {
		merged[quality] = key
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode renditions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO assets (id, renditions, updated_at) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET renditions = excluded.renditions, updated_at = excluded.updated_at`,
		assetID.String(), string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("merge renditions for asset %s: %w", assetID, err)
	}

	return tx.Commit()
}

func (s *AssetStore) Renditions(ctx context.Context, assetID uuid.UUID) (map[string]string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT renditions FROM assets WHERE id = ?`, assetID.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, fmt.Errorf("get renditions for asset %s: %w", assetID, err)
	}

	renditions := make(map[string]string)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &renditions); err != nil {
			return nil, fmt.Errorf("decode renditions: %w", err)
		}
	}
	return renditions, nil
}

var _ port.AssetStore = (*AssetStore)(nil)
