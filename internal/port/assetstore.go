package port

import (
	"context"

	"github.com/google/uuid"
)

// AssetStore is the catalog side the transcoder publishes into.
type AssetStore interface {
	// MergeRenditions unions the given map into the asset's rendition map,
	// overwriting only the labels it names. Concurrent merges for different
	// labels must both survive.
	MergeRenditions(ctx context.Context, assetID uuid.UUID, renditions map[string]string) error

	Renditions(ctx context.Context, assetID uuid.UUID) (map[string]string, error)
}
