package domain

import (
	"time"

	"github.com/google/uuid"
)

// Asset is the catalog row renditions attach to. The transcoder only ever
// merges into its rendition map; creating and deleting assets belongs to
// the upload path.
type Asset struct {
	ID         uuid.UUID
	Renditions map[string]string
	UpdatedAt  time.Time
}

// Rendition returns the blob key recorded for a quality label, if any.
func (a *Asset) Rendition(quality string) (string, bool) {
	key, ok := a.Renditions[quality]
	return key, ok
}
