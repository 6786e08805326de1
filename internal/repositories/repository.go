package repositories

import (
	"context"
	"sort"

	"prizedraw/internal/models"
)

// ActivityRepository persists activity snapshots, ledger included.
type ActivityRepository interface {
	// Save stores the record, replacing any previous snapshot with the same ID.
	Save(ctx context.Context, rec *models.ActivityRecord) error
	// LoadAll returns every stored record ordered by creation time.
	LoadAll(ctx context.Context) ([]*models.ActivityRecord, error)
	// Delete removes the record. It reports whether something was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// SortByCreation orders records by creation time, then by ID.
func SortByCreation(recs []*models.ActivityRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
