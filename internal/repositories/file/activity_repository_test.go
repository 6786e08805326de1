package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"prizedraw/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id string, created time.Time) *models.ActivityRecord {
	return &models.ActivityRecord{
		ID:        id,
		CreatorID: "creator",
		Spec: models.ActivitySpec{
			Name:          "Activity " + id,
			Description:   "stored",
			StartTime:     created,
			EndTime:       created.Add(time.Hour),
			AllowedGroups: []string{"g1"},
			Limits:        models.ParticipationLimits{MaxTotalParticipants: 10, MaxAttemptsPerUser: 2, MaxWinsPerUser: 1},
			Probability:   models.ProbabilitySettings{Mode: models.ProbabilityExhaust, BaseProbability: 0.25},
			Strategy:      models.SelectionWeighted,
			Prizes: []models.Prize{
				{Name: "Pen", Description: "blue", Weight: 2, Quantity: 5, RemainingQuantity: 4, MaxWinPerUser: 1},
				{Name: "Sticker", Weight: 1, Quantity: models.UnlimitedQuantity, RemainingQuantity: models.UnlimitedQuantity, MaxWinPerUser: 3},
			},
		},
		Participants: []models.UserParticipation{
			{UserID: "zed", Attempts: 2, Wins: []string{"Pen"}},
			{UserID: "amy", Attempts: 1, Wins: []string{}},
		},
		TotalParticipants: 2,
		TotalAttempts:     3,
		CreatedAt:         created,
		Version:           7,
	}
}

func TestActivityRepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewActivityRepository(dir)
	require.NoError(t, err)

	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Test empty directory loads nothing", func(t *testing.T) {
		recs, err := repo.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("Test save and load round trip", func(t *testing.T) {
		later := sampleRecord("b", created.Add(time.Minute))
		earlier := sampleRecord("a", created)
		require.NoError(t, repo.Save(ctx, later))
		require.NoError(t, repo.Save(ctx, earlier))

		assert.FileExists(t, filepath.Join(dir, "activities.json"))
		assert.FileExists(t, filepath.Join(dir, "participants", "a.json"))

		recs, err := repo.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, earlier, recs[0])
		assert.Equal(t, later, recs[1])
	})

	t.Run("Test save replaces the previous snapshot", func(t *testing.T) {
		rec := sampleRecord("a", created)
		rec.Version = 8
		rec.Participants = append(rec.Participants, models.UserParticipation{UserID: "new", Attempts: 1, Wins: []string{}})
		require.NoError(t, repo.Save(ctx, rec))

		recs, err := repo.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, uint64(8), recs[0].Version)
		assert.Len(t, recs[0].Participants, 3)
	})

	t.Run("Test delete", func(t *testing.T) {
		removed, err := repo.Delete(ctx, "a")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.NoFileExists(t, filepath.Join(dir, "participants", "a.json"))

		removed, err = repo.Delete(ctx, "a")
		require.NoError(t, err)
		assert.False(t, removed)

		recs, err := repo.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "b", recs[0].ID)
	})

	t.Run("Test missing ledger file loads an empty ledger", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "participants", "b.json")))
		recs, err := repo.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Empty(t, recs[0].Participants)
	})

	t.Run("Test corrupt index is an error", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "activities.json"), []byte("{not json"), 0o644))
		_, err := repo.LoadAll(ctx)
		assert.Error(t, err)
	})
}
