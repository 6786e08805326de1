package services

import (
	"testing"

	"prizedraw/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestWinProbability(t *testing.T) {
	prizes := []models.Prize{
		{Name: "A", Quantity: 5, RemainingQuantity: 2},
		{Name: "B", Quantity: models.UnlimitedQuantity},
	}
	exhaust := func(base float64) models.ProbabilitySettings {
		return models.ProbabilitySettings{Mode: models.ProbabilityExhaust, BaseProbability: base}
	}

	t.Run("Test fixed and dynamic return base", func(t *testing.T) {
		pop := population{limits: models.ParticipationLimits{MaxTotalParticipants: 1, MaxAttemptsPerUser: 1}}
		assert.Equal(t, 0.3, winProbability(models.ProbabilitySettings{Mode: models.ProbabilityFixed, BaseProbability: 0.3}, prizes, pop))
		assert.Equal(t, 0.3, winProbability(models.ProbabilitySettings{Mode: models.ProbabilityDynamic, BaseProbability: 0.3}, prizes, pop))
	})

	t.Run("Test exhaust with no finite stock returns base", func(t *testing.T) {
		empty := []models.Prize{{Name: "A", Quantity: 3, RemainingQuantity: 0}, {Name: "B", Quantity: models.UnlimitedQuantity}}
		pop := population{limits: models.ParticipationLimits{MaxTotalParticipants: 10, MaxAttemptsPerUser: 1, MaxWinsPerUser: 1}}
		assert.Equal(t, 0.25, winProbability(exhaust(0.25), empty, pop))
	})

	t.Run("Test exhaust with unlimited participants returns base", func(t *testing.T) {
		pop := population{limits: models.ParticipationLimits{MaxAttemptsPerUser: 3, MaxWinsPerUser: 1}}
		assert.Equal(t, 0.25, winProbability(exhaust(0.25), prizes, pop))
	})

	t.Run("Test exhaust ratio", func(t *testing.T) {
		pop := population{
			limits:       models.ParticipationLimits{MaxTotalParticipants: 10, MaxAttemptsPerUser: 2, MaxWinsPerUser: 1},
			participants: map[string]*models.UserParticipation{},
		}
		assert.InDelta(t, 0.2, winProbability(exhaust(0.1), prizes, pop), 1e-9)
		assert.Equal(t, 0.5, winProbability(exhaust(0.5), prizes, pop))
	})

	t.Run("Test exhaust forces a win when stock covers remaining wins", func(t *testing.T) {
		pop := population{
			limits:       models.ParticipationLimits{MaxTotalParticipants: 2, MaxAttemptsPerUser: 3, MaxWinsPerUser: 1},
			participants: map[string]*models.UserParticipation{},
		}
		assert.Equal(t, 1.0, winProbability(exhaust(0), prizes, pop))
	})

	t.Run("Test exhaust returns zero when nobody can win", func(t *testing.T) {
		pop := population{
			limits: models.ParticipationLimits{MaxTotalParticipants: 1, MaxAttemptsPerUser: 1, MaxWinsPerUser: 1},
			participants: map[string]*models.UserParticipation{
				"u1": {UserID: "u1", Attempts: 1, Wins: []string{"A"}},
			},
			totalParticipants: 1,
		}
		assert.Equal(t, 0.0, winProbability(exhaust(0.4), prizes, pop))
	})

	t.Run("Test the attempt being drawn can still win", func(t *testing.T) {
		pop := population{
			limits: models.ParticipationLimits{MaxTotalParticipants: 1, MaxAttemptsPerUser: 1, MaxWinsPerUser: 1},
			participants: map[string]*models.UserParticipation{
				"u1": {UserID: "u1", Attempts: 1, Wins: []string{}},
			},
			totalParticipants: 1,
			drawing:           "u1",
		}
		assert.Equal(t, 1.0, winProbability(exhaust(0), prizes, pop))
	})

	t.Run("Test unlimited wins per user counts remaining attempts", func(t *testing.T) {
		stock := []models.Prize{{Name: "A", Quantity: 3, RemainingQuantity: 3}}
		pop := population{
			limits:       models.ParticipationLimits{MaxTotalParticipants: 2, MaxAttemptsPerUser: 3},
			participants: map[string]*models.UserParticipation{},
		}
		assert.Equal(t, 0.5, winProbability(exhaust(0), stock, pop))
	})
}

func TestRemainingWins(t *testing.T) {
	pop := population{
		limits: models.ParticipationLimits{MaxTotalParticipants: 5, MaxAttemptsPerUser: 3, MaxWinsPerUser: 2},
		participants: map[string]*models.UserParticipation{
			"a": {UserID: "a", Attempts: 1, Wins: []string{"x"}}, // min(1, 2) = 1
			"b": {UserID: "b", Attempts: 3, Wins: []string{}},    // min(2, 0) = 0
			"c": {UserID: "c", Attempts: 5, Wins: []string{}},    // clamped at 0
		},
		totalParticipants: 3,
	}
	wins, bounded := remainingWins(pop)
	assert.True(t, bounded)
	assert.Equal(t, 1+0+0+2*2, wins)
}
