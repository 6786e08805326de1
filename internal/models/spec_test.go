package models

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `{
  "name": "Spring Raffle",
  "description": "Seasonal giveaway",
  "start_time": "2025-03-01T00:00:00Z",
  "end_time": "2025-03-31T23:59:59Z",
  "allowed_groups": ["12345", 67890],
  "participation_limits": {"max_total_participants": 100, "max_attempts_per_user": 3, "max_wins_per_user": 1},
  "probability_settings": {"probability_mode": "exhaust", "base_probability": 0.1},
  "prizes": [
    {"name": "Mug", "description": "Ceramic mug", "weight": 5, "quantity": 10, "max_win_per_user": 1},
    {"name": "Sticker", "description": "Laptop sticker", "image_url": "https://example.com/s.png", "weight": 20, "quantity": -1, "max_win_per_user": 2}
  ]
}`

func mutate(t *testing.T, from, to string) []byte {
	t.Helper()
	require.Contains(t, validPayload, from)
	return []byte(strings.Replace(validPayload, from, to, 1))
}

func TestParseActivitySpec(t *testing.T) {
	t.Run("Test valid payload", func(t *testing.T) {
		spec, err := ParseActivitySpec([]byte(validPayload))
		require.NoError(t, err)

		assert.Equal(t, "Spring Raffle", spec.Name)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), spec.StartTime)
		assert.Equal(t, []string{"12345", "67890"}, spec.AllowedGroups)
		assert.Equal(t, ParticipationLimits{MaxTotalParticipants: 100, MaxAttemptsPerUser: 3, MaxWinsPerUser: 1}, spec.Limits)
		assert.Equal(t, ProbabilityExhaust, spec.Probability.Mode)
		assert.Equal(t, SelectionWeighted, spec.Strategy)
		require.Len(t, spec.Prizes, 2)
		assert.Equal(t, 10, spec.Prizes[0].RemainingQuantity)
		assert.Empty(t, spec.Prizes[0].ImageURL)
		assert.True(t, spec.Prizes[1].Unlimited())
		assert.Equal(t, "https://example.com/s.png", spec.Prizes[1].ImageURL)
	})

	t.Run("Test random strategy", func(t *testing.T) {
		spec, err := ParseActivitySpec(mutate(t, `"prizes": [`, `"selection_strategy": "random", "prizes": [`))
		require.NoError(t, err)
		assert.Equal(t, SelectionRandom, spec.Strategy)
	})

	t.Run("Test allowed groups may be omitted", func(t *testing.T) {
		spec, err := ParseActivitySpec(mutate(t, `"allowed_groups": ["12345", 67890],`, ``))
		require.NoError(t, err)
		assert.Empty(t, spec.AllowedGroups)
		assert.True(t, spec.AllowsGroup("any-channel"))
	})

	cases := []struct {
		name    string
		payload []byte
		field   string
	}{
		{"not json", []byte(`{"name":`), ""},
		{"not an object", []byte(`[1, 2]`), ""},
		{"missing name", mutate(t, `"name": "Spring Raffle",`, ``), "name"},
		{"missing prizes", []byte(strings.Split(validPayload, `,
  "prizes"`)[0] + "}"), "prizes"},
		{"blank name", mutate(t, `"Spring Raffle"`, `"   "`), "name"},
		{"bad timestamp", mutate(t, `"2025-03-01T00:00:00Z"`, `"yesterday"`), "start_time"},
		{"end before start", mutate(t, `"2025-03-31T23:59:59Z"`, `"2025-02-01T00:00:00Z"`), "end_time"},
		{"end equals start", mutate(t, `"2025-03-31T23:59:59Z"`, `"2025-03-01T00:00:00Z"`), "end_time"},
		{"negative limit", mutate(t, `"max_attempts_per_user": 3`, `"max_attempts_per_user": -1`), "participation_limits.max_attempts_per_user"},
		{"fractional limit", mutate(t, `"max_total_participants": 100`, `"max_total_participants": 1.5`), "participation_limits.max_total_participants"},
		{"unknown mode", mutate(t, `"exhaust"`, `"greedy"`), "probability_settings.probability_mode"},
		{"probability above one", mutate(t, `"base_probability": 0.1`, `"base_probability": 1.5`), "probability_settings.base_probability"},
		{"empty prize list", []byte(strings.Split(validPayload, `"prizes": [`)[0] + `"prizes": []}`), "prizes"},
		{"zero quantity", mutate(t, `"quantity": 10`, `"quantity": 0`), "prizes[0].quantity"},
		{"quantity below unlimited", mutate(t, `"quantity": -1`, `"quantity": -2`), "prizes[1].quantity"},
		{"zero weight", mutate(t, `"weight": 20`, `"weight": 0`), "prizes[1].weight"},
		{"string weight", mutate(t, `"weight": 5`, `"weight": "5"`), "prizes[0].weight"},
		{"zero max wins", mutate(t, `"max_win_per_user": 2`, `"max_win_per_user": 0`), "prizes[1].max_win_per_user"},
		{"duplicate prize", mutate(t, `"name": "Sticker"`, `"name": "Mug"`), "prizes[1].name"},
		{"weight above bound", mutate(t, `"weight": 5`, `"weight": 4611686018427387904`), "prizes[0].weight"},
		{"summed weight above bound", mutate(t, `"weight": 5`, `"weight": 2147483640`), "prizes[1].weight"},
		{"unknown strategy", mutate(t, `"prizes": [`, `"selection_strategy": "loudest", "prizes": [`), "selection_strategy"},
	}
	for _, tc := range cases {
		t.Run("Test rejects "+tc.name, func(t *testing.T) {
			_, err := ParseActivitySpec(tc.payload)
			require.Error(t, err)

			var specErr *SpecificationError
			require.True(t, errors.As(err, &specErr), "want *SpecificationError, got %T", err)
			assert.Equal(t, tc.field, specErr.Field)
		})
	}

	t.Run("Test time window is checked before limits", func(t *testing.T) {
		payload := mutate(t, `"2025-03-31T23:59:59Z"`, `"2025-02-01T00:00:00Z"`)
		payload = []byte(strings.Replace(string(payload), `"max_attempts_per_user": 3`, `"max_attempts_per_user": -1`, 1))

		_, err := ParseActivitySpec(payload)
		var specErr *SpecificationError
		require.ErrorAs(t, err, &specErr)
		assert.Equal(t, "end_time", specErr.Field)
	})
}

func TestActivitySpec_Validate(t *testing.T) {
	base := func() ActivitySpec {
		return ActivitySpec{
			Name:        " Manual ",
			StartTime:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			EndTime:     time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			Limits:      ParticipationLimits{MaxAttemptsPerUser: 1},
			Probability: ProbabilitySettings{Mode: ProbabilityFixed, BaseProbability: 0.5},
			Prizes:      []Prize{{Name: "A", Weight: 1, Quantity: 3, MaxWinPerUser: 1}},
		}
	}

	t.Run("Test defaults and resets", func(t *testing.T) {
		s := base()
		s.Prizes[0].RemainingQuantity = 99
		require.NoError(t, s.Validate())
		assert.Equal(t, "Manual", s.Name)
		assert.Equal(t, SelectionWeighted, s.Strategy)
		assert.Equal(t, 3, s.Prizes[0].RemainingQuantity)
	})

	t.Run("Test rejects invalid probability", func(t *testing.T) {
		s := base()
		s.Probability.BaseProbability = -0.1
		var specErr *SpecificationError
		require.ErrorAs(t, s.Validate(), &specErr)
		assert.Equal(t, "probability_settings.base_probability", specErr.Field)
	})

	t.Run("Test bounds the summed prize weight", func(t *testing.T) {
		s := base()
		s.Prizes = []Prize{
			{Name: "A", Weight: math.MaxInt/2 + 1, Quantity: 1, MaxWinPerUser: 1},
			{Name: "B", Weight: math.MaxInt/2 + 1, Quantity: 1, MaxWinPerUser: 1},
		}
		var specErr *SpecificationError
		require.ErrorAs(t, s.Validate(), &specErr)
		assert.Equal(t, "prizes[0].weight", specErr.Field)

		s = base()
		s.Prizes = []Prize{
			{Name: "A", Weight: MaxTotalWeight - 1, Quantity: 1, MaxWinPerUser: 1},
			{Name: "B", Weight: 1, Quantity: 1, MaxWinPerUser: 1},
		}
		require.NoError(t, s.Validate())

		s.Prizes = append(s.Prizes, Prize{Name: "C", Weight: 1, Quantity: 1, MaxWinPerUser: 1})
		require.ErrorAs(t, s.Validate(), &specErr)
		assert.Equal(t, "prizes[2].weight", specErr.Field)
	})

	t.Run("Test rejects missing prizes", func(t *testing.T) {
		s := base()
		s.Prizes = nil
		var specErr *SpecificationError
		require.ErrorAs(t, s.Validate(), &specErr)
		assert.Equal(t, "prizes", specErr.Field)
	})
}

func TestActivitySpec_AllowsGroup(t *testing.T) {
	open := ActivitySpec{}
	assert.True(t, open.AllowsGroup("anything"))

	restricted := ActivitySpec{AllowedGroups: []string{"a", "b"}}
	assert.True(t, restricted.AllowsGroup("b"))
	assert.False(t, restricted.AllowsGroup("c"))
}
