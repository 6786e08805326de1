package services

import (
	"fmt"

	"prizedraw/internal/models"
)

// RandomSource is the randomness an activity draws from. *rand.Rand from
// math/rand/v2 satisfies it. Calls are serialized by the activity lock.
type RandomSource interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// IntN returns a uniform value in [0, n).
	IntN(n int) int
}

// Selector picks one prize among the eligible ones. A nil prize with a nil
// error means nothing could be picked.
type Selector interface {
	Select(eligible []*models.Prize, rng RandomSource) (*models.Prize, error)
}

// NewSelector returns the selector implementing the strategy.
func NewSelector(strategy models.SelectionStrategy) (Selector, error) {
	switch strategy {
	case models.SelectionWeighted, "":
		return weightedSelector{}, nil
	case models.SelectionRandom:
		return randomSelector{}, nil
	}
	return nil, fmt.Errorf("unknown selection strategy %q", strategy)
}

type weightedSelector struct{}

// Select draws an integer in [1, total weight] and walks the prizes in
// declared order until the running weight reaches it.
func (weightedSelector) Select(eligible []*models.Prize, rng RandomSource) (*models.Prize, error) {
	total := 0
	for _, p := range eligible {
		if p.Weight < 0 {
			return nil, fmt.Errorf("prize %q has negative weight %d", p.Name, p.Weight)
		}
		total += p.Weight
	}
	if total == 0 {
		return nil, nil
	}
	draw := rng.IntN(total) + 1
	cumulative := 0
	for _, p := range eligible {
		cumulative += p.Weight
		if cumulative >= draw {
			return p, nil
		}
	}
	return nil, fmt.Errorf("weighted draw %d exceeded total weight %d", draw, total)
}

type randomSelector struct{}

func (randomSelector) Select(eligible []*models.Prize, rng RandomSource) (*models.Prize, error) {
	if len(eligible) == 0 {
		return nil, nil
	}
	return eligible[rng.IntN(len(eligible))], nil
}

// eligiblePrizes lists the prizes the user can still win, in declared order.
func eligiblePrizes(prizes []models.Prize, user *models.UserParticipation) []*models.Prize {
	var eligible []*models.Prize
	for i := range prizes {
		p := &prizes[i]
		if !p.InStock() {
			continue
		}
		if user.WinsOf(p.Name) >= p.MaxWinPerUser {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible
}
