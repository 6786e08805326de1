package services

import "prizedraw/internal/models"

// population is the ledger view the probability model needs. drawing names
// the user whose attempt is being evaluated; that attempt has already been
// counted in the ledger but can still produce a win.
type population struct {
	limits            models.ParticipationLimits
	participants      map[string]*models.UserParticipation
	totalParticipants int
	drawing           string
}

// winProbability returns the chance that the next attempt wins.
func winProbability(settings models.ProbabilitySettings, prizes []models.Prize, pop population) float64 {
	switch settings.Mode {
	case models.ProbabilityExhaust:
		return exhaustProbability(settings.BaseProbability, prizes, pop)
	default:
		// fixed and dynamic both use the configured probability as is.
		return settings.BaseProbability
	}
}

// exhaustProbability raises the odds so the finite stock reaches zero by the
// time the population runs out of chances, never going below base.
func exhaustProbability(base float64, prizes []models.Prize, pop population) float64 {
	stock := remainingStock(prizes)
	if stock <= 0 {
		return base
	}
	wins, bounded := remainingWins(pop)
	if !bounded {
		return base
	}
	if wins <= 0 {
		return 0
	}
	if stock >= wins {
		return 1
	}
	return max(base, float64(stock)/float64(wins))
}

// remainingStock sums the remaining quantity of all finite prizes.
func remainingStock(prizes []models.Prize) int {
	total := 0
	for i := range prizes {
		if !prizes[i].Unlimited() {
			total += prizes[i].RemainingQuantity
		}
	}
	return total
}

// remainingWins is the most wins the population could still produce. It is
// unbounded when the participant cap is unlimited.
func remainingWins(pop population) (int, bool) {
	l := pop.limits
	if l.MaxTotalParticipants == 0 {
		return 0, false
	}
	total := 0
	for id, p := range pop.participants {
		attemptsLeft := l.MaxAttemptsPerUser - p.Attempts
		if id == pop.drawing {
			attemptsLeft++
		}
		total += userCapacity(l.MaxWinsPerUser, len(p.Wins), attemptsLeft)
	}
	if unjoined := l.MaxTotalParticipants - pop.totalParticipants; unjoined > 0 {
		total += unjoined * userCapacity(l.MaxWinsPerUser, 0, l.MaxAttemptsPerUser)
	}
	return total, true
}

func userCapacity(maxWins, wins, attemptsLeft int) int {
	c := attemptsLeft
	if maxWins > 0 {
		c = min(maxWins-wins, attemptsLeft)
	}
	return max(c, 0)
}
