package models

import (
	"math"
	"time"
)

// UnlimitedQuantity marks a prize whose stock is never exhausted.
const UnlimitedQuantity = -1

// MaxTotalWeight bounds the summed weight of an activity's prizes so the
// weighted draw never overflows.
const MaxTotalWeight = math.MaxInt32

// Prize represents a single prize category in an activity.
// Weight is the relative draw likelihood among eligible prizes; RemainingQuantity
// starts at Quantity and is only ever decremented, and only when Quantity is finite.
type Prize struct {
	Name              string `json:"name" bson:"name"`
	Description       string `json:"description" bson:"description"`
	ImageURL          string `json:"image_url" bson:"image_url"`
	Weight            int    `json:"weight" bson:"weight"`
	Quantity          int    `json:"quantity" bson:"quantity"`
	RemainingQuantity int    `json:"remaining_quantity" bson:"remaining_quantity"`
	MaxWinPerUser     int    `json:"max_win_per_user" bson:"max_win_per_user"`
}

// Unlimited reports whether the prize has no stock limit.
func (p *Prize) Unlimited() bool {
	return p.Quantity == UnlimitedQuantity
}

// InStock reports whether the prize can still be handed out.
func (p *Prize) InStock() bool {
	return p.Unlimited() || p.RemainingQuantity > 0
}

// Distributed returns how many units were already won. Unlimited prizes report 0.
func (p *Prize) Distributed() int {
	if p.Unlimited() {
		return 0
	}
	return p.Quantity - p.RemainingQuantity
}

// ParticipationLimits caps how many people may join and how often they may play.
// Zero means unlimited for MaxTotalParticipants and MaxWinsPerUser; MaxAttemptsPerUser
// is taken literally, so zero bars everyone.
type ParticipationLimits struct {
	MaxTotalParticipants int `json:"max_total_participants" bson:"max_total_participants"`
	MaxAttemptsPerUser   int `json:"max_attempts_per_user" bson:"max_attempts_per_user"`
	MaxWinsPerUser       int `json:"max_wins_per_user" bson:"max_wins_per_user"`
}

// ProbabilityMode selects how the win chance of the next attempt is computed.
type ProbabilityMode string

const (
	ProbabilityFixed   ProbabilityMode = "fixed"
	ProbabilityDynamic ProbabilityMode = "dynamic"
	ProbabilityExhaust ProbabilityMode = "exhaust"
)

// Valid reports whether m is a known mode.
func (m ProbabilityMode) Valid() bool {
	switch m {
	case ProbabilityFixed, ProbabilityDynamic, ProbabilityExhaust:
		return true
	}
	return false
}

// ProbabilitySettings holds the odds configuration of an activity.
type ProbabilitySettings struct {
	Mode            ProbabilityMode `json:"probability_mode" bson:"probability_mode"`
	BaseProbability float64         `json:"base_probability" bson:"base_probability"`
}

// SelectionStrategy selects how a prize is picked once an attempt wins.
type SelectionStrategy string

const (
	SelectionWeighted SelectionStrategy = "weighted"
	SelectionRandom   SelectionStrategy = "random"
)

// Valid reports whether s is a known strategy.
func (s SelectionStrategy) Valid() bool {
	return s == SelectionWeighted || s == SelectionRandom
}

// ActivitySpec is a validated activity definition.
type ActivitySpec struct {
	Name          string              `json:"name" bson:"name"`
	Description   string              `json:"description" bson:"description"`
	StartTime     time.Time           `json:"start_time" bson:"start_time"`
	EndTime       time.Time           `json:"end_time" bson:"end_time"`
	AllowedGroups []string            `json:"allowed_groups" bson:"allowed_groups"`
	Limits        ParticipationLimits `json:"participation_limits" bson:"participation_limits"`
	Probability   ProbabilitySettings `json:"probability_settings" bson:"probability_settings"`
	Strategy      SelectionStrategy   `json:"selection_strategy" bson:"selection_strategy"`
	Prizes        []Prize             `json:"prizes" bson:"prizes"`
}

// AllowsGroup reports whether the activity may be used from the given channel.
// An activity without allowed groups is open to every channel.
func (s *ActivitySpec) AllowsGroup(group string) bool {
	if len(s.AllowedGroups) == 0 {
		return true
	}
	for _, g := range s.AllowedGroups {
		if g == group {
			return true
		}
	}
	return false
}

// UserParticipation is one user's ledger entry within an activity.
// Wins holds one prize name per win, in order, so repeat wins are visible.
type UserParticipation struct {
	UserID   string   `json:"user_id" bson:"user_id"`
	Attempts int      `json:"attempts" bson:"attempts"`
	Wins     []string `json:"wins" bson:"wins"`
}

// WinsOf counts how many times the user already won the named prize.
func (u *UserParticipation) WinsOf(prizeName string) int {
	n := 0
	for _, w := range u.Wins {
		if w == prizeName {
			n++
		}
	}
	return n
}

// ActivityRecord is the durable snapshot of an activity, ledger included.
type ActivityRecord struct {
	ID                string              `json:"id" bson:"_id"`
	CreatorID         string              `json:"creator_id" bson:"creator_id"`
	Spec              ActivitySpec        `json:"data" bson:"data"`
	Participants      []UserParticipation `json:"participants" bson:"participants"`
	TotalParticipants int                 `json:"total_participants" bson:"total_participants"`
	TotalAttempts     int                 `json:"total_attempts" bson:"total_attempts"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	Version           uint64              `json:"version" bson:"version"`
}

// PrizeInfo is the read-only view of a prize in an activity snapshot.
type PrizeInfo struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	ImageURL          string `json:"image_url,omitempty"`
	Weight            int    `json:"weight"`
	Quantity          int    `json:"quantity"`
	RemainingQuantity int    `json:"remaining_quantity"`
	Distributed       int    `json:"distributed"`
}

// ActivityInfo is a consistent point-in-time view of an activity.
type ActivityInfo struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	CreatorID         string              `json:"creator_id"`
	Status            Status              `json:"status"`
	StartTime         time.Time           `json:"start_time"`
	EndTime           time.Time           `json:"end_time"`
	AllowedGroups     []string            `json:"allowed_groups"`
	TotalParticipants int                 `json:"total_participants"`
	TotalAttempts     int                 `json:"total_attempts"`
	Limits            ParticipationLimits `json:"participation_limits"`
	Probability       ProbabilitySettings `json:"probability_settings"`
	Strategy          SelectionStrategy   `json:"selection_strategy"`
	Prizes            []PrizeInfo         `json:"prizes"`
	CreatedAt         time.Time           `json:"created_at"`
}

// DrawResult stores the outcome of a single participation attempt.
// Prize is a copy taken at draw time and is nil when nothing was won.
type DrawResult struct {
	Won     bool   `json:"won"`
	Prize   *Prize `json:"prize,omitempty"`
	Message string `json:"message"`
}

// WinRecord links a winner to one prize they won.
type WinRecord struct {
	UserID    string `json:"user_id"`
	PrizeName string `json:"prize_name"`
}
