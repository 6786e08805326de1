package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"prizedraw/internal/models"

	"github.com/google/logger"
)

const lossMessage = "No prize this time, better luck next draw."

// Activity is one drawing campaign together with its inventory and ledger.
//
// mu guards every mutable field. Participate, Start and Cancel hold it for
// their whole transaction; readers take it only to copy a snapshot.
type Activity struct {
	id        string
	name      string
	creatorID string
	createdAt time.Time

	mu                sync.Mutex
	spec              models.ActivitySpec
	participants      map[string]*models.UserParticipation
	joinOrder         []string
	totalParticipants int
	totalAttempts     int
	version           uint64

	selector  Selector
	rng       RandomSource
	now       func() time.Time
	persister *Persister
	observer  Observer
}

// ID returns the activity's opaque identifier.
func (a *Activity) ID() string { return a.id }

// Name returns the activity's human readable name. It never changes.
func (a *Activity) Name() string { return a.name }

// CreatorID returns the identity that created the activity.
func (a *Activity) CreatorID() string { return a.creatorID }

// Status computes the current lifecycle state.
func (a *Activity) Status() models.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked(a.now())
}

// AllowsGroup reports whether the activity may be used from the channel.
func (a *Activity) AllowsGroup(group string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spec.AllowsGroup(group)
}

func (a *Activity) statusLocked(now time.Time) models.Status {
	return models.StatusAt(a.spec.StartTime, a.spec.EndTime, now)
}

// Participate runs one draw attempt for userID.
//
// The whole attempt is atomic with respect to other attempts on the same
// activity. Rejections return an *models.OperationError and leave the ledger
// untouched; a completed attempt is handed to the persister after the lock is
// released, and persistence failures never change the returned result.
func (a *Activity) Participate(userID string) (models.DrawResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		a.observer.DrawRejected(string(models.KindInvalidInput))
		return models.DrawResult{}, models.NewOperationError(models.KindInvalidInput, "user id must not be empty")
	}

	a.mu.Lock()
	result, err := a.participateLocked(userID)
	var rec *models.ActivityRecord
	if err == nil {
		rec = a.recordLocked()
	}
	a.mu.Unlock()

	if err != nil {
		if opErr, ok := err.(*models.OperationError); ok {
			a.observer.DrawRejected(string(opErr.Kind))
		}
		return models.DrawResult{}, err
	}
	a.persister.Save(rec)
	a.observer.DrawCompleted(result.Won)
	return result, nil
}

func (a *Activity) participateLocked(userID string) (models.DrawResult, error) {
	if st := a.statusLocked(a.now()); st != models.StatusActive {
		return models.DrawResult{}, models.NewOperationError(models.KindNotActive, "activity %q is %s, not accepting draws", a.name, st)
	}

	limits := a.spec.Limits
	user, joined := a.participants[userID]
	if !joined {
		if limits.MaxTotalParticipants > 0 && a.totalParticipants+1 > limits.MaxTotalParticipants {
			return models.DrawResult{}, models.NewOperationError(models.KindParticipantLimit,
				"activity %q reached its participant limit of %d", a.name, limits.MaxTotalParticipants)
		}
		user = &models.UserParticipation{UserID: userID, Wins: []string{}}
	}
	if user.Attempts >= limits.MaxAttemptsPerUser {
		return models.DrawResult{}, models.NewOperationError(models.KindAttemptLimit,
			"user %s reached the attempt limit of %d", userID, limits.MaxAttemptsPerUser)
	}
	if limits.MaxWinsPerUser > 0 && len(user.Wins) >= limits.MaxWinsPerUser {
		return models.DrawResult{}, models.NewOperationError(models.KindWinLimit,
			"user %s reached the win limit of %d", userID, limits.MaxWinsPerUser)
	}

	if !joined {
		a.participants[userID] = user
		a.joinOrder = append(a.joinOrder, userID)
		a.totalParticipants++
	}
	user.Attempts++
	a.totalAttempts++

	result, err := a.drawLocked(user)
	if err != nil {
		user.Attempts--
		a.totalAttempts--
		if !joined {
			delete(a.participants, userID)
			a.joinOrder = a.joinOrder[:len(a.joinOrder)-1]
			a.totalParticipants--
		}
		logger.Errorf("Draw for user %s in activity %s rolled back: %v", userID, a.id, err)
		return models.DrawResult{}, &models.OperationError{Kind: models.KindInternal, Message: "draw failed", Err: err}
	}
	a.version++
	return result, nil
}

// drawLocked evaluates the odds and, on a win, picks and hands out a prize.
// Ledger and inventory are only written once a prize has been chosen.
func (a *Activity) drawLocked(user *models.UserParticipation) (result models.DrawResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during draw: %v", r)
		}
	}()

	p := winProbability(a.spec.Probability, a.spec.Prizes, population{
		limits:            a.spec.Limits,
		participants:      a.participants,
		totalParticipants: a.totalParticipants,
		drawing:           user.UserID,
	})
	if a.rng.Float64() >= p {
		return models.DrawResult{Message: lossMessage}, nil
	}

	prize, err := a.selector.Select(eligiblePrizes(a.spec.Prizes, user), a.rng)
	if err != nil {
		return models.DrawResult{}, err
	}
	if prize == nil {
		return models.DrawResult{Message: lossMessage}, nil
	}

	user.Wins = append(user.Wins, prize.Name)
	if !prize.Unlimited() {
		prize.RemainingQuantity--
	}
	won := *prize
	return models.DrawResult{
		Won:     true,
		Prize:   &won,
		Message: fmt.Sprintf("Congratulations! You won %q.", prize.Name),
	}, nil
}

// Start opens a pending activity immediately by moving its start to now.
func (a *Activity) Start() error {
	a.mu.Lock()
	now := models.StoredTime(a.now())
	if st := a.statusLocked(now); st != models.StatusPending {
		a.mu.Unlock()
		return models.NewOperationError(models.KindInvalidTransition, "activity %q is %s and cannot be started", a.name, st)
	}
	a.spec.StartTime = now
	a.version++
	rec := a.recordLocked()
	a.mu.Unlock()

	a.persister.Save(rec)
	logger.Infof("Activity %s (%s) started early", a.id, a.name)
	return nil
}

// Cancel ends the activity now. A pending activity is closed with an empty
// window. Ended activities are terminal.
func (a *Activity) Cancel() error {
	a.mu.Lock()
	now := a.now()
	st := a.statusLocked(now)
	if st == models.StatusEnded {
		a.mu.Unlock()
		return models.NewOperationError(models.KindInvalidTransition, "activity %q has already ended", a.name)
	}
	// The window is inclusive, so end one tick before now to be ended at now.
	end := models.StoredTime(now).Add(-models.TimePrecision)
	if st == models.StatusPending {
		a.spec.StartTime = end
	}
	a.spec.EndTime = end
	a.version++
	rec := a.recordLocked()
	a.mu.Unlock()

	a.persister.Save(rec)
	logger.Infof("Activity %s (%s) cancelled", a.id, a.name)
	return nil
}

// Info returns a consistent snapshot of the activity.
func (a *Activity) Info() models.ActivityInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.infoLocked(a.now())
}

func (a *Activity) infoLocked(now time.Time) models.ActivityInfo {
	prizes := make([]models.PrizeInfo, len(a.spec.Prizes))
	for i := range a.spec.Prizes {
		p := &a.spec.Prizes[i]
		prizes[i] = models.PrizeInfo{
			Name:              p.Name,
			Description:       p.Description,
			ImageURL:          p.ImageURL,
			Weight:            p.Weight,
			Quantity:          p.Quantity,
			RemainingQuantity: p.RemainingQuantity,
			Distributed:       p.Distributed(),
		}
	}
	return models.ActivityInfo{
		ID:                a.id,
		Name:              a.name,
		Description:       a.spec.Description,
		CreatorID:         a.creatorID,
		Status:            a.statusLocked(now),
		StartTime:         a.spec.StartTime,
		EndTime:           a.spec.EndTime,
		AllowedGroups:     append([]string(nil), a.spec.AllowedGroups...),
		TotalParticipants: a.totalParticipants,
		TotalAttempts:     a.totalAttempts,
		Limits:            a.spec.Limits,
		Probability:       a.spec.Probability,
		Strategy:          a.spec.Strategy,
		Prizes:            prizes,
		CreatedAt:         a.createdAt,
	}
}

// Participation returns a copy of the user's ledger entry.
func (a *Activity) Participation(userID string) (models.UserParticipation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.participants[userID]
	if !ok {
		return models.UserParticipation{}, false
	}
	return copyParticipation(p), true
}

// Winners lists every win in join order of the winners.
func (a *Activity) Winners() []models.WinRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	var winners []models.WinRecord
	for _, id := range a.joinOrder {
		for _, prize := range a.participants[id].Wins {
			winners = append(winners, models.WinRecord{UserID: id, PrizeName: prize})
		}
	}
	return winners
}

// Record returns the durable snapshot of the activity.
func (a *Activity) Record() *models.ActivityRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordLocked()
}

func (a *Activity) recordLocked() *models.ActivityRecord {
	spec := a.spec
	spec.AllowedGroups = append([]string{}, a.spec.AllowedGroups...)
	spec.Prizes = append([]models.Prize(nil), a.spec.Prizes...)

	participants := make([]models.UserParticipation, 0, len(a.joinOrder))
	for _, id := range a.joinOrder {
		participants = append(participants, copyParticipation(a.participants[id]))
	}
	return &models.ActivityRecord{
		ID:                a.id,
		CreatorID:         a.creatorID,
		Spec:              spec,
		Participants:      participants,
		TotalParticipants: a.totalParticipants,
		TotalAttempts:     a.totalAttempts,
		CreatedAt:         a.createdAt,
		Version:           a.version,
	}
}

func copyParticipation(p *models.UserParticipation) models.UserParticipation {
	return models.UserParticipation{
		UserID:   p.UserID,
		Attempts: p.Attempts,
		Wins:     append([]string{}, p.Wins...),
	}
}
