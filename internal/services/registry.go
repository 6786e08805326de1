package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"prizedraw/internal/models"
	"prizedraw/internal/repositories"

	"github.com/google/logger"
	"github.com/google/uuid"
)

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	Status  models.Status
	Creator string
	Group   string
}

// Option configures a Registry.
type Option func(*Registry)

// WithRepository enables durable storage. Without it the registry is purely
// in memory.
func WithRepository(repo repositories.ActivityRepository) Option {
	return func(r *Registry) { r.repo = repo }
}

// WithObserver registers an observer for engine events.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithRandomSource replaces the per-activity random source factory.
func WithRandomSource(newSource func() RandomSource) Option {
	return func(r *Registry) { r.newRNG = newSource }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the activity ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// Registry owns every activity and indexes it by ID.
//
// mu guards the index only. It is never held while an activity lock is
// taken, so callers may freely mix registry and activity calls.
type Registry struct {
	mu         sync.RWMutex
	activities map[string]*Activity
	order      []*Activity

	repo      repositories.ActivityRepository
	persister *Persister
	observer  Observer
	newRNG    func() RandomSource
	now       func() time.Time
	newID     func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		activities: make(map[string]*Activity),
		observer:   nopObserver{},
		newRNG:     newRandomSource,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.repo != nil {
		r.persister = NewPersister(r.repo, r.observer)
	}
	return r
}

// CreateFromJSON parses a specification payload and creates the activity.
func (r *Registry) CreateFromJSON(payload []byte, creatorID string) (*Activity, error) {
	spec, err := models.ParseActivitySpec(payload)
	if err != nil {
		return nil, err
	}
	return r.Create(spec, creatorID)
}

// Create registers a new activity built from spec.
func (r *Registry) Create(spec models.ActivitySpec, creatorID string) (*Activity, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, models.NewOperationError(models.KindInvalidInput, "creator id must not be empty")
	}
	spec.Prizes = append([]models.Prize(nil), spec.Prizes...)
	spec.AllowedGroups = append([]string(nil), spec.AllowedGroups...)
	spec.StartTime, spec.EndTime = models.StoredTime(spec.StartTime), models.StoredTime(spec.EndTime)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	selector, err := NewSelector(spec.Strategy)
	if err != nil {
		return nil, err
	}

	a := r.newActivity(r.newID(), creatorID, models.StoredTime(r.now()), spec, selector)

	r.mu.Lock()
	if existing := r.findByNameLocked(spec.Name); len(existing) > 0 {
		r.mu.Unlock()
		return nil, models.NewOperationError(models.KindDuplicateName, "an activity named %q already exists", existing[0].Name())
	}
	if _, taken := r.activities[a.id]; taken {
		r.mu.Unlock()
		return nil, &models.OperationError{Kind: models.KindInternal, Message: "activity id collision", Err: fmt.Errorf("id %s already registered", a.id)}
	}
	r.activities[a.id] = a
	r.order = append(r.order, a)
	r.mu.Unlock()

	r.persister.Save(a.Record())
	logger.Infof("Created activity %s (%s) for creator %s", a.id, a.name, creatorID)
	return a, nil
}

func (r *Registry) newActivity(id, creatorID string, createdAt time.Time, spec models.ActivitySpec, selector Selector) *Activity {
	return &Activity{
		id:           id,
		name:         spec.Name,
		creatorID:    creatorID,
		createdAt:    createdAt,
		spec:         spec,
		participants: make(map[string]*models.UserParticipation),
		selector:     selector,
		rng:          r.newRNG(),
		now:          r.now,
		persister:    r.persister,
		observer:     r.observer,
	}
}

// Get returns the activity with the given ID.
func (r *Registry) Get(id string) (*Activity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.activities[id]
	return a, ok
}

// GetByName returns the first activity registered under name.
func (r *Registry) GetByName(name string) (*Activity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := r.findByNameLocked(name)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// FindByName returns every activity registered under name, in registration
// order. Names compare case-insensitively.
func (r *Registry) FindByName(name string) []*Activity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findByNameLocked(name)
}

func (r *Registry) findByNameLocked(name string) []*Activity {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var matches []*Activity
	for _, a := range r.order {
		if strings.EqualFold(a.name, name) {
			matches = append(matches, a)
		}
	}
	return matches
}

// Resolve looks ref up as an ID first and as a name second.
func (r *Registry) Resolve(ref string) (*Activity, bool) {
	ref = strings.TrimSpace(ref)
	if a, ok := r.Get(ref); ok {
		return a, true
	}
	return r.GetByName(ref)
}

// List returns snapshots of the matching activities: active first, then
// pending, then ended. Active and pending activities are ordered by most
// recent start, ended ones by most recent end.
func (r *Registry) List(filter ListFilter) []models.ActivityInfo {
	r.mu.RLock()
	all := append([]*Activity(nil), r.order...)
	r.mu.RUnlock()

	infos := make([]models.ActivityInfo, 0, len(all))
	for _, a := range all {
		if filter.Creator != "" && a.CreatorID() != filter.Creator {
			continue
		}
		if filter.Group != "" && !a.AllowsGroup(filter.Group) {
			continue
		}
		info := a.Info()
		if filter.Status != "" && info.Status != filter.Status {
			continue
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		pi, pj := infos[i].Status.Priority(), infos[j].Status.Priority()
		if pi != pj {
			return pi < pj
		}
		if infos[i].Status == models.StatusEnded {
			return infos[i].EndTime.After(infos[j].EndTime)
		}
		return infos[i].StartTime.After(infos[j].StartTime)
	})
	return infos
}

// Delete removes the activity and its stored snapshot. It reports whether
// the activity existed; deleting an unknown ID is not an error.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	a, ok := r.activities[id]
	if ok {
		delete(r.activities, id)
		for i, o := range r.order {
			if o == a {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.persister.Delete(id)
	logger.Infof("Deleted activity %s (%s)", id, a.name)
	return true
}

// Load restores every stored activity. Records already registered are
// skipped. It returns the number of activities restored.
func (r *Registry) Load(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	recs, err := r.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load activities: %w", err)
	}
	repositories.SortByCreation(recs)

	restored := 0
	for _, rec := range recs {
		a, err := r.restore(rec)
		if err != nil {
			logger.Warningf("Skipping stored activity %s: %v", rec.ID, err)
			continue
		}
		r.mu.Lock()
		if _, exists := r.activities[a.id]; exists {
			r.mu.Unlock()
			continue
		}
		r.activities[a.id] = a
		r.order = append(r.order, a)
		r.mu.Unlock()
		restored++
	}
	logger.Infof("Restored %d of %d stored activities", restored, len(recs))
	return restored, nil
}

func (r *Registry) restore(rec *models.ActivityRecord) (*Activity, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("record has no id")
	}
	selector, err := NewSelector(rec.Spec.Strategy)
	if err != nil {
		return nil, err
	}
	spec := rec.Spec
	spec.Prizes = append([]models.Prize(nil), rec.Spec.Prizes...)
	if spec.Strategy == "" {
		spec.Strategy = models.SelectionWeighted
	}

	a := r.newActivity(rec.ID, rec.CreatorID, rec.CreatedAt, spec, selector)
	a.version = rec.Version
	for i := range rec.Participants {
		p := copyParticipation(&rec.Participants[i])
		if _, dup := a.participants[p.UserID]; dup {
			return nil, fmt.Errorf("user %s appears twice in the ledger", p.UserID)
		}
		a.participants[p.UserID] = &p
		a.joinOrder = append(a.joinOrder, p.UserID)
		a.totalAttempts += p.Attempts
	}
	a.totalParticipants = len(a.joinOrder)
	if rec.TotalParticipants != a.totalParticipants || rec.TotalAttempts != a.totalAttempts {
		logger.Warningf("Activity %s counters disagree with its ledger, recomputed %d participants and %d attempts",
			rec.ID, a.totalParticipants, a.totalAttempts)
	}
	return a, nil
}

// FlushAll queues a fresh snapshot of every activity and waits until the
// queue is drained.
func (r *Registry) FlushAll(ctx context.Context) error {
	if r.persister == nil {
		return nil
	}
	r.mu.RLock()
	all := append([]*Activity(nil), r.order...)
	r.mu.RUnlock()

	for _, a := range all {
		r.persister.Save(a.Record())
	}
	return r.persister.Flush(ctx)
}

// PurgeEnded deletes activities that ended more than retention ago. A zero
// retention disables purging.
func (r *Registry) PurgeEnded(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := r.now().Add(-retention)

	r.mu.RLock()
	all := append([]*Activity(nil), r.order...)
	r.mu.RUnlock()

	purged := 0
	for _, a := range all {
		info := a.Info()
		if info.Status != models.StatusEnded || !info.EndTime.Before(cutoff) {
			continue
		}
		if r.Delete(a.id) {
			purged++
		}
	}
	if purged > 0 {
		logger.Infof("Purged %d activities ended before %s", purged, cutoff.Format(time.RFC3339))
	}
	return purged
}

// Len returns the number of registered activities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activities)
}

// Close drains pending persistence work.
func (r *Registry) Close(ctx context.Context) error {
	return r.persister.Close(ctx)
}
