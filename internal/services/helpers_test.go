package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prizedraw/internal/models"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// scriptedRandom returns queued values, then repeats the last one.
type scriptedRandom struct {
	floats []float64
	ints   []int
}

func (s *scriptedRandom) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	if len(s.floats) > 1 {
		s.floats = s.floats[1:]
	}
	return v
}

func (s *scriptedRandom) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	if len(s.ints) > 1 {
		s.ints = s.ints[1:]
	}
	return min(v, n-1)
}

type panickingRandom struct{}

func (panickingRandom) Float64() float64 { return 0 }
func (panickingRandom) IntN(int) int     { panic("entropy exhausted") }

// memRepository is an in-memory repositories.ActivityRepository.
type memRepository struct {
	mu      sync.Mutex
	recs    map[string]*models.ActivityRecord
	saves   int
	failing bool
}

func newMemRepository() *memRepository {
	return &memRepository{recs: make(map[string]*models.ActivityRecord)}
}

func (m *memRepository) Save(_ context.Context, rec *models.ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.saves++
	m.recs[rec.ID] = rec
	return nil
}

func (m *memRepository) LoadAll(context.Context) ([]*models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ActivityRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRepository) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.recs[id]
	delete(m.recs, id)
	return ok, nil
}

func (m *memRepository) get(id string) (*models.ActivityRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok
}

type countingObserver struct {
	mu         sync.Mutex
	wins       int
	losses     int
	rejections map[string]int
	failures   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{rejections: make(map[string]int)}
}

func (o *countingObserver) DrawCompleted(won bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if won {
		o.wins++
	} else {
		o.losses++
	}
}

func (o *countingObserver) DrawRejected(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejections[reason]++
}

func (o *countingObserver) PersistFailed(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
}

// testSpec is active for one day around epoch.
func testSpec(name string, limits models.ParticipationLimits, p float64, prizes ...models.Prize) models.ActivitySpec {
	return models.ActivitySpec{
		Name:        name,
		Description: "test activity",
		StartTime:   epoch.Add(-12 * time.Hour),
		EndTime:     epoch.Add(12 * time.Hour),
		Limits:      limits,
		Probability: models.ProbabilitySettings{Mode: models.ProbabilityFixed, BaseProbability: p},
		Prizes:      prizes,
	}
}

func prize(name string, weight, quantity, maxWin int) models.Prize {
	return models.Prize{Name: name, Description: name, Weight: weight, Quantity: quantity, MaxWinPerUser: maxWin}
}

func mustCreate(t *testing.T, reg *Registry, spec models.ActivitySpec) *Activity {
	t.Helper()
	a, err := reg.Create(spec, "creator-1")
	require.NoError(t, err)
	return a
}
