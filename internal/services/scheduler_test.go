package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"prizedraw/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenance(t *testing.T) {
	t.Run("Test flush job retries failed snapshots", func(t *testing.T) {
		repo := newMemRepository()
		repo.failing = true
		reg := NewRegistry(WithClock(newTestClock(epoch).Now), WithRepository(repo))
		a := mustCreate(t, reg, testSpec("retry", models.ParticipationLimits{MaxAttemptsPerUser: 1}, 0, prize("Pen", 1, 1, 1)))
		require.NoError(t, reg.FlushAll(context.Background()))
		_, stored := repo.get(a.ID())
		require.False(t, stored)

		repo.mu.Lock()
		repo.failing = false
		repo.mu.Unlock()

		m, err := StartMaintenance(reg, 20*time.Millisecond, 0)
		require.NoError(t, err)
		defer m.Stop()

		assert.Eventually(t, func() bool {
			_, ok := repo.get(a.ID())
			return ok
		}, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, reg.Close(context.Background()))
	})

	t.Run("Test extra jobs run on the scheduler", func(t *testing.T) {
		reg := NewRegistry()
		m, err := StartMaintenance(reg, 0, 0)
		require.NoError(t, err)

		var runs atomic.Int32
		require.NoError(t, m.Every(10*time.Millisecond, func() { runs.Add(1) }))
		assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
		assert.NoError(t, m.Stop())
	})

	t.Run("Test nil maintenance stops cleanly", func(t *testing.T) {
		var m *Maintenance
		assert.NoError(t, m.Stop())
	})
}
