package services

import (
	"context"
	"sync"
	"time"

	"prizedraw/internal/models"
	"prizedraw/internal/repositories"

	"github.com/google/logger"
)

const (
	persistQueueSize = 256
	persistTimeout   = 10 * time.Second
)

type persistJob struct {
	rec      *models.ActivityRecord
	deleteID string
	barrier  chan struct{}
}

// Persister writes activity snapshots to a repository on a single background
// worker, so draws never wait on storage. Jobs are applied in order; a
// snapshot older than one already written is skipped and nothing is written
// for an ID after it was deleted.
//
// A nil *Persister is valid and does nothing.
type Persister struct {
	repo     repositories.ActivityRepository
	observer Observer
	jobs     chan persistJob
	quit     chan struct{}
	stopped  chan struct{}
	closing  chan struct{}
	once     sync.Once

	// owned by the worker goroutine
	written map[string]uint64
	deleted map[string]bool
}

// NewPersister starts a worker writing to repo.
func NewPersister(repo repositories.ActivityRepository, observer Observer) *Persister {
	if observer == nil {
		observer = nopObserver{}
	}
	p := &Persister{
		repo:     repo,
		observer: observer,
		jobs:     make(chan persistJob, persistQueueSize),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		closing:  make(chan struct{}),
		written:  make(map[string]uint64),
		deleted:  make(map[string]bool),
	}
	go p.run()
	return p
}

// Save queues a snapshot. It returns once the snapshot is queued.
func (p *Persister) Save(rec *models.ActivityRecord) {
	if p == nil || rec == nil {
		return
	}
	p.enqueue(persistJob{rec: rec})
}

// Delete queues the removal of a stored record.
func (p *Persister) Delete(id string) {
	if p == nil {
		return
	}
	p.enqueue(persistJob{deleteID: id})
}

func (p *Persister) enqueue(job persistJob) {
	select {
	case <-p.closing:
		logger.Warningf("Persister closed, dropping job for %s", job.id())
		return
	default:
	}
	select {
	case p.jobs <- job:
	case <-p.quit:
		logger.Warningf("Persister stopped, dropping job for %s", job.id())
	}
}

// Flush blocks until every job queued before the call has been applied.
func (p *Persister) Flush(ctx context.Context) error {
	if p == nil {
		return nil
	}
	barrier := make(chan struct{})
	select {
	case p.jobs <- persistJob{barrier: barrier}:
	case <-p.quit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, drains the queue and stops the worker.
func (p *Persister) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var err error
	p.once.Do(func() {
		close(p.closing)
		err = p.Flush(ctx)
		close(p.quit)
		<-p.stopped
	})
	return err
}

func (p *Persister) run() {
	defer close(p.stopped)
	for {
		select {
		case job := <-p.jobs:
			p.apply(job)
		case <-p.quit:
			for {
				select {
				case job := <-p.jobs:
					p.apply(job)
				default:
					return
				}
			}
		}
	}
}

func (p *Persister) apply(job persistJob) {
	if job.barrier != nil {
		close(job.barrier)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if job.deleteID != "" {
		p.deleted[job.deleteID] = true
		delete(p.written, job.deleteID)
		if _, err := p.repo.Delete(ctx, job.deleteID); err != nil {
			logger.Errorf("Failed to delete activity %s from store: %v", job.deleteID, err)
			p.observer.PersistFailed("delete")
		}
		return
	}

	rec := job.rec
	if p.deleted[rec.ID] {
		return
	}
	if v, ok := p.written[rec.ID]; ok && rec.Version <= v {
		return
	}
	if err := p.repo.Save(ctx, rec); err != nil {
		logger.Errorf("Failed to save activity %s (version %d): %v", rec.ID, rec.Version, err)
		p.observer.PersistFailed("save")
		return
	}
	p.written[rec.ID] = rec.Version
}

func (j persistJob) id() string {
	if j.rec != nil {
		return j.rec.ID
	}
	return j.deleteID
}
