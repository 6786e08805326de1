package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"prizedraw/internal/models"
	"prizedraw/internal/repositories"

	"github.com/google/logger"
)

const (
	activitiesFile  = "activities.json"
	participantsDir = "participants"
)

// activityEntry is one value of activities.json. The ledger lives in its own
// file under participants/.
type activityEntry struct {
	CreatorID         string              `json:"creator_id"`
	Spec              models.ActivitySpec `json:"data"`
	TotalParticipants int                 `json:"total_participants"`
	TotalAttempts     int                 `json:"total_attempts"`
	CreatedAt         time.Time           `json:"created_at"`
	Version           uint64              `json:"version"`
}

// ActivityRepository stores activities as JSON files in a directory:
// activities.json maps IDs to definitions and participants/<id>.json holds
// each ledger.
type ActivityRepository struct {
	mu  sync.Mutex
	dir string
}

// NewActivityRepository creates the directory layout under dir if needed.
func NewActivityRepository(dir string) (*ActivityRepository, error) {
	if err := os.MkdirAll(filepath.Join(dir, participantsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &ActivityRepository{dir: dir}, nil
}

var _ repositories.ActivityRepository = (*ActivityRepository)(nil)

// Save writes the ledger first and then the definition, each atomically.
func (r *ActivityRepository) Save(ctx context.Context, rec *models.ActivityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	participants := rec.Participants
	if participants == nil {
		participants = []models.UserParticipation{}
	}
	if err := writeJSON(r.participantsPath(rec.ID), participants); err != nil {
		return fmt.Errorf("save participants of %s: %w", rec.ID, err)
	}

	entries, err := r.readEntries()
	if err != nil {
		return err
	}
	entries[rec.ID] = activityEntry{
		CreatorID:         rec.CreatorID,
		Spec:              rec.Spec,
		TotalParticipants: rec.TotalParticipants,
		TotalAttempts:     rec.TotalAttempts,
		CreatedAt:         rec.CreatedAt,
		Version:           rec.Version,
	}
	if err := writeJSON(r.activitiesPath(), entries); err != nil {
		return fmt.Errorf("save activity %s: %w", rec.ID, err)
	}
	return nil
}

// LoadAll reads every activity. An entry whose ledger file is unreadable is
// skipped with a warning.
func (r *ActivityRepository) LoadAll(ctx context.Context) ([]*models.ActivityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.readEntries()
	if err != nil {
		return nil, err
	}
	recs := make([]*models.ActivityRecord, 0, len(entries))
	for id, e := range entries {
		participants, err := r.readParticipants(id)
		if err != nil {
			logger.Warningf("Skipping activity %s: %v", id, err)
			continue
		}
		recs = append(recs, &models.ActivityRecord{
			ID:                id,
			CreatorID:         e.CreatorID,
			Spec:              e.Spec,
			Participants:      participants,
			TotalParticipants: e.TotalParticipants,
			TotalAttempts:     e.TotalAttempts,
			CreatedAt:         e.CreatedAt,
			Version:           e.Version,
		})
	}
	repositories.SortByCreation(recs)
	return recs, nil
}

// Delete removes the definition and the ledger file.
func (r *ActivityRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.readEntries()
	if err != nil {
		return false, err
	}
	_, existed := entries[id]
	if existed {
		delete(entries, id)
		if err := writeJSON(r.activitiesPath(), entries); err != nil {
			return false, fmt.Errorf("delete activity %s: %w", id, err)
		}
	}
	if err := os.Remove(r.participantsPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return existed, fmt.Errorf("delete participants of %s: %w", id, err)
	}
	return existed, nil
}

func (r *ActivityRepository) activitiesPath() string {
	return filepath.Join(r.dir, activitiesFile)
}

func (r *ActivityRepository) participantsPath(id string) string {
	return filepath.Join(r.dir, participantsDir, filepath.Base(id)+".json")
}

func (r *ActivityRepository) readEntries() (map[string]activityEntry, error) {
	entries := make(map[string]activityEntry)
	data, err := os.ReadFile(r.activitiesPath())
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", activitiesFile, err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", activitiesFile, err)
	}
	return entries, nil
}

func (r *ActivityRepository) readParticipants(id string) ([]models.UserParticipation, error) {
	data, err := os.ReadFile(r.participantsPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return []models.UserParticipation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}
	var participants []models.UserParticipation
	if err := json.Unmarshal(data, &participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return participants, nil
}

// writeJSON replaces path atomically through a temporary file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
