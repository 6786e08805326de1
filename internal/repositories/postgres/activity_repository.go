package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prizedraw/internal/models"
	"prizedraw/internal/repositories"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// activityRow is the table layout. The full record is kept as JSON in
// Payload; the other columns exist for ordering and inspection.
type activityRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"index;size:255"`
	CreatorID string `gorm:"index;size:255"`
	Version   uint64
	Payload   []byte `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (activityRow) TableName() string { return "activity_records" }

// Open connects to PostgreSQL and migrates the activity table.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&activityRow{}); err != nil {
		return nil, fmt.Errorf("migrate activity table: %w", err)
	}
	return db, nil
}

// ActivityRepository implements repositories.ActivityRepository on gorm.
type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

var _ repositories.ActivityRepository = (*ActivityRepository)(nil)

// Save upserts the record. A row already holding a newer version is left
// alone.
func (r *ActivityRepository) Save(ctx context.Context, rec *models.ActivityRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode activity %s: %w", rec.ID, err)
	}
	row := activityRow{
		ID:        rec.ID,
		Name:      rec.Spec.Name,
		CreatorID: rec.CreatorID,
		Version:   rec.Version,
		Payload:   payload,
		CreatedAt: rec.CreatedAt,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "creator_id", "version", "payload", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "activity_records.version <= excluded.version"},
		}},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save activity %s: %w", rec.ID, err)
	}
	return nil
}

// LoadAll returns every record ordered by creation time.
func (r *ActivityRepository) LoadAll(ctx context.Context) ([]*models.ActivityRecord, error) {
	var rows []activityRow
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	recs := make([]*models.ActivityRecord, 0, len(rows))
	for _, row := range rows {
		var rec models.ActivityRecord
		if err := json.Unmarshal(row.Payload, &rec); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", row.ID, err)
		}
		rec.ID = row.ID
		recs = append(recs, &rec)
	}
	return recs, nil
}

// Delete removes the row.
func (r *ActivityRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&activityRow{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("delete activity %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
