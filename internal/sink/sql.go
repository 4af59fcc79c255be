package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/oxyio/netmon/internal/stats"
	"gorm.io/gorm"
)

// StatSample is one indexed sample row.
type StatSample struct {
	ID         uint      `gorm:"primaryKey"`
	DeviceID   string    `gorm:"size:64;not null;index:idx_stat_device_time"`
	CapturedAt time.Time `gorm:"not null;index:idx_stat_device_time"`
	Category   string    `gorm:"size:16;not null"`
	Key        string    `gorm:"column:stat_key;size:128;not null"`
	Detail     string    `gorm:"column:stat_detail;size:32;not null"`
	Value      float64   `gorm:"not null"`
}

// TableName places samples in the "stat_samples" table.
func (StatSample) TableName() string {
	return "stat_samples"
}

// SQLIndex writes every sample as a row. It does not publish.
type SQLIndex struct {
	db *gorm.DB
}

// NewSQLIndex migrates the stat_samples table.
func NewSQLIndex(db *gorm.DB) (*SQLIndex, error) {
	if err := db.AutoMigrate(&StatSample{}); err != nil {
		return nil, sinkError(err, "Couldn't migrate the stat_samples table")
	}
	return &SQLIndex{db: db}, nil
}

// Publish is a no-op.
func (s *SQLIndex) Publish(context.Context, string, stats.Category, []stats.Sample) error {
	return nil
}

// Index inserts the samples in one batch.
func (s *SQLIndex) Index(ctx context.Context, deviceID string, at time.Time, category stats.Category, samples []stats.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([]StatSample, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, StatSample{
			DeviceID:   deviceID,
			CapturedAt: at.UTC(),
			Category:   string(category),
			Key:        sample.Key,
			Detail:     sample.Detail,
			Value:      sample.Value,
		})
	}

	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return sinkError(err, fmt.Sprintf("Couldn't index %d %s samples for '%s'", len(rows), category, deviceID))
	}
	return nil
}

// Samples returns the indexed rows of a device, oldest first.
func (s *SQLIndex) Samples(ctx context.Context, deviceID string) ([]StatSample, error) {
	var rows []StatSample
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("captured_at, category, stat_key, stat_detail").
		Find(&rows).Error
	if err != nil {
		return nil, sinkError(err, fmt.Sprintf("Couldn't read samples for '%s'", deviceID))
	}
	return rows, nil
}
