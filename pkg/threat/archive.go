package threat

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// EventRecord is the durable form of a security event in the archive
// database. The in-memory log stays authoritative for detection and
// metrics; the archive only preserves history past FIFO eviction.
type EventRecord struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"uniqueIndex"`
	Timestamp time.Time `gorm:"index"`
	TenantID  string    `gorm:"index"`
	UserID    string
	DeviceID  string
	EventType string `gorm:"index"`
	Action    string
	Details   string `gorm:"type:text"`
	RiskScore int
	IPAddress string `gorm:"index"`
	UserAgent string
	Location  string
	CreatedAt time.Time
}

// ArchiveSink persists every streamed event to the archive database.
type ArchiveSink struct {
	db *gorm.DB
}

// NewArchiveSink constructs an archive sink and migrates its schema.
func NewArchiveSink(db *gorm.DB) (*ArchiveSink, error) {
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, err
	}
	return &ArchiveSink{db: db}, nil
}

func (s *ArchiveSink) Name() string { return "archive" }

// Stream writes one event. Duplicate event IDs are rejected by the unique
// index and surface as errors the monitor swallows.
func (s *ArchiveSink) Stream(ctx context.Context, e SecurityEvent) error {
	details := ""
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err == nil {
			details = string(raw)
		}
	}

	record := EventRecord{
		EventID:   e.ID,
		Timestamp: e.Timestamp,
		TenantID:  e.TenantID,
		UserID:    e.UserID,
		DeviceID:  e.DeviceID,
		EventType: string(e.Type),
		Action:    e.Action,
		Details:   details,
		RiskScore: e.RiskScore,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		Location:  e.Location,
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// Recent returns the most recent limit archived events, newest first.
func (s *ArchiveSink) Recent(ctx context.Context, limit int) ([]EventRecord, error) {
	var records []EventRecord
	err := s.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&records).Error
	return records, err
}
