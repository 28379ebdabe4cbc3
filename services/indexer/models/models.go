// Package models defines the indexer's persistence schema.
package models

import (
	"time"

	"gorm.io/gorm"
)

// EventRecord is one ledger event flattened for querying. MarketID and BetID
// are denormalised out of the attribute map so consumers can filter without
// JSON extraction.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Type       string `gorm:"size:64;index"`
	MarketID   string `gorm:"size:64;index"`
	BetID      string `gorm:"size:64;index"`
	Attributes string `gorm:"type:text"`
	RecordedAt time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
