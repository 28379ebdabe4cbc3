// Package indexer tails the node's event bus into a relational store so
// clients can query market history without replaying the ledger.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"betpool/core/events"
	"betpool/core/types"
	"betpool/services/indexer/models"
)

// Indexer persists ledger events as they are emitted.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// Open connects to the store named by dsn and applies migrations. A
// postgres:// URL selects the Postgres driver; anything else is treated as a
// sqlite path or DSN.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	dialector := sqlite.Open(trimmed)
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// New wraps an opened database handle.
func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		db:     db,
		logger: logger.With(slog.String("component", "indexer")),
		nowFn:  time.Now,
	}
}

// SetNowFunc overrides the record timestamp source, for tests.
func (ix *Indexer) SetNowFunc(now func() time.Time) {
	if now != nil {
		ix.nowFn = now
	}
}

// Run consumes the bus until ctx is cancelled. Persistence failures are
// logged and skipped; the bus does not replay, so a failed insert is a gap
// the operator has to backfill.
func (ix *Indexer) Run(ctx context.Context, bus *events.Bus) error {
	if ix == nil || ix.db == nil {
		return fmt.Errorf("indexer: database not configured")
	}
	if bus == nil {
		return fmt.Errorf("indexer: event bus required")
	}
	updates, cancel := bus.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := ix.Record(evt); err != nil {
				ix.logger.Error("failed to index event",
					slog.String("type", evt.EventType()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Record persists a single event.
func (ix *Indexer) Record(evt events.Event) error {
	if ix == nil || ix.db == nil {
		return fmt.Errorf("indexer: database not configured")
	}
	if evt == nil {
		return nil
	}
	record := models.EventRecord{
		Type:       evt.EventType(),
		RecordedAt: ix.nowFn().UTC(),
	}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		payload := carrier.Event()
		if payload != nil {
			record.MarketID = payload.Attributes["marketId"]
			record.BetID = payload.Attributes["betId"]
			encoded, err := json.Marshal(payload.Attributes)
			if err != nil {
				return fmt.Errorf("indexer: encode attributes: %w", err)
			}
			record.Attributes = string(encoded)
		}
	}
	if err := ix.db.Create(&record).Error; err != nil {
		return fmt.Errorf("indexer: insert event: %w", err)
	}
	return nil
}

// MarketHistory returns the events recorded for a market, oldest first.
func (ix *Indexer) MarketHistory(marketID string, limit int) ([]models.EventRecord, error) {
	var records []models.EventRecord
	query := ix.db.Where("market_id = ?", strings.ToLower(strings.TrimSpace(marketID))).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("indexer: query market history: %w", err)
	}
	return records, nil
}

// BetHistory returns the events recorded for a single bet, oldest first.
func (ix *Indexer) BetHistory(betID string, limit int) ([]models.EventRecord, error) {
	var records []models.EventRecord
	query := ix.db.Where("bet_id = ?", strings.ToLower(strings.TrimSpace(betID))).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("indexer: query bet history: %w", err)
	}
	return records, nil
}

// Recent returns the newest events across all markets, newest first.
func (ix *Indexer) Recent(limit int) ([]models.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.EventRecord
	if err := ix.db.Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("indexer: query recent events: %w", err)
	}
	return records, nil
}

// CountByType reports how many events of each type have been indexed.
func (ix *Indexer) CountByType() (map[string]int64, error) {
	type row struct {
		Type  string
		Total int64
	}
	var rows []row
	if err := ix.db.Model(&models.EventRecord{}).
		Select("type, count(*) as total").
		Group("type").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("indexer: count events: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Type] = r.Total
	}
	return counts, nil
}
