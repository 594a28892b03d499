package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	applog "mozi/internal/logger"
	"mozi/internal/market"
)

// SnapshotStore persists candle history as one JSON document per
// (symbol, timeframe) pair so a restart does not refetch the whole basket.
type SnapshotStore struct {
	db *gorm.DB
}

type candleSnapshotModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;uniqueIndex:idx_symbol_timeframe"`
	Timeframe     string         `gorm:"column:timeframe;uniqueIndex:idx_symbol_timeframe"`
	Candles       datatypes.JSON `gorm:"column:candles"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (candleSnapshotModel) TableName() string { return "candle_snapshots" }

func NewSnapshotStore(path string) (*SnapshotStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("snapshot store: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&candleSnapshotModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts the whole document. Empty series are skipped.
func (s *SnapshotStore) Save(ctx context.Context, snap market.Snapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	now := time.Now().Unix()
	models := make([]candleSnapshotModel, 0, len(snap)*4)
	for sym, byTF := range snap {
		for tf, bars := range byTF {
			if len(bars) == 0 {
				continue
			}
			payload, err := json.Marshal(bars)
			if err != nil {
				return fmt.Errorf("snapshot save %s %s: %w", sym, tf, err)
			}
			models = append(models, candleSnapshotModel{
				Symbol:        string(sym),
				Timeframe:     string(tf),
				Candles:       datatypes.JSON(payload),
				UpdatedAtUnix: now,
			})
		}
	}
	if len(models) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}},
			DoUpdates: clause.AssignmentColumns([]string{"candles", "updated_at"}),
		}).
		Create(&models).Error
}

// Load reads the full document back. Rows that no longer map onto the
// tracked basket or fail to decode are skipped with a warning; the caller
// treats whatever survives as the restored state.
func (s *SnapshotStore) Load(ctx context.Context) (market.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("snapshot store not initialized")
	}
	var models []candleSnapshotModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	snap := make(market.Snapshot)
	for _, m := range models {
		sym := market.Symbol(m.Symbol)
		tf, ok := market.ParseTimeframe(m.Timeframe)
		if !market.IsTracked(sym) || !ok {
			continue
		}
		var bars []market.Candle
		if err := json.Unmarshal(m.Candles, &bars); err != nil {
			applog.Warnf("[store] corrupt snapshot row %s %s, skipped: %v", m.Symbol, m.Timeframe, err)
			continue
		}
		if len(bars) == 0 {
			continue
		}
		if snap[sym] == nil {
			snap[sym] = make(map[market.Timeframe][]market.Candle)
		}
		snap[sym][tf] = bars
	}
	return snap, nil
}
