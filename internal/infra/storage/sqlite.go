package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hedge_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists positions, hedge events and settings in SQLite.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path and migrates the schema.
func NewStorage(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; serialize through a single connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.PositionRecord{}, &domain.HedgeEventRecord{}, &domain.SettingRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Position Operations
// ======================================================================================

// GetPosition returns nil, nil when the position does not exist.
func (s *Storage) GetPosition(ctx context.Context, account, symbol string) (*domain.Position, error) {
	var rec domain.PositionRecord
	err := s.db.WithContext(ctx).First(&rec, "account = ? AND symbol = ?", account, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}

	p, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPosition creates or replaces a position.
func (s *Storage) UpsertPosition(ctx context.Context, account string, p domain.Position) error {
	rec, err := toRecord(account, p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// ListPositions returns every position of an account keyed by symbol.
func (s *Storage) ListPositions(ctx context.Context, account string) (map[string]domain.Position, error) {
	var recs []domain.PositionRecord
	if err := s.db.WithContext(ctx).Where("account = ?", account).Find(&recs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]domain.Position, len(recs))
	for _, rec := range recs {
		p, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		result[p.Symbol] = p
	}
	return result, nil
}

// UpdatePosition runs fn on the stored position inside a transaction.
// Nothing is written if fn returns an error.
func (s *Storage) UpdatePosition(ctx context.Context, account, symbol string, fn func(*domain.Position) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.PositionRecord
		err := tx.First(&rec, "account = ? AND symbol = ?", account, symbol).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s/%s: %w", account, symbol, domain.ErrPositionNotFound)
		}
		if err != nil {
			return err
		}

		p, err := fromRecord(rec)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}

		updated, err := toRecord(account, p)
		if err != nil {
			return err
		}
		updated.CreatedAt = rec.CreatedAt
		return tx.Save(&updated).Error
	})
}

// ======================================================================================
// Hedge Event Operations
// ======================================================================================

// AppendEvent stores a hedge event. Events are never updated.
func (s *Storage) AppendEvent(ctx context.Context, ev domain.HedgeEvent) error {
	rec := domain.HedgeEventRecord{
		ID:                ev.ID,
		Account:           ev.Account,
		Symbol:            ev.Symbol,
		Side:              string(ev.Side),
		Size:              ev.Size.String(),
		Venue:             ev.Venue,
		FillPriceEstimate: ev.FillPriceEstimate.String(),
		Status:            string(ev.Status),
		Error:             ev.Error,
		Timestamp:         ev.Timestamp,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// History returns the newest events for a pair, newest first, with ties on
// timestamp broken by insertion order. A non-positive limit returns all events.
func (s *Storage) History(ctx context.Context, account, symbol string, limit int) ([]domain.HedgeEvent, error) {
	q := s.db.WithContext(ctx).
		Where("account = ? AND symbol = ?", account, symbol).
		Order("timestamp DESC").
		Order("rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []domain.HedgeEventRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	events := make([]domain.HedgeEvent, 0, len(recs))
	for _, rec := range recs {
		events = append(events, domain.HedgeEvent{
			ID:                rec.ID,
			Timestamp:         rec.Timestamp,
			Account:           rec.Account,
			Symbol:            rec.Symbol,
			Side:              domain.Side(rec.Side),
			Size:              decimalOrZero(rec.Size),
			Venue:             rec.Venue,
			FillPriceEstimate: decimalOrZero(rec.FillPriceEstimate),
			Status:            domain.HedgeStatus(rec.Status),
			Error:             rec.Error,
		})
	}
	return events, nil
}

// ======================================================================================
// Settings Operations
// ======================================================================================

// SaveSetting stores a key-value setting
func (s *Storage) SaveSetting(ctx context.Context, key, value string) error {
	rec := domain.SettingRecord{
		Key:   key,
		Value: value,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// LoadSettings loads all settings as a map
func (s *Storage) LoadSettings(ctx context.Context) (map[string]string, error) {
	var recs []domain.SettingRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string, len(recs))
	for _, rec := range recs {
		result[rec.Key] = rec.Value
	}
	return result, nil
}

// ======================================================================================
// Conversion
// ======================================================================================

func toRecord(account string, p domain.Position) (domain.PositionRecord, error) {
	rec := domain.PositionRecord{
		Account:    account,
		Symbol:     p.Symbol,
		Kind:       p.Kind.String(),
		Size:       p.Size,
		EntryPrice: p.EntryPrice,
		HedgeSize:  p.HedgeSize,
	}

	if p.Option != nil {
		b, err := json.Marshal(p.Option)
		if err != nil {
			return rec, fmt.Errorf("encode option params: %w", err)
		}
		rec.OptionJSON = string(b)
	}
	if len(p.Legs) > 0 {
		b, err := json.Marshal(p.Legs)
		if err != nil {
			return rec, fmt.Errorf("encode legs: %w", err)
		}
		rec.LegsJSON = string(b)
	}
	return rec, nil
}

func fromRecord(rec domain.PositionRecord) (domain.Position, error) {
	kind, err := domain.ParseInstrumentKind(rec.Kind)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position %s: %w", rec.Symbol, err)
	}

	p := domain.Position{
		Symbol:     rec.Symbol,
		Kind:       kind,
		Size:       rec.Size,
		EntryPrice: rec.EntryPrice,
		HedgeSize:  rec.HedgeSize,
	}
	if rec.OptionJSON != "" {
		var opt domain.OptionParams
		if err := json.Unmarshal([]byte(rec.OptionJSON), &opt); err != nil {
			return p, fmt.Errorf("decode option params for %s: %w", rec.Symbol, err)
		}
		p.Option = &opt
	}
	if rec.LegsJSON != "" {
		if err := json.Unmarshal([]byte(rec.LegsJSON), &p.Legs); err != nil {
			return p, fmt.Errorf("decode legs for %s: %w", rec.Symbol, err)
		}
	}
	return p, nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
