package domain

import (
	"time"
)

// PositionRecord is the persisted form of a Position
type PositionRecord struct {
	Account    string    `gorm:"primaryKey" json:"account"`
	Symbol     string    `gorm:"primaryKey" json:"symbol"`
	Kind       string    `json:"kind"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	HedgeSize  float64   `json:"hedge_size"`
	OptionJSON string    `json:"option_json"` // OptionParams, empty for linear kinds
	LegsJSON   string    `json:"legs_json"`   // Composite legs, empty otherwise
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HedgeEventRecord is the persisted form of a HedgeEvent (append-only)
type HedgeEventRecord struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	Account           string    `gorm:"index:idx_event_pair" json:"account"`
	Symbol            string    `gorm:"index:idx_event_pair" json:"symbol"`
	Side              string    `json:"side"`
	Size              string    `json:"size"`
	Venue             string    `json:"venue"`
	FillPriceEstimate string    `json:"fill_price_estimate"`
	Status            string    `gorm:"index" json:"status"`
	Error             string    `json:"error"`
	Timestamp         time.Time `gorm:"index" json:"timestamp"`
}

// SettingRecord is a persisted key-value setting, such as monitor overrides
type SettingRecord struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
