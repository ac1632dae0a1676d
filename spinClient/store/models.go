// Package store contains GORM-backed SQLite models persisted by the relay.
//
// Database Structure (database file: spins.db):
//
//	databases/
//	└── spins.db
//	    ├── preferences
//	    └── spin_records
package store

import (
	"gorm.io/gorm"
)

// Spin record statuses.
const (
	SpinStatusSettled = "settled"
	SpinStatusFailed  = "failed"
)

// Preference is a single persisted user preference, such as the last selected network.
type Preference struct {
	gorm.Model
	Name  string `gorm:"uniqueIndex;not null"`
	Value string
}

// SpinRecord is one finished spin request, whether its result was delivered or discarded.
type SpinRecord struct {
	gorm.Model
	RequestID uint64 `gorm:"index"`
	Network   string `gorm:"index;not null"`
	ChainID   uint64
	Account   string `gorm:"index"` // lowercase primary account address
	Bet       string // decimal fee-token units, e.g. "0.25"
	Lines     uint8
	Strategy  string // "sponsored" or "fee_token"; empty when nothing was submitted
	OpHash    string // operation hash returned by the relay
	TxHash    string // transaction that emitted the SpinResult
	Path      string // confirmation path: live, fallback or timeout
	Status    string `gorm:"index"` // "settled" or "failed"
	TotWin    string
	Won       bool
	Delivered bool   // false when superseded by a newer request
	ErrorMsg  string `gorm:"type:text"`
}
