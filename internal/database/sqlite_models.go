package walletstatedb

import (
	"time"

	"gorm.io/gorm"
)

// SQLiteTransaction represents a tracked wallet transaction
type SQLiteTransaction struct {
	gorm.Model
	TxID             string `gorm:"uniqueIndex"`
	Kind             string `gorm:"index"` // send, receive, contract, emergency_exit
	AmountSats       uint64
	FeeSats          uint64
	FeeRate          uint64
	Offchain         bool
	Status           string `gorm:"index"` // pending, confirmed, failed
	Confirmations    uint32
	Address          string `gorm:"index"`
	RecoveryAttempts uint8
	ErrorMessage     string
	IsExitTx         bool
	Timestamp        time.Time `gorm:"index"`
}

// SQLiteExitTransaction stores a pre-signed exit transaction for offline use
type SQLiteExitTransaction struct {
	gorm.Model
	TxID       string `gorm:"uniqueIndex"`
	Path       string `gorm:"index"` // presigned or timelock
	AmountSats uint64
	Address    string
	IssuedAt   time.Time
	RawHex     []byte
}

// SQLiteMetadata stores key-value metadata
type SQLiteMetadata struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex"`
	Value string
}
