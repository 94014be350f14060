package walletstatedb

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global SQLite database instance
var DB *gorm.DB

// InitSQLiteDB initializes the SQLite database
func InitSQLiteDB(dbPath string) error {
	var err error

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := ensureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
	}

	// Configure GORM to be less verbose
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	DB, err = gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}

	// Auto-migrate schemas
	err = DB.AutoMigrate(
		&SQLiteTransaction{},
		&SQLiteExitTransaction{},
		&SQLiteMetadata{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}

	log.Println("SQLite database initialized successfully")
	return nil
}

// ensureDir creates a directory if it doesn't exist
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// SaveTransactionToSQLite inserts or updates a tracked transaction by txid
func SaveTransactionToSQLite(tx *SQLiteTransaction) error {
	var existing SQLiteTransaction
	result := DB.Where("tx_id = ?", tx.TxID).First(&existing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			if err := DB.Create(tx).Error; err != nil {
				return fmt.Errorf("failed to save transaction %s: %v", tx.TxID, err)
			}
			return nil
		}
		return fmt.Errorf("failed to query transaction %s: %v", tx.TxID, result.Error)
	}

	existing.Kind = tx.Kind
	existing.AmountSats = tx.AmountSats
	existing.FeeSats = tx.FeeSats
	existing.FeeRate = tx.FeeRate
	existing.Offchain = tx.Offchain
	existing.Status = tx.Status
	existing.Confirmations = tx.Confirmations
	existing.Address = tx.Address
	existing.RecoveryAttempts = tx.RecoveryAttempts
	existing.ErrorMessage = tx.ErrorMessage
	existing.IsExitTx = tx.IsExitTx
	existing.Timestamp = tx.Timestamp

	if err := DB.Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to update transaction %s: %v", tx.TxID, err)
	}
	return nil
}

// GetTransactionsFromSQLite returns all tracked transactions, newest first
func GetTransactionsFromSQLite() ([]SQLiteTransaction, error) {
	var txs []SQLiteTransaction
	if err := DB.Order("timestamp desc").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %v", err)
	}
	return txs, nil
}

// DeleteTransactionFromSQLite removes a tracked transaction by txid
func DeleteTransactionFromSQLite(txID string) error {
	if err := DB.Where("tx_id = ?", txID).Delete(&SQLiteTransaction{}).Error; err != nil {
		return fmt.Errorf("failed to delete transaction %s: %v", txID, err)
	}
	return nil
}

// SaveExitTransactionToSQLite stores a pre-signed exit transaction
func SaveExitTransactionToSQLite(tx *SQLiteExitTransaction) error {
	var existing SQLiteExitTransaction
	result := DB.Where("tx_id = ?", tx.TxID).First(&existing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			if err := DB.Create(tx).Error; err != nil {
				return fmt.Errorf("failed to save exit transaction %s: %v", tx.TxID, err)
			}
			return nil
		}
		return fmt.Errorf("failed to query exit transaction %s: %v", tx.TxID, result.Error)
	}

	existing.Path = tx.Path
	existing.AmountSats = tx.AmountSats
	existing.Address = tx.Address
	existing.IssuedAt = tx.IssuedAt
	existing.RawHex = tx.RawHex

	if err := DB.Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to update exit transaction %s: %v", tx.TxID, err)
	}
	return nil
}

// GetExitTransactionsFromSQLite returns stored exit transactions for a path, newest first
func GetExitTransactionsFromSQLite(path string) ([]SQLiteExitTransaction, error) {
	var txs []SQLiteExitTransaction
	if err := DB.Where("path = ?", path).Order("issued_at desc").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list exit transactions: %v", err)
	}
	return txs, nil
}

// GetMetadataFromSQLite retrieves a metadata value by key
func GetMetadataFromSQLite(key string) (string, error) {
	var meta SQLiteMetadata
	result := DB.Where("key = ?", key).First(&meta)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get metadata %s: %v", key, result.Error)
	}
	return meta.Value, nil
}

// SetMetadataInSQLite sets a metadata value by key
func SetMetadataInSQLite(key, value string) error {
	var meta SQLiteMetadata
	result := DB.Where("key = ?", key).First(&meta)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			meta = SQLiteMetadata{Key: key, Value: value}
			if err := DB.Create(&meta).Error; err != nil {
				return fmt.Errorf("failed to create metadata %s: %v", key, err)
			}
			return nil
		}
		return fmt.Errorf("failed to query metadata %s: %v", key, result.Error)
	}

	meta.Value = value
	if err := DB.Save(&meta).Error; err != nil {
		return fmt.Errorf("failed to update metadata %s: %v", key, err)
	}
	return nil
}
