package walletstatedb

const (
	ExitPathPreSigned = "presigned"
	ExitPathTimelock  = "timelock"

	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Helper wrapper functions that redirect to SQLite implementations

func InitDB(dbPath string) error {
	return InitSQLiteDB(dbPath)
}

func SaveTransaction(tx *SQLiteTransaction) error {
	return SaveTransactionToSQLite(tx)
}

func GetTransactions() ([]SQLiteTransaction, error) {
	return GetTransactionsFromSQLite()
}

func DeleteTransaction(txID string) error {
	return DeleteTransactionFromSQLite(txID)
}

func SaveExitTransaction(tx *SQLiteExitTransaction) error {
	return SaveExitTransactionToSQLite(tx)
}

func GetExitTransactions(path string) ([]SQLiteExitTransaction, error) {
	return GetExitTransactionsFromSQLite(path)
}

func GetMetadata(key string) (string, error) {
	return GetMetadataFromSQLite(key)
}

func SetMetadata(key, value string) error {
	return SetMetadataInSQLite(key, value)
}
