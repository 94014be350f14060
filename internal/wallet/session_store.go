package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const sessionFileName = "session.env"

// SessionStore persists the "previously connected" flag and the identity of
// the last connected wallet across process restarts. It is the only durable
// cross-session state the core keeps outside the transaction cache.
type SessionStore struct {
	dir string
}

func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

// Save writes the session record
func (st *SessionStore) Save(connected bool, walletType, walletAddress string) error {
	if err := os.MkdirAll(st.dir, os.ModePerm); err != nil {
		return fmt.Errorf("error creating session directory: %v", err)
	}

	envFile := filepath.Join(st.dir, sessionFileName)
	err := godotenv.Write(map[string]string{
		"WALLET_CONNECTED": fmt.Sprintf("%t", connected),
		"WALLET_TYPE":      walletType,
		"WALLET_ADDRESS":   walletAddress,
	}, envFile)
	if err != nil {
		return fmt.Errorf("error saving session file: %v", err)
	}
	return nil
}

// Load reads the session record. A missing file is not an error; it reads
// as never-connected.
func (st *SessionStore) Load() (connected bool, walletType, walletAddress string, err error) {
	envFile := filepath.Join(st.dir, sessionFileName)
	if _, statErr := os.Stat(envFile); os.IsNotExist(statErr) {
		return false, "", "", nil
	}

	values, err := godotenv.Read(envFile)
	if err != nil {
		return false, "", "", fmt.Errorf("error loading session file: %v", err)
	}

	return values["WALLET_CONNECTED"] == "true", values["WALLET_TYPE"], values["WALLET_ADDRESS"], nil
}

// Clear resets the persisted flag while keeping the wallet identity
func (st *SessionStore) Clear(walletType, walletAddress string) error {
	return st.Save(false, walletType, walletAddress)
}
