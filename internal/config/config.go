package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// LoadConfig loads the configuration and sets default values for development/production
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create a default one
			return createDefaultConfig()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	// Ensure we have sensible defaults in case they are not in the config file
	setDefaults()

	return nil
}

// setDefaults sets default configuration values based on the environment
func setDefaults() {
	env := viper.GetString("ENV")
	if env == "" {
		env = "development"
		viper.Set("ENV", env)
	}

	if env == "development" {
		viper.SetDefault("provider_url", "http://localhost:7070")
		viper.SetDefault("coordinator_url", "http://localhost:7071")
		viper.SetDefault("allowed_origin", "http://localhost:3000")
		viper.SetDefault("wallet_db_path", "./dev_walletd.db")
		viper.SetDefault("log_level", "debug")
	} else if env == "production" {
		viper.SetDefault("provider_url", "https://asp.hashline.exchange")
		viper.SetDefault("coordinator_url", "https://asp.hashline.exchange")
		viper.SetDefault("allowed_origin", "https://app.hashline.exchange")
		viper.SetDefault("wallet_db_path", "/var/lib/walletd/walletd.db")
		viper.SetDefault("log_level", "info")
	}

	// Common defaults for both environments
	viper.SetDefault("network", "mainnet") // or "testnet"
	viper.SetDefault("api_port", 9103)
	viper.SetDefault("use_https", false)
	viper.SetDefault("cert_file", "server.crt")
	viper.SetDefault("key_file", "server.key")
	viper.SetDefault("log_file", "walletd.log")
	viper.SetDefault("session_dir", "./session")
	viper.SetDefault("jwt_keys_dir", "./jwtkeys")
	viper.SetDefault("wallet_api_key", "")
	viper.SetDefault("balance_refresh_interval", "30s")
	viper.SetDefault("tx_poll_interval", "12s")
	viper.SetDefault("health_poll_interval", "60s")
	viper.SetDefault("confirmation_threshold", 1)
	viper.SetDefault("electrum_server", "electrum.blockstream.info:50002")
	viper.SetDefault("electrum_use_ssl", true)
}

// createDefaultConfig creates a new configuration file if it doesn't exist
func createDefaultConfig() error {
	setDefaults()

	err := viper.SafeWriteConfig()
	if err != nil {
		if os.IsExist(err) {
			// If the config already exists, attempt to overwrite it
			err = viper.WriteConfig()
			if err != nil {
				return fmt.Errorf("error writing config file: %w", err)
			}
		} else {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	fmt.Println("Created default configuration file")
	return nil
}
