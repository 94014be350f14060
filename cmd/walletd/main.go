package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hashline-labs/walletd/internal/api"
	"github.com/hashline-labs/walletd/internal/config"
	walletstatedb "github.com/hashline-labs/walletd/internal/database"
	"github.com/hashline-labs/walletd/internal/ipc"
	"github.com/hashline-labs/walletd/internal/logger"
	"github.com/hashline-labs/walletd/internal/provider"
	"github.com/hashline-labs/walletd/internal/wallet"
	"github.com/hashline-labs/walletd/lib/broadcast"
	"github.com/hashline-labs/walletd/lib/recovery"
)

var rootCmd = &cobra.Command{
	Use:   "walletd",
	Short: "Layer-2 wallet session daemon",
	Long:  `walletd maintains the wallet provider session for the trading dashboard and keeps the emergency exit paths usable when the provider is not.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(hashKeyCmd)
}

func initConfig() {
	err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if err := logger.Init(viper.GetString("log_file")); err != nil {
		log.Printf("Error initializing log file: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet session daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Cleanup()

		if err := walletstatedb.InitDB(viper.GetString("wallet_db_path")); err != nil {
			return fmt.Errorf("error initializing database: %v", err)
		}

		if err := api.EnsureJWTKey(); err != nil {
			return fmt.Errorf("error initializing JWT key: %v", err)
		}

		providerClient := provider.NewHTTPClient(viper.GetString("provider_url"))
		broadcaster := broadcast.New(viper.GetString("network"))
		store := wallet.NewSessionStore(viper.GetString("session_dir"))

		session := wallet.NewSession(wallet.Config{
			Provider:               providerClient,
			Broadcaster:            broadcaster,
			Store:                  store,
			BalanceRefreshInterval: viper.GetDuration("balance_refresh_interval"),
			TxPollInterval:         viper.GetDuration("tx_poll_interval"),
			ConfirmationThreshold:  uint32(viper.GetInt("confirmation_threshold")),
		})
		session.Start()
		defer session.Close()

		health := provider.NewHealthWatcher(viper.GetString("coordinator_url"), viper.GetDuration("health_poll_interval"))
		health.Start()
		defer health.Stop()

		ipcServer, err := ipc.NewServer(ipcHandler(session, health))
		if err != nil {
			log.Printf("Error starting control socket: %v", err)
		} else {
			defer ipcServer.Close()
		}

		server := api.NewAPI(session, health, viper.GetString("network"), true)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.StartServer()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			log.Printf("Received %v, shutting down", sig)
			return nil
		}
	},
}

func ipcHandler(session *wallet.Session, health *provider.HealthWatcher) ipc.Handler {
	return func(cmd ipc.Command) (interface{}, error) {
		switch cmd.Command {
		case "status":
			return map[string]interface{}{
				"connection":            session.State(),
				"coordinator_available": health.Available(),
			}, nil
		case "balance":
			balance := session.Balance()
			if balance == nil {
				return nil, fmt.Errorf("no balance available yet")
			}
			return balance, nil
		case "transactions":
			return session.Transactions(), nil
		default:
			return nil, fmt.Errorf("unknown command %q", cmd.Command)
		}
	}
}

var recoverCmd = &cobra.Command{
	Use:   "recover [raw-tx-hex-or-file] [destination] [fee-rate]",
	Short: "Build an offline recovery template from a pre-signed exit transaction",
	Long: `Builds an unsigned recovery template and PSBT from a raw pre-signed exit
transaction, for signing on an air-gapped machine. Needs no network access
and no running daemon.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawHex := strings.TrimSpace(args[0])
		if fileBytes, err := os.ReadFile(args[0]); err == nil {
			rawHex = strings.TrimSpace(string(fileBytes))
		}

		feeRate, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid fee rate %q: %v", args[2], err)
		}

		tpl, packet, err := recovery.BuildPSBT(recovery.BuildRequest{
			RawTxHex:    rawHex,
			Destination: args[1],
			Network:     viper.GetString("network"),
			FeeRate:     feeRate,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]interface{}{
			"template": tpl,
			"psbt":     packet,
		}, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(out))

		if err := clipboard.WriteAll(packet); err == nil {
			fmt.Println("\nPSBT copied to clipboard.")
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon for its session status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient()
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.Send("status")
		if err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("%s", resp.Error)
		}

		out, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Hash a dashboard API key for the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := api.HashAPIKey(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("wallet_api_key: %s\n", hash)
		fmt.Printf("Generated at %s\n", time.Now().Format(time.RFC3339))
		return nil
	},
}
