// Package cli provides the command-line interface for carequery.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"carequery/internal/config"
	"carequery/internal/db"
	"carequery/internal/service"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configFile string
	serverURL  string

	// Global config and lazily-built local service
	cfg       config.Config
	dbClient  *db.Client
	svc       *service.Service
	logCloser func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "carequery",
	Short: "Conversational access to patient medical records",
	Long: `Carequery answers natural-language questions about patient medical
records. Database-related questions are answered by inspecting the
schema, generating a read-only SQL query, reviewing it, and running it;
everything else is answered directly.

Questions can be typed, or recorded and transcribed; answers can be
spoken back via speech synthesis.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		if configFile != "" {
			cfg, err = config.LoadFile(configFile)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Load()
		}

		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		logCloser = closeLog
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCloser != nil {
			_ = logCloser()
		}
	},
}

// remoteMode reports whether commands should talk to a server instead of
// running cycles locally.
func remoteMode() bool {
	return serverURL != "" || os.Getenv("CAREQUERY_SERVER_URL") != ""
}

// getService builds the local service on first use. Commands that run
// cycles call ensureAPIKey first; inspection commands only need the
// database.
func getService(ctx context.Context) (*service.Service, error) {
	if svc != nil {
		return svc, nil
	}

	var err error
	dbClient, err = db.NewClient(ctx, db.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		Params:   cfg.DBParams,
		Path:     cfg.DBPath,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	svc = service.New(cfg, dbClient, nil, nil)
	return svc, nil
}

// ensureAPIKey prompts for the provider's API key when it is neither in
// the environment nor the config file. Input is not echoed.
func ensureAPIKey() error {
	var key *string
	switch cfg.LLMProvider {
	case config.ProviderGoogleAI:
		key = &cfg.GoogleAPIKey
	case config.ProviderOpenAI:
		key = &cfg.OpenAIAPIKey
	case config.ProviderAnthropic:
		key = &cfg.AnthropicAPIKey
	default:
		// Ollama and Bedrock use host config or ambient credentials.
		return nil
	}
	if *key != "" {
		return nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return fmt.Errorf("no API key configured for provider %q", cfg.LLMProvider)
	}

	fmt.Fprintf(os.Stderr, "Enter API key for %s: ", cfg.LLMProvider)
	entered, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}
	if len(entered) == 0 {
		return fmt.Errorf("no API key configured for provider %q", cfg.LLMProvider)
	}
	*key = string(entered)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "run against a remote server instead of locally")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(patientsCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(statsCmd)
}
