package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront"
	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/pkg/apperr"
	"github.com/storefront-dev/storefront/pkg/session"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	dir      string
	envFile  string
	logLevel string
	verbose  bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "storefront",
		Short: "Marketplace client for the terminal",
		Long: `storefront signs in to the marketplace backend, keeps the push
connection open and mirrors notifications and orders.

Settings come from storefront.json in the working directory, then
STOREFRONT_* environment variables (a .env file is loaded first).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.dir, "dir", "C", ".", "Directory holding storefront.json")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Environment file loaded before reading settings")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Shorthand for --log-level=debug")

	rootCmd.AddCommand(
		loginCmd(&flags),
		registerCmd(&flags),
		logoutCmd(&flags),
		whoamiCmd(&flags),
		notificationsCmd(&flags),
		ordersCmd(&flags),
		watchCmd(&flags),
		mockBackendCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// resolveConfig loads the env file and storefront.json and installs the
// default logger.
func resolveConfig(flags *globalFlags) (*config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", flags.envFile, err)
		}
	}

	cfg, err := config.Resolve(flags.dir)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

// openClient builds a storefront client from the resolved settings.
func openClient(ctx context.Context, flags *globalFlags) (*storefront.Client, error) {
	cfg, err := resolveConfig(flags)
	if err != nil {
		return nil, err
	}

	backend, err := storefront.OpenBackend(cfg)
	if err != nil {
		return nil, err
	}

	return startClient(ctx, cfg, backend)
}

// startClient builds the client over backend. The backend is closed when
// the client cannot be built; otherwise Client.Close owns it.
func startClient(ctx context.Context, cfg *config.Config, backend session.Backend) (*storefront.Client, error) {
	clientCfg := storefront.ConfigFrom(cfg)
	clientCfg.Backend = backend
	clientCfg.Logger = slog.Default()
	client, err := storefront.New(ctx, clientCfg)
	if err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			slog.Debug("closing session backend", "error", closeErr)
		}
		return nil, err
	}
	return client, nil
}

// requireSession fails when nobody is signed in.
func requireSession(client *storefront.Client) error {
	if !client.Auth.IsAuthenticated() {
		return errors.New("not signed in; run `storefront login` first")
	}
	return nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// printError renders err, with field details and hints for storefront errors.
func printError(err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		fmt.Fprint(os.Stderr, ae.Format())
		return
	}
	fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
}
