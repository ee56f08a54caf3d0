package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"packrat-go/internal/app"
	"packrat-go/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Populate", "Replay").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readToken prompts for the Dropbox access token. When stdin is a terminal
// the token is read without echo.
func readToken() (string, error) {
	fmt.Print("Dropbox access token: ")

	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var rootCmd = &cobra.Command{
	Use:   "packrat",
	Short: "Mirror a Dropbox account's revision history onto ZFS snapshots",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init DATASET",
	Short: "Initialize configuration for a ZFS dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		token, err := readToken()
		if err != nil {
			return err
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])
		cfg.Source.Token = token

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Dataset:     %s\n", cfg.Dataset)
		fmt.Printf("Target root: %s\n", cfg.Root())
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Dataset:     %s\n", cfg.Dataset)
		fmt.Printf("Target root: %s\n", cfg.Root())
		fmt.Printf("Log dir:     %s\n", cfg.LogDir)
		fmt.Printf("Source:      %s\n", cfg.Source.Type)
		fmt.Printf("Snapshots:   %s (prefix %q)\n", cfg.Snapshots.Type, cfg.Snapshots.Prefix)
		return nil
	},
}

// populate command
var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Crawl the remote revision history into the event store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Populate")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Populate(cmd.Context())
		if err != nil {
			return fmt.Errorf("populate failed: %w", err)
		}

		fmt.Printf("Crawled %d path(s), %d event(s); %d skipped, %d unavailable\n",
			stats.Paths, stats.Events, stats.Skipped, stats.Errors)
		return nil
	},
}

// replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the stored history onto the target tree, one snapshot per day",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Replay")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Replay(cmd.Context()); err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}

		fmt.Println("Replay complete")
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View event store and snapshot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Status")
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.Status()
		if err != nil {
			return err
		}

		if status.SchemaIssue != nil {
			fmt.Printf("Schema:      %v\n", status.SchemaIssue)
		} else {
			fmt.Printf("Schema:      up-to-date\n")
		}
		fmt.Printf("Events:      %d\n", status.Events)
		fmt.Printf("Path errors: %d\n", status.PathErrors)
		if status.Events > 0 {
			fmt.Printf("History:     %s to %s\n",
				status.Oldest.Format("2006-01-02 15:04:05"),
				status.Newest.Format("2006-01-02 15:04:05"),
			)
		}
		if status.Snapshots >= 0 {
			fmt.Printf("Snapshots:   %d\n", status.Snapshots)
		} else {
			fmt.Printf("Snapshots:   unavailable\n")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(populateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(statusCmd)
}
