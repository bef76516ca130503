package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/ledgersync/internal/adapter/http/middleware"
	"github.com/iho/ledgersync/internal/infrastructure/logger"
	"github.com/iho/ledgersync/internal/infrastructure/postgres"
)

// options are the persistent flags shared by every command.
type options struct {
	baseURL string
	timeout time.Duration
	token   string
	actorID string
	role    string
}

// migrateFunc runs migrations; replaced in tests.
var migrateFunc = func(databaseURL, migrationsPath string, up bool) error {
	log := logger.New(logger.Config{Level: "info", Format: "console", Output: os.Stderr})
	if up {
		return postgres.RunMigrations(databaseURL, migrationsPath, log)
	}
	return postgres.RunMigrationsDown(databaseURL, migrationsPath, log)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "ledgersync-cli",
		Short:         "LedgerSync CLI tool",
		Long:          `A command line interface for inspecting and operating a LedgerSync node.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the LedgerSync API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LEDGERSYNC_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.actorID, "actor", "cli", "Actor id sent when token auth is disabled")
	rootCmd.PersistentFlags().StringVar(&opts.role, "role", "admin", "Actor role sent when token auth is disabled")

	rootCmd.AddCommand(syncCmd(opts), queueCmd(opts), accountCmd(opts), adminCmd(opts), migrateCmd())
	return rootCmd
}

func syncCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync queue operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/api/v1/sync/status")
		},
	}, &cobra.Command{
		Use:   "drain",
		Short: "Replay the queue now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodPost, "/api/v1/sync/drain")
		},
	})
	return cmd
}

func queueCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the sync queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending items in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/api/v1/sync/queue")
		},
	})
	return cmd
}

func accountCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <account-id>",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(args[0]))
		},
	})
	return cmd
}

func adminCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "view <account-id>",
		Short: "Show the deduction-adjusted view of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(args[0])+"/admin-view")
		},
	})
	return cmd
}

func migrateCmd() *cobra.Command {
	var databaseURL, migrationsPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Remote schema migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL")
	cmd.PersistentFlags().StringVar(&migrationsPath, "path", os.Getenv("MIGRATIONS_PATH"), "Migrations directory (embedded when empty)")

	run := func(up bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			if err := migrateFunc(databaseURL, migrationsPath, up); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  run(true),
	}, &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE:  run(false),
	})
	return cmd
}

// call sends one API request and pretty-prints the JSON response.
func call(cmd *cobra.Command, opts *options, method, path string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), method, opts.baseURL+path, nil)
	if err != nil {
		return err
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	} else {
		req.Header.Set(middleware.ActorIDHeader, opts.actorID)
		req.Header.Set(middleware.ActorRoleHeader, opts.role)
	}

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return printJSON(cmd.OutOrStdout(), body)
}

func printJSON(w io.Writer, body []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
