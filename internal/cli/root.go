package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/italolelis/updaterd/internal/storage"
	"github.com/italolelis/updaterd/internal/update"
	"github.com/spf13/cobra"
)

const DefaultAddr = "http://127.0.0.1:9092"

type options struct {
	addr     string
	username string
	password string
	output   string
	timeout  time.Duration
}

func (o *options) client() *Client {
	return NewClient(o.addr, o.username, o.password, o.timeout)
}

// NewRootCmd builds the updaterctl command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "updaterctl",
		Short: "Control a running updaterd",
		Long: `updaterctl drives the update commands of a running updaterd.

Check for a newer release, download and install it, then restart the daemon into it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("invalid output format %q: must be text or json", opts.output)
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", DefaultAddr, "Address of the updaterd HTTP server")
	rootCmd.PersistentFlags().StringVar(&opts.username, "username", "", "Basic auth username")
	rootCmd.PersistentFlags().StringVar(&opts.password, "password", "", "Basic auth password")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Request timeout")

	rootCmd.AddCommand(newCheckCmd(opts))
	rootCmd.AddCommand(newDownloadCmd(opts))
	rootCmd.AddCommand(newInstallCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))
	rootCmd.AddCommand(newLastCheckCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Ask the daemon to check for updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result update.CheckResult
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/updates/check", &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if opts.output == "json" {
				return printJSON(out, result)
			}

			switch {
			case result.Error != nil:
				return fmt.Errorf("check failed: %s", *result.Error)
			case result.Available && result.Info != nil:
				fmt.Fprintf(out, "Update %s available (running %s)\n", result.Info.Version, result.Info.CurrentVersion)

				if result.Info.Body != nil && *result.Info.Body != "" {
					fmt.Fprintf(out, "\nRelease notes:\n%s\n", *result.Info.Body)
				}
			default:
				fmt.Fprintln(out, "Already running the latest version")
			}

			return nil
		},
	}
}

func newDownloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download and install the available update",
		Long: `Download the update found by the last check and install it in place.

The daemon keeps running the old version until 'updaterctl install' restarts it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Downloaded bool `json:"downloaded"`
			}

			err := opts.client().do(cmd.Context(), http.MethodPost, "/updates/download", &resp)

			switch {
			case IsStatus(err, http.StatusNotFound):
				return fmt.Errorf("no update available, run 'updaterctl check' first")
			case IsStatus(err, http.StatusConflict):
				return fmt.Errorf("a download is already in progress")
			case err != nil:
				return err
			}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Update downloaded and installed, run 'updaterctl install' to restart")

			return nil
		},
	}
}

func newInstallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Restart the daemon into the installed update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/updates/install", nil); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Restart requested")

			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the updater is doing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Status update.Status `json:"status"`
			}

			if err := opts.client().do(cmd.Context(), http.MethodGet, "/updates/status", &resp); err != nil {
				return err
			}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.Status)

			return nil
		},
	}
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Version string `json:"version"`
			}

			if err := opts.client().do(cmd.Context(), http.MethodGet, "/version", &resp); err != nil {
				return err
			}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.Version)

			return nil
		},
	}
}

func newLastCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "last-check",
		Short: "Show when the last update check completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				LastCheck *string `json:"lastCheck"`
			}

			if err := opts.client().do(cmd.Context(), http.MethodGet, "/updates/last-check", &resp); err != nil {
				return err
			}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			if resp.LastCheck == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "never")

				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), *resp.LastCheck)

			return nil
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent update checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("invalid limit %d: must be positive", limit)
			}

			var records []storage.CheckRecord

			path := "/updates/history?limit=" + strconv.Itoa(limit)
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, &records); err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if opts.output == "json" {
				return printJSON(out, records)
			}

			if len(records) == 0 {
				fmt.Fprintln(out, "No checks recorded")

				return nil
			}

			for _, rec := range records {
				line := rec.CheckedAt.UTC().Format(time.RFC3339) + "  " + rec.Outcome
				if rec.Version != "" {
					line += "  " + rec.Version
				}

				if rec.Error != "" {
					line += "  " + rec.Error
				}

				fmt.Fprintln(out, line)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of checks to show")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
