package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/photosync/photosync/internal/agent"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
)

// errSyncFailed makes the process exit non-zero after a failed pass
var errSyncFailed = errors.New("sync failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the photo folder and sync continuously",
	Long: `Index the photo folder, then keep watching it. New photos are synced once
the folder has been quiet for the debounce interval, and a periodic pass
retries anything still pending. A local status API serves the sync state
and accepts manual sync requests.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, closer, err := openAgent(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		telemetry, err := observability.Initialize(ctx, observability.NewConfig(agent.ServiceName, rootCmd.Version))
		if err != nil {
			return err
		}
		defer telemetry.Shutdown(context.WithoutCancel(ctx))

		printSection(cmd.OutOrStdout(), "PhotoSync agent "+rootCmd.Version)
		printLabelValue(cmd.OutOrStdout(), "Device", a.DeviceID())
		printLabelValue(cmd.OutOrStdout(), "Watching", cfg.Agent.WatchPath)
		printLabelValue(cmd.OutOrStdout(), "Endpoint", cfg.Agent.EndpointURL)
		if cfg.Agent.StatusAddress != "" {
			printLabelValue(cmd.OutOrStdout(), "Status API", "http://"+cfg.Agent.StatusAddress)
		}

		return a.Run(ctx, rootCmd.Version)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass now",
	Long: `Upload every indexed photo newer than the sync watermark. When an agent is
already running the request is handed to it; otherwise the folder is
indexed and the pass runs in this process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		out := cmd.OutOrStdout()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if remote := newStatusClient(cfg.Agent.StatusAddress); remote.alive(ctx) {
			resp, err := remote.sync(ctx)
			if err != nil {
				return err
			}
			printResult(out, resp.Message, resp.Result)
			return exitStatus(resp.Result)
		}

		if err := requireWatchPath(cfg); err != nil {
			return err
		}
		a, _, closer, err := openAgent(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		if _, err := a.Scan(ctx); err != nil {
			return fmt.Errorf("scan %s: %w", cfg.Agent.WatchPath, err)
		}
		result := a.SyncNow(ctx)
		printResult(out, result.Summary(), result)
		return exitStatus(result)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Index the photo folder without uploading",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := requireWatchPath(cfg); err != nil {
			return err
		}
		a, _, closer, err := openAgent(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		summary, err := a.Scan(commandContext(cmd))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = successColor.Fprintf(out, "✓ indexed %d new photos\n", summary.Indexed)
		printLabelValue(out, "Scanned", summary.FilesScanned)
		printLabelValue(out, "Known", summary.Skipped)
		printLabelValue(out, "Duration", summary.Duration)
		for _, e := range summary.Errors {
			_, _ = warningColor.Fprintf(out, "  ⚠ %s\n", e)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync watermark and backlog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if remote := newStatusClient(cfg.Agent.StatusAddress); remote.alive(ctx) {
			status, err := remote.status(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status, true)
			return nil
		}

		a, _, closer, err := openAgent(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		status, err := a.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status, false)
		return nil
	},
}

func exitStatus(result models.SyncResult) error {
	if result.Status == models.RunFailed {
		return errSyncFailed
	}
	return nil
}
