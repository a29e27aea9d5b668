// Package cli implements the photosync-agent command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/photosync/photosync/internal/agent"
	"github.com/photosync/photosync/internal/config"
	"github.com/photosync/photosync/internal/observability"
)

// Global flags
var (
	configPath  string
	logLevel    string
	databaseURL string
	overrides   agentFlags
)

// agentFlags override the agent section of the config file
type agentFlags struct {
	watchPath string
	statePath string
	endpoint  string
	token     string
	deviceID  string
	status    string
}

var rootCmd = &cobra.Command{
	Use:     "photosync-agent",
	Version: "dev",
	Short:   "Incremental photo backup agent",
	Long: `photosync-agent watches a photo folder, indexes new pictures and uploads
everything added since the last successful sync to a PhotoSync server.

Failed uploads that may succeed later stay queued: the sync watermark never
moves past them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// SetVersion sets the version printed by --version
func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the JSON config file")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&databaseURL, "database-url", "", "PostgreSQL URL for a shared watermark store")
	flags.StringVar(&overrides.watchPath, "watch", "", "photo folder to back up")
	flags.StringVar(&overrides.statePath, "state", "", "path of the agent state database")
	flags.StringVar(&overrides.endpoint, "endpoint", "", "upload endpoint URL")
	flags.StringVar(&overrides.token, "token", "", "bearer token sent with uploads")
	flags.StringVar(&overrides.deviceID, "device-id", "", "device identifier")
	flags.StringVar(&overrides.status, "status-addr", "", "listen address of the local status API")

	rootCmd.AddCommand(runCmd, syncCmd, scanCmd, statusCmd)
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.json"
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("watch", &cfg.Agent.WatchPath, overrides.watchPath)
	set("state", &cfg.Agent.StatePath, overrides.statePath)
	set("endpoint", &cfg.Agent.EndpointURL, overrides.endpoint)
	set("token", &cfg.Agent.AuthToken, overrides.token)
	set("device-id", &cfg.Agent.DeviceID, overrides.deviceID)
	set("status-addr", &cfg.Agent.StatusAddress, overrides.status)
	set("database-url", &cfg.DatabaseURL, databaseURL)
	set("log-level", &cfg.Logging.Level, logLevel)

	return cfg, nil
}

// openAgent configures logging and assembles the agent. The returned
// closer flushes the log file and releases the state database.
func openAgent(cmd *cobra.Command) (*agent.Agent, *config.Config, io.Closer, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logFile := observability.Configure(agent.ServiceName, observability.ParseLevel(cfg.Logging.Level), observability.FileOutput{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	a, err := agent.New(cfg.Agent, cfg.DatabaseURL)
	if err != nil {
		logFile.Close()
		return nil, nil, nil, err
	}
	return a, cfg, closers{a, logFile}, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func requireWatchPath(cfg *config.Config) error {
	if cfg.Agent.WatchPath == "" {
		return fmt.Errorf("no photo folder configured: set agent.watchPath or pass --watch")
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
