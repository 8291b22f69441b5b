package main

import (
	"fmt"
	"os"

	"github.com/cuemby/refit/pkg/config"
	"github.com/cuemby/refit/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "refit",
	Short: "Refit - guarded self-updates for a deployed service",
	Long: `Refit keeps a deployed service on its latest release.

It checks the release feed, snapshots the installation, swaps in the new
release behind a maintenance page, restarts the service the way its
deployment expects and rolls back automatically when anything fails.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		log.Init(log.Config{
			Level:      log.ParseLevel(level),
			JSONOutput: jsonLogs,
		})
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Refit version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to the YAML configuration file")
	flags.String("data-dir", "", "Directory for state, backups and the maintenance record")
	flags.String("install-root", "", "Installation root (detected when empty)")
	flags.String("server", "", "Address of a running refit serve; commands run locally when empty")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(maintenanceCmd)
	rootCmd.AddCommand(profileCmd)
}

// loadConfig reads the configuration file and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if root, _ := cmd.Flags().GetString("install-root"); root != "" {
		cfg.InstallRoot = root
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
