package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/refit/pkg/client"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/updater"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the release feed for a newer release",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			info, err := c.Check(ctx)
			if err != nil {
				return err
			}
			printRelease(os.Stdout, info)
			return nil
		}

		st, err := localStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		info, err := st.orch.Check(ctx)
		if err != nil {
			return fmt.Errorf("release check failed: %w", err)
		}
		printRelease(os.Stdout, info)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update",
	Aliases: []string{"install", "repair"},
	Short:   "Update the installation to a release",
	Long: `Update the installation to the latest release, or to --version.

The installation is snapshotted first and restored automatically if any
step fails. When run locally against an empty install root the release is
installed fresh; an installation without a version marker or missing a
required file is repaired.

Examples:
  # Update to the latest release if one is available
  refit update

  # Install a specific release through a running refit serve
  refit update --version v1.4.0 --server 127.0.0.1:8470`,
	RunE: runUpdate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the update session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(os.Stdout, *status, true)
			return nil
		}

		st, err := localStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		status := st.orch.Status()
		// A local process has no session of its own; show the last run
		if st.store != nil {
			if runs, err := st.store.ListRuns(1); err == nil && len(runs) > 0 {
				fmt.Printf("Last run:        %s %s (%s)\n", runs[0].Kind, runs[0].Phase, shortID(runs[0].ID))
			}
		}
		printStatus(os.Stdout, status, false)
		return nil
	},
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List retained backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			backups, err := c.Backups(cmd.Context())
			if err != nil {
				return err
			}
			return printBackups(os.Stdout, backups)
		}

		st, err := localStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		backups, err := st.orch.ListBackups()
		if err != nil {
			return err
		}
		return printBackups(os.Stdout, backups)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [backup]",
	Short: "Restore a backup, the newest one by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		ctx := cmd.Context()

		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			status, err := c.Rollback(ctx, name)
			if err != nil {
				return err
			}
			printStatus(os.Stdout, *status, false)
			return nil
		}

		st, err := localStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		status, err := st.orch.Rollback(ctx, name)
		if errors.Is(err, updater.ErrNoBackup) {
			return err
		}
		printStatus(os.Stdout, status, false)
		return err
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past update and rollback runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			runs, err := c.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(os.Stdout, runs)
		}

		st, err := localStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.orch.History(limit)
		if err != nil {
			return err
		}
		return printHistory(os.Stdout, runs)
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the detected deployment profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		printProfile(os.Stdout, newProfiler(cfg).Detect())
		return nil
	},
}

func init() {
	updateCmd.Flags().String("version", "", "Release tag to install (latest when empty)")
	updateCmd.Flags().Bool("force", false, "Re-apply the latest release even when up to date")
	updateCmd.Flags().Duration("poll", time.Second, "Status poll interval when using --server")

	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("version")
	force, _ := cmd.Flags().GetBool("force")
	ctx := cmd.Context()

	if c, err := serverClient(cmd); err != nil {
		return err
	} else if c != nil {
		poll, _ := cmd.Flags().GetDuration("poll")
		return remoteUpdate(ctx, c, target, poll)
	}

	st, err := localStack(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	mode := updater.DetectMode(st.installRoot, st.cfg.Apply.Required)
	if mode == updater.ModeUpdate && target == "" && !force {
		info, err := st.orch.Check(ctx)
		if err != nil {
			return fmt.Errorf("release check failed: %w", err)
		}
		if !info.UpdateAvailable {
			fmt.Printf("Already up to date (%s)\n", info.CurrentVersion)
			return nil
		}
	}

	fmt.Printf("Running %s in %s\n", mode, st.installRoot)
	status, err := st.orch.Run(ctx, updater.RunOptions{Target: target, Mode: mode})
	if errors.Is(err, updater.ErrBusy) {
		return err
	}
	printStatus(os.Stdout, status, true)
	return runResult(status)
}

func remoteUpdate(ctx context.Context, c *client.Client, target string, poll time.Duration) error {
	result, err := c.Start(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("Update started (run %s)\n", shortID(result.RunID))

	status, err := c.WaitForRun(ctx, result.RunID, poll, func(s types.SessionStatus) {
		fmt.Printf("  %s\n", s.Phase)
	})
	if err != nil {
		return err
	}
	printStatus(os.Stdout, *status, false)
	return runResult(*status)
}

// runResult turns a finished session into the command's exit status
func runResult(status types.SessionStatus) error {
	if status.Phase == types.PhaseSucceeded {
		return nil
	}
	if status.LastError == nil {
		return fmt.Errorf("update ended in phase %s", status.Phase)
	}
	if status.RolledBack {
		return fmt.Errorf("update failed and was rolled back: %s", status.LastError.Kind)
	}
	return fmt.Errorf("update failed: %s", status.LastError.Kind)
}

// serverClient returns a client when --server is set, nil otherwise
func serverClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("server")
	if addr == "" {
		return nil, nil
	}
	return client.NewClient(addr)
}

func localStack(cmd *cobra.Command) (*stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newStack(cfg, nil)
}
