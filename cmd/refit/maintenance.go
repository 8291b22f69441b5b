package main

import (
	"fmt"
	"os"

	"github.com/cuemby/refit/pkg/api"
	"github.com/cuemby/refit/pkg/config"
	"github.com/cuemby/refit/pkg/maintenance"
	"github.com/spf13/cobra"
)

var maintenanceCmd = &cobra.Command{
	Use:     "maintenance",
	Aliases: []string{"mm"},
	Short:   "Manage the maintenance gate",
}

var maintenanceOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Serve the maintenance page to everyone outside the allow list",
	Long: `Turn the maintenance gate on.

A running refit serve on this host picks up the change immediately. The
gate stays on until turned off, including across updates.

Examples:
  refit maintenance on --message "Database migration" --minutes 30
  refit maintenance on --allow 10.0.0.0/8 --allow 127.0.0.1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.MaintenanceRequest{}
		req.Message, _ = cmd.Flags().GetString("message")
		req.Title, _ = cmd.Flags().GetString("title")
		req.IPAllowList, _ = cmd.Flags().GetStringSlice("allow")
		req.EstimatedMinutes, _ = cmd.Flags().GetInt("minutes")

		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			resp, err := c.EnableMaintenance(cmd.Context(), req)
			if err != nil {
				return err
			}
			reportChange(resp.Changed, "on")
			printMaintenance(os.Stdout, resp.Config)
			return nil
		}

		gate, err := localGate(cmd)
		if err != nil {
			return err
		}
		changed, err := gate.Enable(maintenance.EnableOptions{
			Message:          req.Message,
			Title:            req.Title,
			IPAllowList:      req.IPAllowList,
			EstimatedMinutes: req.EstimatedMinutes,
		})
		if err != nil {
			return err
		}
		reportChange(changed, "on")
		printMaintenance(os.Stdout, gate.Config())
		return nil
	},
}

var maintenanceOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Turn the maintenance gate off",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			resp, err := c.DisableMaintenance(cmd.Context())
			if err != nil {
				return err
			}
			reportChange(resp.Changed, "off")
			return nil
		}

		gate, err := localGate(cmd)
		if err != nil {
			return err
		}
		changed, err := gate.Disable()
		if err != nil {
			return err
		}
		reportChange(changed, "off")
		return nil
	},
}

var maintenanceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the maintenance gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if c, err := serverClient(cmd); err != nil {
			return err
		} else if c != nil {
			cfg, err := c.Maintenance(cmd.Context())
			if err != nil {
				return err
			}
			printMaintenance(os.Stdout, *cfg)
			return nil
		}

		gate, err := localGate(cmd)
		if err != nil {
			return err
		}
		printMaintenance(os.Stdout, gate.Config())
		return nil
	},
}

func init() {
	maintenanceOnCmd.Flags().StringP("message", "m", "", "Message shown on the maintenance page")
	maintenanceOnCmd.Flags().String("title", "", "Title of the maintenance page")
	maintenanceOnCmd.Flags().StringSlice("allow", nil, "Addresses or CIDR ranges that bypass the gate (repeatable)")
	maintenanceOnCmd.Flags().Int("minutes", 0, "Estimated duration shown to visitors")

	maintenanceCmd.AddCommand(maintenanceOnCmd)
	maintenanceCmd.AddCommand(maintenanceOffCmd)
	maintenanceCmd.AddCommand(maintenanceStatusCmd)
}

func localGate(cmd *cobra.Command) (*maintenance.Gate, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newGate(cfg)
}

func newGate(cfg *config.Config) (*maintenance.Gate, error) {
	return maintenance.NewGate(cfg.MaintenancePath(), maintenance.Options{
		Title:       cfg.Maintenance.Title,
		Message:     cfg.Maintenance.Message,
		AllowList:   cfg.Maintenance.AllowList,
		TrustProxy:  cfg.Maintenance.TrustProxy,
		BypassPaths: cfg.Maintenance.BypassPaths,
	})
}

func reportChange(changed bool, state string) {
	if changed {
		fmt.Printf("Maintenance mode turned %s\n", state)
		return
	}
	fmt.Printf("Maintenance mode already %s\n", state)
}
