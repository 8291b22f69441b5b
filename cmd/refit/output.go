package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/refit/pkg/types"
	"github.com/dustin/go-humanize"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func printRelease(w io.Writer, info *types.ReleaseInfo) {
	fmt.Fprintf(w, "Current version: %s\n", info.CurrentVersion)
	fmt.Fprintf(w, "Latest version:  %s\n", info.LatestVersion)
	if info.PublishedAt != nil {
		fmt.Fprintf(w, "Published:       %s\n", humanize.Time(*info.PublishedAt))
	}
	if !info.UpdateAvailable {
		fmt.Fprintln(w, "Already up to date")
		return
	}
	fmt.Fprintln(w, "Update available")
	if notes := strings.TrimSpace(info.ReleaseNotes); notes != "" {
		fmt.Fprintf(w, "\n%s\n", notes)
	}
}

func printStatus(w io.Writer, status types.SessionStatus, withLog bool) {
	fmt.Fprintf(w, "Phase:           %s\n", status.Phase)
	fmt.Fprintf(w, "Current version: %s\n", status.CurrentVersion)
	if status.TargetVersion != "" {
		fmt.Fprintf(w, "Target version:  %s\n", status.TargetVersion)
	}
	if status.RunID != "" {
		fmt.Fprintf(w, "Run:             %s\n", status.RunID)
	}
	if status.StartedAt != nil {
		fmt.Fprintf(w, "Started:         %s\n", humanize.Time(*status.StartedAt))
	}
	if status.Backup != nil {
		fmt.Fprintf(w, "Backup:          %s (%s)\n", status.Backup.Name, humanize.Bytes(uint64(status.Backup.SizeBytes)))
	}
	if status.LastError != nil {
		fmt.Fprintf(w, "Error:           %s: %s\n", status.LastError.Kind, status.LastError.Message)
		fmt.Fprintf(w, "Rolled back:     %t\n", status.RolledBack)
	}
	if withLog && len(status.Log) > 0 {
		fmt.Fprintln(w)
		for _, entry := range status.Log {
			fmt.Fprintf(w, "%s  %-13s %s\n", entry.Time.Format(time.TimeOnly), entry.Phase, entry.Message)
		}
	}
}

func printBackups(w io.Writer, backups []*types.BackupManifest) error {
	if len(backups) == 0 {
		fmt.Fprintln(w, "No backups")
		return nil
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "NAME\tCREATED\tSIZE\tREVISION")
	for _, b := range backups {
		rev := b.SourceRevision
		if rev == "" {
			rev = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Name, humanize.Time(b.CreatedAt), humanize.Bytes(uint64(b.SizeBytes)), rev)
	}
	return tw.Flush()
}

func printHistory(w io.Writer, runs []*types.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ID\tKIND\tFROM\tTO\tPHASE\tSTARTED\tERROR")
	for _, r := range runs {
		msg := "-"
		if r.ErrorKind != "" {
			msg = string(r.ErrorKind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), r.Kind, orDash(r.FromVersion), orDash(r.ToVersion), r.Phase, humanize.Time(r.StartedAt), msg)
	}
	return tw.Flush()
}

func printMaintenance(w io.Writer, cfg types.MaintenanceConfig) {
	if !cfg.Enabled {
		fmt.Fprintln(w, "Maintenance mode: off")
		return
	}
	mode := "manual"
	if cfg.AutoMode {
		mode = "automatic"
	}
	fmt.Fprintf(w, "Maintenance mode: on (%s)\n", mode)
	fmt.Fprintf(w, "Title:      %s\n", cfg.Title)
	fmt.Fprintf(w, "Message:    %s\n", cfg.Message)
	fmt.Fprintf(w, "Allow list: %s\n", strings.Join(cfg.IPAllowList, ", "))
	if cfg.StartedAt != nil {
		fmt.Fprintf(w, "Since:      %s\n", humanize.Time(*cfg.StartedAt))
	}
	if cfg.EstimatedEnd != nil {
		fmt.Fprintf(w, "Until:      %s\n", humanize.Time(*cfg.EstimatedEnd))
	}
}

func printProfile(w io.Writer, p types.DeploymentProfile) {
	fmt.Fprintf(w, "Environment:      %s\n", p.Environment)
	fmt.Fprintf(w, "Install root:     %s\n", p.InstallRoot)
	fmt.Fprintf(w, "Restart strategy: %s\n", p.RestartStrategy)
	if p.ServiceName != "" {
		fmt.Fprintf(w, "Service:          %s\n", p.ServiceName)
	}
	if p.Reason != "" {
		fmt.Fprintf(w, "Detected by:      %s\n", p.Reason)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
