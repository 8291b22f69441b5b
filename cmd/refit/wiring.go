package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/refit/pkg/backup"
	"github.com/cuemby/refit/pkg/compat"
	"github.com/cuemby/refit/pkg/config"
	"github.com/cuemby/refit/pkg/events"
	"github.com/cuemby/refit/pkg/health"
	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/maintenance"
	"github.com/cuemby/refit/pkg/profile"
	"github.com/cuemby/refit/pkg/release"
	"github.com/cuemby/refit/pkg/restart"
	"github.com/cuemby/refit/pkg/storage"
	"github.com/cuemby/refit/pkg/updater"
)

// storeOpenTimeout bounds the wait for the state database, which a running
// refit serve holds open
const storeOpenTimeout = time.Second

// stack is every component of a local refit, wired together
type stack struct {
	cfg         *config.Config
	installRoot string
	profiler    *profile.Profiler
	store       storage.Store
	gate        *maintenance.Gate
	backups     *backup.Manager
	releases    *release.Checker
	orch        *updater.Orchestrator
}

func newStack(cfg *config.Config, broker *events.Broker) (*stack, error) {
	logger := log.WithComponent("refit")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &stack{cfg: cfg}
	s.profiler = newProfiler(cfg)
	s.installRoot = s.profiler.InstallRoot()

	bolt, err := storage.NewBoltStore(cfg.DataDir, storeOpenTimeout)
	if err != nil {
		logger.Warn().Err(err).Msg("State database unavailable, run history will not be recorded")
	} else {
		s.store = bolt
	}

	s.gate, err = newGate(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create maintenance gate: %w", err)
	}

	s.backups, err = backup.NewManager(backup.Config{
		InstallRoot: s.installRoot,
		Root:        cfg.BackupsPath(),
		Retention:   cfg.Retention,
		Exclude:     cfg.Apply.Exclude,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create backup manager: %w", err)
	}

	token := ""
	if cfg.Release.TokenEnv != "" {
		token = os.Getenv(cfg.Release.TokenEnv)
	}
	s.releases, err = release.NewChecker(release.Config{
		Owner:       cfg.Release.Owner,
		Repository:  cfg.Release.Repository,
		APIBaseURL:  cfg.Release.APIBaseURL,
		Token:       token,
		Timeout:     cfg.Release.CheckTimeout,
		InstallRoot: s.installRoot,
	}, s.store)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.orch, err = updater.New(updater.Config{
		Releases: s.releases,
		Profiler: s.profiler,
		Backups:  s.backups,
		Compat: compat.NewChecker(compat.Config{
			InstallRoot:        s.installRoot,
			DependencyManifest: cfg.Apply.DependencyManifest,
			ExtensionsDir:      cfg.Apply.ExtensionsDir,
		}),
		Gate:      s.gate,
		Restarter: restart.New(restart.Options{PID: pidSource(cfg.PIDFile)}),
		Fetcher: &updater.HTTPFetcher{
			Token:   token,
			Timeout: cfg.Release.DownloadTimeout,
		},
		Store:  s.store,
		Broker: broker,
		// The state directory never takes part in an update, even when it
		// lives inside the install root
		Preserve:         append(append([]string(nil), cfg.Apply.Preserve...), cfg.DataDir, cfg.BackupsPath()),
		EstimatedMinutes: cfg.Maintenance.EstimatedMinutes,
		HostLockName:     cfg.HostLockName,
		Probe:            healthProbe(cfg.HealthURL, cfg.HealthTimeout),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the state database
func (s *stack) Close() {
	if s.store != nil {
		s.store.Close()
	}
}

func newProfiler(cfg *config.Config) *profile.Profiler {
	return profile.NewProfiler(profile.OSHost{}, profile.Options{
		InstallRoot: cfg.InstallRoot,
		ServiceName: cfg.ServiceName,
		SystemdUnit: cfg.SystemdUnit,
	})
}

// pidSource returns the process signalled by the signal-self strategy
func pidSource(pidFile string) func() int {
	if pidFile == "" {
		return os.Getpid
	}
	return func() int {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return 0
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return 0
		}
		return pid
	}
}

func healthProbe(target string, timeout time.Duration) func(ctx context.Context) error {
	if target == "" {
		return nil
	}
	checker := health.NewChecker(target)
	return func(ctx context.Context) error {
		_, err := health.WaitHealthy(ctx, checker, health.ProbeConfig{
			Interval:  time.Second,
			Timeout:   timeout,
			Successes: 2,
		})
		return err
	}
}
