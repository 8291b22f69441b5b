package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/refit/pkg/events"
	"github.com/cuemby/refit/pkg/hostlock"
	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/maintenance"
	"github.com/cuemby/refit/pkg/metrics"
	"github.com/cuemby/refit/pkg/restart"
	"github.com/cuemby/refit/pkg/storage"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/version"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned when another run holds the update lock
	ErrBusy = errors.New("an update is already in progress")

	// ErrNoBackup is returned when a rollback has nothing to restore
	ErrNoBackup = errors.New("no backup available")
)

// DefaultHostLockTimeout bounds the wait for the machine-wide lock
const DefaultHostLockTimeout = time.Second

// Mode selects how a run treats the existing installation
type Mode string

const (
	// ModeUpdate replaces an installed release
	ModeUpdate Mode = "update"
	// ModeRepair re-applies a release over a damaged installation
	ModeRepair Mode = "repair"
	// ModeFreshInstall populates an empty install root; no backup is taken
	ModeFreshInstall Mode = "fresh-install"
)

// StartStatus is the outcome of a start request
type StartStatus string

const (
	StartStarted StartStatus = "started"
	StartBusy    StartStatus = "busy"
)

// StartResult is returned by Start
type StartResult struct {
	Status StartStatus `json:"status"`
	RunID  string      `json:"runId,omitempty"`
}

// RunOptions are the arguments of a run
type RunOptions struct {
	// Target is a release tag; empty means the latest release
	Target string
	Mode   Mode
}

// ReleaseSource resolves releases
type ReleaseSource interface {
	CurrentVersion() string
	CheckForUpdate(ctx context.Context) (*types.ReleaseInfo, error)
	Resolve(ctx context.Context, target string) (*types.ReleaseInfo, error)
}

// Profiler detects the deployment profile
type Profiler interface {
	Detect() types.DeploymentProfile
}

// Backups creates and restores snapshots of the installation
type Backups interface {
	Create(name string) (*types.BackupManifest, error)
	List() ([]*types.BackupManifest, error)
	Get(name string) (*types.BackupManifest, error)
	Latest() (*types.BackupManifest, error)
	Restore(manifest *types.BackupManifest) error
}

// CompatChecker evaluates a target release against local dependencies
type CompatChecker interface {
	Check(ctx context.Context, target string) types.CompatibilityReport
}

// Gate is the maintenance gate toggled around a run
type Gate interface {
	Enable(opts maintenance.EnableOptions) (bool, error)
	Disable() (bool, error)
	IsActive() bool
	Config() types.MaintenanceConfig
}

// Restarter brings the service up on the new release
type Restarter interface {
	Restart(ctx context.Context, profile types.DeploymentProfile) error
}

// Fetcher downloads and stages a release archive
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Staged, error)
}

// Config wires an Orchestrator
type Config struct {
	Releases  ReleaseSource
	Profiler  Profiler
	Backups   Backups
	Compat    CompatChecker
	Gate      Gate
	Restarter Restarter
	Fetcher   Fetcher

	// Store keeps run history; optional
	Store storage.Store
	// Broker receives phase events; optional
	Broker *events.Broker

	// Preserve lists paths whose live content survives an update. Relative
	// entries are taken from the install root; absolute ones are ignored
	// unless they lie inside it.
	Preserve         []string
	EstimatedMinutes int

	// HostLockName names the machine-wide lock; empty disables it
	HostLockName    string
	HostLockTimeout time.Duration

	// Probe checks the service after a restart; optional and non-fatal
	Probe func(ctx context.Context) error

	// FaultInjector fails the apply step at a chosen file
	FaultInjector FaultInjector
}

// Orchestrator sequences one guarded update at a time
type Orchestrator struct {
	cfg     Config
	session *Session
	logger  zerolog.Logger

	// runMu is the single-flight guard for checks, runs and rollbacks
	runMu sync.Mutex
}

// New creates an Orchestrator and recovers from a run that was interrupted
// by a crash: an automatically enabled gate is turned off and unfinished
// history records are marked failed.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Releases == nil:
		return nil, fmt.Errorf("release source is required")
	case cfg.Profiler == nil:
		return nil, fmt.Errorf("profiler is required")
	case cfg.Backups == nil:
		return nil, fmt.Errorf("backup manager is required")
	case cfg.Compat == nil:
		return nil, fmt.Errorf("compatibility checker is required")
	case cfg.Gate == nil:
		return nil, fmt.Errorf("maintenance gate is required")
	case cfg.Restarter == nil:
		return nil, fmt.Errorf("restarter is required")
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.HostLockTimeout <= 0 {
		cfg.HostLockTimeout = DefaultHostLockTimeout
	}

	o := &Orchestrator{
		cfg:     cfg,
		session: NewSession(cfg.Releases.CurrentVersion()),
		logger:  log.WithComponent("updater"),
	}
	o.session.onPhase = o.phaseChanged

	o.recoverInterrupted()
	return o, nil
}

// Status returns a copy of the session
func (o *Orchestrator) Status() types.SessionStatus {
	return o.session.Snapshot()
}

// ListBackups returns the retained snapshots, newest first
func (o *Orchestrator) ListBackups() ([]*types.BackupManifest, error) {
	return o.cfg.Backups.List()
}

// History returns up to limit past runs, newest first
func (o *Orchestrator) History(limit int) ([]*types.RunRecord, error) {
	if o.cfg.Store == nil {
		return nil, nil
	}
	return o.cfg.Store.ListRuns(limit)
}

// Check asks the release source for a newer release. When none is found the
// session is left exactly as it was; otherwise the target version is
// recorded and the session returns to idle for the operator to decide.
func (o *Orchestrator) Check(ctx context.Context) (*types.ReleaseInfo, error) {
	if !o.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer o.runMu.Unlock()

	prev := o.session.Snapshot()
	o.session.update(func(st *types.SessionStatus) { st.Phase = types.PhaseChecking })

	info, err := o.cfg.Releases.CheckForUpdate(ctx)
	if err != nil {
		o.session.restore(prev)
		return nil, err
	}

	o.publish(events.EventReleaseChecked, "", info.LatestVersion, map[string]string{
		"current":   info.CurrentVersion,
		"latest":    info.LatestVersion,
		"available": fmt.Sprintf("%t", info.UpdateAvailable),
	})

	if !info.UpdateAvailable {
		o.session.restore(prev)
		return info, nil
	}

	checked := *info
	o.session.update(func(st *types.SessionStatus) {
		st.Phase = types.PhaseIdle
		st.CurrentVersion = info.CurrentVersion
		st.TargetVersion = info.LatestVersion
		st.LastCheck = &checked
	})
	o.session.logf("Update available: %s -> %s", info.CurrentVersion, info.LatestVersion)
	return info, nil
}

// Start launches an update run in the background. A busy result leaves the
// session untouched.
func (o *Orchestrator) Start(ctx context.Context, target string) (StartResult, error) {
	release, err := o.acquire(ctx)
	if errors.Is(err, ErrBusy) {
		return StartResult{Status: StartBusy}, nil
	}
	if err != nil {
		return StartResult{}, err
	}

	runID := uuid.New().String()
	run := o.begin(runID, RunOptions{Target: target, Mode: ModeUpdate})

	go func() {
		defer o.runMu.Unlock()
		defer release.Release()
		o.execute(context.WithoutCancel(ctx), run)
	}()

	return StartResult{Status: StartStarted, RunID: runID}, nil
}

// Run performs an update synchronously and returns the final session
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (types.SessionStatus, error) {
	if opts.Mode == "" {
		opts.Mode = ModeUpdate
	}
	release, err := o.acquire(ctx)
	if err != nil {
		return o.Status(), err
	}
	defer o.runMu.Unlock()
	defer release.Release()

	run := o.begin(uuid.New().String(), opts)
	o.execute(context.WithoutCancel(ctx), run)

	status := o.Status()
	if status.LastError != nil {
		return status, status.LastError
	}
	return status, nil
}

// Rollback restores the named snapshot, or the newest one when name is
// empty, with the gate on. Restore failures are RollbackFailed errors.
func (o *Orchestrator) Rollback(ctx context.Context, name string) (types.SessionStatus, error) {
	release, err := o.acquire(ctx)
	if err != nil {
		return o.Status(), err
	}
	defer o.runMu.Unlock()
	defer release.Release()

	var manifest *types.BackupManifest
	if name == "" {
		manifest, err = o.cfg.Backups.Latest()
		if err != nil {
			return o.Status(), fmt.Errorf("failed to list backups: %w", err)
		}
	} else {
		manifest, err = o.cfg.Backups.Get(name)
		if err != nil {
			return o.Status(), fmt.Errorf("%w: %s", ErrNoBackup, name)
		}
	}
	if manifest == nil {
		return o.Status(), ErrNoBackup
	}

	runID := uuid.New().String()
	logger := log.WithRunID(runID)
	timer := metrics.NewTimer()
	profile := o.cfg.Profiler.Detect()
	current := o.cfg.Releases.CurrentVersion()

	o.session.begin(runID, types.PhaseRollingBack, current, manifest.SourceRevision, &profile)
	o.session.update(func(st *types.SessionStatus) {
		b := *manifest
		st.Backup = &b
	})
	o.session.logf("Restoring backup %s", manifest.Name)

	record := &types.RunRecord{
		ID:          runID,
		Kind:        "rollback",
		FromVersion: current,
		ToVersion:   manifest.SourceRevision,
		Phase:       types.PhaseRollingBack,
		Backup:      manifest.Name,
		StartedAt:   time.Now().UTC(),
	}
	o.saveRecord(record)

	gated, gerr := o.enableGate(logger)
	defer func() {
		if gated {
			o.disableGate(logger)
		}
	}()

	var runErr error
	if gerr != nil {
		uerr := types.NewError(types.ErrRollbackFailed, gerr, "maintenance gate could not be enabled")
		o.session.update(func(st *types.SessionStatus) { st.LastError = uerr })
		o.session.setPhase(types.PhaseFailed, "Rollback aborted: %v", gerr)
		record.Error, record.ErrorKind = uerr.Error(), uerr.Kind
		runErr = uerr
	} else if err := o.cfg.Backups.Restore(manifest); err != nil {
		uerr := types.NewError(types.ErrRollbackFailed, err, "failed to restore backup %s", manifest.Name)
		logger.Error().Err(err).Str("backup", manifest.Name).Msg("Rollback failed")
		o.session.update(func(st *types.SessionStatus) { st.LastError = uerr })
		o.session.setPhase(types.PhaseFailed, "Rollback failed: %v", err)
		record.Error, record.ErrorKind = uerr.Error(), uerr.Kind
		runErr = uerr
	} else {
		restored := o.cfg.Releases.CurrentVersion()
		o.session.update(func(st *types.SessionStatus) {
			st.RolledBack = true
			st.CurrentVersion = restored
		})
		o.restart(ctx, logger, profile)
		o.session.setPhase(types.PhaseRolledBack, "Backup %s restored", manifest.Name)
		record.RolledBack = true
		logger.Info().Str("backup", manifest.Name).Str("version", restored).Msg("Rollback complete")
	}

	o.finish(record, timer)
	o.publish(events.EventRollbackFinished, runID, manifest.Name, map[string]string{
		"phase":  string(record.Phase),
		"backup": manifest.Name,
	})
	return o.Status(), runErr
}

// run is the per-run state threaded through execute
type run struct {
	id      string
	opts    RunOptions
	profile types.DeploymentProfile
	logger  zerolog.Logger
	timer   *metrics.Timer
	record  *types.RunRecord
	backup  *types.BackupManifest
	staged  *Staged
	applier *applier
}

// acquire takes the run lock and the host lock
func (o *Orchestrator) acquire(ctx context.Context) (hostlock.Releaser, error) {
	if !o.runMu.TryLock() {
		return nil, ErrBusy
	}
	release, err := hostlock.Acquire(ctx, o.cfg.HostLockName, o.cfg.HostLockTimeout)
	if err != nil {
		o.runMu.Unlock()
		if errors.Is(err, hostlock.ErrHeld) {
			return nil, ErrBusy
		}
		return nil, err
	}
	return release, nil
}

// begin resets the session for a new run; the run lock must be held
func (o *Orchestrator) begin(runID string, opts RunOptions) *run {
	profile := o.cfg.Profiler.Detect()
	current := o.cfg.Releases.CurrentVersion()

	r := &run{
		id:      runID,
		opts:    opts,
		profile: profile,
		logger:  log.WithRunID(runID),
		timer:   metrics.NewTimer(),
		record: &types.RunRecord{
			ID:          runID,
			Kind:        "update",
			FromVersion: current,
			ToVersion:   opts.Target,
			Phase:       types.PhaseBackingUp,
			StartedAt:   time.Now().UTC(),
		},
	}

	o.session.begin(runID, types.PhaseBackingUp, current, opts.Target, &profile)
	o.session.logf("Starting %s from %s (%s, restart: %s)", opts.Mode, current, profile.Environment, profile.RestartStrategy)
	o.saveRecord(r.record)
	o.publish(events.EventUpdateStarted, runID, opts.Target, map[string]string{
		"mode": string(opts.Mode),
		"from": current,
	})

	r.logger.Info().
		Str("mode", string(opts.Mode)).
		Str("from", current).
		Str("target", opts.Target).
		Str("install_root", profile.InstallRoot).
		Msg("Update run started")
	return r
}

// execute runs the update sequence. The gate is turned off on every exit
// path, including panics.
func (o *Orchestrator) execute(ctx context.Context, r *run) {
	gated, gerr := o.enableGate(r.logger)
	defer func() {
		if gated {
			o.disableGate(r.logger)
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("Update run panicked")
			o.fail(r, types.NewError(types.ErrApplyFailed, nil, "update aborted: %v", p))
		}
	}()
	defer func() { r.staged.Cleanup() }()

	// Nothing is touched unless end users are kept off the service
	if gerr != nil {
		o.fail(r, types.NewError(types.ErrApplyFailed, gerr, "maintenance gate could not be enabled"))
		return
	}

	if err := o.steps(ctx, r); err != nil {
		o.fail(r, err)
		return
	}

	o.session.setPhase(types.PhaseSucceeded, "Updated to %s", r.record.ToVersion)
	r.record.Phase = types.PhaseSucceeded
	o.finish(r.record, r.timer)
	o.publish(events.EventUpdateFinished, r.id, r.record.ToVersion, map[string]string{
		"phase": string(types.PhaseSucceeded),
	})
	r.logger.Info().
		Str("version", r.record.ToVersion).
		Dur("duration", r.timer.Duration()).
		Msg("Update succeeded")
}

func (o *Orchestrator) steps(ctx context.Context, r *run) error {
	// Resolve
	step := metrics.NewTimer()
	rel, err := o.cfg.Releases.Resolve(ctx, r.opts.Target)
	if err != nil {
		return err
	}
	target := rel.LatestVersion
	r.record.ToVersion = target
	o.session.update(func(st *types.SessionStatus) { st.TargetVersion = target })
	o.session.logf("Resolved release %s", target)
	step.ObserveDurationVec(metrics.StepDuration, "resolve")

	// Compatibility
	report := o.cfg.Compat.Check(ctx, target)
	if !report.OK() {
		return types.NewError(types.ErrIncompatibleDependency, nil,
			"incompatible with %s: %v", target, report.Incompatible)
	}
	o.session.logf("Compatibility: %d compatible, %d unknown", len(report.Compatible), len(report.Unknown))

	// Backup
	if r.opts.Mode != ModeFreshInstall {
		step = metrics.NewTimer()
		manifest, err := o.cfg.Backups.Create("")
		if err != nil {
			return types.AsUpdateError(err, types.ErrBackupFailed)
		}
		r.backup = manifest
		r.record.Backup = manifest.Name
		o.session.update(func(st *types.SessionStatus) {
			b := *manifest
			st.Backup = &b
		})
		o.session.logf("Backup %s created", manifest.Name)
		o.publish(events.EventBackupCreated, r.id, manifest.Name, map[string]string{
			"backup": manifest.Name,
		})
		step.ObserveDurationVec(metrics.StepDuration, "backup")
	}

	// Download
	o.setPhase(r, types.PhaseDownloading, "Downloading %s", target)
	step = metrics.NewTimer()
	staged, err := o.cfg.Fetcher.Fetch(ctx, rel.DownloadURL)
	if err != nil {
		return types.AsUpdateError(err, types.ErrNetworkFailure)
	}
	r.staged = staged
	step.ObserveDurationVec(metrics.StepDuration, "download")

	// Apply
	o.setPhase(r, types.PhaseApplying, "Applying %s to %s", target, r.profile.InstallRoot)
	step = metrics.NewTimer()
	r.applier = newApplier(r.profile.InstallRoot, o.cfg.Preserve, o.cfg.FaultInjector)
	written, err := r.applier.apply(staged.Root)
	if err != nil {
		return err
	}
	if err := version.WriteMarker(r.profile.InstallRoot, target); err != nil {
		return types.NewError(types.ErrApplyFailed, err, "failed to record version %s", target)
	}
	o.session.update(func(st *types.SessionStatus) { st.CurrentVersion = target })
	o.session.logf("Applied %d files", written)
	step.ObserveDurationVec(metrics.StepDuration, "apply")

	// Restart failures are logged and never roll back
	o.setPhase(r, types.PhaseRestarting, "Restarting (%s)", r.profile.RestartStrategy)
	o.restart(ctx, r.logger, r.profile)
	return nil
}

// fail records err as the run's error and rolls back when a backup exists
func (o *Orchestrator) fail(r *run, err error) {
	uerr := types.AsUpdateError(err, types.ErrApplyFailed)
	r.logger.Error().Err(uerr).Str("kind", string(uerr.Kind)).Msg("Update failed")

	o.session.update(func(st *types.SessionStatus) { st.LastError = uerr })
	o.session.logf("%s: %s", uerr.Kind, uerr.Message)
	r.record.Error, r.record.ErrorKind = uerr.Error(), uerr.Kind

	if r.backup == nil {
		o.setPhase(r, types.PhaseFailed, "Update failed, nothing to roll back")
	} else {
		o.setPhase(r, types.PhaseRollingBack, "Restoring backup %s", r.backup.Name)
		if rerr := o.cfg.Backups.Restore(r.backup); rerr != nil {
			rb := types.NewError(types.ErrRollbackFailed, rerr, "failed to restore backup %s", r.backup.Name)
			r.logger.Error().Err(rerr).Str("backup", r.backup.Name).Msg("Rollback failed")
			r.record.Error = fmt.Sprintf("%s; %s", r.record.Error, rb.Error())
			o.setPhase(r, types.PhaseFailed, "%s: %s", rb.Kind, rb.Error())
		} else {
			if r.applier != nil {
				if err := r.applier.removeCreated(); err != nil {
					r.logger.Warn().Err(err).Msg("Failed to remove files added by the update")
					o.session.logf("Files added by the update were left in place: %v", err)
				}
			}
			restored := o.cfg.Releases.CurrentVersion()
			o.session.update(func(st *types.SessionStatus) {
				st.RolledBack = true
				st.CurrentVersion = restored
			})
			r.record.RolledBack = true
			o.setPhase(r, types.PhaseRolledBack, "Rolled back to backup %s", r.backup.Name)
			r.logger.Warn().Str("backup", r.backup.Name).Msg("Update rolled back")
		}
	}

	o.finish(r.record, r.timer)
	o.publish(events.EventUpdateFinished, r.id, r.record.ToVersion, map[string]string{
		"phase": string(r.record.Phase),
		"error": string(uerr.Kind),
	})
}

func (o *Orchestrator) setPhase(r *run, phase types.Phase, format string, args ...interface{}) {
	r.record.Phase = phase
	o.session.setPhase(phase, format, args...)
	o.saveRecord(r.record)
}

func (o *Orchestrator) restart(ctx context.Context, logger zerolog.Logger, profile types.DeploymentProfile) {
	err := o.cfg.Restarter.Restart(ctx, profile)
	switch {
	case errors.Is(err, restart.ErrManualRestart):
		o.session.logf("Restart the service manually to load the new release")
		return
	case err != nil:
		logger.Warn().Err(err).Msg("Restart failed, new release stays applied")
		o.session.logf("%s: %v", types.ErrRestartFailed, err)
		return
	}
	o.session.logf("Restart requested")

	if o.cfg.Probe == nil {
		return
	}
	if err := o.cfg.Probe(ctx); err != nil {
		logger.Warn().Err(err).Msg("Service did not become healthy")
		o.session.logf("Health probe failed: %v", err)
		return
	}
	o.session.logf("Service healthy")
}

// enableGate turns the gate on for a run. It reports whether the run owns
// the gate and must turn it off again.
func (o *Orchestrator) enableGate(logger zerolog.Logger) (bool, error) {
	if o.cfg.Gate.IsActive() {
		// An operator turned it on; leave it on afterwards
		o.session.logf("Maintenance gate already on")
		return false, nil
	}
	wasOff, err := o.cfg.Gate.Enable(maintenance.EnableOptions{
		AutoMode:         true,
		EstimatedMinutes: o.cfg.EstimatedMinutes,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to enable maintenance gate")
		o.session.logf("Maintenance gate could not be enabled: %v", err)
		return false, err
	}
	if !wasOff {
		o.session.logf("Maintenance gate already on")
		return false, nil
	}
	o.session.logf("Maintenance gate on")
	o.publish(events.EventMaintenanceEnabled, "", "", map[string]string{"auto": "true"})
	return true, nil
}

func (o *Orchestrator) disableGate(logger zerolog.Logger) {
	if _, err := o.cfg.Gate.Disable(); err != nil {
		logger.Error().Err(err).Msg("Failed to disable maintenance gate")
		o.session.logf("Maintenance gate could not be disabled: %v", err)
		return
	}
	o.session.logf("Maintenance gate off")
	o.publish(events.EventMaintenanceDisabled, "", "", map[string]string{"auto": "true"})
}

func (o *Orchestrator) finish(record *types.RunRecord, timer *metrics.Timer) {
	now := time.Now().UTC()
	record.Phase = o.session.Phase()
	record.FinishedAt = &now
	o.saveRecord(record)
	if record.Kind == "update" {
		timer.ObserveDuration(metrics.UpdateDuration)
	}
}

func (o *Orchestrator) saveRecord(record *types.RunRecord) {
	if o.cfg.Store == nil {
		return
	}
	if err := o.cfg.Store.SaveRun(record); err != nil {
		o.logger.Warn().Err(err).Str("run_id", record.ID).Msg("Failed to save run record")
	}
}

func (o *Orchestrator) phaseChanged(runID string, phase types.Phase) {
	metrics.SetPhase(phase)
	o.publish(events.EventUpdatePhase, runID, string(phase), map[string]string{
		"phase": string(phase),
	})
}

func (o *Orchestrator) publish(typ events.EventType, runID, message string, meta map[string]string) {
	if o.cfg.Broker == nil {
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	if runID != "" {
		meta["run_id"] = runID
	}
	o.cfg.Broker.Publish(&events.Event{
		ID:       uuid.New().String(),
		Type:     typ,
		Message:  message,
		Metadata: meta,
	})
}

// recoverInterrupted cleans up after a process that died mid-run. Nothing
// is touched while another process on the host holds the update lock.
func (o *Orchestrator) recoverInterrupted() {
	lock, err := hostlock.Acquire(context.Background(), o.cfg.HostLockName, o.cfg.HostLockTimeout)
	if err != nil {
		o.logger.Debug().Err(err).Msg("Skipping interrupted run recovery")
		return
	}
	defer lock.Release()

	if o.cfg.Gate.IsActive() && o.cfg.Gate.Config().AutoMode {
		if _, err := o.cfg.Gate.Disable(); err != nil {
			o.logger.Error().Err(err).Msg("Failed to clear maintenance gate left by an interrupted run")
		} else {
			o.logger.Warn().Msg("Cleared maintenance gate left by an interrupted run")
		}
	}

	if o.cfg.Store == nil {
		return
	}
	runs, err := o.cfg.Store.ListRuns(0)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Failed to read run history")
		return
	}
	for _, rec := range runs {
		if rec.FinishedAt != nil || rec.Phase.IsTerminal() {
			continue
		}
		now := time.Now().UTC()
		rec.Phase = types.PhaseFailed
		rec.Error = "interrupted"
		rec.FinishedAt = &now
		o.saveRecord(rec)
		o.logger.Warn().Str("run_id", rec.ID).Msg("Marked interrupted run as failed")
	}
}
