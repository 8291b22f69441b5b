package updater

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/refit/pkg/backup"
	"github.com/cuemby/refit/pkg/events"
	"github.com/cuemby/refit/pkg/maintenance"
	"github.com/cuemby/refit/pkg/storage"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleases struct {
	mu       sync.Mutex
	root     string
	latest   string
	err      error
	checks   int
	resolved []string
}

func (f *fakeReleases) CurrentVersion() string {
	return version.Current(f.root)
}

func (f *fakeReleases) CheckForUpdate(ctx context.Context) (*types.ReleaseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.err != nil {
		return nil, f.err
	}
	current := f.CurrentVersion()
	return &types.ReleaseInfo{
		CurrentVersion:  current,
		LatestVersion:   f.latest,
		UpdateAvailable: version.Newer(current, f.latest),
		CheckedAt:       time.Now().UTC(),
	}, nil
}

func (f *fakeReleases) Resolve(ctx context.Context, target string) (*types.ReleaseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if target == "" {
		target = f.latest
	}
	f.resolved = append(f.resolved, target)
	return &types.ReleaseInfo{
		LatestVersion: version.Normalize(target),
		DownloadURL:   "https://example.invalid/" + target + ".tar.gz",
	}, nil
}

type fakeProfiler struct {
	root string
}

func (f fakeProfiler) Detect() types.DeploymentProfile {
	return types.DeploymentProfile{
		Environment:     types.EnvironmentHostService,
		InstallRoot:     f.root,
		RestartStrategy: types.RestartServiceManager,
		ServiceName:     "app.service",
	}
}

type fakeCompat struct {
	incompatible []string
}

func (f fakeCompat) Check(ctx context.Context, target string) types.CompatibilityReport {
	return types.CompatibilityReport{TargetVersion: target, Incompatible: f.incompatible}
}

type fakeRestarter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRestarter) Restart(ctx context.Context, profile types.DeploymentProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeRestarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFetcher struct {
	root  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*Staged, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Staged{Root: f.root}, nil
}

type harness struct {
	root      string
	staged    string
	releases  *fakeReleases
	backups   *backup.Manager
	gate      *maintenance.Gate
	restarter *fakeRestarter
	fetcher   *fakeFetcher
	store     *storage.BoltStore
	cfg       Config
}

// newHarness builds an installation at 1.2.0 and a staged 1.3.0 release
func newHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()

	root := filepath.Join(base, "app")
	writeTree(t, root, map[string]string{
		"VERSION":        "1.2.0\n",
		"app.py":         "print('1.2.0')\n",
		"lib/util.py":    "old util\n",
		"data/db.sqlite": "live data\n",
		".env":           "SECRET=live\n",
	})

	staged := filepath.Join(base, "staged", "app-1.3.0")
	writeTree(t, staged, map[string]string{
		"app.py":         "print('1.3.0')\n",
		"lib/util.py":    "new util\n",
		"lib/extra.py":   "extra\n",
		"data/db.sqlite": "release seed\n",
		"data/seed.json": "{}\n",
		".env":           "SECRET=release\n",
	})

	backups, err := backup.NewManager(backup.Config{
		InstallRoot: root,
		Root:        filepath.Join(base, "backups"),
		Retention:   5,
	})
	require.NoError(t, err)

	gate, err := maintenance.NewGate(filepath.Join(base, "maintenance.json"), maintenance.Options{})
	require.NoError(t, err)

	store, err := storage.NewBoltStore(filepath.Join(base, "state"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		root:      root,
		staged:    staged,
		releases:  &fakeReleases{root: root, latest: "1.3.0"},
		backups:   backups,
		gate:      gate,
		restarter: &fakeRestarter{},
		fetcher:   &fakeFetcher{root: staged},
		store:     store,
	}
	h.cfg = Config{
		Releases:  h.releases,
		Profiler:  fakeProfiler{root: root},
		Backups:   backups,
		Compat:    fakeCompat{},
		Gate:      gate,
		Restarter: h.restarter,
		Fetcher:   h.fetcher,
		Store:     store,
		Preserve:  []string{"data", ".env", "VERSION"},
	}
	return h
}

func (h *harness) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(h.cfg)
	require.NoError(t, err)
	return o
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestRunSucceeds(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.PhaseSucceeded, status.Phase)
	assert.Equal(t, "1.3.0", version.ReadMarker(h.root))
	assert.Equal(t, "1.3.0", status.CurrentVersion)
	assert.Nil(t, status.LastError)
	assert.False(t, status.RolledBack)
	require.NotNil(t, status.Backup)

	manifests, err := h.backups.List()
	require.NoError(t, err)
	assert.Len(t, manifests, 1)

	tree := readTree(t, h.root)
	assert.Equal(t, "print('1.3.0')\n", tree["app.py"])
	assert.Equal(t, "new util\n", tree["lib/util.py"])
	assert.Equal(t, "extra\n", tree["lib/extra.py"])
	assert.Equal(t, "live data\n", tree["data/db.sqlite"], "preserved file must keep live content")
	assert.Equal(t, "{}\n", tree["data/seed.json"], "new files under preserved paths are added")
	assert.Equal(t, "SECRET=live\n", tree[".env"])

	assert.False(t, h.gate.IsActive())
	assert.Equal(t, 1, h.restarter.count())

	runs, err := h.store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.PhaseSucceeded, runs[0].Phase)
	assert.Equal(t, "1.2.0", runs[0].FromVersion)
	assert.Equal(t, "1.3.0", runs[0].ToVersion)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestApplyFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	before := readTree(t, h.root)

	h.cfg.FaultInjector = func(rel string) error {
		if rel == "lib/util.py" {
			return errors.New("disk full")
		}
		return nil
	}
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.ErrApplyFailed, types.KindOf(err))

	assert.Equal(t, types.PhaseRolledBack, status.Phase)
	assert.True(t, status.RolledBack)
	require.NotNil(t, status.LastError)
	assert.Equal(t, types.ErrApplyFailed, status.LastError.Kind)

	assert.Equal(t, before, readTree(t, h.root))
	assert.Equal(t, "1.2.0", version.ReadMarker(h.root))
	assert.False(t, h.gate.IsActive())
	assert.False(t, h.gate.Config().Enabled)
	assert.Equal(t, 0, h.restarter.count())
}

func TestApplyPanicRollsBack(t *testing.T) {
	h := newHarness(t)
	before := readTree(t, h.root)

	h.cfg.FaultInjector = func(rel string) error {
		if rel == "app.py" {
			panic("boom")
		}
		return nil
	}
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.PhaseRolledBack, status.Phase)
	assert.Equal(t, before, readTree(t, h.root))
	assert.False(t, h.gate.IsActive())
}

func TestRollbackFailureKeepsOriginalError(t *testing.T) {
	h := newHarness(t)
	h.cfg.FaultInjector = func(rel string) error {
		if rel != "lib/util.py" {
			return nil
		}
		latest, err := h.backups.Latest()
		if err != nil || latest == nil {
			return errors.New("no backup")
		}
		os.RemoveAll(filepath.Join(latest.Path, "tree"))
		return errors.New("disk full")
	}
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.Equal(t, types.PhaseFailed, status.Phase)
	assert.False(t, status.RolledBack)
	require.NotNil(t, status.LastError)
	assert.Equal(t, types.ErrApplyFailed, status.LastError.Kind)
	assert.False(t, h.gate.IsActive())

	var logged bool
	for _, entry := range status.Log {
		if entry.Phase == types.PhaseFailed && strings.HasPrefix(entry.Message, string(types.ErrRollbackFailed)) {
			logged = true
		}
	}
	assert.True(t, logged, "rollback failure must be recorded in the session log")

	runs, err := h.store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, string(types.ErrRollbackFailed))
}

func TestFailuresBeforeBackup(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, h *harness)
		wantKind types.ErrorKind
	}{
		{
			name: "release unreachable",
			setup: func(t *testing.T, h *harness) {
				h.releases.err = types.NewError(types.ErrNetworkFailure, errors.New("timeout"), "failed to fetch release")
			},
			wantKind: types.ErrNetworkFailure,
		},
		{
			name:     "incompatible dependency",
			setup:    func(t *testing.T, h *harness) { h.cfg.Compat = fakeCompat{incompatible: []string{"plugins/legacy"}} },
			wantKind: types.ErrIncompatibleDependency,
		},
		{
			name: "backup failure",
			setup: func(t *testing.T, h *harness) {
				blocker := filepath.Join(t.TempDir(), "file")
				require.NoError(t, os.WriteFile(blocker, nil, 0644))
				m, err := backup.NewManager(backup.Config{
					InstallRoot: h.root,
					Root:        filepath.Join(blocker, "backups"),
				})
				require.NoError(t, err)
				h.cfg.Backups = m
			},
			wantKind: types.ErrBackupFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			before := readTree(t, h.root)
			tt.setup(t, h)
			o := h.orchestrator(t)

			status, err := o.Run(context.Background(), RunOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, types.KindOf(err))
			assert.Equal(t, types.PhaseFailed, status.Phase)
			assert.False(t, status.RolledBack)
			assert.Nil(t, status.Backup)
			assert.Equal(t, before, readTree(t, h.root))
			assert.False(t, h.gate.IsActive())
			assert.Equal(t, 0, h.fetcher.calls)
		})
	}
}

func TestDownloadFailureAfterBackupRollsBack(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = types.NewError(types.ErrNetworkFailure, errors.New("reset"), "failed to download release")
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.ErrNetworkFailure, types.KindOf(err))
	assert.Equal(t, types.PhaseRolledBack, status.Phase)
	assert.Equal(t, "1.2.0", version.ReadMarker(h.root))
	assert.False(t, h.gate.IsActive())
}

func TestRetentionAcrossRuns(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)

	for i := 0; i < 6; i++ {
		status, err := o.Run(context.Background(), RunOptions{Target: "1.3.0"})
		require.NoError(t, err)
		require.Equal(t, types.PhaseSucceeded, status.Phase)
	}

	manifests, err := h.backups.List()
	require.NoError(t, err)
	assert.Len(t, manifests, 5)

	runs, err := o.History(0)
	require.NoError(t, err)
	assert.Len(t, runs, 6)
}

func TestFreshInstallSkipsBackup(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.RemoveAll(h.root))
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{Mode: ModeFreshInstall})
	require.NoError(t, err)
	assert.Equal(t, types.PhaseSucceeded, status.Phase)
	assert.Nil(t, status.Backup)
	assert.Equal(t, "1.3.0", version.ReadMarker(h.root))
	assert.Equal(t, "release seed\n", readTree(t, h.root)["data/db.sqlite"])

	manifests, err := h.backups.List()
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestRestartFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.restarter.err = types.NewError(types.ErrRestartFailed, errors.New("unit not found"), "failed to restart app.service")
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.PhaseSucceeded, status.Phase)
	assert.Equal(t, "1.3.0", version.ReadMarker(h.root))
}

func TestHealthProbeIsNotFatal(t *testing.T) {
	h := newHarness(t)
	probed := false
	h.cfg.Probe = func(ctx context.Context) error {
		probed = true
		return errors.New("connection refused")
	}
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, probed)
	assert.Equal(t, types.PhaseSucceeded, status.Phase)
}

func TestStartRunsInBackground(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)

	result, err := o.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StartStarted, result.Status)
	assert.NotEmpty(t, result.RunID)

	require.Eventually(t, func() bool {
		return o.Status().Phase.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	status := o.Status()
	assert.Equal(t, result.RunID, status.RunID)
	assert.Equal(t, types.PhaseSucceeded, status.Phase)

	// The lock is released once the run finishes
	require.Eventually(t, func() bool {
		if !o.runMu.TryLock() {
			return false
		}
		o.runMu.Unlock()
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestBusyRejectionLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)

	o.runMu.Lock()
	defer o.runMu.Unlock()

	before := o.Status()

	result, err := o.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StartBusy, result.Status)
	assert.Empty(t, result.RunID)

	_, err = o.Check(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	_, err = o.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	_, err = o.Rollback(context.Background(), "")
	assert.ErrorIs(t, err, ErrBusy)

	assert.Equal(t, before, o.Status())
	assert.Equal(t, 0, h.fetcher.calls)
	assert.Equal(t, 0, h.releases.checks)
}

func TestCheck(t *testing.T) {
	t.Run("no update leaves the session unchanged", func(t *testing.T) {
		h := newHarness(t)
		h.releases.latest = "1.2.0"
		o := h.orchestrator(t)
		before := o.Status()

		info, err := o.Check(context.Background())
		require.NoError(t, err)
		assert.False(t, info.UpdateAvailable)
		assert.Equal(t, before, o.Status())
	})

	t.Run("update found records the target", func(t *testing.T) {
		h := newHarness(t)
		o := h.orchestrator(t)

		info, err := o.Check(context.Background())
		require.NoError(t, err)
		assert.True(t, info.UpdateAvailable)

		status := o.Status()
		assert.Equal(t, types.PhaseIdle, status.Phase)
		assert.Equal(t, "1.3.0", status.TargetVersion)
		require.NotNil(t, status.LastCheck)
		assert.Equal(t, "1.3.0", status.LastCheck.LatestVersion)
	})

	t.Run("network failure leaves the session unchanged", func(t *testing.T) {
		h := newHarness(t)
		h.releases.err = types.NewError(types.ErrNetworkFailure, nil, "unreachable")
		o := h.orchestrator(t)
		before := o.Status()

		_, err := o.Check(context.Background())
		assert.Equal(t, types.ErrNetworkFailure, types.KindOf(err))
		assert.Equal(t, before, o.Status())
	})
}

func TestOperatorRollback(t *testing.T) {
	h := newHarness(t)
	before := readTree(t, h.root)
	o := h.orchestrator(t)

	_, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, "1.3.0", version.ReadMarker(h.root))

	status, err := o.Rollback(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseRolledBack, status.Phase)
	assert.True(t, status.RolledBack)
	assert.Equal(t, "1.2.0", status.CurrentVersion)
	assert.Equal(t, "1.2.0", version.ReadMarker(h.root))
	assert.Equal(t, before["app.py"], readTree(t, h.root)["app.py"])
	assert.False(t, h.gate.IsActive())

	runs, err := o.History(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "rollback", runs[0].Kind)
}

func TestOperatorRollbackErrors(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)

	_, err := o.Rollback(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoBackup)

	_, err = o.Rollback(context.Background(), "backup-missing")
	assert.ErrorIs(t, err, ErrNoBackup)
	assert.Equal(t, types.PhaseIdle, o.Status().Phase)
}

func TestOperatorGateStaysOn(t *testing.T) {
	h := newHarness(t)
	_, err := h.gate.Enable(maintenance.EnableOptions{Message: "planned work"})
	require.NoError(t, err)
	o := h.orchestrator(t)

	_, err = o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, h.gate.IsActive())
	assert.Equal(t, "planned work", h.gate.Config().Message)
}

func TestRecoverInterruptedRun(t *testing.T) {
	h := newHarness(t)

	_, err := h.gate.Enable(maintenance.EnableOptions{AutoMode: true})
	require.NoError(t, err)
	require.NoError(t, h.store.SaveRun(&types.RunRecord{
		ID:        "stale",
		Kind:      "update",
		Phase:     types.PhaseApplying,
		StartedAt: time.Now().UTC(),
	}))

	h.orchestrator(t)

	assert.False(t, h.gate.IsActive())
	rec, err := h.store.GetRun("stale")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseFailed, rec.Phase)
	assert.NotNil(t, rec.FinishedAt)
}

func TestPhaseEvents(t *testing.T) {
	h := newHarness(t)
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	h.cfg.Broker = broker
	o := h.orchestrator(t)

	_, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	var phases []string
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-sub:
			if ev.Type == events.EventUpdatePhase {
				phases = append(phases, ev.Metadata["phase"])
			}
			if ev.Type == events.EventUpdateFinished {
				done = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}

	assert.Equal(t, []string{"backing-up", "downloading", "applying", "restarting", "succeeded"}, phases)
}

func TestNewRequiresDependencies(t *testing.T) {
	h := newHarness(t)
	cfg := h.cfg
	cfg.Fetcher = nil
	_, err := New(cfg)
	assert.Error(t, err)
}

// readOnlyGate refuses to turn on, like a gate whose record sits on a
// read-only filesystem
type readOnlyGate struct {
	*maintenance.Gate
}

func (g readOnlyGate) Enable(opts maintenance.EnableOptions) (bool, error) {
	return false, errors.New("read-only filesystem")
}

func TestGateFailureAbortsBeforeBackup(t *testing.T) {
	h := newHarness(t)
	before := readTree(t, h.root)
	h.cfg.Gate = readOnlyGate{h.gate}
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.ErrApplyFailed, types.KindOf(err))

	assert.Equal(t, types.PhaseFailed, status.Phase)
	assert.False(t, status.RolledBack)
	assert.Nil(t, status.Backup)
	require.NotNil(t, status.LastError)
	assert.Contains(t, status.LastError.Error(), "read-only filesystem")

	assert.Equal(t, before, readTree(t, h.root))
	assert.Equal(t, "1.2.0", version.ReadMarker(h.root))
	assert.Equal(t, 0, h.fetcher.calls)
	assert.Equal(t, 0, h.restarter.count())

	manifests, err := h.backups.List()
	require.NoError(t, err)
	assert.Empty(t, manifests)

	runs, err := h.store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.PhaseFailed, runs[0].Phase)
	assert.Equal(t, types.ErrApplyFailed, runs[0].ErrorKind)
}

func TestGateFailureAbortsOperatorRollback(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)
	_, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	h.cfg.Gate = readOnlyGate{h.gate}
	o = h.orchestrator(t)

	status, err := o.Rollback(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, types.ErrRollbackFailed, types.KindOf(err))
	assert.Equal(t, types.PhaseFailed, status.Phase)
	assert.Equal(t, "1.3.0", version.ReadMarker(h.root), "nothing is restored without the gate")
}

func listDirs(t *testing.T, root string) []string {
	t.Helper()
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		dirs = append(dirs, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	return dirs
}

func TestRollbackRemovesCreatedDirectories(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.staged, map[string]string{
		"newpkg/sub/mod.py": "module\n",
		"zz_last.py":        "last\n",
	})
	beforeFiles := readTree(t, h.root)
	beforeDirs := listDirs(t, h.root)

	h.cfg.FaultInjector = func(rel string) error {
		if rel == "zz_last.py" {
			return errors.New("disk full")
		}
		return nil
	}
	o := h.orchestrator(t)

	status, err := o.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.PhaseRolledBack, status.Phase)

	assert.NoDirExists(t, filepath.Join(h.root, "newpkg"))
	assert.Equal(t, beforeDirs, listDirs(t, h.root))
	assert.Equal(t, beforeFiles, readTree(t, h.root))
}
