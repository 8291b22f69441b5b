package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/refit/pkg/config"
	"github.com/cuemby/refit/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	flags := cmd.Flags()
	flags.String("config", "", "")
	flags.String("data-dir", "", "")
	flags.String("install-root", "", "")
	require.NoError(t, flags.Parse(args))
	return cmd
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: /srv/refit\nretention: 2\n"), 0644))

	cfg, err := loadConfig(testCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "/srv/refit", cfg.DataDir)
	assert.Equal(t, 2, cfg.Retention)

	cfg, err = loadConfig(testCommand(t, "--config", path, "--data-dir", dir, "--install-root", "/opt/app"))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "/opt/app", cfg.InstallRoot)

	_, err = loadConfig(testCommand(t, "--install-root", "relative/path"))
	assert.Error(t, err)
}

func TestPIDSource(t *testing.T) {
	assert.Equal(t, os.Getpid(), pidSource("")())

	dir := t.TempDir()
	valid := filepath.Join(dir, "app.pid")
	require.NoError(t, os.WriteFile(valid, []byte("4242\n"), 0644))
	assert.Equal(t, 4242, pidSource(valid)())

	garbage := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pid"), 0644))
	assert.Equal(t, 0, pidSource(garbage)())
	assert.Equal(t, 0, pidSource(filepath.Join(dir, "missing.pid"))())
}

func TestHealthProbeDisabled(t *testing.T) {
	assert.Nil(t, healthProbe("", time.Second))
	assert.NotNil(t, healthProbe("http://127.0.0.1:1/healthz", time.Second))
}

func TestRunResult(t *testing.T) {
	tests := []struct {
		name    string
		status  types.SessionStatus
		wantErr string
	}{
		{name: "succeeded", status: types.SessionStatus{Phase: types.PhaseSucceeded}},
		{
			name: "rolled back",
			status: types.SessionStatus{
				Phase:      types.PhaseRolledBack,
				RolledBack: true,
				LastError:  types.NewError(types.ErrApplyFailed, nil, "disk full"),
			},
			wantErr: "update failed and was rolled back: ApplyFailed",
		},
		{
			name: "failed without backup",
			status: types.SessionStatus{
				Phase:     types.PhaseFailed,
				LastError: types.NewError(types.ErrNetworkFailure, nil, "timeout"),
			},
			wantErr: "update failed: NetworkFailure",
		},
		{
			name:    "unexpected phase",
			status:  types.SessionStatus{Phase: types.PhaseIdle},
			wantErr: "update ended in phase idle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runResult(tt.status)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestNewStackWithoutReleaseFeed(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.InstallRoot = t.TempDir()
	cfg.HostLockName = ""

	_, err := newStack(cfg, nil)
	assert.ErrorContains(t, err, "owner and repository")
}

func TestNewStack(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.InstallRoot = t.TempDir()
	cfg.HostLockName = ""
	cfg.Release.Owner = "acme"
	cfg.Release.Repository = "whisper"

	st, err := newStack(cfg, nil)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, cfg.InstallRoot, st.installRoot)
	assert.NotNil(t, st.store)
	assert.False(t, st.gate.IsActive())
	assert.Equal(t, types.PhaseIdle, st.orch.Status().Phase)

	var out bytes.Buffer
	printProfile(&out, st.profiler.Detect())
	assert.Contains(t, out.String(), cfg.InstallRoot)
}
