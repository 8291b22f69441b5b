package restart

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/cuemby/refit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	unit   string
	mode   string
	status string
	err    error
	closed bool
}

func (f *fakeConn) RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error) {
	f.unit, f.mode = name, mode
	if f.err != nil {
		return 0, f.err
	}
	ch <- f.status
	return 1, nil
}

func (f *fakeConn) Close() { f.closed = true }

func syncAfter(d time.Duration, f func()) { f() }

func TestServiceManager(t *testing.T) {
	tests := []struct {
		name    string
		conn    *fakeConn
		dialErr error
		unit    string
		wantErr bool
	}{
		{name: "done", conn: &fakeConn{status: "done"}, unit: "app.service"},
		{name: "job failed", conn: &fakeConn{status: "failed"}, unit: "app.service", wantErr: true},
		{name: "request error", conn: &fakeConn{err: errors.New("access denied")}, unit: "app.service", wantErr: true},
		{name: "no bus", dialErr: errors.New("no such file"), unit: "app.service", wantErr: true},
		{name: "no unit", conn: &fakeConn{status: "done"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Options{Connect: func(ctx context.Context) (UnitRestarter, error) {
				if tt.dialErr != nil {
					return nil, tt.dialErr
				}
				return tt.conn, nil
			}})

			err := r.Restart(context.Background(), types.DeploymentProfile{
				RestartStrategy: types.RestartServiceManager,
				ServiceName:     tt.unit,
			})
			if tt.wantErr {
				assert.Equal(t, types.ErrRestartFailed, types.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "app.service", tt.conn.unit)
			assert.Equal(t, "replace", tt.conn.mode)
			assert.True(t, tt.conn.closed)
		})
	}
}

func TestContainerRestartExits(t *testing.T) {
	code := -1
	r := New(Options{After: syncAfter, Exit: func(c int) { code = c }})

	err := r.Restart(context.Background(), types.DeploymentProfile{RestartStrategy: types.RestartContainerRestart})
	require.NoError(t, err)
	assert.Equal(t, ExitCodeRestart, code)
}

func TestSignalSelf(t *testing.T) {
	var gotPID int
	var gotSig syscall.Signal
	r := New(Options{
		After: syncAfter,
		PID:   func() int { return 4242 },
		Signal: func(pid int, sig syscall.Signal) error {
			gotPID, gotSig = pid, sig
			return nil
		},
	})

	err := r.Restart(context.Background(), types.DeploymentProfile{RestartStrategy: types.RestartSignalSelf})
	require.NoError(t, err)
	assert.Equal(t, 4242, gotPID)
	assert.Equal(t, syscall.SIGHUP, gotSig)
}

func TestDelayedRestartIsScheduled(t *testing.T) {
	var delay time.Duration
	exited := false
	r := New(Options{
		Delay: 5 * time.Second,
		After: func(d time.Duration, f func()) { delay = d },
		Exit:  func(int) { exited = true },
	})

	require.NoError(t, r.Restart(context.Background(), types.DeploymentProfile{RestartStrategy: types.RestartContainerRestart}))
	assert.Equal(t, 5*time.Second, delay)
	assert.False(t, exited, "exit must wait for the scheduled delay")
}

func TestManualOnly(t *testing.T) {
	r := New(Options{})
	err := r.Restart(context.Background(), types.DeploymentProfile{RestartStrategy: types.RestartManualOnly})
	assert.ErrorIs(t, err, ErrManualRestart)
}
