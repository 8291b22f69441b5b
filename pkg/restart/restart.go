package restart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/types"
	"github.com/rs/zerolog"
)

// ExitCodeRestart is the exit status used to hand the restart to a container
// runtime. It is non-zero so on-failure restart policies apply too.
const ExitCodeRestart = 75

// DefaultDelay leaves time for the run to finish and the gate to open
// before the process goes away
const DefaultDelay = 2 * time.Second

// ErrManualRestart is returned when no automatic restart is possible
var ErrManualRestart = errors.New("automatic restart not available, restart the service manually")

// UnitRestarter is the subset of the systemd D-Bus API used here
type UnitRestarter interface {
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

// Options configures a Restarter. Zero values select the real host
// implementations.
type Options struct {
	// Delay postpones exit and self-signal restarts
	Delay time.Duration
	// PID is the process signalled by the signal-self strategy
	PID func() int
	// Exit terminates the process for the container-restart strategy
	Exit func(code int)
	// Signal delivers sig to pid
	Signal func(pid int, sig syscall.Signal) error
	// Connect opens the systemd D-Bus connection
	Connect func(ctx context.Context) (UnitRestarter, error)
	// After schedules f; replaced in tests to run synchronously
	After func(d time.Duration, f func())
}

// Restarter restarts the service according to a deployment profile
type Restarter struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a Restarter
func New(opts Options) *Restarter {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.PID == nil {
		opts.PID = os.Getpid
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Signal == nil {
		opts.Signal = syscall.Kill
	}
	if opts.Connect == nil {
		opts.Connect = func(ctx context.Context) (UnitRestarter, error) {
			return dbus.NewSystemConnectionContext(ctx)
		}
	}
	if opts.After == nil {
		opts.After = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Restarter{
		opts:   opts,
		logger: log.WithComponent("restart"),
	}
}

// Restart brings the service back on the new release. Exit and signal based
// strategies are scheduled after a delay and return immediately; failures
// are reported as RestartFailed.
func (r *Restarter) Restart(ctx context.Context, profile types.DeploymentProfile) error {
	logger := r.logger.With().Str("strategy", string(profile.RestartStrategy)).Logger()

	switch profile.RestartStrategy {
	case types.RestartServiceManager:
		if profile.ServiceName == "" {
			return types.NewError(types.ErrRestartFailed, nil, "no systemd unit configured")
		}
		if err := r.restartUnit(ctx, profile.ServiceName); err != nil {
			return types.NewError(types.ErrRestartFailed, err, "failed to restart %s", profile.ServiceName)
		}
		logger.Info().Str("unit", profile.ServiceName).Msg("Service restarted")
		return nil

	case types.RestartContainerRestart:
		logger.Info().Dur("delay", r.opts.Delay).Msg("Exiting for container runtime restart")
		r.opts.After(r.opts.Delay, func() {
			r.opts.Exit(ExitCodeRestart)
		})
		return nil

	case types.RestartSignalSelf:
		pid := r.opts.PID()
		if pid <= 0 {
			return types.NewError(types.ErrRestartFailed, nil, "no process to signal")
		}
		logger.Info().Int("pid", pid).Dur("delay", r.opts.Delay).Msg("Sending SIGHUP")
		r.opts.After(r.opts.Delay, func() {
			if err := r.opts.Signal(pid, syscall.SIGHUP); err != nil {
				logger.Error().Err(err).Int("pid", pid).Msg("Failed to signal process")
			}
		})
		return nil

	default:
		logger.Warn().Msg("Restart the service manually to load the new release")
		return ErrManualRestart
	}
}

func (r *Restarter) restartUnit(ctx context.Context, unit string) error {
	conn, err := r.opts.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	statusCh := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, unit, "replace", statusCh); err != nil {
		return fmt.Errorf("dbus restart request failed: %w", err)
	}

	select {
	case status := <-statusCh:
		if status != "done" {
			return fmt.Errorf("restart job finished with status %q", status)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
