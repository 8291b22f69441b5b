package hostlock

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"
)

// ErrHeld is returned when another process holds the lock past the timeout
var ErrHeld = errors.New("another update is running on this host")

var validName = regexp.MustCompile(`^[a-z]+[a-z0-9.-]*$`)

// Releaser releases an acquired lock
type Releaser interface {
	Release()
}

type noopReleaser struct{}

func (noopReleaser) Release() {}

// Acquire takes the machine-wide lock called name, waiting up to timeout.
// An empty name disables host locking and always succeeds.
func Acquire(ctx context.Context, name string, timeout time.Duration) (Releaser, error) {
	if name == "" {
		return noopReleaser{}, nil
	}
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid host lock name %q", name)
	}

	spec := mutex.Spec{
		Name:    name,
		Clock:   clock.WallClock,
		Delay:   50 * time.Millisecond,
		Timeout: timeout,
		Cancel:  ctx.Done(),
	}
	releaser, err := mutex.Acquire(spec)
	switch {
	case err == nil:
		return releaser, nil
	case errors.Is(err, mutex.ErrTimeout):
		return nil, ErrHeld
	case errors.Is(err, mutex.ErrCancelled):
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("failed to acquire host lock: %w", err)
}
