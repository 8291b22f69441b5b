package metrics

import (
	"github.com/cuemby/refit/pkg/events"
	"github.com/cuemby/refit/pkg/types"
)

var allPhases = []types.Phase{
	types.PhaseIdle, types.PhaseChecking, types.PhaseBackingUp, types.PhaseDownloading,
	types.PhaseApplying, types.PhaseRestarting, types.PhaseSucceeded, types.PhaseFailed,
	types.PhaseRollingBack, types.PhaseRolledBack,
}

// Collector turns broker events into metric updates
type Collector struct {
	broker *events.Broker
	sub    events.Subscriber
	doneCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(broker *events.Broker) *Collector {
	return &Collector{
		broker: broker,
		doneCh: make(chan struct{}),
	}
}

// Start subscribes to the broker and begins collecting
func (c *Collector) Start() {
	SetPhase(types.PhaseIdle)
	c.sub = c.broker.Subscribe()

	go func() {
		defer close(c.doneCh)
		for event := range c.sub {
			c.handle(event)
		}
	}()
}

// Stop unsubscribes and waits for pending events to be handled
func (c *Collector) Stop() {
	if c.sub == nil {
		return
	}
	c.broker.Unsubscribe(c.sub)
	<-c.doneCh
}

func (c *Collector) handle(event *events.Event) {
	switch event.Type {
	case events.EventUpdatePhase:
		SetPhase(types.Phase(event.Metadata["phase"]))
	case events.EventUpdateFinished:
		UpdateRunsTotal.WithLabelValues("update", event.Metadata["phase"]).Inc()
	case events.EventRollbackFinished:
		UpdateRunsTotal.WithLabelValues("rollback", event.Metadata["phase"]).Inc()
	}
}

// SetPhase marks phase as the current session phase
func SetPhase(phase types.Phase) {
	for _, p := range allPhases {
		v := 0.0
		if p == phase {
			v = 1
		}
		UpdatePhase.WithLabelValues(string(p)).Set(v)
	}
}
