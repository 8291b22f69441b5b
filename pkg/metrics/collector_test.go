package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/refit/pkg/events"
	"github.com/cuemby/refit/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetPhase(t *testing.T) {
	SetPhase(types.PhaseApplying)
	assert.Equal(t, 1.0, testutil.ToFloat64(UpdatePhase.WithLabelValues("applying")))
	assert.Equal(t, 0.0, testutil.ToFloat64(UpdatePhase.WithLabelValues("idle")))

	SetPhase(types.PhaseSucceeded)
	assert.Equal(t, 0.0, testutil.ToFloat64(UpdatePhase.WithLabelValues("applying")))
	assert.Equal(t, 1.0, testutil.ToFloat64(UpdatePhase.WithLabelValues("succeeded")))
}

func TestCollector(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	c := NewCollector(broker)
	c.Start()

	before := testutil.ToFloat64(UpdateRunsTotal.WithLabelValues("update", "rolled-back"))

	broker.Publish(&events.Event{
		Type:     events.EventUpdatePhase,
		Metadata: map[string]string{"phase": "rolling-back"},
	})
	broker.Publish(&events.Event{
		Type:     events.EventUpdateFinished,
		Metadata: map[string]string{"phase": "rolled-back"},
	})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(UpdateRunsTotal.WithLabelValues("update", "rolled-back")) == before+1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(UpdatePhase.WithLabelValues("rolling-back")))

	c.Stop()
	assert.Equal(t, 0, broker.SubscriberCount())
}
