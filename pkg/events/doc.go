/*
Package events provides an in-memory event broker for update-subsystem
notifications.

The updater publishes an event on every phase transition and at the start
and end of each run; the metrics Collector and the server's log stream
subscribe to them.

	Publisher → event channel (buffer 100) → broadcast loop → subscribers (buffer 50 each)

Event types:

	update.started        a run acquired the lock (metadata: run_id, target)
	update.phase          phase transition (metadata: run_id, phase)
	update.finished       a run reached a terminal phase (metadata: run_id, phase, error_kind)
	rollback.finished     an operator rollback finished (metadata: backup, phase)
	backup.created        a snapshot was written (metadata: backup)
	release.checked       a release check completed (metadata: latest, update_available)
	maintenance.enabled   the gate was turned on (metadata: auto)
	maintenance.disabled  the gate was turned off

Delivery is best effort. Publish never blocks, and events are dropped for
subscribers whose buffer is full. A nil *Broker accepts and discards events,
so components can be built without one.

Usage:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for event := range sub {
		fmt.Println(event.Type, event.Metadata["phase"])
	}
*/
package events
