// Package hostlock wraps a juju/mutex machine-wide mutex so the server and
// the standalone CLI never run an update on the same host at the same time.
package hostlock
