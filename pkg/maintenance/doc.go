/*
Package maintenance implements the maintenance gate: a persisted on/off flag,
an IP allow list, and an HTTP interceptor that serves a degraded response to
every client not on the list while the flag is set.

# State

The record (types.MaintenanceConfig) is stored as JSON at a fixed path and is
only ever rewritten whole, through Enable or Disable, with a temp file and
rename. A disabled record never carries a start time.

Writers serialize on a mutex. After each write the parsed record is published
through an atomic pointer, so ShouldGate, which runs on every request, reads
a consistent snapshot without waiting for a writer.

# Allow list

Entries are single addresses or CIDR prefixes. Every loopback form is one
identity: "localhost", 127.0.0.1 (and the rest of 127/8), ::1 and IPv4-mapped
loopback all match each other. IPv4-mapped IPv6 addresses are unmapped before
matching and zones are dropped.

# Degraded response

	HTTP/1.1 503 Service Unavailable
	Cache-Control: no-store
	Retry-After: <seconds until estimated end>   (only when an end is set)
	Content-Type: text/html; charset=utf-8

The body is a static page showing the title, message and estimated end.
Configured path prefixes (health checks, the update API) bypass the gate so
operators can watch and drive the update from anywhere.

# Cross-process updates

The standalone CLI and the server share the record. Watch uses fsnotify on
the record's directory and reloads on change, so a gate toggled by
`refit maintenance on` takes effect in a running server immediately.
*/
package maintenance
