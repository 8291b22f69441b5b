/*
Package api implements the HTTP surface of refit serve.

The server is a thin layer over the update orchestrator and the maintenance
gate. Every route maps onto one orchestrator or gate operation; no update
logic lives here.

# Routes

	GET    /api/update/check     release check, rate limited (429 when exhausted)
	POST   /api/update/start     start a run in the background (202, or 409 when busy)
	GET    /api/update/status    session snapshot
	GET    /api/update/backups   retained snapshots, newest first
	GET    /api/update/history   past runs (?limit=N, default 20)
	POST   /api/update/rollback  restore ?name= or the newest snapshot
	GET    /api/maintenance      gate record
	POST   /api/maintenance      enable the gate as an operator
	DELETE /api/maintenance      disable the gate
	GET    /healthz /readyz /livez /metrics

Start accepts the target version either as {"version": "..."} or as a
?version= query parameter; an empty version means the latest release.

Errors are returned as {"error": "...", "kind": "..."} where kind is the
update error classification when there is one.

# Maintenance gate

The whole mux sits behind the gate middleware. Paths listed as bypass
prefixes in the gate options (the update API and the probes by default)
are always served. When an upstream URL is configured, every other path is
reverse proxied to it, so refit serve can front the application and answer
with the maintenance page while an update runs.

# Metrics

Each route records refit_api_requests_total{route,status} and
refit_api_request_duration_seconds{route}. Health and readiness refresh the
maintenance and updater components of the health registry before answering.
*/
package api
