/*
Package metrics exposes Prometheus metrics and the process health registry.

Metrics are package-level collectors registered with the default registry in
init and served by Handler:

	refit_update_runs_total{kind,result}       finished runs by final phase
	refit_update_phase{phase}                  1 for the current session phase
	refit_update_duration_seconds              wall time of update runs
	refit_update_step_duration_seconds{step}   compat, backup, download, apply, restart
	refit_backups_total                        snapshots created
	refit_release_checks_total{result}         available, current, error
	refit_maintenance_enabled                  1 while the gate is on
	refit_gated_requests_total                 requests answered with the maintenance page
	refit_api_requests_total{route,status}
	refit_api_request_duration_seconds{route}

Counters that components own (backups, release checks, gated requests) are
incremented inline. Session phase and run outcomes are derived from broker
events by a Collector, so the updater does not depend on this package for
its state machine beyond step timers.

The health registry backs /healthz, /readyz and /livez. Components register
themselves as healthy, unhealthy or degraded; readiness waits for the store,
the maintenance gate and the updater. An open maintenance gate reports the
process as degraded but still healthy.
*/
package metrics
