// Package health probes a service after it has been restarted onto a new
// release. Checkers speak HTTP (2xx/3xx is healthy, so a maintenance 503 is
// not) or plain TCP, and WaitHealthy polls one until it reports a number of
// consecutive successes or its deadline passes.
package health
