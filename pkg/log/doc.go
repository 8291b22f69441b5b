/*
Package log provides structured logging for refit using zerolog.

A single package-level zerolog.Logger is configured once by log.Init from the
CLI flags (--log-level, --json-logs). Components derive child loggers with
WithComponent so every line carries a "component" field; update runs use
WithRunID so all lines of one run can be grepped together.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

	logger := log.WithComponent("backup")
	logger.Info().
		Str("name", manifest.Name).
		Int64("size_bytes", manifest.SizeBytes).
		Msg("Backup created")

	runLog := log.WithRunID(runID)
	runLog.Error().Err(err).Str("phase", "applying").Msg("Apply failed")

# Output

JSON (production, one object per line):

	{"level":"info","component":"backup","name":"backup-20240101-120000.000000000","time":"...","message":"Backup created"}

Console (default for interactive CLI use):

	2024-01-01T12:00:00Z INF Backup created component=backup name=backup-20240101-120000.000000000

Logs go to stderr so that CLI commands can print machine-readable output on
stdout.
*/
package log
