/*
Package storage provides BoltDB-backed persistence for refit's run history
and release-check cache.

The database lives at <dataDir>/refit.db and holds two buckets:

	runs            RunRecord JSON keyed by run ID
	release_checks  the most recent ReleaseInfo under the key "last"

All values are JSON. Reads use db.View and writes db.Update, so a BoltStore
is safe for concurrent use within one process. bbolt takes an exclusive file
lock, so only one process can hold the database open; NewBoltStore takes a
timeout and callers that run alongside the server (the standalone CLI) treat
a timeout as "history unavailable" rather than a failure.

Usage:

	store, err := storage.NewBoltStore(cfg.DataDir, time.Second)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(10)
*/
package storage
