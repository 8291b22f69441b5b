/*
Package types defines the data model shared by every refit package.

The model is small on purpose. Each type maps to one concept of the update
subsystem:

  - DeploymentProfile: detected environment, install root and restart strategy.
    Built fresh at the start of each run and never mutated.
  - BackupManifest: metadata for one snapshot of the installation tree. Stored
    as backup.json next to the snapshot and only ever created or deleted.
  - SessionStatus: a copy of the process-wide update session, returned to
    status pollers. The live session lives in pkg/updater behind a lock.
  - MaintenanceConfig: the persisted maintenance gate record. Enabled=false
    always implies StartedAt=nil.
  - CompatibilityReport: three disjoint name lists produced by pkg/compat.
  - ReleaseInfo: outcome of a release check.
  - RunRecord: one entry of the persisted run history.

# Phases

	idle ──check──▶ checking ──▶ idle
	idle ──start──▶ backing-up ──▶ downloading ──▶ applying ──▶ restarting ──▶ succeeded
	                      │               │             │
	                      └───────────────┴─────────────┴──▶ rolling-back ──▶ rolled-back
	                                                     └──▶ failed (no backup yet)

# Errors

UpdateError carries an ErrorKind so the orchestrator, the HTTP layer and the
CLI classify failures the same way:

	if types.KindOf(err) == types.ErrApplyFailed {
		// disk was modified, a rollback was attempted
	}
*/
package types
