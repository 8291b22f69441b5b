/*
Package updater sequences a guarded self-update of the installation.

An Orchestrator owns the process-wide update Session and runs at most one
operation at a time. Check, Start, Run and Rollback all take the same run
lock with TryLock; a held lock is reported as busy and leaves the session
untouched. When a host lock name is configured the machine-wide lock from
package hostlock is taken as well, so a CLI update and a server-initiated
update on the same host exclude each other.

# Run sequence

	backing-up   gate on, resolve release, compatibility check, backup
	downloading  fetch the tarball and extract it into a staging directory
	applying     replace live files one by one, write the version marker
	restarting   restart per deployment profile, optional health probe
	succeeded

A failure after the backup was taken moves to rolling-back, restores the
backup and removes files the apply added, ending in rolled-back. Without a
backup, or when the restore itself fails, the run ends in failed. LastError
always carries the first failure. Restart and probe failures are logged and
never roll back.

The maintenance gate is turned off on every exit path of a run it turned
on. A gate that an operator enabled beforehand is left alone.

# Interrupted runs

New clears what a process that died mid-run left behind: a gate it turned
on automatically and history records that never finished. It skips this
while another process on the host holds the update lock.

# Replacement

Files are replaced in place: the live file is removed, with a permission
fix-up retry, and the staged file copied over it. The install root is never
removed. The only directories ever deleted are empty ones a failed apply
created, after its backup was restored. Preserved paths keep their live
files; staged files under them are only added when no live file exists.
*/
package updater
