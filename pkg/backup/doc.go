/*
Package backup creates and restores point-in-time snapshots of an
installation tree.

Each snapshot lives in its own directory under the backups root:

	<backups>/
	└── backup-20260301-100001.000000000/
	    ├── backup.json     manifest: name, created_at, source_revision, size_bytes
	    └── tree/           copy of the installation, minus exclusions

Snapshots are taken with github.com/otiai10/copy. Version-control metadata,
caches, logs, temporary files and the backups root itself are skipped. A
snapshot only counts once backup.json has been written: if the copy fails
the partial directory is removed and a BackupFailed error is returned.

After every successful Create the oldest snapshots beyond the retention
count (5 by default) are pruned.

Restore is additive. Every file in the snapshot is copied over the live
tree, creating directories as needed and fixing up permissions on files
that refuse removal. Files present only in the live tree are left alone.

	m, _ := backup.NewManager(backup.Config{InstallRoot: "/opt/app", Root: "/opt/app/backups"})
	manifest, err := m.Create("")
	...
	err = m.Restore(manifest)
*/
package backup
