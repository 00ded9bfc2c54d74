/*
Package storage persists cluster state between runs in a BoltDB file.

A deploy saves the ClusterState of its cluster after every phase, so a rerun
after the driver died picks up the same fsid, image and bootstrap host and
skips the bootstrap phases. The shell, apply, stop, restart and status
commands read the same record to reach a cluster deployed by another
process.

Buckets:

	clusters   cluster name -> ClusterState (JSON)
	phases     cluster name -> []PhaseRecord of the last run (JSON)

The database is opened per operation with a lock timeout and never held
for the lifetime of a process.

With WithSealer the admin and monitor keyrings are encrypted before they are
written; a store opened without the same key refuses to load them.
*/
package storage
