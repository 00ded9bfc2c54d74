/*
Package types defines the data model shared by every cephdeploy package.

# Roles

A role string names one numbered daemon instance, optionally prefixed by the
cluster it belongs to:

	mon.a              monitor "a" of the default cluster
	osd.0              storage daemon 0
	rgw.realm.zone.a   gateway "realm.zone.a" (service "realm.zone")
	backup.mgr.x       manager "x" of the cluster "backup"

Roles are parsed once, at the boundary, by ParseRole into a Role value. The
topology package turns declared roles into RoleAssignment values which are
never mutated afterwards.

# Cluster state

ClusterState is owned by one orchestration run per cluster name. The fsid is
assigned exactly once and Bootstrapped, once set, is never cleared: a second
run against the same state skips the bootstrap phases and re-applies the
rollout phases to the existing cluster.

The config and keyring blobs are captured from the bootstrap host and later
written verbatim to every other host.
*/
package types
