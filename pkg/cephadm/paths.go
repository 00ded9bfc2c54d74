package cephadm

import "fmt"

// ConfPath is where a cluster's config lives on every host
func ConfPath(cluster string) string {
	return fmt.Sprintf("/etc/ceph/%s.conf", cluster)
}

// AdminKeyringPath is where the client.admin keyring lives on every host
func AdminKeyringPath(cluster string) string {
	return fmt.Sprintf("/etc/ceph/%s.client.admin.keyring", cluster)
}

// ClientKeyringPath is the keyring of a client entity such as "client.0"
func ClientKeyringPath(cluster, entity string) string {
	return fmt.Sprintf("/etc/ceph/%s.%s.keyring", cluster, entity)
}

// MonKeyringPath is the keyring cephadm writes for a monitor
func MonKeyringPath(fsid, monID string) string {
	return fmt.Sprintf("/var/lib/ceph/%s/mon.%s/keyring", fsid, monID)
}

// SeedConfPath is the bootstrap input config in the test directory
func SeedConfPath(testdir, cluster string) string {
	return fmt.Sprintf("%s/seed.%s.conf", testdir, cluster)
}

// PubKeyPath is where bootstrap writes the orchestrator's ssh public key
func PubKeyPath(testdir, cluster string) string {
	return fmt.Sprintf("%s/%s.pub", testdir, cluster)
}

// ClusterLogPath is the cluster log on the bootstrap host
func ClusterLogPath(fsid string) string {
	return fmt.Sprintf("/var/log/ceph/%s/ceph.log", fsid)
}
