/*
Package deploy stands up a containerized Ceph test cluster across a set of
hosts, hands it to a workload and tears it down again.

A Deployer drives an ordered sequence of phases through a phase.Runner.
Every phase that was entered is released in reverse order when the workload
returns, when it fails, or when a later phase fails, so hosts are left clean
whatever happened.

# Architecture

	┌──────────────────── DEPLOYMENT ─────────────────────────┐
	│                                                          │
	│  config.Job ──► Deployer.New ──► image + ClusterState    │
	│                      │                                   │
	│                      ▼                                   │
	│  ┌─────────────── phase.Runner ──────────────────┐      │
	│  │ initialize          (skipped when bootstrapped)│      │
	│  │ initial                                        │      │
	│  │ normalize-hostnames                            │      │
	│  │ download-cephadm    exit: rm-cluster           │      │
	│  │ cluster-log         exit: scan for badness     │      │
	│  │ bootstrap           exit: stop daemons         │      │
	│  │ crush-tunables                                 │      │
	│  │ mons                                           │      │
	│  │ distribute-config   exit: remove config        │      │
	│  │ mgrs, osds, mdss, rgws, iscsi                  │      │
	│  │ prometheus, node-exporter, alertmanager,       │      │
	│  │ grafana, clients, rbd-pool                     │      │
	│  └───────────────────────┬───────────────────────┘      │
	│                          ▼                               │
	│            wait for healthy ──► workload                 │
	└──────────────────────────────────────────────────────────┘

# State

The ClusterState of each cluster is kept by a Clusters registry. With a
storage.Store behind it, the state and the phase records are written after
every phase transition. A later run of the same cluster picks the state up
again: it keeps the fsid and image, skips bootstrap and re-registers every
daemon it placed. The state is dropped once rm-cluster succeeded on every
host.

Every rollout phase compares the role assignments with the daemon registry
and only creates what is missing: registered OSDs are neither zapped nor
added again, and a service already declared with all of its daemons placed
is not re-applied. A service with any daemon missing is declared again with
its full placement, since a placement replaces the previous one.

# Operations

Once the cluster is bootstrapped the Deployer also serves the workload:

  - Stop and Restart control daemons through their systemd units
  - Shell runs commands inside the cluster container on a role's host
  - Apply feeds service specs to the orchestrator
  - Healthy waits for every OSD to be up and for HEALTH_OK

# Usage

	d, err := deploy.New(job, exec,
		deploy.WithClusters(deploy.NewClusters(store)),
		deploy.WithPublisher(broker),
	)
	if err != nil {
		return err
	}
	err = d.Run(ctx, func(ctx context.Context, d *deploy.Deployer) error {
		return d.Shell(ctx, deploy.ShellRequest{
			Commands: map[string][]string{"mon.a": {"ceph -s"}},
		})
	})
	if !d.Summary().Success {
		fmt.Println(d.Summary().FailureReason)
	}
*/
package deploy
