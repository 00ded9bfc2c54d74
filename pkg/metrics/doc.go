/*
Package metrics provides Prometheus metrics and run status endpoints for
cephdeploy.

All collectors are registered with the default Prometheus registry at package
init and exposed through Handler.

# Metrics

	cephdeploy_phase_duration_seconds{phase,step}      enter/exit duration
	cephdeploy_phase_transitions_total{phase,outcome}  phase state changes
	cephdeploy_remote_commands_total{host,status}      commands run on hosts
	cephdeploy_remote_command_duration_seconds         command latency
	cephdeploy_convergence_polls_total{condition,result}
	cephdeploy_daemons_registered{cluster,type}

# Run status

A StatusTracker follows the events of one deployment and serves them next
to the metrics:

	/metrics   Prometheus exposition
	/status    JSON RunStatus, 500 once the run failed
	/ready     200 only while the cluster is up and the workload runs
	/healthz   liveness

# Usage

	timer := metrics.NewTimer()
	err := phase.Enter(ctx)
	timer.ObserveDurationVec(metrics.PhaseDuration, phase.Name, "enter")

	tracker := metrics.NewStatusTracker(version)
	go http.ListenAndServe(addr, tracker.Mux())
*/
package metrics
