package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/cephdeploy/pkg/deploy"
	"github.com/cuemby/cephdeploy/pkg/events"
	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/metrics"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy -f JOB",
	Short: "Deploy a cluster, run a workload and tear it down",
	Long: `Deploy the cluster described by a job file, wait until it is healthy,
run the workload and tear everything down again.

Examples:
  # Smoke test: deploy and tear down
  cephdeploy deploy -f job.yaml

  # Run commands against the cluster before teardown
  cephdeploy deploy -f job.yaml --run 'mon.a=ceph -s' --run 'client.0=rados df'

  # Keep the cluster up until interrupted
  cephdeploy deploy -f job.yaml --hold`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringArray("run", nil, "ROLE=COMMAND to run inside the cluster container once it is up (repeatable)")
	deployCmd.Flags().Bool("hold", false, "Keep the cluster up until interrupted")
	deployCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics and run status on this address while running")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	runs, _ := cmd.Flags().GetStringArray("run")
	hold, _ := cmd.Flags().GetBool("hold")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	req, err := parseRuns(runs)
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	tracker := metrics.NewStatusTracker(Version)
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: tracker.Mux(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range sub {
			tracker.Observe(ev)
			printEvent(ev)
		}
	}()

	d, err := s.deployer(deploy.WithPublisher(broker))
	if err != nil {
		broker.Stop()
		broker.Unsubscribe(sub)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Deploying cluster %s\n", s.job.Cluster)
	runErr := d.Run(ctx, func(ctx context.Context, d *deploy.Deployer) error {
		fmt.Println("✓ Cluster is up")
		if len(req.Commands) > 0 {
			if err := d.Shell(ctx, req); err != nil {
				return err
			}
		}
		if hold {
			fmt.Println("Cluster is held. Press Ctrl+C to tear it down.")
			<-ctx.Done()
		}
		return nil
	})

	broker.Stop()
	broker.Unsubscribe(sub)
	<-printed

	summary := d.Summary()
	if runErr != nil {
		fmt.Printf("✗ Run failed: %v\n", runErr)
		return runErr
	}
	if !summary.Success {
		fmt.Printf("✗ Run failed: %s\n", summary.FailureReason)
		return fmt.Errorf("run failed: %s", summary.FailureReason)
	}
	fmt.Println("✓ Cluster torn down")
	return nil
}

// parseRuns turns ROLE=COMMAND pairs into a shell request
func parseRuns(runs []string) (deploy.ShellRequest, error) {
	req := deploy.ShellRequest{Commands: make(map[string][]string)}
	for _, r := range runs {
		role, command, ok := strings.Cut(r, "=")
		if !ok || role == "" || command == "" {
			return req, fmt.Errorf("--run expects ROLE=COMMAND, got %q", r)
		}
		req.Commands[role] = append(req.Commands[role], command)
	}
	return req, nil
}

func printEvent(ev *events.Event) {
	switch ev.Type {
	case events.EventPhaseEntered:
		fmt.Printf("  ✓ %s\n", ev.Phase)
	case events.EventPhaseSkipped:
		fmt.Printf("  - %s (skipped)\n", ev.Phase)
	case events.EventPhaseFailed:
		fmt.Printf("  ✗ %s: %s\n", ev.Phase, ev.Metadata["error"])
	case events.EventPhaseReleased:
		fmt.Printf("  ↺ %s released\n", ev.Phase)
	case events.EventPhaseReleaseFailed:
		fmt.Printf("  ✗ %s release failed: %s\n", ev.Phase, ev.Metadata["error"])
	case events.EventDaemonRegistered:
		fmt.Printf("    + %s on %s\n", ev.Message, ev.Metadata["host"])
	}
}
