package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cuemby/cephdeploy/pkg/deploy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// The commands below act on a cluster deployed by a running or interrupted
// deploy of the same job, found through the state store.

var shellCmd = &cobra.Command{
	Use:   "shell -f JOB --role ROLE -- COMMAND...",
	Short: "Run a command inside the cluster container on a role's host",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roles, _ := cmd.Flags().GetStringSlice("role")
		envs, _ := cmd.Flags().GetStringArray("env")

		req := deploy.ShellRequest{
			Commands: make(map[string][]string),
			Env:      make(map[string]string),
		}
		for _, e := range envs {
			k, v, ok := strings.Cut(e, "=")
			if !ok {
				return fmt.Errorf("--env expects KEY=VALUE, got %q", e)
			}
			req.Env[k] = v
		}
		for _, role := range roles {
			req.Commands[role] = []string{strings.Join(args, " ")}
		}

		return withDeployer(cmd, func(ctx context.Context, d *deploy.Deployer) error {
			return d.Shell(ctx, req)
		})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply -f JOB --spec SPECS",
	Short: "Apply orchestrator service specs to the cluster",
	Long: `Apply one or more orchestrator service specs, given as a multi-document
YAML file, to the cluster.

Examples:
  cephdeploy apply -f job.yaml --spec rgw.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("spec")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read spec file: %v", err)
		}
		specs, err := decodeSpecs(data)
		if err != nil {
			return err
		}

		return withDeployer(cmd, func(ctx context.Context, d *deploy.Deployer) error {
			if err := d.Apply(ctx, specs); err != nil {
				return err
			}
			fmt.Printf("✓ Applied %d spec(s)\n", len(specs))
			return nil
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop -f JOB [ROLE...]",
	Short: "Stop daemons",
	Long: `Stop daemons by role. A bare type such as "osd" selects every daemon of
that type; no roles selects every daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeployer(cmd, func(ctx context.Context, d *deploy.Deployer) error {
			return d.Stop(ctx, rolesOrAll(args))
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart -f JOB [ROLE...]",
	Short: "Restart daemons and wait for the cluster to settle",
	RunE: func(cmd *cobra.Command, args []string) error {
		healthy, _ := cmd.Flags().GetBool("wait-for-healthy")
		osdsUp, _ := cmd.Flags().GetBool("wait-for-osds-up")
		return withDeployer(cmd, func(ctx context.Context, d *deploy.Deployer) error {
			return d.Restart(ctx, deploy.RestartOptions{
				Roles:          rolesOrAll(args),
				WaitForHealthy: &healthy,
				WaitForOSDsUp:  osdsUp,
			})
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge -f JOB",
	Short: "Remove a cluster left behind by an interrupted run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeployer(cmd, func(ctx context.Context, d *deploy.Deployer) error {
			if err := d.Purge(ctx); err != nil {
				return err
			}
			fmt.Printf("✓ Cluster %s removed\n", d.State().Name)
			return nil
		})
	},
}

func init() {
	shellCmd.Flags().StringSlice("role", []string{"all"}, "Roles whose hosts run the command")
	shellCmd.Flags().StringArray("env", nil, "KEY=VALUE passed into the container (repeatable)")

	applyCmd.Flags().String("spec", "", "Multi-document YAML file of service specs (required)")
	_ = applyCmd.MarkFlagRequired("spec")

	restartCmd.Flags().Bool("wait-for-healthy", true, "Wait for HEALTH_OK after restarting")
	restartCmd.Flags().Bool("wait-for-osds-up", false, "Wait for every OSD to be up after restarting")
}

func withDeployer(cmd *cobra.Command, fn func(ctx context.Context, d *deploy.Deployer) error) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.deployer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, d)
}

func rolesOrAll(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	return args
}

func decodeSpecs(data []byte) ([]map[string]interface{}, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var specs []map[string]interface{}
	for {
		var spec map[string]interface{}
		err := dec.Decode(&spec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse spec file: %v", err)
		}
		if len(spec) > 0 {
			specs = append(specs, spec)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("spec file holds no specs")
	}
	return specs, nil
}
