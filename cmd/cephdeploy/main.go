package main

import (
	"fmt"
	"os"

	"github.com/cuemby/cephdeploy/pkg/config"
	"github.com/cuemby/cephdeploy/pkg/deploy"
	"github.com/cuemby/cephdeploy/pkg/log"
	"github.com/cuemby/cephdeploy/pkg/remote"
	"github.com/cuemby/cephdeploy/pkg/security"
	"github.com/cuemby/cephdeploy/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cephdeploy",
	Short: "cephdeploy - Deploy and tear down Ceph test clusters with cephadm",
	Long: `cephdeploy stands up a containerized Ceph cluster across a set of
hosts from a declarative job file, hands it to a workload and tears it
down again, leaving every host clean.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"cephdeploy version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log in JSON format")
	rootCmd.PersistentFlags().StringP("file", "f", "", "Job file")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cephdeploy version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func loadJob(cmd *cobra.Command) (*config.Job, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	return config.Load(path)
}

// session is everything a command needs to act on the cluster of a job
type session struct {
	job   *config.Job
	exec  remote.Executor
	store *storage.BoltStore
	opts  []deploy.Option
	close func()
}

func newSession(cmd *cobra.Command) (*session, error) {
	job, err := loadJob(cmd)
	if err != nil {
		return nil, err
	}

	store, err := openStore(job.StateDir)
	if err != nil {
		return nil, err
	}

	s := &session{
		job:   job,
		store: store,
		opts:  []deploy.Option{deploy.WithClusters(deploy.NewClusters(store))},
		close: func() {},
	}

	if job.SSH.Local {
		s.exec = remote.WithMetrics(remote.NewLocalExecutor())
		return s, nil
	}

	sshExec, err := remote.NewSSHExecutor(remote.SSHConfig{
		User:           job.SSH.User,
		Port:           job.SSH.Port,
		KeyFile:        job.SSH.KeyFile,
		KnownHostsFile: job.SSH.KnownHosts,
	}, job.Hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up ssh: %v", err)
	}
	s.exec = remote.WithMetrics(sshExec)
	// the metrics wrapper hides PeerAddress
	s.opts = append(s.opts, deploy.WithAddressResolver(sshExec))
	s.close = func() {
		if err := sshExec.Close(); err != nil {
			log.Logger.Warn().Err(err).Msg("Failed to close ssh connections")
		}
	}
	return s, nil
}

// openStore opens the state store, sealing keyrings when a state key is set
func openStore(dir string) (*storage.BoltStore, error) {
	sealer, err := security.SealerFromEnv()
	if err != nil {
		return nil, err
	}
	var opts []storage.Option
	if sealer != nil {
		opts = append(opts, storage.WithSealer(sealer))
	}
	store, err := storage.NewBoltStore(dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %v", err)
	}
	return store, nil
}

func (s *session) deployer(extra ...deploy.Option) (*deploy.Deployer, error) {
	return deploy.New(s.job, s.exec, append(s.opts, extra...)...)
}
