package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cuemby/cephdeploy/pkg/config"
	"github.com/cuemby/cephdeploy/pkg/storage"
	"github.com/cuemby/cephdeploy/pkg/types"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [-f JOB | --state-dir DIR]",
	Short: "Show persisted clusters and the state of their phases",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("state-dir")
		if path, _ := cmd.Flags().GetString("file"); path != "" && !cmd.Flags().Changed("state-dir") {
			job, err := config.Load(path)
			if err != nil {
				return err
			}
			dir = job.StateDir
		}

		store, err := openStore(dir)
		if err != nil {
			return err
		}
		clusters, err := store.ListClusters()
		if err != nil {
			return err
		}
		if len(clusters) == 0 {
			fmt.Println("No clusters")
			return nil
		}

		for i, c := range clusters {
			if i > 0 {
				fmt.Println()
			}
			if err := printCluster(store, c); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("state-dir", config.DefaultStateDir, "State directory")
}

func printCluster(store storage.Store, c *types.ClusterState) error {
	fmt.Printf("Cluster:      %s\n", c.Name)
	fmt.Printf("FSID:         %s\n", c.FSID)
	fmt.Printf("Image:        %s\n", c.Image)
	fmt.Printf("Bootstrapped: %t (on %s)\n", c.Bootstrapped, c.BootstrapHost)
	fmt.Printf("Daemons:      %d\n", len(c.Daemons))
	fmt.Printf("Updated:      %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05"))

	phases, err := store.GetPhases(c.Name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 1, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tSTATE\tUPDATED\tERROR")
	for _, p := range phases {
		updated := "-"
		if !p.UpdatedAt.IsZero() {
			updated = p.UpdatedAt.Format("15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.State, updated, p.Error)
	}
	return tw.Flush()
}
