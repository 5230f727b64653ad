package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/papersync/internal/pairing"
	"github.com/nextlevelbuilder/papersync/internal/tracker"
)

func sortCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Trigger an AI clustering run over the document library",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			a := newApp(cfg)
			a.requireServer()

			if a.coordinator.State() != pairing.StatePaired {
				fmt.Fprintln(os.Stderr, "Not paired. Run `papersync pair <token>` first.")
				os.Exit(1)
			}

			t := a.newTracker(tracker.KindClustering)
			defer t.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout())
			handle, err := t.Trigger(ctx, nil)
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error triggering clustering: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Clustering job %s started (%s).\n", handle.ID, handle.Status)

			if !wait {
				return
			}

			waitForSettle(a.bus, t)
			showClusters(a)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "poll until the run finishes and print the new clusters")
	return cmd
}

func showClusters(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPTimeout())
	defer cancel()

	clusters, err := a.client.ListClusters(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing clusters: %v\n", err)
		return
	}
	if len(clusters) == 0 {
		fmt.Println("No clusters.")
		return
	}
	for _, c := range clusters {
		fmt.Printf("%-12s  %-24s  %d documents\n", c.ID, c.Label, len(c.DocumentIDs))
		if len(c.DocumentIDs) > 0 {
			fmt.Printf("              %s\n", strings.Join(c.DocumentIDs, ", "))
		}
	}
}
