package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/papersync/internal/api"
	"github.com/nextlevelbuilder/papersync/internal/bus"
	"github.com/nextlevelbuilder/papersync/internal/config"
	"github.com/nextlevelbuilder/papersync/internal/tracker"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect documents and tracked jobs",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsHistoryCmd())
	cmd.AddCommand(jobsWatchCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents and their processing status",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			a := newApp(cfg)
			a.requireServer()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout())
			defer cancel()

			docs, err := a.client.ListDocuments(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error listing documents: %v\n", err)
				os.Exit(1)
			}
			if len(docs) == 0 {
				fmt.Println("No documents.")
				return
			}
			for _, d := range docs {
				printDocument(d)
			}
		},
	}
}

func jobsHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished jobs",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			a := newApp(cfg)

			entries, err := a.openHistory().Recent(limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
				os.Exit(1)
			}
			if len(entries) == 0 {
				fmt.Println("No finished jobs yet.")
				return
			}
			for _, e := range entries {
				finished := time.UnixMilli(e.FinishedAt).Format("2006-01-02 15:04:05")
				fmt.Printf("%-22s  %-19s  %-9s  %s\n", e.Kind, finished, e.Status, e.JobID)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}

// jobsWatchCmd polls in-flight document jobs until they settle or the
// process is interrupted. Config edits (poll interval etc.) are picked up
// live; the new interval applies from the next tracked batch.
func jobsWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [job-id...]",
		Short: "Watch document-processing jobs until they finish",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			a := newApp(cfg)
			a.requireServer()

			t := a.newTracker(tracker.KindDocumentProcessing)
			defer t.Stop()

			now := time.Now().UnixMilli()
			for _, id := range args {
				t.Watch(tracker.JobHandle{
					ID:        id,
					Kind:      tracker.KindDocumentProcessing,
					Status:    tracker.StatusQueued,
					StartedAt: now,
				})
			}
			if len(args) == 0 {
				fmt.Println("No job ids given; waiting for jobs announced by the server.")
			}

			subID := a.bus.Subscribe(bus.TopicConfigChanged, func(ev bus.Event) {
				next, ok := ev.Payload.(*config.Config)
				if !ok {
					return
				}
				t.Retune(next.PollInterval(), next.MaxWallClock())
				slog.Info("poll settings retuned",
					"interval", next.PollInterval(),
					"max_wall_clock", next.MaxWallClock(),
				)
			})
			defer a.bus.Unsubscribe(bus.TopicConfigChanged, subID)

			watcher, err := config.NewWatcher(defaultConfigPath())
			if err == nil {
				watcher.OnChange(func(next *config.Config) {
					a.bus.Publish(bus.TopicConfigChanged, next)
				})
				if err := watcher.Start(); err != nil {
					slog.Debug("config watch unavailable", "error", err)
				} else {
					defer watcher.Stop()
				}
			}

			waitForSettle(a.bus, t)
		},
	}
}

// waitForSettle blocks until the tracker's polling set drains or the user
// interrupts, printing each cycle's summary as it lands.
func waitForSettle(b *bus.Bus, t *tracker.Tracker) {
	updates := make(chan tracker.Summary, 8)
	id := b.Subscribe(bus.TopicJobsUpdated, func(ev bus.Event) {
		if s, ok := ev.Payload.(tracker.Summary); ok {
			select {
			case updates <- s:
			default:
			}
		}
	})
	defer b.Unsubscribe(bus.TopicJobsUpdated, id)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	check := time.NewTicker(time.Second)
	defer check.Stop()

	for {
		select {
		case s := <-updates:
			fmt.Printf("%s: %d completed, %d failed, %d cancelled, %d timed out, %d still running\n",
				s.Kind, s.Completed, s.Failed, s.Cancelled, s.TimedOut, s.InFlight)
		case <-check.C:
			if !t.Watching() {
				fmt.Println("All jobs settled.")
				return
			}
		case <-sig:
			fmt.Println("\nInterrupted; jobs keep running server-side.")
			return
		}
	}
}

func printDocument(d api.Document) {
	cluster := d.ClusterID
	if cluster == "" {
		cluster = "-"
	}
	fmt.Printf("%-12s  %-10s  cluster=%-10s  %s\n", d.ID, d.Status, cluster, d.Name)
}
