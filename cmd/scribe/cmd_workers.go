package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// workersCmd shows orchestration limits and recent task activity
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Show worker configuration and recent drafting activity",
	Long: `Shows the configured orchestration limits and the per-section task
records of the most recent report run. scribe runs as a single process,
so live worker state only exists while 'scribe generate' is running;
this command reports what the last run dispatched.`,
	RunE: runWorkers,
}

func runWorkers(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Worker configuration"))
	fmt.Printf("  Max active workers:   %d\n", cfg.Supervisor.MaxActiveWorkers)
	fmt.Printf("  Section concurrency:  %d\n", cfg.Supervisor.SectionConcurrency)
	fmt.Printf("  Worker timeout:       %s\n", cfg.Supervisor.WorkerTimeout)
	fmt.Printf("  Queue size:           %d (%d per priority, %d queue workers)\n",
		cfg.Supervisor.QueueSize, cfg.Supervisor.QueuePerPriority, cfg.Supervisor.QueueWorkers)

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		fmt.Println(dimStyle.Render("No store available, no task history to show."))
		return nil
	}
	defer st.Close()

	summaries, err := st.ListReports(1)
	if err != nil || len(summaries) == 0 {
		fmt.Println(dimStyle.Render("No report runs recorded yet."))
		return nil
	}

	latest := summaries[0]
	tasks, err := st.ListTasks(latest.ID)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Last run: ") + latest.Title)
	fmt.Println(dimStyle.Render(fmt.Sprintf("  %s, %s", shortID(latest.ID), latest.CreatedAt.Format(time.RFC3339))))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  SECTION\tWORKER\tSTATE\tQUEUED\tDURATION")
	for _, t := range tasks {
		duration := time.Duration(0)
		if !t.StartedAt.IsZero() && !t.FinishedAt.IsZero() {
			duration = t.FinishedAt.Sub(t.StartedAt)
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n",
			t.SectionIdx, shortID(t.WorkerID), t.State,
			t.Queued.Round(time.Millisecond), duration.Round(time.Millisecond))
	}
	return w.Flush()
}
