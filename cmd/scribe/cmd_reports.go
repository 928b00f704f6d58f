package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/store"
)

var (
	reportsLimit  int
	reportRender  bool
	reportVerbose bool
)

// reportsCmd groups report inspection subcommands
var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect previously generated reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports, newest first",
	RunE:  runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [report-id]",
	Short: "Show a stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

func init() {
	reportsListCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "Max reports to list")
	reportsShowCmd.Flags().BoolVar(&reportRender, "render", false, "Render the report in the terminal")
	reportsShowCmd.Flags().BoolVar(&reportVerbose, "tasks", false, "Show per-section task records")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
}

func runReportsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	summaries, err := st.ListReports(reportsLimit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No reports stored yet. Run 'scribe generate' first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tSECTIONS\tTITLE")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			shortID(s.ID), s.CreatedAt.Format("2006-01-02 15:04"), s.Status, s.Sections, s.Title)
	}
	return w.Flush()
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	id, err := resolveReportID(st, args[0])
	if err != nil {
		return err
	}

	rep, err := st.GetReport(id)
	if err != nil {
		return err
	}

	if reportRender {
		if err := renderPreview(rep.Markdown()); err != nil {
			return err
		}
	} else {
		fmt.Println(titleStyle.Render(rep.Title))
		fmt.Printf("  ID:       %s\n", rep.ID)
		fmt.Printf("  Topic:    %s\n", rep.Topic)
		fmt.Printf("  Status:   %s\n", rep.Status)
		fmt.Printf("  Created:  %s\n", rep.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Sections: %d (%d failed)\n", len(rep.Sections), rep.FailedSections())
		for _, s := range rep.Sections {
			marker := " "
			if s.Failed {
				marker = "!"
			}
			fmt.Printf("  %s %2d. %s\n", marker, s.Index+1, s.Heading)
		}
	}

	if reportVerbose {
		tasks, err := st.ListTasks(rep.ID)
		if err != nil {
			return err
		}
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tSECTION\tWORKER\tSTATE\tQUEUED\tERROR")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				t.ID, t.SectionIdx, shortID(t.WorkerID), t.State, t.Queued, t.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// resolveReportID expands a short ID prefix to the full stored ID.
func resolveReportID(st *store.LocalStore, prefix string) (string, error) {
	summaries, err := st.ListReports(0)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range summaries {
		if s.ID == prefix {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no report matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous report id %q (%d matches)", prefix, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
