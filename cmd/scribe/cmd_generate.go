package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scribe/internal/config"
	"scribe/internal/embedding"
	"scribe/internal/llm"
	"scribe/internal/report"
	"scribe/internal/store"
	"scribe/internal/supervisor"
)

var (
	generateSections int
	generateWorkers  int
	generateOutput   string
	generatePreview  bool
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// generateCmd runs the full report pipeline for a topic
var generateCmd = &cobra.Command{
	Use:   "generate [topic]",
	Short: "Generate a research report for a topic",
	Long: `Plans an outline for the topic, drafts each section with a pool of
workers, and writes the assembled report as Markdown.

Sections are drafted concurrently; notes previously ingested with
'scribe ingest' are recalled per section and handed to the drafting
worker as reference material.

Example:
  scribe generate "The state of WebAssembly on the server" --sections 6`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&generateSections, "sections", 0, "Max sections in the outline (default from config)")
	generateCmd.Flags().IntVar(&generateWorkers, "workers", 0, "Max concurrent drafting workers (default from config)")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Output directory for the report (default from config)")
	generateCmd.Flags().BoolVar(&generatePreview, "preview", false, "Render the report in the terminal after export")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	if generateSections > 0 {
		cfg.Report.MaxSections = generateSections
	}
	if generateWorkers > 0 {
		cfg.Supervisor.MaxActiveWorkers = generateWorkers
	}
	if generateOutput != "" {
		cfg.Report.OutputDir = generateOutput
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	// Drain on SIGINT so in-flight sections finish or fail cleanly.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Warn("store unavailable, running without corpus recall or persistence", zap.Error(err))
		st = nil
	}
	if st != nil {
		defer st.Close()
	}

	sup, err := supervisor.New(cfg, client, st)
	if err != nil {
		return err
	}
	if err := sup.Start(); err != nil {
		return err
	}
	defer func() { _ = sup.Stop() }()

	fmt.Println(titleStyle.Render("Generating report: ") + topic)
	fmt.Println(dimStyle.Render(fmt.Sprintf("model=%s workers=%d max_sections=%d",
		cfg.LLM.Model, cfg.Supervisor.MaxActiveWorkers, cfg.Report.MaxSections)))

	rep, path, err := sup.GenerateReport(ctx, topic)
	if err != nil {
		return err
	}

	switch rep.Status {
	case report.StatusPartial:
		fmt.Println(warnStyle.Render(fmt.Sprintf("Report complete with %d failed section(s)", rep.FailedSections())))
	default:
		fmt.Println(successStyle.Render("Report complete"))
	}
	fmt.Printf("  Title:    %s\n", rep.Title)
	fmt.Printf("  Sections: %d\n", len(rep.Sections))
	fmt.Printf("  Duration: %s\n", rep.Duration.Round(100*time.Millisecond))
	fmt.Printf("  Written:  %s\n", path)

	if generatePreview {
		return renderPreview(rep.Markdown())
	}
	return nil
}

// renderPreview pretty-prints markdown in the terminal.
func renderPreview(markdown string) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Fall back to raw markdown
		fmt.Println(markdown)
		return nil
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		fmt.Println(markdown)
		return nil
	}
	fmt.Print(out)
	return nil
}

// loadWorkspaceConfig loads config and applies global flag overrides.
func loadWorkspaceConfig() (*config.Config, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	return cfg, nil
}

// openStore opens the workspace store with the configured embedding engine.
func openStore(ctx context.Context, cfg *config.Config) (*store.LocalStore, error) {
	st, err := store.NewLocalStore(storePath(cfg))
	if err != nil {
		return nil, err
	}
	engine, err := embedding.NewEngine(ctx, cfg.Embedding)
	if err != nil {
		logger.Warn("embedding engine unavailable, corpus recall disabled", zap.Error(err))
		return st, nil
	}
	st.SetEmbeddingEngine(engine)
	return st, nil
}

func storePath(cfg *config.Config) string {
	path := cfg.Store.DatabasePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	return path
}
