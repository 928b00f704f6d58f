package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"scribe/internal/corpus"
)

var (
	ingestDir   string
	ingestWatch bool
)

// ingestCmd loads notes into the corpus
var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest notes into the research corpus",
	Long: `Chunks and embeds notes (markdown, plain text, HTML) into the local
corpus. During generation the supervisor recalls relevant chunks per
section and hands them to the drafting worker.

With no arguments the configured notes directory is ingested.
With --watch, scribe keeps running and re-ingests notes as they change.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Notes directory (default from config)")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Watch the notes directory and re-ingest on change")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ingester := corpus.NewIngester(st, cfg.Corpus.ChunkSize)

	notesDir := cfg.Corpus.NotesDir
	if ingestDir != "" {
		notesDir = ingestDir
	}
	if !filepath.IsAbs(notesDir) {
		notesDir = filepath.Join(workspace, notesDir)
	}

	targets := args
	if len(targets) == 0 {
		targets = []string{notesDir}
	}

	var total corpus.IngestStats
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("cannot ingest %s: %w", target, err)
		}

		var stats corpus.IngestStats
		if info.IsDir() {
			stats, err = ingester.IngestDir(ctx, target)
		} else {
			stats, err = ingester.IngestFile(ctx, target)
		}
		if err != nil {
			return err
		}
		total.FilesScanned += stats.FilesScanned
		total.FilesSkipped += stats.FilesSkipped
		total.Chunks += stats.Chunks
		total.NewSnippets += stats.NewSnippets
	}

	count, err := st.SnippetCount()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Ingestion complete"))
	fmt.Printf("  Files:        %d scanned, %d skipped\n", total.FilesScanned, total.FilesSkipped)
	fmt.Printf("  Chunks:       %d (%d new)\n", total.Chunks, total.NewSnippets)
	fmt.Printf("  Corpus size:  %d snippets\n", count)

	if !ingestWatch && !cfg.Corpus.Watch {
		return nil
	}

	watcher, err := corpus.NewWatcher(notesDir, ingester)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Println(dimStyle.Render(fmt.Sprintf("Watching %s for changes (ctrl-c to stop)...", notesDir)))
	<-ctx.Done()
	return nil
}
