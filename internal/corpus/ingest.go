// Package corpus ingests the operator's local notes into the snippet
// store so workers can recall them while drafting.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"scribe/internal/logging"
	"scribe/internal/store"
)

// defaultChunkSize bounds snippet length so recall stays prompt-friendly.
const defaultChunkSize = 1600

// Ingester walks a notes directory and stores chunked snippets.
type Ingester struct {
	store     *store.LocalStore
	chunkSize int
}

// IngestStats summarizes one ingestion pass.
type IngestStats struct {
	FilesScanned int
	FilesSkipped int
	Chunks       int
	NewSnippets  int
}

// NewIngester creates an Ingester over the given store.
func NewIngester(s *store.LocalStore, chunkSize int) *Ingester {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Ingester{store: s, chunkSize: chunkSize}
}

// IngestDir walks dir recursively and ingests every supported note file.
// A missing directory is not an error: the corpus is optional.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (IngestStats, error) {
	var stats IngestStats

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Corpus("Notes directory %s does not exist, skipping ingestion", dir)
			return stats, nil
		}
		return stats, fmt.Errorf("failed to stat notes dir: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("notes path %s is not a directory", dir)
	}

	timer := logging.StartTimer(logging.CategoryCorpus, "IngestDir")
	defer timer.StopWithInfo()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Hidden directories hold tool state, not notes
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedNote(path) {
			stats.FilesSkipped++
			return nil
		}

		fileStats, err := in.IngestFile(ctx, path)
		if err != nil {
			logging.Get(logging.CategoryCorpus).Warn("Failed to ingest %s: %v", path, err)
			stats.FilesSkipped++
			return nil
		}
		stats.FilesScanned += fileStats.FilesScanned
		stats.Chunks += fileStats.Chunks
		stats.NewSnippets += fileStats.NewSnippets
		return nil
	})
	if err != nil {
		return stats, err
	}

	logging.Corpus("Ingested %d files (%d chunks, %d new snippets, %d skipped) from %s",
		stats.FilesScanned, stats.Chunks, stats.NewSnippets, stats.FilesSkipped, dir)
	return stats, nil
}

// IngestFile ingests a single note file.
func (in *Ingester) IngestFile(ctx context.Context, path string) (IngestStats, error) {
	var stats IngestStats

	data, err := os.ReadFile(path)
	if err != nil {
		return stats, fmt.Errorf("failed to read note: %w", err)
	}
	stats.FilesScanned = 1

	text := string(data)
	if isHTMLNote(path) {
		text = stripHTML(text)
	}

	chunks := ChunkText(text, in.chunkSize)
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		inserted, err := in.store.StoreSnippet(ctx, filepath.Base(path), chunk)
		if err != nil {
			return stats, err
		}
		stats.Chunks++
		if inserted {
			stats.NewSnippets++
		}
	}
	return stats, nil
}

// supportedNote reports whether the file extension is a note format.
func supportedNote(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".markdown", ".html", ".htm":
		return true
	default:
		return false
	}
}

func isHTMLNote(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}

// ChunkText splits text into chunks of at most chunkSize characters,
// preferring paragraph boundaries. Blank-only chunks are dropped.
func ChunkText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// A single oversized paragraph gets hard-split
		for len(para) > chunkSize {
			flush()
			cut := chunkSize
			if idx := strings.LastIndexByte(para[:chunkSize], ' '); idx > chunkSize/2 {
				cut = idx
			}
			chunks = append(chunks, strings.TrimSpace(para[:cut]))
			para = strings.TrimSpace(para[cut:])
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// stripHTML extracts visible text from an HTML note.
func stripHTML(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		// Malformed HTML still usually yields a partial tree; if parsing
		// fails outright, index the raw markup rather than nothing.
		return src
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		// Paragraph-level elements become paragraph breaks
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "section", "article", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("\n")
			}
		}
	}
	walk(doc)

	return sb.String()
}
