package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"scribe/internal/logging"
)

// Export writes the report as Markdown into outputDir with a timestamped
// filename. Existing files are never overwritten. Returns the written path.
func Export(r *Report, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", r.CreatedAt.Format("20060102-150405"), Slugify(r.Title))
	path := filepath.Join(outputDir, base+".md")

	// Timestamped names collide only when two runs finish within the same
	// second; disambiguate with a counter rather than overwrite.
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(outputDir, fmt.Sprintf("%s_%d.md", base, i))
	}

	if err := os.WriteFile(path, []byte(r.Markdown()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	logging.Report("Exported report %s to %s (%d sections, status=%s)",
		r.ID, path, len(r.Sections), r.Status)
	return path, nil
}

// Slugify turns a title into a filesystem-friendly slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastDash = false
		case !lastDash:
			sb.WriteRune('-')
			lastDash = true
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if slug == "" {
		slug = "report"
	}
	const maxSlug = 60
	if len(slug) > maxSlug {
		slug = strings.Trim(slug[:maxSlug], "-")
	}
	return slug
}
