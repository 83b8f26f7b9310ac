package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmm-sec/saz-insights/pkg/menulabel"
	"github.com/bmm-sec/saz-insights/pkg/saz"
)

func outputJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputTable(w io.Writer, sessions []*saz.Session) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found")
		return nil
	}

	tw := NewTableWriter(w, []TableColumn{
		{Header: "ID", Width: 6},
		{Header: "METHOD", Width: 7},
		{Header: "STATUS", Width: 6},
		{Header: "HOST", Width: 30},
		{Header: "URL", Width: 60},
		{Header: "COMMENT", Width: 24},
	})
	tw.WriteHeader()

	for _, s := range sessions {
		status := "-"
		if s.Response != nil && s.Response.StatusCode > 0 {
			status = fmt.Sprintf("%d", s.Response.StatusCode)
		}
		tw.WriteRow(s.ID, s.Method, status, s.Host, s.URL, s.Meta.Comment())
	}

	fmt.Fprintf(w, "\nTotal: %d sessions\n", len(sessions))
	return nil
}

func outputPoolTable(w io.Writer, pool menulabel.Pool) error {
	if len(pool) == 0 {
		fmt.Fprintln(w, "No menu candidates found")
		return nil
	}

	for _, host := range pool.Hosts() {
		fmt.Fprintf(w, "%s (%d candidates)\n", host, len(pool[host]))
		tw := NewTableWriter(w, []TableColumn{
			{Header: "LABEL", Width: 40},
			{Header: "URL", Width: 70},
		})
		tw.WriteHeader()
		for _, c := range pool[host] {
			tw.WriteRow(c.Label, c.URL)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total: %d candidates on %d hosts\n", pool.Len(), len(pool))
	return nil
}

type searchResultJSON struct {
	SessionID string            `json:"session_id"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Comment   string            `json:"comment,omitempty"`
	Score     int               `json:"score"`
	Matches   []saz.SearchMatch `json:"matches"`
}

func searchResultsJSON(results []saz.SearchResult) []searchResultJSON {
	out := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultJSON{
			SessionID: r.Session.ID,
			Method:    r.Session.Method,
			URL:       r.Session.URL,
			Comment:   r.Session.Meta.Comment(),
			Score:     r.Score,
			Matches:   r.Matches,
		})
	}
	return out
}

// truncateString shortens s to maxLen runes, marking the cut with "...".
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

type TableColumn struct {
	Header string
	Width  int
}

type TableWriter struct {
	w       io.Writer
	columns []TableColumn
}

func NewTableWriter(w io.Writer, columns []TableColumn) *TableWriter {
	return &TableWriter{
		w:       w,
		columns: columns,
	}
}

func (tw *TableWriter) WriteHeader() {
	var parts []string
	totalWidth := 0
	for _, col := range tw.columns {
		parts = append(parts, pad(col.Header, col.Width))
		totalWidth += col.Width + 1
	}
	fmt.Fprintln(tw.w, strings.TrimRight(strings.Join(parts, " "), " "))
	fmt.Fprintln(tw.w, strings.Repeat("-", totalWidth))
}

func (tw *TableWriter) WriteRow(values ...string) {
	var parts []string
	for i, col := range tw.columns {
		if i >= len(values) {
			break
		}
		parts = append(parts, pad(truncateString(values[i], col.Width), col.Width))
	}
	fmt.Fprintln(tw.w, strings.TrimRight(strings.Join(parts, " "), " "))
}

// pad right-pads s with spaces to width runes.
func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// getOutputWriter returns the --output file, or stdout when none is set.
func getOutputWriter() (*os.File, error) {
	if outputFile == "" {
		return os.Stdout, nil
	}
	if dir := filepath.Dir(outputFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

func closeOutputWriter(f *os.File) {
	if f != os.Stdout && f != os.Stderr {
		f.Close()
	}
}
