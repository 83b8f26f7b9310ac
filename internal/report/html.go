package report

import (
	"fmt"
	"html"
	"io"
	"sort"
	"time"

	"github.com/bmm-sec/saz-insights/pkg/menulabel"
)

// HTMLOptions configures WriteHTML.
type HTMLOptions struct {
	Layout
	Title   string
	BaseURL string
	// Pool, when set, adds a section listing the menu candidates per host.
	Pool menulabel.Pool
	// Now stamps the report; the zero value means time.Now.
	Now time.Time
}

// Stats summarizes a set of report rows.
type Stats struct {
	Rows       int
	Vulnerable int
	Labeled    int
	HostCounts map[string]int
}

// CalculateStats counts rows, verdicts, labels and hosts.
func CalculateStats(rows []Row) Stats {
	stats := Stats{Rows: len(rows), HostCounts: make(map[string]int)}
	for _, r := range rows {
		if r.Vulnerable() {
			stats.Vulnerable++
		}
		if r.MenuLabel != "" {
			stats.Labeled++
		}
		stats.HostCounts[Domain(r.URL)]++
	}
	return stats
}

// WriteHTML renders the rows as a standalone HTML page.
func WriteHTML(w io.Writer, rows []Row, opts HTMLOptions) error {
	title := opts.Title
	if title == "" {
		title = SummarySheet
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	stats := CalculateStats(rows)

	subtitle := "Generated on " + now.Format("2006-01-02 15:04")
	if opts.BaseURL != "" {
		subtitle = "URL : " + opts.BaseURL + " | " + subtitle
	}

	if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="ko">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        :root { --accent: #1d4ed8; --bad: #b91c1c; --good: #15803d; --text: #374151; --bg: #f9fafb; --card: #ffffff; --border: #e5e7eb; }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: -apple-system, 'Segoe UI', 'Malgun Gothic', sans-serif; background: var(--bg); color: var(--text); line-height: 1.5; }
        .container { width: 96vw; margin: 0 auto; padding: 20px; }
        header { background: var(--accent); color: white; padding: 24px 0; margin-bottom: 24px; }
        header h1 { font-size: 1.75rem; font-weight: 600; }
        header p { opacity: 0.9; }
        .stats-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 16px; margin-bottom: 24px; }
        .stat-card { background: var(--card); border: 1px solid var(--border); border-radius: 8px; padding: 16px; }
        .stat-card h3 { font-size: 0.85rem; color: #6b7280; }
        .stat-card .value { font-size: 1.75rem; font-weight: 700; }
        .section { background: var(--card); border: 1px solid var(--border); border-radius: 8px; margin-bottom: 24px; }
        .section-header { padding: 12px 16px; border-bottom: 1px solid var(--border); font-weight: 600; }
        .section-content { padding: 16px; overflow-x: auto; }
        table { width: 100%%; border-collapse: collapse; }
        th, td { padding: 8px 10px; text-align: left; border: 1px solid var(--border); vertical-align: top; overflow-wrap: anywhere; font-size: 0.875rem; }
        th { background: #f3f4f6; border-bottom: 2px solid #111827; }
        .verdict-bad { color: var(--bad); font-weight: 600; }
        .verdict-good { color: var(--good); }
        .filter-bar { display: flex; gap: 10px; margin-bottom: 16px; }
        .filter-bar input, .filter-bar select { padding: 6px 10px; border: 1px solid var(--border); border-radius: 6px; }
        .filter-bar input { flex: 1; }
        .host-name { font-weight: 600; margin: 12px 0 6px; }
        .muted { color: #6b7280; font-size: 0.85rem; }
        footer { text-align: center; padding: 24px; color: #6b7280; font-size: 0.85rem; }
    </style>
</head>
<body>
    <header>
        <div class="container">
            <h1>%s</h1>
            <p>%s</p>
        </div>
    </header>
    <div class="container">
`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(subtitle)); err != nil {
		return err
	}

	renderSummaryCards(w, stats)
	renderRowsSection(w, rows, opts.Layout)
	if opts.Pool != nil {
		renderPoolSection(w, opts.Pool)
	}

	_, err := fmt.Fprintf(w, `    </div>
    <footer>
        <p>Generated by saz-insights | %d requests diagnosed</p>
    </footer>
    <script>
        function filterRows() {
            const text = document.getElementById('rowFilterInput').value.toLowerCase();
            const verdict = document.getElementById('rowVerdictFilter').value;
            document.querySelectorAll('#rowsTable tbody tr').forEach(row => {
                const matchesText = text === '' || row.textContent.toLowerCase().includes(text);
                const matchesVerdict = verdict === '' || row.dataset.verdict === verdict;
                row.style.display = matchesText && matchesVerdict ? '' : 'none';
            });
        }
    </script>
</body>
</html>
`, len(rows))
	return err
}

func renderSummaryCards(w io.Writer, stats Stats) {
	cards := [][2]string{
		{"Requests", fmt.Sprintf("%d", stats.Rows)},
		{VerdictVulnerable, fmt.Sprintf("%d", stats.Vulnerable)},
		{"Labeled", fmt.Sprintf("%d", stats.Labeled)},
		{"Hosts", fmt.Sprintf("%d", len(stats.HostCounts))},
	}

	fmt.Fprint(w, "        <div class=\"stats-grid\">\n")
	for _, c := range cards {
		fmt.Fprintf(w, `            <div class="stat-card">
                <h3>%s</h3>
                <div class="value">%s</div>
            </div>
`, html.EscapeString(c[0]), html.EscapeString(c[1]))
	}
	fmt.Fprint(w, "        </div>\n")
}

func renderRowsSection(w io.Writer, rows []Row, layout Layout) {
	fmt.Fprintf(w, `        <div class="section">
            <div class="section-header">%s (%d)</div>
            <div class="section-content">
`, SummarySheet, len(rows))

	if len(rows) == 0 {
		fmt.Fprint(w, "                <p class=\"muted\">No diagnosed requests.</p>\n            </div>\n        </div>\n")
		return
	}

	fmt.Fprintf(w, `                <div class="filter-bar">
                    <input type="text" id="rowFilterInput" placeholder="Filter by menu, URL or parameter..." onkeyup="filterRows()">
                    <select id="rowVerdictFilter" onchange="filterRows()">
                        <option value="">All</option>
                        <option value="%[1]s">%[1]s</option>
                        <option value="%[2]s">%[2]s</option>
                    </select>
                </div>
                <table id="rowsTable">
                    <thead>
                        <tr>
`, VerdictVulnerable, VerdictSafe)

	cols := layout.Columns()
	resultIdx := -1
	for i, c := range cols {
		if c == ColResult {
			resultIdx = i
		}
		fmt.Fprintf(w, "                            <th>%s</th>\n", html.EscapeString(c))
	}
	fmt.Fprint(w, "                        </tr>\n                    </thead>\n                    <tbody>\n")

	for _, r := range rows {
		fmt.Fprintf(w, "                        <tr data-verdict=\"%s\">\n", html.EscapeString(r.Result))
		for i, v := range layout.Values(r) {
			class := ""
			if i == resultIdx {
				class = " class=\"verdict-good\""
				if r.Vulnerable() {
					class = " class=\"verdict-bad\""
				}
			}
			fmt.Fprintf(w, "                            <td%s>%s</td>\n", class, html.EscapeString(v))
		}
		fmt.Fprint(w, "                        </tr>\n")
	}

	fmt.Fprint(w, `                    </tbody>
                </table>
            </div>
        </div>
`)
}

func renderPoolSection(w io.Writer, pool menulabel.Pool) {
	fmt.Fprintf(w, `        <div class="section">
            <div class="section-header">Menu candidates (%d)</div>
            <div class="section-content">
`, pool.Len())

	hosts := pool.Hosts()
	sort.SliceStable(hosts, func(i, j int) bool { return len(pool[hosts[i]]) > len(pool[hosts[j]]) })

	for _, host := range hosts {
		fmt.Fprintf(w, "                <div class=\"host-name\">%s <span class=\"muted\">(%d)</span></div>\n",
			html.EscapeString(host), len(pool[host]))
		fmt.Fprint(w, "                <table>\n")
		for _, c := range pool[host] {
			fmt.Fprintf(w, "                    <tr><td>%s</td><td>%s</td></tr>\n",
				html.EscapeString(c.Label), html.EscapeString(c.URL))
		}
		fmt.Fprint(w, "                </table>\n")
	}

	fmt.Fprint(w, "            </div>\n        </div>\n")
}
