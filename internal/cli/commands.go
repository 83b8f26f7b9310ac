package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bmm-sec/saz-insights/internal/report"
	"github.com/bmm-sec/saz-insights/internal/store"
	"github.com/bmm-sec/saz-insights/pkg/menulabel"
	"github.com/bmm-sec/saz-insights/pkg/saz"
)

var (
	outputFile   string
	outputFormat string
	configFile   string
	verbose      bool
	quiet        bool

	bannedFile       string
	maxValues        int
	baseURL          string
	includeTime      bool
	separateByURL    bool
	menuLabel        bool
	menuThreshold    float64
	menuSaveCands    bool
	showProgress     bool
	progressEvery    int
	timezone         string
	debugMode        bool
	candidatesFile   string
	matchReferer     string
	matchThreshold   float64
	hostFilter       string
	pathFilter       string
	methodFilter     string
	vulnerableOnly   bool
	skipAssets       bool
	includeBody      bool
	maxBodySize      int64
	limit            int
	searchQuery      string
	searchRegex      bool
	searchIgnoreCase bool
	searchScope      string
)

const (
	defaultReportFile = "saz_parsed.xlsx"
	defaultHTMLFile   = "saz_parsed.html"
	defaultDBFile     = "saz_insights.db"
)

var rootCmd = &cobra.Command{
	Use:   "saz-insights",
	Short: "Turn Fiddler SAZ captures into labeled security review reports",
	Long: `saz-insights reads Fiddler session archives (.saz) and produces a security
review report with one row per diagnosed request. Each row is labeled with the
menu of the web application it most likely belongs to, inferred from the
navigation links found in the captured HTML pages.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var reportCmd = &cobra.Command{
	Use:   "report <file.saz>",
	Short: "Generate the XLSX (or HTML) review report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export <file.saz>",
	Short: "Export report rows as json, jsonl, csv or sqlite",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates <file.saz>",
	Short: "Mine the menu candidate pool and save it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runCandidates,
}

var matchCmd = &cobra.Command{
	Use:   "match <file.saz|pool.json> <url>",
	Short: "Resolve the menu label of a single URL",
	Args:  cobra.ExactArgs(2),
	RunE:  runMatch,
}

var infoCmd = &cobra.Command{
	Use:   "info <file.saz>",
	Short: "Display archive statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <file.saz>",
	Short: "List or dump captured sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessions,
}

var searchCmd = &cobra.Command{
	Use:   "search <file.saz>",
	Short: "Search across captured sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Write output to file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "", "Output format: table, json, jsonl, csv, har, sqlite, html")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	for _, cmd := range []*cobra.Command{reportCmd, exportCmd} {
		addReportFlags(cmd)
	}
	reportCmd.Flags().StringVar(&baseURL, "base-url", "", "Target URL written above the summary sheet")
	reportCmd.Flags().BoolVar(&separateByURL, "separate-by-url", false, "Write one sheet per host")

	candidatesCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress")
	candidatesCmd.Flags().IntVar(&progressEvery, "progress-every", menulabel.DefaultProgressEvery, "Progress update interval")

	matchCmd.Flags().StringVar(&matchReferer, "referer", "", "Referer of the request")
	matchCmd.Flags().Float64Var(&matchThreshold, "threshold", menulabel.DefaultThreshold, "Minimum score for a label")

	sessionsCmd.Flags().StringVarP(&hostFilter, "host", "H", "", "Filter by host (regex)")
	sessionsCmd.Flags().StringVarP(&pathFilter, "path", "p", "", "Filter by path (regex)")
	sessionsCmd.Flags().StringVarP(&methodFilter, "method", "m", "", "Filter by HTTP method (comma-separated)")
	sessionsCmd.Flags().BoolVar(&vulnerableOnly, "vulnerable", false, "Only sessions flagged vulnerable")
	sessionsCmd.Flags().BoolVar(&skipAssets, "no-assets", false, "Skip static resources")
	sessionsCmd.Flags().BoolVar(&includeBody, "include-body", false, "Include request/response bodies")
	sessionsCmd.Flags().Int64Var(&maxBodySize, "body-size", 10240, "Max body size to include")
	sessionsCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of results")

	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search query")
	searchCmd.Flags().BoolVarP(&searchRegex, "regex", "r", false, "Treat query as regex")
	searchCmd.Flags().BoolVarP(&searchIgnoreCase, "ignore-case", "i", true, "Case-insensitive search")
	searchCmd.Flags().StringVar(&searchScope, "scope", "all", "Search scope: all, requests, responses, headers, bodies, urls, comments")
	searchCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of results")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(searchCmd)
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&bannedFile, "banned-file", "", "File of URL prefixes and re: patterns to leave out")
	cmd.Flags().IntVar(&maxValues, "max-values", 20, "Max values listed per parameter")
	cmd.Flags().BoolVar(&includeTime, "include-time", false, "Add the request time column")
	cmd.Flags().BoolVar(&menuLabel, "menu-label", true, "Infer menu labels")
	cmd.Flags().Float64Var(&menuThreshold, "menu-threshold", menulabel.DefaultThreshold, "Minimum match score for a menu label")
	cmd.Flags().BoolVar(&menuSaveCands, "menu-save-candidates", false, "Save the candidate pool next to the output")
	cmd.Flags().StringVar(&candidatesFile, "candidates", "", "Use a saved candidate pool instead of mining the archive")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress")
	cmd.Flags().IntVar(&progressEvery, "progress-every", menulabel.DefaultProgressEvery, "Progress update interval")
	cmd.Flags().StringVar(&timezone, "timezone", "Asia/Seoul", "Zone of the request time column")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Add match columns and breadcrumbs for unlabeled rows")
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	settings, err := resolveSettings(cmd)
	if err != nil {
		return err
	}

	res, err := buildRows(cmd.Context(), filePath, settings)
	if err != nil {
		return err
	}

	asHTML := strings.EqualFold(outputFormat, "html")
	out := outputFile
	if out == "" {
		out = defaultReportFile
		if asHTML {
			out = defaultHTMLFile
		}
	}
	saveCandidates(settings, filepath.Dir(out), filePath, res.Pool)

	if asHTML {
		err = writeHTMLReport(out, res, settings)
	} else {
		err = report.WriteXLSX(out, res.Rows, settings.xlsxOptions())
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	slog.Info("report written", "file", out, "rows", len(res.Rows))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	settings, err := resolveSettings(cmd)
	if err != nil {
		return err
	}

	format := strings.ToLower(outputFormat)
	if format == "sqlite" {
		return exportSQLite(cmd.Context(), filePath, settings)
	}
	exportFormat, err := saz.ParseExportFormat(format)
	if err != nil {
		return err
	}

	res, err := buildRows(cmd.Context(), filePath, settings)
	if err != nil {
		return err
	}
	saveCandidates(settings, outputDir(), filePath, res.Pool)

	output, err := getOutputWriter()
	if err != nil {
		return err
	}
	defer closeOutputWriter(output)

	return report.ExportRows(output, res.Rows, exportFormat, settings.layout())
}

func exportSQLite(ctx context.Context, filePath string, settings *reportSettings) error {
	dbPath := outputFile
	if dbPath == "" {
		dbPath = defaultDBFile
	}

	res, err := buildRows(ctx, filePath, settings)
	if err != nil {
		return err
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := db.SaveRun(ctx, filePath, res.Rows, res.Pool)
	if err != nil {
		return err
	}
	slog.Info("run stored", "db", dbPath, "run", runID, "rows", len(res.Rows), "candidates", res.Pool.Len())
	return nil
}

func runCandidates(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	reader, err := saz.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	bar := newProgress(showProgress && !quiet, "menu candidates")
	pool, err := menulabel.BuildPool(cmd.Context(), reader, menulabel.PoolOptions{
		ProgressEvery: progressEvery,
		OnProgress:    bar.Update,
		Logger:        slog.Default(),
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to build candidate pool: %w", err)
	}

	if outputFormat == "table" {
		output, err := getOutputWriter()
		if err != nil {
			return err
		}
		defer closeOutputWriter(output)
		return outputPoolTable(output, pool)
	}

	out := outputFile
	if out == "" {
		out = report.CandidatesPath(filepath.Dir(filePath), filePath)
	}
	if err := menulabel.SavePool(out, pool); err != nil {
		return err
	}
	slog.Info("candidate pool saved", "file", out, "hosts", len(pool), "candidates", pool.Len())
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	source, target := args[0], args[1]

	var pool menulabel.Pool
	if strings.EqualFold(filepath.Ext(source), ".json") {
		p, err := menulabel.LoadPool(source)
		if err != nil {
			return err
		}
		pool = p
	} else {
		reader, err := saz.Open(source)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer reader.Close()

		pool, err = menulabel.BuildPool(cmd.Context(), reader, menulabel.DefaultPoolOptions())
		if err != nil {
			return fmt.Errorf("failed to build candidate pool: %w", err)
		}
	}

	m := menulabel.BestMenuFor(target, pool, matchReferer, matchThreshold)

	output, err := getOutputWriter()
	if err != nil {
		return err
	}
	defer closeOutputWriter(output)

	if outputFormat == "json" {
		return outputJSON(output, struct {
			URL string `json:"url"`
			menulabel.Match
		}{target, m})
	}

	fmt.Fprintf(output, "URL:         %s\n", target)
	label := m.Label
	if label == "" {
		label = "-"
	}
	fmt.Fprintf(output, "Label:       %s\n", label)
	fmt.Fprintf(output, "Score:       %.1f\n", m.Score)
	if m.URL != "" {
		fmt.Fprintf(output, "Matched URL: %s\n", m.URL)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	if !quiet {
		fmt.Fprintf(os.Stderr, "Opening %s...\n", filePath)
	}

	reader, err := saz.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	info, err := reader.Info()
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	output, err := getOutputWriter()
	if err != nil {
		return err
	}
	defer closeOutputWriter(output)

	if outputFormat == "json" {
		return outputJSON(output, map[string]interface{}{
			"file":           info.FilePath,
			"file_size":      info.FileSize,
			"requests":       info.Requests,
			"responses":      info.Responses,
			"html_responses": info.HTMLResponses,
			"hosts":          info.Hosts,
		})
	}

	fmt.Fprintf(output, "File: %s\n", info.FilePath)
	fmt.Fprintf(output, "Size: %s (%d bytes)\n", formatSize(info.FileSize), info.FileSize)
	fmt.Fprintf(output, "Requests: %d\n", info.Requests)
	fmt.Fprintf(output, "Responses: %d (%d HTML)\n", info.Responses, info.HTMLResponses)

	hosts := make([]string, 0, len(info.Hosts))
	for h := range info.Hosts {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool {
		if info.Hosts[hosts[i]] != info.Hosts[hosts[j]] {
			return info.Hosts[hosts[i]] > info.Hosts[hosts[j]]
		}
		return hosts[i] < hosts[j]
	})
	fmt.Fprintf(output, "\nHosts (%d unique):\n", len(hosts))
	for _, h := range hosts {
		fmt.Fprintf(output, "  %s: %d\n", h, info.Hosts[h])
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	reader, err := saz.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	filter := buildFilter()
	var sessions []*saz.Session
	sessionChan, errChan := reader.StreamSessions(cmd.Context())
	for s := range sessionChan {
		if filter != nil && !filter.Match(s) {
			continue
		}
		if limit > 0 && len(sessions) >= limit {
			continue
		}
		sessions = append(sessions, s)
	}
	if err := <-errChan; err != nil {
		return err
	}

	output, err := getOutputWriter()
	if err != nil {
		return err
	}
	defer closeOutputWriter(output)

	if outputFormat == "" || outputFormat == "table" {
		return outputTable(output, sessions)
	}

	format, err := saz.ParseExportFormat(outputFormat)
	if err != nil {
		return err
	}
	return saz.Export(output, sessions, saz.ExportOptions{
		Format:      format,
		IncludeBody: includeBody,
		PrettyPrint: true,
		MaxBodySize: maxBodySize,
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchQuery == "" {
		return fmt.Errorf("search query is required (use -q flag)")
	}

	filePath := args[0]

	reader, err := saz.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sessionChan, errChan := reader.StreamSessions(ctx)

	opts := saz.SearchOptions{
		Query:         searchQuery,
		CaseSensitive: !searchIgnoreCase,
		Scope:         saz.ParseSearchScope(searchScope),
		Regex:         searchRegex,
		MaxResults:    limit,
	}

	resultChan, searchErrChan := saz.SearchStream(ctx, sessionChan, opts)

	var results []saz.SearchResult
	for result := range resultChan {
		results = append(results, result)
	}

	if err := <-searchErrChan; err != nil {
		return err
	}
	// The session stream is abandoned once the result limit is reached.
	cancel()
	if err := <-errChan; err != nil && cmd.Context().Err() != nil {
		return err
	}

	output, err := getOutputWriter()
	if err != nil {
		return err
	}
	defer closeOutputWriter(output)

	if outputFormat == "json" {
		return outputJSON(output, searchResultsJSON(results))
	}

	fmt.Fprintf(output, "Found %d results for \"%s\"\n\n", len(results), searchQuery)
	for _, result := range results {
		s := result.Session
		fmt.Fprintf(output, "[%s] %s %s\n", s.ID, s.Method, s.URL)
		if comment := s.Meta.Comment(); comment != "" {
			fmt.Fprintf(output, "    Comment: %s\n", comment)
		}
		for _, match := range result.Matches {
			fmt.Fprintf(output, "    Match in %s: ...%s...\n", match.Location, truncateString(match.Context, 80))
		}
		fmt.Fprintln(output)
	}

	return nil
}

func buildFilter() *saz.Filter {
	f := saz.NewFilter()
	hasFilter := false

	if hostFilter != "" {
		f.WithHost(hostFilter)
		hasFilter = true
	}
	if pathFilter != "" {
		f.WithPath(pathFilter)
		hasFilter = true
	}
	if methodFilter != "" {
		f.WithMethod(strings.Split(methodFilter, ",")...)
		hasFilter = true
	}
	if vulnerableOnly {
		f.WithVulnerableOnly()
		hasFilter = true
	}
	if skipAssets {
		f.WithoutAssets()
		hasFilter = true
	}

	if !hasFilter {
		return nil
	}
	return f
}
