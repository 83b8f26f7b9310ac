package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bmm-sec/saz-insights/internal/config"
	"github.com/bmm-sec/saz-insights/internal/report"
	"github.com/bmm-sec/saz-insights/pkg/menulabel"
	"github.com/bmm-sec/saz-insights/pkg/saz"
)

// reportSettings is the configuration of one report run: the config file
// (or defaults) with explicitly set flags applied on top.
type reportSettings struct {
	cfg        *config.Config
	location   *time.Location
	candidates string
}

func resolveSettings(cmd *cobra.Command) (*reportSettings, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyFlagOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &reportSettings{cfg: cfg, location: loc, candidates: candidatesFile}, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("banned-file") {
		cfg.Report.BannedFile = bannedFile
	}
	if flags.Changed("max-values") {
		cfg.Report.MaxValues = maxValues
	}
	if flags.Changed("base-url") {
		cfg.Report.BaseURL = baseURL
	}
	if flags.Changed("include-time") {
		cfg.Report.IncludeTime = includeTime
	}
	if flags.Changed("separate-by-url") {
		cfg.Report.SeparateByURL = separateByURL
	}
	if flags.Changed("timezone") {
		cfg.Report.Timezone = timezone
	}
	if flags.Changed("menu-label") {
		cfg.Menu.Enabled = menuLabel
	}
	if flags.Changed("menu-threshold") {
		cfg.Menu.Threshold = menuThreshold
	}
	if flags.Changed("menu-save-candidates") {
		cfg.Menu.SaveCandidates = menuSaveCands
	}
	if flags.Changed("progress") {
		cfg.Progress.Enabled = showProgress
	}
	if flags.Changed("progress-every") {
		cfg.Progress.Every = progressEvery
	}
	if flags.Changed("debug") {
		cfg.Debug = debugMode
	}
	if quiet {
		cfg.Progress.Enabled = false
	}
}

func (s *reportSettings) layout() report.Layout {
	return report.Layout{IncludeTime: s.cfg.Report.IncludeTime, Debug: s.cfg.Debug}
}

func (s *reportSettings) xlsxOptions() report.XLSXOptions {
	return report.XLSXOptions{
		Layout:        s.layout(),
		BaseURL:       s.cfg.Report.BaseURL,
		SeparateByURL: s.cfg.Report.SeparateByURL,
	}
}

func (s *reportSettings) filter() (*saz.Filter, error) {
	if s.cfg.Report.BannedFile == "" {
		return nil, nil
	}
	prefixes, regexes, err := saz.LoadBannedFile(s.cfg.Report.BannedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read banned file: %w", err)
	}
	return saz.NewFilter().WithBanned(prefixes, regexes), nil
}

func buildRows(ctx context.Context, filePath string, s *reportSettings) (*report.Result, error) {
	reader, err := saz.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	filter, err := s.filter()
	if err != nil {
		return nil, err
	}

	opts := report.DefaultOptions()
	opts.MaxValues = s.cfg.Report.MaxValues
	opts.MenuLabel = s.cfg.Menu.Enabled
	opts.MenuThreshold = s.cfg.Menu.Threshold
	opts.Location = s.location
	opts.Debug = s.cfg.Debug
	opts.Filter = filter
	opts.ProgressEvery = s.cfg.Progress.Every
	opts.Logger = slog.Default()

	if s.candidates != "" && opts.MenuLabel {
		pool, err := menulabel.LoadPool(s.candidates)
		if err != nil {
			return nil, err
		}
		opts.Pool = pool
	}

	enabled := s.cfg.Progress.Enabled
	poolBar := newProgress(enabled && opts.MenuLabel && opts.Pool == nil, "menu candidates")
	rowBar := newProgress(enabled, "rows")
	opts.OnPoolProgress = poolBar.Update
	opts.OnRowProgress = func(done, total int) {
		poolBar.Finish()
		rowBar.Update(done, total)
	}

	res, err := report.Build(ctx, reader, opts)
	poolBar.Finish()
	rowBar.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	return res, nil
}

// saveCandidates writes the pool JSON next to the report. Failures are
// logged and never stop the report itself.
func saveCandidates(s *reportSettings, outDir, archivePath string, pool menulabel.Pool) {
	if !s.cfg.Menu.SaveCandidates || pool == nil {
		return
	}
	path := report.CandidatesPath(outDir, archivePath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		slog.Warn("failed to save candidate pool", "file", path, "error", err)
		return
	}
	if err := menulabel.SavePool(path, pool); err != nil {
		slog.Warn("failed to save candidate pool", "file", path, "error", err)
		return
	}
	slog.Info("candidate pool saved", "file", path, "hosts", len(pool), "candidates", pool.Len())
}

func outputDir() string {
	if outputFile == "" {
		return "."
	}
	return filepath.Dir(outputFile)
}

func writeHTMLReport(path string, res *report.Result, s *reportSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	opts := report.HTMLOptions{
		Layout:  s.layout(),
		BaseURL: s.cfg.Report.BaseURL,
	}
	if s.cfg.Debug {
		opts.Pool = res.Pool
	}
	if err := report.WriteHTML(f, res.Rows, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
