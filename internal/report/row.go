package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmm-sec/saz-insights/pkg/menulabel"
	"github.com/bmm-sec/saz-insights/pkg/saz"
)

// Verdicts written to the result column.
const (
	VerdictVulnerable = "취약"
	VerdictSafe       = "양호"
)

const timestampLayout = "2006-01-02 15:04:05"

// Row is one diagnosed request of the report.
type Row struct {
	SessionID  string `json:"session_id"`
	Path       string `json:"path"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	MenuLabel  string `json:"menu_label,omitempty"`
	MatchScore string `json:"match_score,omitempty"`
	Params     string `json:"params"`
	Result     string `json:"result"`
	Timestamp  string `json:"timestamp,omitempty"`
	Remark     string `json:"remark,omitempty"`
}

// Vulnerable reports whether the session was flagged vulnerable.
func (r Row) Vulnerable() bool {
	return r.Result == VerdictVulnerable
}

// Archive is what the row pipeline reads from a SAZ archive.
type Archive interface {
	menulabel.Archive
	SessionIDs() []string
	Session(id string) (*saz.Session, error)
}

// Options configures Build.
type Options struct {
	MaxValues     int
	MenuLabel     bool
	MenuThreshold float64
	// Pool, when set, is used instead of mining the archive.
	Pool     menulabel.Pool
	Location *time.Location
	Debug    bool
	// Filter drops banned URLs from the finished rows.
	Filter *saz.Filter

	ProgressEvery  int
	OnPoolProgress func(done, total int)
	OnRowProgress  func(done, total int)
	Logger         *slog.Logger
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		MaxValues:     20,
		MenuLabel:     true,
		MenuThreshold: menulabel.DefaultThreshold,
		Location:      time.UTC,
		ProgressEvery: menulabel.DefaultProgressEvery,
	}
}

// Result holds the rows of a report and the candidate pool used to label them.
type Result struct {
	Rows []Row
	Pool menulabel.Pool
}

// Build turns every request of the archive into a report row, in session
// order. CONNECT tunnels, requests without a target and static resources are
// skipped. A session that cannot be processed is logged and skipped.
func Build(ctx context.Context, a Archive, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = menulabel.DefaultProgressEvery
	}

	res := &Result{}
	if opts.MenuLabel {
		res.Pool = opts.Pool
		if res.Pool == nil {
			pool, err := menulabel.BuildPool(ctx, a, menulabel.PoolOptions{
				ProgressEvery: every,
				OnProgress:    opts.OnPoolProgress,
				Logger:        logger,
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				logger.Warn("menu candidate pool build failed, continuing without labels", "error", err)
			}
			res.Pool = pool
		}
	}

	ids := a.SessionIDs()
	total := len(ids)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := buildRow(a, id, res.Pool, opts)
		switch {
		case errors.Is(err, errSkipped):
		case errors.Is(err, saz.ErrMalformed):
			logger.Debug("skipping malformed session", "session", id, "error", err)
		case err != nil:
			logger.Warn("failed to process session", "session", id, "error", err)
		default:
			if opts.Filter == nil || !opts.Filter.IsBanned(row.URL) {
				res.Rows = append(res.Rows, sanitizeRow(row))
			}
		}

		done := i + 1
		if opts.OnRowProgress != nil && (done == 1 || done%every == 0 || done == total) {
			opts.OnRowProgress(done, total)
		}
	}

	return res, nil
}

var errSkipped = errors.New("session skipped")

func buildRow(a Archive, id string, pool menulabel.Pool, opts Options) (row Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	s, err := a.Session(id)
	if err != nil {
		return Row{}, err
	}
	if strings.EqualFold(s.Method, "CONNECT") || s.Target == "" {
		return Row{}, errSkipped
	}
	if saz.IsProbableAsset(s.URL, s.Response) {
		return Row{}, errSkipped
	}

	row = Row{
		SessionID: s.ID,
		Method:    s.Method,
		URL:       s.URL,
		Params:    saz.ExtractParams(s.Request.Headers, s.Target, s.Request.DecodedBody()).Summary(opts.MaxValues),
		Result:    VerdictSafe,
	}
	if s.Meta.IsMarkedVulnerable() {
		row.Result = VerdictVulnerable
	}

	if len(pool) > 0 {
		m := menulabel.BestMenuFor(s.URL, pool, s.Request.Headers.Get("Referer"), opts.MenuThreshold)
		row.MenuLabel = m.Label
		if m.Score != 0 {
			row.MatchScore = fmt.Sprintf("%.1f", m.Score)
		}
	}

	if t, ok := s.Meta.RequestTime(); ok {
		row.Timestamp = t.In(opts.Location).Format(timestampLayout)
	}

	switch {
	case row.MenuLabel != "":
		row.Path = row.MenuLabel
	case opts.Debug:
		row.Path = Breadcrumb(s.URL)
	}
	if opts.Debug {
		row.Remark = row.MatchScore
	}
	return row, nil
}

// CandidatesPath is where the candidate pool of archivePath is saved in outDir.
func CandidatesPath(outDir, archivePath string) string {
	base := filepath.Base(archivePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outDir, stem+"_menu_candidates.json")
}
