package menulabel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/bmm-sec/saz-insights/pkg/saz"
)

// DefaultProgressEvery is the progress callback cadence used when none is set.
const DefaultProgressEvery = 200

var errNoHost = errors.New("request has no Host header")

// Candidate is a navigational element: a label and the absolute URL it leads
// to. It serializes as a two-element JSON array.
type Candidate struct {
	Label string
	URL   string
}

func (c Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.Label, c.URL})
}

func (c *Candidate) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("candidate must be a [label, url] pair, got %d elements", len(pair))
	}
	c.Label, c.URL = pair[0], pair[1]
	return nil
}

// Pool maps host keys to candidates in discovery order.
type Pool map[string][]Candidate

// Add appends candidates under hostKey.
func (p Pool) Add(hostKey string, cands ...Candidate) {
	if len(cands) == 0 {
		return
	}
	p[hostKey] = append(p[hostKey], cands...)
}

// Dedupe drops repeated (label, URL) pairs per host, keeping the first.
func (p Pool) Dedupe() {
	for host, cands := range p {
		p[host] = dedupe(cands)
	}
}

// Hosts returns the host keys in sorted order.
func (p Pool) Hosts() []string {
	hosts := make([]string, 0, len(p))
	for h := range p {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Len returns the total number of candidates.
func (p Pool) Len() int {
	n := 0
	for _, cands := range p {
		n += len(cands)
	}
	return n
}

func dedupe(cands []Candidate) []Candidate {
	seen := make(map[Candidate]bool, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Archive is the part of a SAZ reader the pool builder needs.
type Archive interface {
	ResponseIDs() []string
	Request(id string) (*saz.HTTPMessage, error)
	Response(id string) (*saz.HTTPMessage, error)
}

// PoolOptions configures BuildPool.
type PoolOptions struct {
	// ProgressEvery sets how often OnProgress fires; values <= 0 use
	// DefaultProgressEvery.
	ProgressEvery int
	OnProgress    func(done, total int)
	Logger        *slog.Logger
}

// DefaultPoolOptions returns sensible default options.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{ProgressEvery: DefaultProgressEvery}
}

// BuildPool mines every HTML response of the archive and groups the
// candidates by the host of the page they were found on. A failing exchange
// is logged and skipped. OnProgress fires after the first exchange, every
// ProgressEvery exchanges and after the last one.
func BuildPool(ctx context.Context, a Archive, opts PoolOptions) (Pool, error) {
	if a == nil {
		return nil, errors.New("no archive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	pool := make(Pool)
	ids := a.ResponseIDs()
	total := len(ids)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		host, cands, err := mineExchange(a, id)
		switch {
		case err != nil:
			logger.Debug("skipping exchange", "session", id, "error", err)
		case len(cands) > 0:
			pool.Add(host, cands...)
		}

		done := i + 1
		if opts.OnProgress != nil && (done == 1 || done%every == 0 || done == total) {
			opts.OnProgress(done, total)
		}
	}

	pool.Dedupe()
	logger.Debug("menu candidate pool built", "hosts", len(pool), "candidates", pool.Len())
	return pool, nil
}

// mineExchange extracts the candidates of one response. Non-HTML responses
// yield nothing. Panics raised while parsing are returned as errors.
func mineExchange(a Archive, id string) (host string, cands []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while mining session %s: %v", id, r)
		}
	}()

	resp, err := a.Response(id)
	if err != nil {
		return "", nil, err
	}
	if !resp.IsHTML() {
		return "", nil, nil
	}

	req, err := a.Request(id)
	if err != nil {
		return "", nil, err
	}
	if req.Headers.Get("Host") == "" {
		return "", nil, errNoHost
	}

	pageURL := saz.PageURL(req)
	doc := decodeBody(resp.DecodedBody(), resp.Headers.Get("Content-Type"))
	return HostKey(pageURL), ExtractCandidates(doc, pageURL), nil
}

// WritePool writes the pool as indented JSON: host key to [label, url] pairs.
func WritePool(w io.Writer, p Pool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// SavePool writes the pool to a JSON file.
func SavePool(path string, p Pool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WritePool(f, p); err != nil {
		f.Close()
		return fmt.Errorf("failed to write candidates: %w", err)
	}
	return f.Close()
}

// ReadPool reads a pool written by WritePool.
func ReadPool(r io.Reader) (Pool, error) {
	var p Pool
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}
	if p == nil {
		p = make(Pool)
	}
	return p, nil
}

// LoadPool reads a pool from a JSON file.
func LoadPool(path string) (Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return ReadPool(f)
}
