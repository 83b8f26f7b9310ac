package saz

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type ExportFormat int

const (
	FormatJSON ExportFormat = iota
	FormatJSONLines
	FormatCSV
	FormatHAR
)

// ParseExportFormat maps a format name to an ExportFormat.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return FormatJSON, nil
	case "jsonl", "jsonlines", "ndjson":
		return FormatJSONLines, nil
	case "csv":
		return FormatCSV, nil
	case "har":
		return FormatHAR, nil
	default:
		return FormatJSON, fmt.Errorf("unknown export format %q", name)
	}
}

type ExportOptions struct {
	Format      ExportFormat
	IncludeBody bool
	PrettyPrint bool
	MaxBodySize int64
}

func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:      FormatJSON,
		IncludeBody: true,
		PrettyPrint: true,
		MaxBodySize: 10 * 1024,
	}
}

// ExportedSession is the flattened form of a session written by Export.
type ExportedSession struct {
	ID         string           `json:"id"`
	Timestamp  string           `json:"timestamp,omitempty"`
	Method     string           `json:"method"`
	Host       string           `json:"host"`
	URL        string           `json:"url"`
	StatusCode int              `json:"status_code,omitempty"`
	MIMEType   string           `json:"mime_type,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	Vulnerable bool             `json:"vulnerable,omitempty"`
	Request    *ExportedMessage `json:"request,omitempty"`
	Response   *ExportedMessage `json:"response,omitempty"`
}

type ExportedMessage struct {
	StartLine string              `json:"start_line,omitempty"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Body      string              `json:"body,omitempty"`
	BodySize  int                 `json:"body_size,omitempty"`
}

// Export writes sessions to w in the requested format.
func Export(w io.Writer, sessions []*Session, opts ExportOptions) error {
	switch opts.Format {
	case FormatJSONLines:
		return exportJSONLines(w, sessions, opts)
	case FormatCSV:
		return exportCSV(w, sessions)
	case FormatHAR:
		return exportHAR(w, sessions, opts)
	default:
		return exportJSON(w, sessions, opts)
	}
}

func newEncoder(w io.Writer, pretty bool) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc
}

func exportJSON(w io.Writer, sessions []*Session, opts ExportOptions) error {
	out := make([]ExportedSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toExported(s, opts))
	}
	return newEncoder(w, opts.PrettyPrint).Encode(out)
}

func exportJSONLines(w io.Writer, sessions []*Session, opts ExportOptions) error {
	enc := newEncoder(w, false)
	for _, s := range sessions {
		if err := enc.Encode(toExported(s, opts)); err != nil {
			return err
		}
	}
	return nil
}

func exportCSV(w io.Writer, sessions []*Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "timestamp", "method", "host", "url", "status_code", "mime_type", "comment"}); err != nil {
		return err
	}
	for _, s := range sessions {
		status := ""
		if code := statusCode(s); code > 0 {
			status = strconv.Itoa(code)
		}
		if err := cw.Write([]string{
			s.ID,
			sessionTimestamp(s),
			s.Method,
			s.Host,
			s.URL,
			status,
			s.Response.ContentType(),
			s.Meta.Comment(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func toExported(s *Session, opts ExportOptions) ExportedSession {
	out := ExportedSession{
		ID:         s.ID,
		Timestamp:  sessionTimestamp(s),
		Method:     s.Method,
		Host:       s.Host,
		URL:        s.URL,
		StatusCode: statusCode(s),
		MIMEType:   s.Response.ContentType(),
		Comment:    s.Meta.Comment(),
		Vulnerable: s.Meta.IsMarkedVulnerable(),
	}
	if s.Request != nil {
		out.Request = exportMessage(s.Request, opts)
	}
	if s.Response != nil {
		out.Response = exportMessage(s.Response, opts)
	}
	return out
}

func exportMessage(m *HTTPMessage, opts ExportOptions) *ExportedMessage {
	out := &ExportedMessage{
		StartLine: m.StartLine,
		Headers:   m.Headers,
	}
	if opts.IncludeBody {
		body := m.DecodedBody()
		out.BodySize = len(body)
		out.Body = string(clip(body, opts.MaxBodySize))
	}
	return out
}

func clip(b []byte, max int64) []byte {
	if max > 0 && int64(len(b)) > max {
		return b[:max]
	}
	return b
}

func statusCode(s *Session) int {
	if s.Response == nil {
		return 0
	}
	return s.Response.StatusCode
}

func sessionTimestamp(s *Session) string {
	if t, ok := s.Meta.RequestTime(); ok {
		return t.Format(time.RFC3339Nano)
	}
	return ""
}

type HARLog struct {
	Log HARContentLog `json:"log"`
}

type HARContentLog struct {
	Version string     `json:"version"`
	Creator HARCreator `json:"creator"`
	Entries []HAREntry `json:"entries"`
}

type HARCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type HAREntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         HARTimings  `json:"timings"`
	Comment         string      `json:"comment,omitempty"`
}

type HARRequest struct {
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	HTTPVersion string       `json:"httpVersion"`
	Headers     []HARNameVal `json:"headers"`
	QueryString []HARNameVal `json:"queryString"`
	Cookies     []HARNameVal `json:"cookies"`
	HeadersSize int          `json:"headersSize"`
	BodySize    int          `json:"bodySize"`
	PostData    *HARPostData `json:"postData,omitempty"`
}

type HARResponse struct {
	Status      int          `json:"status"`
	StatusText  string       `json:"statusText"`
	HTTPVersion string       `json:"httpVersion"`
	Headers     []HARNameVal `json:"headers"`
	Cookies     []HARNameVal `json:"cookies"`
	Content     HARContent   `json:"content"`
	RedirectURL string       `json:"redirectURL"`
	HeadersSize int          `json:"headersSize"`
	BodySize    int          `json:"bodySize"`
}

type HARNameVal struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type HARPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type HARContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

type HARTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

func exportHAR(w io.Writer, sessions []*Session, opts ExportOptions) error {
	har := HARLog{Log: HARContentLog{
		Version: "1.2",
		Creator: HARCreator{Name: "saz-insights", Version: "1.0.0"},
		Entries: make([]HAREntry, 0, len(sessions)),
	}}
	for _, s := range sessions {
		har.Log.Entries = append(har.Log.Entries, harEntry(s, opts))
	}
	return newEncoder(w, opts.PrettyPrint).Encode(har)
}

func harEntry(s *Session, opts ExportOptions) HAREntry {
	started := time.Unix(0, 0).UTC()
	if t, ok := s.Meta.RequestTime(); ok {
		started = t
	}
	return HAREntry{
		StartedDateTime: started.Format(time.RFC3339Nano),
		Time:            -1,
		Request:         harRequest(s, opts),
		Response:        harResponse(s.Response, opts),
		Timings:         HARTimings{Send: -1, Wait: -1, Receive: -1},
		Comment:         s.Meta.Comment(),
	}
}

func harRequest(s *Session, opts ExportOptions) HARRequest {
	req := HARRequest{
		Method:      s.Method,
		URL:         s.URL,
		HTTPVersion: s.Protocol,
		Headers:     harHeaders(nil),
		QueryString: []HARNameVal{},
		Cookies:     []HARNameVal{},
		HeadersSize: -1,
		BodySize:    -1,
	}
	if s.Request == nil {
		return req
	}
	req.Headers = harHeaders(s.Request.Headers)
	for _, c := range (&http.Request{Header: s.Request.Headers}).Cookies() {
		req.Cookies = append(req.Cookies, HARNameVal{Name: c.Name, Value: c.Value})
	}
	if u, err := url.Parse(s.URL); err == nil {
		q := u.Query()
		for _, k := range sortedKeys(q) {
			for _, v := range q[k] {
				req.QueryString = append(req.QueryString, HARNameVal{Name: k, Value: v})
			}
		}
	}
	if body := s.Request.DecodedBody(); len(body) > 0 {
		req.BodySize = len(body)
		if opts.IncludeBody {
			req.PostData = &HARPostData{
				MimeType: s.Request.Headers.Get("Content-Type"),
				Text:     string(clip(body, opts.MaxBodySize)),
			}
		}
	}
	return req
}

func harResponse(m *HTTPMessage, opts ExportOptions) HARResponse {
	resp := HARResponse{
		Headers:     []HARNameVal{},
		Cookies:     []HARNameVal{},
		HeadersSize: -1,
		BodySize:    -1,
	}
	if m == nil {
		return resp
	}
	resp.Status = m.StatusCode
	resp.StatusText = http.StatusText(m.StatusCode)
	if parts := strings.Fields(m.StartLine); len(parts) > 0 {
		resp.HTTPVersion = parts[0]
	}
	resp.Headers = harHeaders(m.Headers)
	resp.RedirectURL = m.Headers.Get("Location")
	for _, c := range (&http.Response{Header: m.Headers}).Cookies() {
		resp.Cookies = append(resp.Cookies, HARNameVal{Name: c.Name, Value: c.Value})
	}

	body := m.DecodedBody()
	resp.BodySize = len(m.Body)
	resp.Content = HARContent{Size: len(body), MimeType: m.Headers.Get("Content-Type")}
	if opts.IncludeBody && len(body) > 0 {
		body = clip(body, opts.MaxBodySize)
		if isTextContent(m.ContentType()) && utf8.Valid(body) {
			resp.Content.Text = string(body)
		} else {
			resp.Content.Text = base64.StdEncoding.EncodeToString(body)
			resp.Content.Encoding = "base64"
		}
	}
	return resp
}

func harHeaders(h http.Header) []HARNameVal {
	out := []HARNameVal{}
	for _, name := range sortedKeys(h) {
		for _, v := range h[name] {
			out = append(out, HARNameVal{Name: name, Value: v})
		}
	}
	return out
}

func sortedKeys[M ~map[string][]string](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isTextContent(contentType string) bool {
	for _, t := range []string{"text/", "application/json", "application/xml", "application/javascript", "application/x-www-form-urlencoded", "+json", "+xml"} {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
