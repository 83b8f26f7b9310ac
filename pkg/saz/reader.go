package saz

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
)

// Reader gives random access to the sessions of a SAZ archive.
type Reader struct {
	zr      *zip.Reader
	closer  io.Closer
	path    string
	size    int64
	members map[string]*zip.File

	mu        sync.Mutex
	requests  []string
	responses []string
}

// Open opens a SAZ archive for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r, err := NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	r.path = path
	return r, nil
}

// NewReader reads a SAZ archive of the given size from ra.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("not a SAZ archive: %w", err)
	}

	r := &Reader{
		zr:      zr,
		size:    size,
		members: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ReplaceAll(f.Name, `\`, "/")
		r.members[name] = f

		if m := requestMemberRe.FindStringSubmatch(name); m != nil {
			r.requests = append(r.requests, m[1])
		} else if m := responseMemberRe.FindStringSubmatch(name); m != nil {
			r.responses = append(r.responses, m[1])
		}
	}

	sort.SliceStable(r.requests, func(i, j int) bool {
		return sessionNumber(r.requests[i]) < sessionNumber(r.requests[j])
	})

	return r, nil
}

// Close closes the reader and releases resources.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}

// Path returns the file path of the archive.
func (r *Reader) Path() string {
	return r.path
}

// SessionIDs returns the ids of all request members in numeric order.
func (r *Reader) SessionIDs() []string {
	return append([]string(nil), r.requests...)
}

// ResponseIDs returns the ids of all response members in archive order.
func (r *Reader) ResponseIDs() []string {
	return append([]string(nil), r.responses...)
}

// Request returns the parsed request of a session.
func (r *Reader) Request(id string) (*HTTPMessage, error) {
	data, err := r.member(id, kindRequest, "txt")
	if err != nil {
		return nil, err
	}
	return ParseHTTPMessage(data), nil
}

// Response returns the parsed response of a session.
func (r *Reader) Response(id string) (*HTTPMessage, error) {
	data, err := r.member(id, kindResponse, "txt")
	if err != nil {
		return nil, err
	}
	return ParseHTTPMessage(data), nil
}

// Metadata returns the session metadata, read from the XML member or,
// failing that, the JSON member.
func (r *Reader) Metadata(id string) (*SessionMeta, error) {
	if data, err := r.member(id, kindMetaXML, "xml"); err == nil {
		if meta, err := ParseMetadataXML(data); err == nil {
			return meta, nil
		}
	}
	data, err := r.member(id, kindMetaXML, "json")
	if err != nil {
		return nil, err
	}
	return ParseMetadataJSON(data)
}

// Session assembles everything the archive holds about one session. Only a
// missing request is an error.
func (r *Reader) Session(id string) (*Session, error) {
	req, err := r.Request(id)
	if err != nil {
		return nil, err
	}

	s := &Session{ID: id, Request: req}
	s.Method, s.Target, s.Protocol = req.RequestLine()
	if s.Method == "" {
		return nil, fmt.Errorf("session %s: %w", id, ErrMalformed)
	}
	s.Host = req.Headers.Get("Host")
	s.URL = RequestURL(s.Target, s.Host)

	if resp, err := r.Response(id); err == nil {
		s.Response = resp
	}
	if meta, err := r.Metadata(id); err == nil {
		s.Meta = meta
	}
	return s, nil
}

// StreamSessions returns channels for streaming sessions in numeric order.
// Sessions whose request cannot be read are skipped.
func (r *Reader) StreamSessions(ctx context.Context) (<-chan *Session, <-chan error) {
	sessionChan := make(chan *Session, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(sessionChan)
		defer close(errChan)

		for _, id := range r.SessionIDs() {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			default:
			}

			s, err := r.Session(id)
			if err != nil {
				continue
			}

			select {
			case sessionChan <- s:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return sessionChan, errChan
}

// Info summarizes the archive.
func (r *Reader) Info() (*ArchiveInfo, error) {
	info := &ArchiveInfo{
		FilePath:  r.path,
		FileSize:  r.size,
		Requests:  len(r.requests),
		Responses: len(r.responses),
		Hosts:     make(map[string]int),
	}

	for _, id := range r.requests {
		req, err := r.Request(id)
		if err != nil {
			continue
		}
		if host := req.Headers.Get("Host"); host != "" {
			info.Hosts[strings.ToLower(host)]++
		}
	}
	for _, id := range r.responses {
		resp, err := r.Response(id)
		if err != nil {
			continue
		}
		if resp.IsHTML() {
			info.HTMLResponses++
		}
	}

	return info, nil
}

func (r *Reader) member(id string, kind memberKind, ext string) ([]byte, error) {
	for _, name := range memberNames(id, kind, ext) {
		f, ok := r.members[name]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("session %s (%c): %w", id, kind, ErrNotFound)
}

// RequestURL builds the absolute URL of a request target. Origin-form
// targets are assumed to have been sent over https.
func RequestURL(target, host string) string {
	if strings.HasPrefix(target, "http") {
		return target
	}
	return "https://" + host + target
}

// PageURL builds the absolute URL of a page request, taking the scheme from
// the Referer or Origin header when it is http or https.
func PageURL(req *HTTPMessage) string {
	_, target, _ := req.RequestLine()
	if strings.HasPrefix(target, "http") {
		return target
	}

	scheme := "https"
	ref := req.Headers.Get("Referer")
	if ref == "" {
		ref = req.Headers.Get("Origin")
	}
	if strings.HasPrefix(ref, "http") {
		if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			scheme = u.Scheme
		}
	}
	return scheme + "://" + req.Headers.Get("Host") + target
}
