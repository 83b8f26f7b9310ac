package saz

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNotFound is returned when a session has no member of the requested kind.
	ErrNotFound = errors.New("saz: archive member not found")
	// ErrMalformed is returned when a member cannot be parsed as an HTTP message.
	ErrMalformed = errors.New("saz: malformed message")
)

// Session is one captured request/response exchange of a SAZ archive.
type Session struct {
	ID       string
	Method   string
	Target   string
	Protocol string
	Host     string
	URL      string
	Request  *HTTPMessage
	Response *HTTPMessage
	Meta     *SessionMeta
}

// HTTPMessage is a raw request or response split into its parts.
type HTTPMessage struct {
	Raw        []byte
	Headers    http.Header
	Body       []byte
	StartLine  string
	StatusCode int
}

// SessionMeta holds the per-session metadata Fiddler writes next to the traffic.
type SessionMeta struct {
	ClientBeginRequest string
	ClientDoneRequest  string
	ClientConnected    string
	Flags              map[string]string
}

// ArchiveInfo summarizes the contents of an archive.
type ArchiveInfo struct {
	FilePath      string
	FileSize      int64
	Requests      int
	Responses     int
	HTMLResponses int
	Hosts         map[string]int
}

// RequestTime returns the best available request timestamp of the session.
func (m *SessionMeta) RequestTime() (time.Time, bool) {
	if m == nil {
		return time.Time{}, false
	}
	for _, v := range []string{m.ClientBeginRequest, m.ClientDoneRequest, m.ClientConnected} {
		if v == "" {
			continue
		}
		if t, err := ParseTimestamp(v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
