package saz

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const maxDecodedBody = 64 * 1024 * 1024

var (
	requestMemberRe  = regexp.MustCompile(`^raw/(\d+)_c\.txt$`)
	responseMemberRe = regexp.MustCompile(`^raw/(\d+)_s\.txt$`)
)

type memberKind byte

const (
	kindRequest  memberKind = 'c'
	kindResponse memberKind = 's'
	kindMetaXML  memberKind = 'm'
)

// memberNames returns the archive names a session member may be stored
// under: the id as written, then the 4-digit zero-padded and unpadded forms.
func memberNames(id string, kind memberKind, ext string) []string {
	names := []string{fmt.Sprintf("raw/%s_%c.%s", id, kind, ext)}
	n, err := strconv.Atoi(id)
	if err != nil {
		return names
	}
	for _, alt := range []string{
		fmt.Sprintf("raw/%04d_%c.%s", n, kind, ext),
		fmt.Sprintf("raw/%d_%c.%s", n, kind, ext),
	} {
		if !slices.Contains(names, alt) {
			names = append(names, alt)
		}
	}
	return names
}

// ParseHTTPMessage splits raw bytes into start line, headers and body.
func ParseHTTPMessage(data []byte) *HTTPMessage {
	msg := &HTTPMessage{
		Raw:     data,
		Headers: make(http.Header),
	}

	headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
	bodyStart := headerEnd + 4
	if headerEnd == -1 {
		headerEnd = bytes.Index(data, []byte("\n\n"))
		bodyStart = headerEnd + 2
	}

	if headerEnd == -1 {
		headerEnd = len(data)
		bodyStart = len(data)
	}

	headerSection := headerText(data[:headerEnd])
	lines := strings.Split(headerSection, "\n")

	if len(lines) > 0 {
		msg.StartLine = strings.TrimSpace(lines[0])
	}

	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		idx := strings.Index(line, ":")
		if idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			msg.Headers.Add(key, value)
		}
	}

	if bodyStart < len(data) {
		msg.Body = data[bodyStart:]
	}

	if strings.HasPrefix(msg.StartLine, "HTTP/") {
		parts := strings.Fields(msg.StartLine)
		if len(parts) >= 2 {
			msg.StatusCode, _ = strconv.Atoi(parts[1])
		}
	}

	return msg
}

// RequestLine returns the method, target and protocol of a request message.
func (m *HTTPMessage) RequestLine() (method, target, protocol string) {
	if m == nil {
		return "", "", ""
	}
	parts := strings.Fields(m.StartLine)
	if len(parts) >= 2 {
		method = parts[0]
		target = parts[1]
	}
	if len(parts) >= 3 {
		protocol = parts[2]
	}
	return method, target, protocol
}

// ContentType returns the lowercased Content-Type header value.
func (m *HTTPMessage) ContentType() string {
	if m == nil {
		return ""
	}
	return strings.ToLower(m.Headers.Get("Content-Type"))
}

// IsHTML reports whether the message carries an HTML or XHTML document.
func (m *HTTPMessage) IsHTML() bool {
	ct := m.ContentType()
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// DecodedBody returns the body with chunked transfer coding and gzip or
// deflate content coding removed. The raw body is returned when decoding fails.
func (m *HTTPMessage) DecodedBody() []byte {
	if m == nil || len(m.Body) == 0 {
		return nil
	}
	body := m.Body

	if strings.Contains(strings.ToLower(m.Headers.Get("Transfer-Encoding")), "chunked") {
		if dechunked, err := readLimited(httputil.NewChunkedReader(bytes.NewReader(body))); err == nil {
			body = dechunked
		}
	}

	switch strings.ToLower(strings.TrimSpace(m.Headers.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body
		}
		defer zr.Close()
		if inflated, err := readLimited(zr); err == nil {
			return inflated
		}
	case "deflate":
		var zr io.ReadCloser
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			zr = flate.NewReader(bytes.NewReader(body))
		}
		defer zr.Close()
		if inflated, err := readLimited(zr); err == nil {
			return inflated
		}
	}
	return body
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDecodedBody))
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if err == io.ErrUnexpectedEOF && len(data) == 0 {
		return nil, err
	}
	return data, nil
}

// headerText decodes a message head as UTF-8, falling back to Latin-1 so
// every byte survives.
func headerText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func sessionNumber(id string) int {
	n, err := strconv.Atoi(id)
	if err != nil {
		return -1
	}
	return n
}
