package saz

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FlagComment is the session flag Fiddler stores user comments under.
const FlagComment = "ui-comments"

// VulnerabilityMarkers are the comment fragments that flag a session as vulnerable.
var VulnerabilityMarkers = []string{"취약", "[취약]", "vuln", "vulnerable", "漏洞"}

var illegalXMLChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

type xmlSession struct {
	XMLName       xml.Name `xml:"Session"`
	SessionTimers struct {
		ClientBegin string `xml:"ClientBeginRequest,attr"`
		ClientDone  string `xml:"ClientDoneRequest,attr"`
		ClientConn  string `xml:"ClientConnected,attr"`
	} `xml:"SessionTimers"`
	SessionFlags []struct {
		Name  string `xml:"N,attr"`
		Value string `xml:"V,attr"`
	} `xml:"SessionFlags>SessionFlag"`
}

type jsonSession struct {
	Times struct {
		ClientConnected    string `json:"ClientConnected"`
		ClientBeginRequest string `json:"ClientBeginRequest"`
		ClientDoneRequest  string `json:"ClientDoneRequest"`
	} `json:"Times"`
	Flags map[string]string `json:"Flags"`
}

// ParseMetadataXML parses a raw/N_m.xml member.
func ParseMetadataXML(data []byte) (*SessionMeta, error) {
	cleaned := illegalXMLChars.ReplaceAll(data, nil)

	var x xmlSession
	if err := xml.Unmarshal(cleaned, &x); err != nil {
		return nil, fmt.Errorf("error parsing metadata XML: %w", err)
	}

	meta := &SessionMeta{
		ClientBeginRequest: x.SessionTimers.ClientBegin,
		ClientDoneRequest:  x.SessionTimers.ClientDone,
		ClientConnected:    x.SessionTimers.ClientConn,
		Flags:              make(map[string]string, len(x.SessionFlags)),
	}
	for _, flag := range x.SessionFlags {
		if _, ok := meta.Flags[flag.Name]; !ok {
			meta.Flags[flag.Name] = flag.Value
		}
	}
	return meta, nil
}

// ParseMetadataJSON parses a raw/N_m.json member.
func ParseMetadataJSON(data []byte) (*SessionMeta, error) {
	var j jsonSession
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("error parsing metadata JSON: %w", err)
	}
	meta := &SessionMeta{
		ClientBeginRequest: j.Times.ClientBeginRequest,
		ClientDoneRequest:  j.Times.ClientDoneRequest,
		ClientConnected:    j.Times.ClientConnected,
		Flags:              j.Flags,
	}
	if meta.Flags == nil {
		meta.Flags = make(map[string]string)
	}
	return meta, nil
}

// Comment returns the user comment attached to the session.
func (m *SessionMeta) Comment() string {
	if m == nil {
		return ""
	}
	return m.Flags[FlagComment]
}

// IsMarkedVulnerable reports whether the session comment carries one of the
// vulnerability markers.
func (m *SessionMeta) IsMarkedVulnerable() bool {
	comment := strings.ToLower(m.Comment())
	if comment == "" {
		return false
	}
	for _, marker := range VulnerabilityMarkers {
		if strings.Contains(comment, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the ISO-8601 timestamps Fiddler writes (up to seven
// fractional digits). Values without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
