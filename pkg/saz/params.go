package saz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Params is an insertion-ordered multimap of request parameters. Values are
// unique per key.
type Params struct {
	keys   []string
	values map[string][]string
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string][]string)}
}

// Add records value under key unless it is already present.
func (p *Params) Add(key, value string) {
	vals, ok := p.values[key]
	if !ok {
		p.keys = append(p.keys, key)
	}
	if slices.Contains(vals, value) {
		return
	}
	p.values[key] = append(vals, value)
}

// Keys returns the keys in order of first appearance.
func (p *Params) Keys() []string {
	return p.keys
}

// Values returns the values recorded for key.
func (p *Params) Values(key string) []string {
	return p.values[key]
}

// Len returns the number of distinct keys.
func (p *Params) Len() int {
	return len(p.keys)
}

// ExtractParams collects the parameters of a request from its query string
// and from url-encoded or JSON bodies.
func ExtractParams(headers map[string][]string, target string, body []byte) *Params {
	p := NewParams()

	if _, qs, ok := strings.Cut(target, "?"); ok {
		addQuery(p, qs)
	}

	ctype := strings.ToLower(firstHeader(headers, "Content-Type"))
	switch {
	case strings.HasPrefix(ctype, "application/x-www-form-urlencoded"):
		addQuery(p, string(bytes.ToValidUTF8(body, nil)))
	case strings.Contains(ctype, "json"):
		flattenJSON(p, body)
	}

	return p
}

func firstHeader(headers map[string][]string, key string) string {
	for _, k := range []string{key, strings.ToLower(key)} {
		if v := headers[k]; len(v) > 0 {
			return v[0]
		}
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// addQuery parses a query string keeping blank values and pair order.
func addQuery(p *Params, qs string) {
	for _, pair := range strings.Split(qs, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		p.Add(unescapeQuery(k), unescapeQuery(v))
	}
}

func unescapeQuery(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return strings.ReplaceAll(s, "+", " ")
}

// flattenJSON walks a JSON document in token order, naming nested values
// "a.b" for object members and "a[0]" for array elements.
func flattenJSON(p *Params, body []byte) {
	body = bytes.ToValidUTF8(body, nil)
	if !json.Valid(body) {
		return
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	_ = flattenValue(p, dec, "")
}

func flattenValue(p *Params, dec *json.Decoder, key string) error {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				nameTok, err := dec.Token()
				if err != nil {
					return err
				}
				name := fmt.Sprint(nameTok)
				child := name
				if key != "" {
					child = key + "." + name
				}
				if err := flattenValue(p, dec, child); err != nil {
					return err
				}
			}
			_, err = dec.Token()
			return err
		case '[':
			for i := 0; dec.More(); i++ {
				child := key + "[" + strconv.Itoa(i) + "]"
				if err := flattenValue(p, dec, child); err != nil {
					return err
				}
			}
			_, err = dec.Token()
			return err
		}
	case string:
		p.Add(key, t)
	case json.Number:
		p.Add(key, t.String())
	case bool:
		p.Add(key, strconv.FormatBool(t))
	case nil:
		p.Add(key, "null")
	}
	return nil
}

// Summary renders the parameters as "k = [v1, v2]" entries joined by "; ",
// listing at most maxValues values per key.
func (p *Params) Summary(maxValues int) string {
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		vals := p.values[k]
		shown := vals
		more := ""
		if maxValues >= 0 && len(vals) > maxValues {
			shown = vals[:maxValues]
			more = fmt.Sprintf(" (외 %d건)", len(vals)-maxValues)
		}
		parts = append(parts, fmt.Sprintf("%s = [%s]%s", k, strings.Join(shown, ", "), more))
	}
	return strings.Join(parts, "; ")
}
