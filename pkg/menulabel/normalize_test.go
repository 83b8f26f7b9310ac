package menulabel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123", IDMarker},
		{"550e8400-e29b-41d4-a716-446655440000", IDMarker},
		{"550E8400-E29B-41D4-A716-446655440000", IDMarker},
		{"deadbeef", IDMarker},
		{"DEADBEEF01", IDMarker},
		{"2024-03-01", IDMarker},
		{"2024/03", IDMarker},
		{"202403", IDMarker},
		{"list.do", "list"},
		{"View.JSP", "View"},
		{"index.html", "index"},
		{"page.htm", "page"},
		{"Profile", "Profile"},
		{"abc123", "abc123"},
		{"  ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSegment(tt.in))
		})
	}
}

func TestPathSegments(t *testing.T) {
	assert.Equal(t, []string{"user", IDMarker, "edit"}, PathSegments("https://h/user/123/edit"))
	assert.Equal(t, PathSegments("https://h/user/123/edit"), PathSegments("https://h/user/999/edit"))
	assert.Equal(t, []string{"board", "list"}, PathSegments("https://h//board/list.do?page=1#top"))
	assert.Equal(t, []string{"a", "b"}, PathSegments("/a/b;jsessionid=XYZ"))
	assert.Empty(t, PathSegments("https://h/"))
	assert.Empty(t, PathSegments(""))
}

func TestPathSegments_Unparseable(t *testing.T) {
	assert.Equal(t, []string{"a b", "%zz", "list"}, PathSegments("https://h/a b/%zz/list.do?x=1"))
}

func TestHostKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Ex.COM/path", "ex.com"},
		{"http://ex.com:80/", "ex.com"},
		{"https://ex.com:443/a", "ex.com"},
		{"https://ex.com:8443/a", "ex.com:8443"},
		{"https://user:pw@ex.com/a", "ex.com"},
		{"ex.com", "ex.com"},
		{"EX.com:443", "ex.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, HostKey(tt.in))
		})
	}
}
