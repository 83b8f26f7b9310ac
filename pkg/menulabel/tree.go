package menulabel

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// menuHints are class/id fragments of lists that hold navigation menus or
// breadcrumbs.
var menuHints = []string{
	"menu", "nav", "gnb", "lnb", "snb", "submenu", "depth", "dropdown", "tab",
	"category", "side", "global", "primary", "secondary",
	"breadcrumb", "breadcrumbs", "bread", "path", "location", "loc",
}

type menuNode struct {
	label    string
	href     string
	children []*menuNode
}

type leafKey struct {
	label string
	url   string
}

// treeParser is a state machine over the token stream. lists records, for
// every open ul/ol, whether it opened a menu scope. Unmatched closing tags
// leave the counters and the node stack untouched.
type treeParser struct {
	root          *menuNode
	stack         []*menuNode
	navDepth      int
	menuListDepth int
	lists         []bool

	inAnchor   bool
	anchorText strings.Builder
	anchorHref string
}

func newTreeParser() *treeParser {
	root := &menuNode{}
	return &treeParser{root: root, stack: []*menuNode{root}}
}

func (p *treeParser) inScope() bool {
	return p.navDepth > 0 || p.menuListDepth > 0
}

func (p *treeParser) parse(doc string) {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.StartTagToken:
			p.start(z)
		case html.SelfClosingTagToken:
			name := p.start(z)
			p.end(name)
		case html.EndTagToken:
			name, _ := z.TagName()
			p.end(string(name))
		case html.TextToken:
			if p.inAnchor && p.inScope() {
				p.anchorText.Write(z.Text())
			}
		}
	}
}

func (p *treeParser) start(z *html.Tokenizer) string {
	raw, hasAttr := z.TagName()
	name := string(raw)

	var class, id, href string
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch string(key) {
		case "class":
			class = string(val)
		case "id":
			id = string(val)
		case "href":
			href = string(val)
		}
	}

	switch name {
	case "nav":
		p.navDepth++
	case "ul", "ol":
		menu := isMenuList(class, id)
		p.lists = append(p.lists, menu)
		if menu {
			p.menuListDepth++
		}
	case "li":
		if p.inScope() {
			node := &menuNode{}
			top := p.stack[len(p.stack)-1]
			top.children = append(top.children, node)
			p.stack = append(p.stack, node)
		}
	case "a":
		if p.inScope() {
			p.inAnchor = true
			p.anchorText.Reset()
			p.anchorHref = href
		}
	}
	return name
}

func (p *treeParser) end(name string) {
	switch name {
	case "a":
		if p.inAnchor && p.inScope() {
			if label := cleanText(p.anchorText.String()); label != "" {
				top := p.stack[len(p.stack)-1]
				if top.label == "" {
					top.label = label
				}
				if top.href == "" && p.anchorHref != "" {
					top.href = p.anchorHref
				}
			}
		}
		p.inAnchor = false
		p.anchorText.Reset()
		p.anchorHref = ""
	case "li":
		if len(p.stack) > 1 && p.inScope() {
			p.stack = p.stack[:len(p.stack)-1]
		}
	case "ul", "ol":
		if len(p.lists) == 0 {
			return
		}
		menu := p.lists[len(p.lists)-1]
		p.lists = p.lists[:len(p.lists)-1]
		if menu && p.menuListDepth > 0 {
			p.menuListDepth--
		}
	case "nav":
		if p.navDepth > 0 {
			p.navDepth--
		}
	}
}

func isMenuList(class, id string) bool {
	hay := " " + strings.ToLower(class) + " " + strings.ToLower(id) + " "
	for _, hint := range menuHints {
		if strings.Contains(hay, hint) {
			return true
		}
	}
	return false
}

// extractMenuTree returns path-labeled candidates for every linked node of
// the document's navigation lists, along with a table from (leaf label, URL)
// to path-label.
func extractMenuTree(doc string, base *url.URL) ([]Candidate, map[leafKey]string) {
	p := newTreeParser()
	p.parse(doc)

	var out []Candidate
	leaves := make(map[leafKey]string)

	var walk func(n *menuNode, path []string)
	walk = func(n *menuNode, path []string) {
		label := strings.TrimSpace(n.label)
		href := strings.TrimSpace(n.href)
		if label != "" {
			path = append(path[:len(path):len(path)], label)
		}

		if label != "" && href != "" {
			if abs := resolveURL(base, href); abs != "" {
				pathLabel := joinPathLabel(path)
				out = append(out, Candidate{Label: pathLabel, URL: abs})
				leaves[leafKey{label, abs}] = pathLabel
			}
		}

		for _, child := range n.children {
			walk(child, path)
		}
	}
	for _, child := range p.root.children {
		walk(child, nil)
	}

	return out, leaves
}

func joinPathLabel(path []string) string {
	parts := make([]string, len(path))
	for i, l := range path {
		parts[i] = "[" + l + "]"
	}
	return strings.Join(parts, " > ")
}
