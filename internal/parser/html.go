package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docredact/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. Text is edited in place on the parsed node
// tree, so markup and attributes survive into the redacted copy.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := trimExt(filename, ".html", ".htm")
	// Extract title from <title> tag if present.
	if t := findTitle(doc); t != "" {
		title = t
	}

	root := &doctree.Container{}
	// Find <body> or use whole document.
	if body := findBody(doc); body != nil {
		htmlChildren(body, root, 0)
	} else {
		htmlChildren(doc, root, 0)
	}

	return &doctree.Document{
		Title:   title,
		Root:    root,
		Encoder: &htmlEncoder{doc: doc},
	}, nil
}

var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "br": true,
	"cite": true, "code": true, "data": true, "del": true, "dfn": true,
	"em": true, "i": true, "ins": true, "kbd": true, "label": true,
	"mark": true, "q": true, "s": true, "samp": true, "small": true,
	"span": true, "strong": true, "sub": true, "sup": true, "time": true,
	"u": true, "var": true,
}

// skipTags hold no document text.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "img": true, "svg": true, "iframe": true, "object": true,
}

func isInline(n *html.Node) bool {
	return n.Type == html.TextNode || n.Type == html.ElementNode && inlineTags[n.Data]
}

// htmlChildren maps the children of n into parent. Runs of inline content
// (text nodes and inline elements) become one paragraph each.
func htmlChildren(n *html.Node, parent *doctree.Container, level int) {
	var group []*html.Node
	flush := func() {
		if len(group) == 0 {
			return
		}
		spans := textSpans(group, nil)
		if strings.TrimSpace(spans.Text()) != "" {
			parent.Append(&doctree.Paragraph{Content: spans})
		}
		group = nil
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isInline(c) {
			group = append(group, c)
			continue
		}
		flush()
		htmlNode(c, parent, level)
	}
	flush()
}

func htmlNode(n *html.Node, parent *doctree.Container, level int) {
	if n.Type != html.ElementNode || skipTags[n.Data] {
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		parent.Append(&doctree.Paragraph{
			Heading: doctree.HeadingLevel(headingLevel(n.Data)),
			Content: textSpans(childNodes(n), nil),
		})

	case "p", "pre", "dt", "dd", "caption", "figcaption", "address":
		parent.Append(&doctree.Paragraph{Content: textSpans(childNodes(n), nil)})

	case "ul", "ol":
		list := &doctree.Container{}
		parent.Append(list)
		htmlChildren(n, list, level+1)

	case "li":
		item := &doctree.ListItem{
			Level:   max(level-1, 0),
			Ordered: n.Parent != nil && n.Parent.Data == "ol",
			Content: textSpans(childNodes(n), isList),
		}
		parent.Append(item)
		// Nested lists follow their item.
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isList(c) {
				htmlNode(c, parent, level)
			}
		}

	case "table":
		parent.Append(htmlTable(n, level))

	default:
		box := &doctree.Container{}
		htmlChildren(n, box, level)
		if len(box.Children) > 0 {
			parent.Append(box)
		}
	}
}

func htmlTable(n *html.Node, level int) *doctree.Table {
	table := &doctree.Table{}
	for _, tr := range tableRows(n) {
		row := &doctree.TableRow{}
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
				continue
			}
			box := &doctree.Container{}
			htmlChildren(c, box, level)
			cell := &doctree.TableCell{Children: box.Children}
			if c.Data == "th" {
				row.Header = true
				headerCell(cell)
			}
			row.Cells = append(row.Cells, cell)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// tableRows returns the rows of a table, looking through thead, tbody and
// tfoot but not into nested tables.
func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	for c := table.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "tr":
			rows = append(rows, c)
		case "thead", "tbody", "tfoot":
			for r := c.FirstChild; r != nil; r = r.NextSibling {
				if r.Type == html.ElementNode && r.Data == "tr" {
					rows = append(rows, r)
				}
			}
		}
	}
	return rows
}

func isList(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.Data == "ul" || n.Data == "ol")
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// textSpans binds the text nodes under nodes, in document order, as one
// Text. Subtrees for which exclude returns true are left out.
func textSpans(nodes []*html.Node, exclude func(*html.Node) bool) doctree.Spans {
	var spans doctree.Spans
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if exclude != nil && exclude(n) {
			return
		}
		switch n.Type {
		case html.TextNode:
			spans = append(spans, doctree.Span{
				Get: func() string { return n.Data },
				Set: func(s string) { n.Data = s },
			})
			return
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return spans
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

type htmlEncoder struct {
	doc *html.Node
}

func (e *htmlEncoder) Encode(w io.Writer) error {
	if err := html.Render(w, e.doc); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func (e *htmlEncoder) Ext() string         { return ".html" }
func (e *htmlEncoder) ContentType() string { return "text/html; charset=utf-8" }
