package doctree

import (
	"io"
	"strings"
)

// Document is the root of a parsed, disposable document copy.
type Document struct {
	Title   string     // Document title (from metadata or filename)
	Root    *Container // Body of the document
	Encoder Encoder    // Writes the (possibly mutated) tree back out
}

// Encoder serializes a document copy after redaction.
type Encoder interface {
	Encode(w io.Writer) error
	Ext() string         // Output file extension, including the dot
	ContentType() string // MIME type of the encoded output
}

// Text is the mutable text content of a text-bearing element.
type Text interface {
	Text() string
	SetText(s string) error
}

// Element is one node of a document tree. The set of implementations is
// closed: Container, Paragraph, ListItem, Table, TableRow, TableCell and Run.
type Element interface {
	Kind() Kind
	element()
}

// Kind names an element kind.
type Kind string

const (
	KindContainer Kind = "container"
	KindParagraph Kind = "paragraph"
	KindListItem  Kind = "list_item"
	KindTable     Kind = "table"
	KindTableRow  Kind = "table_row"
	KindTableCell Kind = "table_cell"
	KindRun       Kind = "text"
)

// Heading is a paragraph-level style. Anything other than HeadingNormal is a
// heading.
type Heading int

const (
	HeadingNormal Heading = iota
	Heading1
	Heading2
	Heading3
	Heading4
	Heading5
	Heading6
	HeadingTitle
	HeadingSubtitle
)

// HeadingLevel maps a numeric level (1-6) to a Heading. Out-of-range levels
// are HeadingNormal.
func HeadingLevel(level int) Heading {
	if level < 1 || level > 6 {
		return HeadingNormal
	}
	return Heading1 + Heading(level-1)
}

// Level returns the numeric level of h: 1-6 for numbered headings, 1 for
// title and 2 for subtitle, 0 for normal paragraphs.
func (h Heading) Level() int {
	switch {
	case h >= Heading1 && h <= Heading6:
		return int(h-Heading1) + 1
	case h == HeadingTitle:
		return 1
	case h == HeadingSubtitle:
		return 2
	}
	return 0
}

func (h Heading) String() string {
	switch h {
	case HeadingNormal:
		return "normal"
	case HeadingTitle:
		return "title"
	case HeadingSubtitle:
		return "subtitle"
	}
	if l := h.Level(); l > 0 {
		return "heading" + string(rune('0'+l))
	}
	return "unknown"
}

// Container holds child elements in document order.
type Container struct {
	Children []Element
}

// Append adds children and returns the container.
func (c *Container) Append(children ...Element) *Container {
	c.Children = append(c.Children, children...)
	return c
}

// Paragraph is a block of text with an optional heading style.
type Paragraph struct {
	Heading Heading
	Content Text
}

// ListItem is a list entry. List items have no heading exemption.
type ListItem struct {
	Level   int // Nesting depth, 0 for top-level items
	Ordered bool
	Content Text
}

// Table is a grid of rows.
type Table struct {
	Rows []*TableRow
}

// TableRow is one row of a table.
type TableRow struct {
	Header bool
	Cells  []*TableCell
}

// TableCell is a container that may hold paragraphs and nested tables.
type TableCell struct {
	Children []Element
}

// Run is a plain text run. It is both an element (text outside any
// paragraph wrapper) and the in-memory Text implementation.
type Run struct {
	Value string
}

// NewRun returns a run holding s.
func NewRun(s string) *Run { return &Run{Value: s} }

func (r *Run) Text() string { return r.Value }

func (r *Run) SetText(s string) error {
	r.Value = s
	return nil
}

func (*Container) Kind() Kind { return KindContainer }
func (*Paragraph) Kind() Kind { return KindParagraph }
func (*ListItem) Kind() Kind  { return KindListItem }
func (*Table) Kind() Kind     { return KindTable }
func (*TableRow) Kind() Kind  { return KindTableRow }
func (*TableCell) Kind() Kind { return KindTableCell }
func (*Run) Kind() Kind       { return KindRun }

func (*Container) element() {}
func (*Paragraph) element() {}
func (*ListItem) element()  {}
func (*Table) element()     {}
func (*TableRow) element()  {}
func (*TableCell) element() {}
func (*Run) element()       {}

// TextOf returns the text of a text-bearing element, or "" for kinds that
// carry no text of their own.
func TextOf(el Element) string {
	switch e := el.(type) {
	case *Paragraph:
		if e.Content != nil {
			return e.Content.Text()
		}
	case *ListItem:
		if e.Content != nil {
			return e.Content.Text()
		}
	case *Run:
		return e.Value
	}
	return ""
}

// Leaves returns the text-bearing elements reachable from el (paragraphs,
// list items and runs) in document order.
func Leaves(el Element) []Element {
	var out []Element
	var walk func(Element)
	walk = func(el Element) {
		switch e := el.(type) {
		case *Container:
			for _, c := range e.Children {
				walk(c)
			}
		case *Table:
			for _, r := range e.Rows {
				walk(r)
			}
		case *TableRow:
			for _, c := range e.Cells {
				walk(c)
			}
		case *TableCell:
			for _, c := range e.Children {
				walk(c)
			}
		case *Paragraph, *ListItem, *Run:
			out = append(out, e)
		}
	}
	walk(el)
	return out
}

// PlainText flattens all text reachable from el, one line per non-empty
// text-bearing element, in document order.
func PlainText(el Element) string {
	var lines []string
	for _, leaf := range Leaves(el) {
		if t := TextOf(leaf); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}
