package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/dgallion1/docredact/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Inline formatting
// (emphasis, links, code spans) is flattened to its text; block structure is
// kept and written back as Markdown. Raw HTML, block or inline, is written
// back verbatim and never redacted.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))

	b := &mdBuilder{src: src}
	root := &doctree.Container{}
	b.blocks(doc, root, "")

	return &doctree.Document{
		Title:   trimExt(filename, ".md", ".markdown"),
		Root:    root,
		Encoder: &markdownEncoder{blocks: b.out},
	}, nil
}

// mdBlock is one rendered block of the output. render reads the current
// text of the bound elements, so it reflects any redaction applied after
// parsing.
type mdBlock struct {
	prefix string // Blockquote markers for every line
	tight  bool   // Joined to the previous block without a blank line
	render func(*strings.Builder)
}

type mdBuilder struct {
	src []byte
	out []mdBlock
}

func (b *mdBuilder) emit(prefix string, tight bool, render func(*strings.Builder)) {
	b.out = append(b.out, mdBlock{prefix: prefix, tight: tight, render: render})
}

// blocks maps the block children of n into parent.
func (b *mdBuilder) blocks(n ast.Node, parent *doctree.Container, prefix string) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		b.block(c, parent, prefix)
	}
}

func (b *mdBuilder) block(n ast.Node, parent *doctree.Container, prefix string) {
	switch node := n.(type) {
	case *ast.Heading:
		el := &doctree.Paragraph{
			Heading: doctree.HeadingLevel(node.Level),
			Content: inlineContent(b.src, node),
		}
		parent.Append(el)
		level := node.Level
		b.emit(prefix, false, func(sb *strings.Builder) {
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteByte(' ')
			sb.WriteString(renderInline(el.Content))
		})

	case *ast.Paragraph, *ast.TextBlock:
		el := &doctree.Paragraph{Content: inlineContent(b.src, node)}
		parent.Append(el)
		b.emit(prefix, false, func(sb *strings.Builder) {
			sb.WriteString(renderInline(el.Content))
		})

	case *ast.List:
		list := &doctree.Container{}
		parent.Append(list)
		b.list(node, list, prefix, 0)

	case *ast.Blockquote:
		quote := &doctree.Container{}
		parent.Append(quote)
		b.blocks(node, quote, prefix+"> ")

	case *ast.FencedCodeBlock:
		run := doctree.NewRun(strings.TrimSuffix(string(node.Lines().Value(b.src)), "\n"))
		parent.Append(run)
		lang := string(node.Language(b.src))
		b.emit(prefix, false, func(sb *strings.Builder) {
			sb.WriteString("```" + lang + "\n")
			sb.WriteString(run.Value)
			sb.WriteString("\n```")
		})

	case *ast.CodeBlock:
		run := doctree.NewRun(strings.TrimSuffix(string(node.Lines().Value(b.src)), "\n"))
		parent.Append(run)
		b.emit(prefix, false, func(sb *strings.Builder) {
			for i, line := range strings.Split(run.Value, "\n") {
				if i > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString("    " + line)
			}
		})

	case *ast.HTMLBlock:
		var raw bytes.Buffer
		raw.Write(node.Lines().Value(b.src))
		if node.HasClosure() {
			raw.Write(node.ClosureLine.Value(b.src))
		}
		// Markup only; no element, so nothing in it is redacted.
		block := strings.TrimSuffix(raw.String(), "\n")
		b.emit(prefix, false, func(sb *strings.Builder) {
			sb.WriteString(block)
		})

	case *ast.ThematicBreak:
		b.emit(prefix, false, func(sb *strings.Builder) {
			sb.WriteString("---")
		})

	case *east.Table:
		b.table(node, parent, prefix)

	default:
		// Unknown blocks: keep whatever block children they have.
		if n.Type() == ast.TypeBlock && n.HasChildren() {
			b.blocks(n, parent, prefix)
		}
	}
}

// list flattens a (possibly nested) list into list items of parent.
func (b *mdBuilder) list(list *ast.List, parent *doctree.Container, prefix string, level int) {
	number := list.Start
	first := true
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var text []ast.Node
		var nested []ast.Node
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				text = append(text, c)
			default:
				nested = append(nested, c)
			}
		}

		el := &doctree.ListItem{
			Level:   level,
			Ordered: list.IsOrdered(),
			Content: inlineContent(b.src, text...),
		}
		parent.Append(el)

		marker := string(list.Marker)
		if list.IsOrdered() {
			marker = strconv.Itoa(number) + string(list.Marker)
		}
		number++
		indent := strings.Repeat("  ", level)
		b.emit(prefix, !first && list.IsTight || level > 0 && first, func(sb *strings.Builder) {
			body := strings.ReplaceAll(renderInline(el.Content), "\n", "\n"+indent+"  ")
			sb.WriteString(indent + marker + " " + body)
		})
		first = false

		for _, c := range nested {
			if sub, ok := c.(*ast.List); ok {
				b.list(sub, parent, prefix, level+1)
				continue
			}
			b.block(c, parent, prefix)
		}
	}
}

func (b *mdBuilder) table(t *east.Table, parent *doctree.Container, prefix string) {
	table := &doctree.Table{}
	parent.Append(table)
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		_, header := r.(*east.TableHeader)
		row := &doctree.TableRow{Header: header}
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			p := &doctree.Paragraph{Content: inlineContent(b.src, c)}
			cell := &doctree.TableCell{Children: []doctree.Element{p}}
			if header {
				headerCell(cell)
			}
			row.Cells = append(row.Cells, cell)
		}
		table.Rows = append(table.Rows, row)
	}

	b.emit(prefix, false, func(sb *strings.Builder) {
		for i, row := range table.Rows {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("|")
			for _, cell := range row.Cells {
				v := ""
				if len(cell.Children) > 0 {
					v = renderInline(cell.Children[0].(*doctree.Paragraph).Content)
				}
				sb.WriteString(" " + strings.ReplaceAll(v, "|", `\|`) + " |")
			}
			if row.Header {
				sb.WriteString("\n|")
				for range row.Cells {
					sb.WriteString(" --- |")
				}
			}
		}
	})
}

// rawMark stands in for a raw HTML span inside the text handed to the
// redactor. It is whitespace, so tags always sit in separator tokens.
const rawMark = "\u0085"

var errInlineShape = errors.New("markdown inline: raw html boundaries changed")

// mdInline is inline text interleaved with raw HTML. Text and SetText expose
// only the text, with rawMark where each HTML span sits; rendering puts the
// spans back.
type mdInline struct {
	texts []string // len(raws)+1 text segments
	raws  []string
}

func (m *mdInline) Text() string {
	return strings.Join(m.texts, rawMark)
}

func (m *mdInline) SetText(s string) error {
	parts := strings.Split(s, rawMark)
	if len(parts) != len(m.texts) {
		return errInlineShape
	}
	m.texts = parts
	return nil
}

func (m *mdInline) render() string {
	var sb strings.Builder
	for i, t := range m.texts {
		sb.WriteString(t)
		if i < len(m.raws) {
			sb.WriteString(m.raws[i])
		}
	}
	return sb.String()
}

// renderInline returns the Markdown for a block's text content.
func renderInline(t doctree.Text) string {
	switch v := t.(type) {
	case nil:
		return ""
	case *mdInline:
		return v.render()
	}
	return t.Text()
}

// inlineContent collects the inline text of nodes, one line per node. The
// result is a plain run unless raw HTML occurs.
func inlineContent(src []byte, nodes ...ast.Node) doctree.Text {
	c := &inlineCollector{src: src}
	for i, n := range nodes {
		if i > 0 {
			c.cur.WriteByte('\n')
		}
		c.collect(n)
	}
	c.texts = append(c.texts, c.cur.String())

	if len(c.raws) == 0 {
		return doctree.NewRun(strings.TrimSpace(c.texts[0]))
	}
	last := len(c.texts) - 1
	c.texts[0] = strings.TrimLeftFunc(c.texts[0], unicode.IsSpace)
	c.texts[last] = strings.TrimRightFunc(c.texts[last], unicode.IsSpace)
	for i, t := range c.texts {
		c.texts[i] = strings.ReplaceAll(t, rawMark, " ")
	}
	return &mdInline{texts: c.texts, raws: c.raws}
}

type inlineCollector struct {
	src   []byte
	cur   bytes.Buffer
	texts []string
	raws  []string
}

func (c *inlineCollector) collect(n ast.Node) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Text:
			c.cur.Write(t.Value(c.src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				c.cur.WriteByte('\n')
			}
		case *ast.String:
			c.cur.Write(t.Value)
		case *ast.AutoLink:
			c.cur.Write(t.Label(c.src))
		case *ast.RawHTML:
			var raw bytes.Buffer
			for i := 0; i < t.Segments.Len(); i++ {
				seg := t.Segments.At(i)
				raw.Write(seg.Value(c.src))
			}
			c.texts = append(c.texts, c.cur.String())
			c.cur.Reset()
			c.raws = append(c.raws, raw.String())
		case *ast.Image:
			// Images are not text.
		default:
			// Recurse for nested inlines.
			c.collect(child)
		}
	}
}

type markdownEncoder struct {
	blocks []mdBlock
}

func (e *markdownEncoder) Encode(w io.Writer) error {
	var out strings.Builder
	for i, blk := range e.blocks {
		if i > 0 {
			if blk.tight {
				out.WriteString("\n")
			} else {
				out.WriteString("\n\n")
			}
		}
		var sb strings.Builder
		blk.render(&sb)
		if blk.prefix == "" {
			out.WriteString(sb.String())
			continue
		}
		for j, line := range strings.Split(sb.String(), "\n") {
			if j > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(blk.prefix + line)
		}
	}
	if out.Len() > 0 {
		out.WriteByte('\n')
	}
	_, err := io.WriteString(w, out.String())
	return err
}

func (e *markdownEncoder) Ext() string         { return ".md" }
func (e *markdownEncoder) ContentType() string { return "text/markdown; charset=utf-8" }
