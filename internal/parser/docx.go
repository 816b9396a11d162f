package parser

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/docredact/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Text is edited in place on the parsed
// document body and repacked, so styles, numbering and the rest of the
// package come through unchanged.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	// go-docx needs a ReaderAt+size, and reads the untouched package parts
	// back from it when writing, so the bytes stay in memory.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	root := &doctree.Container{}
	for _, item := range doc.Document.Body.Items {
		if el := docxBlock(item); el != nil {
			root.Append(el)
		}
	}

	return &doctree.Document{
		Title:   trimExt(filename, ".docx"),
		Root:    root,
		Encoder: &docxEncoder{doc: doc},
	}, nil
}

func docxBlock(item interface{}) doctree.Element {
	switch v := item.(type) {
	case *docx.Paragraph:
		return docxParagraph(v)
	case *docx.Table:
		return docxTable(v)
	}
	return nil
}

func docxParagraph(para *docx.Paragraph) doctree.Element {
	content := docxSpans(para)
	if h := docxHeading(para); h != doctree.HeadingNormal {
		return &doctree.Paragraph{Heading: h, Content: content}
	}
	if level, ok := docxListLevel(para); ok {
		return &doctree.ListItem{Level: level, Content: content}
	}
	return &doctree.Paragraph{Content: content}
}

func docxTable(t *docx.Table) *doctree.Table {
	table := &doctree.Table{}
	for _, tr := range t.TableRows {
		row := &doctree.TableRow{}
		for _, tc := range tr.TableCells {
			cell := &doctree.TableCell{}
			for _, para := range tc.Paragraphs {
				cell.Children = append(cell.Children, docxParagraph(para))
			}
			for _, nested := range tc.Tables {
				cell.Children = append(cell.Children, docxTable(nested))
			}
			row.Cells = append(row.Cells, cell)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func docxHeading(para *docx.Paragraph) doctree.Heading {
	if para.Properties == nil || para.Properties.Style == nil {
		return doctree.HeadingNormal
	}
	// Style ids have no space ("Heading1"), style names do ("heading 1").
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	switch style {
	case "title":
		return doctree.HeadingTitle
	case "subtitle":
		return doctree.HeadingSubtitle
	}
	if rest, ok := strings.CutPrefix(style, "heading"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			return doctree.HeadingLevel(n)
		}
	}
	return doctree.HeadingNormal
}

func docxListLevel(para *docx.Paragraph) (int, bool) {
	if para.Properties == nil {
		return 0, false
	}
	num := para.Properties.NumProperties
	if num == nil || num.NumID == nil || num.NumID.Val == "0" {
		if para.Properties.Style != nil && strings.EqualFold(para.Properties.Style.Val, "ListParagraph") {
			return 0, true
		}
		return 0, false
	}
	level := 0
	if num.Ilvl != nil {
		if n, err := strconv.Atoi(num.Ilvl.Val); err == nil && n > 0 {
			level = n
		}
	}
	return level, true
}

// docxSpans binds the text-bearing run children of a paragraph, including
// runs inside hyperlinks. Tabs and breaks read as "\t" and "\n" so word
// boundaries survive the concatenation.
func docxSpans(para *docx.Paragraph) doctree.Spans {
	var spans doctree.Spans
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			spans = append(spans, runSpans(c)...)
		case *docx.Hyperlink:
			spans = append(spans, runSpans(&c.Run)...)
		}
	}
	return spans
}

func runSpans(run *docx.Run) doctree.Spans {
	var spans doctree.Spans
	for i, child := range run.Children {
		switch child.(type) {
		case *docx.Text, *docx.Tab, *docx.BarterRabbet:
			spans = append(spans, doctree.Span{
				Get: func() string { return runChildText(run.Children[i]) },
				Set: func(s string) { setRunChild(run, i, s) },
			})
		}
	}
	return spans
}

func runChildText(child interface{}) string {
	switch c := child.(type) {
	case *docx.Text:
		return c.Text
	case *docx.Tab:
		return "\t"
	case *docx.BarterRabbet:
		return "\n"
	}
	return ""
}

func setRunChild(run *docx.Run, i int, s string) {
	if t, ok := run.Children[i].(*docx.Text); ok {
		t.Text = s
		t.XMLSpace = "preserve"
		return
	}
	if runChildText(run.Children[i]) == s {
		return
	}
	run.Children[i] = &docx.Text{Text: s, XMLSpace: "preserve"}
}

type docxEncoder struct {
	doc *docx.Docx
}

func (e *docxEncoder) Encode(w io.Writer) error {
	if _, err := e.doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

func (e *docxEncoder) Ext() string { return ".docx" }

func (e *docxEncoder) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}
