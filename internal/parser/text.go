package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docredact/internal/doctree"
)

// TextParser handles plain text files.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	root := &doctree.Container{}
	// Each paragraph becomes a child node.
	for _, para := range paragraphs {
		root.Append(&doctree.Paragraph{Content: doctree.NewRun(para)})
	}

	return &doctree.Document{
		Title:   trimExt(filename, ".txt"),
		Root:    root,
		Encoder: &PlainEncoder{Root: root},
	}, nil
}

// PlainEncoder writes every text-bearing element as its own paragraph,
// separated by blank lines.
type PlainEncoder struct {
	Root *doctree.Container
}

func (e *PlainEncoder) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	first := true
	for _, leaf := range doctree.Leaves(e.Root) {
		t := doctree.TextOf(leaf)
		if t == "" {
			continue
		}
		if !first {
			bw.WriteString("\n")
		}
		first = false
		bw.WriteString(t)
		bw.WriteString("\n")
	}
	return bw.Flush()
}

func (e *PlainEncoder) Ext() string         { return ".txt" }
func (e *PlainEncoder) ContentType() string { return "text/plain; charset=utf-8" }
