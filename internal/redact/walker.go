package redact

import (
	"fmt"

	"github.com/dgallion1/docredact/internal/doctree"
)

// Stats counts what a pass touched.
type Stats struct {
	Runs         int `json:"runs"`          // Non-empty text runs rewritten
	Words        int `json:"words"`         // Word tokens seen
	Masked       int `json:"masked"`        // Word tokens replaced by Marker
	Forced       int `json:"forced"`        // Masks imposed by the MaxVisible ceiling
	HeadingsKept int `json:"headings_kept"` // Heading paragraphs left untouched
}

// MutationError reports a text run that could not be rewritten. The pass
// stops at the first one.
type MutationError struct {
	Kind doctree.Kind
	Err  error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("redact %s: %v", e.Kind, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Walker applies a Redactor to every eligible text run of a tree.
type Walker struct {
	redactor     *Redactor
	headingsKept int
}

// NewWalker returns a Walker using r.
func NewWalker(r *Redactor) *Walker {
	return &Walker{redactor: r}
}

// Stats returns counters for everything visited so far.
func (w *Walker) Stats() Stats {
	s := w.redactor.Stats()
	s.HeadingsKept = w.headingsKept
	return s
}

// Visit walks el depth-first in document order. Heading paragraphs are
// skipped, tables are entered row by row and cell by cell, and paragraphs,
// list items and loose runs are redacted. Elements with neither text nor
// children are ignored.
func (w *Walker) Visit(el doctree.Element) error {
	switch e := el.(type) {
	case *doctree.Paragraph:
		if e.Heading != doctree.HeadingNormal {
			w.headingsKept++
			return nil
		}
		return w.redact(e.Kind(), e.Content)
	case *doctree.ListItem:
		return w.redact(e.Kind(), e.Content)
	case *doctree.Run:
		return w.redact(e.Kind(), e)
	case *doctree.Table:
		for _, row := range e.Rows {
			if err := w.visitRow(row); err != nil {
				return err
			}
		}
	case *doctree.TableRow:
		return w.visitRow(e)
	case *doctree.TableCell:
		return w.visitAll(e.Children)
	case *doctree.Container:
		return w.visitAll(e.Children)
	}
	return nil
}

func (w *Walker) visitRow(row *doctree.TableRow) error {
	if row == nil {
		return nil
	}
	for _, cell := range row.Cells {
		if cell == nil {
			continue
		}
		if err := w.visitAll(cell.Children); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) visitAll(children []doctree.Element) error {
	for _, c := range children {
		if err := w.Visit(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) redact(kind doctree.Kind, t doctree.Text) error {
	if err := w.redactor.Redact(t); err != nil {
		return &MutationError{Kind: kind, Err: err}
	}
	return nil
}

// Document redacts doc's tree with r and returns the pass counters.
func Document(doc *doctree.Document, r *Redactor) (Stats, error) {
	w := NewWalker(r)
	if doc == nil || doc.Root == nil {
		return w.Stats(), nil
	}
	err := w.Visit(doc.Root)
	return w.Stats(), err
}
