package doctree

import (
	"errors"
	"strings"
)

// ErrNoStorage is returned when text is written to a Spans value that has no
// backing cell to hold it.
var ErrNoStorage = errors.New("no backing storage for text")

// Span is one storage cell of a Spans value.
type Span struct {
	Get func() string
	Set func(string)
}

// Spans is a Text stored across several adjacent cells, such as the <w:t>
// elements of a docx paragraph or the text nodes of an html block. SetText
// writes the whole value into the first cell and empties the rest, which
// keeps the first cell's formatting and drops the others'.
type Spans []Span

func (s Spans) Text() string {
	var b strings.Builder
	for _, sp := range s {
		b.WriteString(sp.Get())
	}
	return b.String()
}

func (s Spans) SetText(v string) error {
	if len(s) == 0 {
		if v == "" {
			return nil
		}
		return ErrNoStorage
	}
	s[0].Set(v)
	for _, sp := range s[1:] {
		sp.Set("")
	}
	return nil
}
