// Package redact implements the redaction engine: a word redactor that masks
// most words of a text run, and a walker that applies it across a document
// tree while leaving headings untouched.
package redact

import (
	"math/rand/v2"
	"strings"

	"github.com/dgallion1/docredact/internal/doctree"
)

const (
	// Marker replaces every masked word, whatever the word's length.
	Marker = "████"

	// Probability is the per-word chance of being masked.
	Probability = 0.66

	// MaxVisible is the longest allowed run of consecutive unmasked words.
	MaxVisible = 3
)

// Source yields uniform random numbers in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Redactor masks words in text runs. It is owned by a single pass and is not
// safe for concurrent use.
type Redactor struct {
	src   Source
	stats Stats
}

// New returns a Redactor drawing from src. A nil src gets a freshly seeded
// generator.
func New(src Source) *Redactor {
	if src == nil {
		src = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Redactor{src: src}
}

// NewSeeded returns a Redactor whose decisions are reproducible for a given
// seed.
func NewSeeded(seed uint64) *Redactor {
	return New(rand.New(rand.NewPCG(seed, seed)))
}

// Stats returns counters accumulated since the Redactor was created.
func (r *Redactor) Stats() Stats {
	return r.stats
}

// Redact rewrites the content of run in place. Empty runs are left alone.
func (r *Redactor) Redact(run doctree.Text) error {
	if run == nil {
		return nil
	}
	text := run.Text()
	if text == "" {
		return nil
	}
	r.stats.Runs++
	return run.SetText(r.RedactString(text))
}

// RedactString returns s with words masked. Separator tokens are copied
// verbatim. A word is masked when the draw falls below Probability, or
// unconditionally once MaxVisible words in a row have been left visible. A
// draw is taken for every word, forced or not.
func (r *Redactor) RedactString(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	visible := 0
	for _, tok := range Tokenize(s) {
		if !IsWord(tok) {
			out.WriteString(tok)
			if endsSentence(tok) {
				visible = 0
			}
			continue
		}

		r.stats.Words++
		drawn := r.src.Float64() < Probability
		if drawn || visible >= MaxVisible {
			if !drawn {
				r.stats.Forced++
			}
			r.stats.Masked++
			out.WriteString(Marker)
			visible = 0
			continue
		}
		out.WriteString(tok)
		visible++
	}
	return out.String()
}
