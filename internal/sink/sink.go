// Package sink persists encoded redacted copies.
package sink

import (
	"context"
	"strings"
	"time"

	"github.com/dgallion1/docredact/internal/redact"
)

// Artifact is an encoded redacted copy ready to be stored.
type Artifact struct {
	DocID       string // Unique id of this copy (the job id in the service)
	UserID      string
	Title       string // Title of the source document
	Name        string // File name of the copy, see CopyName
	ContentType string
	Data        []byte
	Stats       redact.Stats
	CreatedAt   time.Time
}

// Sink is a destination for redacted copies. Put returns where the copy
// ended up (a file path, a store key).
type Sink interface {
	Put(ctx context.Context, a *Artifact) (string, error)
}

// CopyTimeLayout is the minute-resolution timestamp used in copy names.
const CopyTimeLayout = "2006-01-02 15-04"

// CopyName names a redacted copy: "<title> - REDACTED - <YYYY-MM-DD HH-MM><ext>".
// Path separators in title are replaced so the name stays a single segment.
func CopyName(title, ext string, now time.Time) string {
	title = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if title == "" {
		title = "document"
	}
	return title + " - REDACTED - " + now.Format(CopyTimeLayout) + ext
}
