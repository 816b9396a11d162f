package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docredact/internal/parser"
	"github.com/dgallion1/docredact/internal/redact"
	"github.com/dgallion1/docredact/internal/sink"
	"golang.org/x/sync/errgroup"
)

// Worker processes a single redaction job.
type Worker struct {
	sinks      []sink.Sink
	parserOpts parser.Options
	seed       uint64
	log        *slog.Logger
	now        func() time.Time
}

// NewWorker returns a worker writing to sinks. A zero seed gives every job
// its own random source unless the job carries a seed.
func NewWorker(sinks []sink.Sink, opts parser.Options, seed uint64, log *slog.Logger) *Worker {
	return &Worker{
		sinks:      sinks,
		parserOpts: opts,
		seed:       seed,
		log:        log,
		now:        time.Now,
	}
}

func (w *Worker) redactor(job *Job) *redact.Redactor {
	switch {
	case job.Seed != 0:
		return redact.NewSeeded(job.Seed)
	case w.seed != 0:
		return redact.NewSeeded(w.seed)
	}
	return redact.New(nil)
}

// Process runs parse, redact, encode and store for a job. Nothing is
// stored unless the whole pass succeeded.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "user_id", job.UserID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename, w.parserOpts)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.Fail("parsing", err)
		return
	}

	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.Fail("parsing", fmt.Errorf("parse: %w", err))
		return
	}
	job.SetTitle(doc.Title)
	if job.Title != "" {
		doc.Title = job.Title
	}

	// Phase 2: Redact
	job.SetStatus(StatusRedacting, "redacting")
	stats, err := redact.Document(doc, w.redactor(job))
	job.SetStats(stats)
	if err != nil {
		log.Error("redaction failed", "error", err)
		job.Fail("redacting", err)
		return
	}
	log.Info("redacted document", "runs", stats.Runs, "words", stats.Words,
		"masked", stats.Masked, "forced", stats.Forced, "headings_kept", stats.HeadingsKept)

	// Phase 3: Encode
	job.SetStatus(StatusEncoding, "encoding")
	var buf bytes.Buffer
	if err := doc.Encoder.Encode(&buf); err != nil {
		log.Error("encode failed", "error", err)
		job.Fail("encoding", fmt.Errorf("encode: %w", err))
		return
	}
	art := &sink.Artifact{
		DocID:       job.ID,
		UserID:      job.UserID,
		Title:       doc.Title,
		Name:        sink.CopyName(doc.Title, doc.Encoder.Ext(), w.now()),
		ContentType: doc.Encoder.ContentType(),
		Data:        buf.Bytes(),
		Stats:       stats,
		CreatedAt:   w.now(),
	}

	// Phase 4: Store in every configured sink.
	job.SetStatus(StatusStoring, "storing")
	g, gctx := errgroup.WithContext(ctx)
	locations := make([]string, len(w.sinks))
	for i, s := range w.sinks {
		g.Go(func() error {
			return withRetry(gctx, log, "sink put", func() error {
				loc, err := s.Put(gctx, art)
				locations[i] = loc
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("store failed", "error", err)
		job.Fail("storing", fmt.Errorf("store: %w", err))
		return
	}

	job.SetOutput(art.Name, art.ContentType, art.Data)
	for _, loc := range locations {
		job.AddLocation(loc)
	}
	job.SetStatus(StatusCompleted, "done")
	log.Info("redaction complete", "name", art.Name, "size", len(art.Data), "locations", locations)
}
