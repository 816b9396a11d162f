package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/docredact/internal/config"
	"github.com/dgallion1/docredact/internal/parser"
	"github.com/dgallion1/docredact/internal/pathstore"
	"github.com/dgallion1/docredact/internal/pipeline"
	"github.com/dgallion1/docredact/internal/sink"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// localUser owns jobs run from the command line when --user is not given.
const localUser = "local"

var (
	flagOutDir  string
	flagSeed    uint64
	flagTitle   string
	flagStdout  bool
	flagUser    string
	flagVerbose bool
)

var redactCmd = &cobra.Command{
	Use:   "redact <file>...",
	Short: "Write a redacted copy of each file",
	Long: "Write a redacted copy of each file next to the original, named " +
		"\"<title> - REDACTED - <YYYY-MM-DD HH-MM><ext>\". PDFs are written as plain text.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagStdout && len(args) > 1 {
			return errors.New("--stdout takes exactly one file")
		}
		for _, a := range args {
			if !parser.IsSupportedExtension(a) {
				return fmt.Errorf("unsupported file type: %s", a)
			}
		}
		exitCode = runRedact(cmd.Context(), config.Load(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	redactCmd.Flags().StringVar(&flagOutDir, "out-dir", "", "Directory for copies (default: next to each original)")
	redactCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "Seed for reproducible redaction (default: REDACT_SEED, else random)")
	redactCmd.Flags().StringVar(&flagTitle, "title", "", "Title used to name the copies (default: the document title)")
	redactCmd.Flags().BoolVar(&flagStdout, "stdout", false, "Write the copy to stdout instead of a file")
	redactCmd.Flags().StringVar(&flagUser, "user", "", "Also store copies in pathstore under this user id")
	redactCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log pipeline progress to stderr")
}

// fileResult is the outcome for one input, printed in argument order.
type fileResult struct {
	path string
	snap pipeline.JobSnapshot
	data []byte
	err  error
}

func runRedact(ctx context.Context, cfg config.Config, files []string, stdout, stderr io.Writer) int {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	seed := cfg.RedactSeed
	if flagSeed != 0 {
		seed = flagSeed
	}
	opts := parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext}

	var records *sink.PathstoreSink
	userID := localUser
	if flagUser != "" {
		if !sink.ValidSegment(flagUser) {
			fmt.Fprintf(stderr, "Error: invalid --user %q: must be a single path segment\n", flagUser)
			return ExitUsageError
		}
		if !cfg.PathstoreEnabled() {
			fmt.Fprintln(stderr, "Error: --user needs PATHSTORE_URL and PATHSTORE_API_KEY")
			return ExitUsageError
		}
		ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		defer ps.Close()
		records = sink.NewPathstoreSink(ps)
		userID = flagUser
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.WorkerCount)
	for i, path := range files {
		g.Go(func() error {
			results[i] = redactFile(gctx, path, userID, seed, opts, records, log)
			// Per-file failures are reported, not propagated.
			return nil
		})
	}
	g.Wait()

	code := ExitSuccess
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", r.path, r.err)
			code = ExitFailure
			continue
		}
		if flagStdout {
			stdout.Write(r.data)
			continue
		}
		p := r.snap.Progress
		fmt.Fprintf(stdout, "%s -> %s (%d of %d words masked)\n", r.path, r.snap.Artifact.Locations[0], p.Masked, p.Words)
		for _, loc := range r.snap.Artifact.Locations[1:] {
			fmt.Fprintf(stdout, "  also stored at %s\n", loc)
		}
	}
	return code
}

func redactFile(ctx context.Context, path, userID string, seed uint64, opts parser.Options, records *sink.PathstoreSink, log *slog.Logger) fileResult {
	res := fileResult{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.err = err
		return res
	}

	var sinks []sink.Sink
	if !flagStdout {
		dir := flagOutDir
		if dir == "" {
			dir = filepath.Dir(path)
		}
		sinks = append(sinks, &sink.DirSink{Dir: dir})
	}
	if records != nil {
		sinks = append(sinks, records)
	}

	job := pipeline.NewJob(userID, filepath.Base(path), flagTitle, data)
	pipeline.NewWorker(sinks, opts, seed, log).Process(ctx, job)

	res.snap = job.Snapshot()
	if res.snap.Status != pipeline.StatusCompleted {
		res.err = fmt.Errorf("failed while %s: %v", res.snap.Phase, res.snap.Progress.Errors)
		return res
	}
	_, res.data, _ = job.Output()
	return res
}
