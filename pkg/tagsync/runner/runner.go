// Package runner tags a stream of documents with a pool of workers, each
// owning its own annotator and tagger process.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/tagsync/pkg/tagsync/annotator"
	"github.com/cognicore/tagsync/pkg/tagsync/cas"
)

// Worker processes documents one at a time. *annotator.Annotator is a Worker.
type Worker interface {
	Process(ctx context.Context, doc annotator.Document) (annotator.Report, error)
	Close() error
}

// Factory builds the worker for one goroutine.
type Factory func() (Worker, error)

// Handler receives every processed document. It is called from worker
// goroutines and must be safe for concurrent use.
type Handler func(ctx context.Context, doc *cas.Document, report annotator.Report) error

// Summary totals the reports of one Run.
type Summary struct {
	Documents int
	Tokens    int
	Created   int
	Skipped   int
}

func (s *Summary) add(r annotator.Report) {
	s.Documents++
	s.Tokens += r.Tokens
	s.Created += r.Created
	if r.Skipped {
		s.Skipped++
	}
}

// Runner fans documents out to workers.
type Runner struct {
	workers int
	factory Factory
	handler Handler
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithHandler sets the callback invoked after each document.
func WithHandler(h Handler) Option {
	return func(r *Runner) { r.handler = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a runner with the given number of workers (at least one).
func New(workers int, factory Factory, opts ...Option) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{workers: workers, factory: factory, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes documents from docs until it is closed. The first fatal
// error from a worker or the handler cancels the others and is returned.
func (r *Runner) Run(ctx context.Context, docs <-chan *cas.Document) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			w, err := r.factory()
			if err != nil {
				return fmt.Errorf("start worker %d: %w", i, err)
			}
			defer func() {
				if err := w.Close(); err != nil {
					r.logger.Warn("Closing worker failed", "worker", i, "error", err)
				}
			}()

			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case doc, ok := <-docs:
					if !ok {
						return nil
					}
					report, err := w.Process(gctx, doc)
					if err != nil {
						return err
					}
					mu.Lock()
					sum.add(report)
					mu.Unlock()

					r.logger.Debug("Processed document", "worker", i, "doc", doc.ID(),
						"tokens", report.Tokens, "created", report.Created, "skipped", report.Skipped)
					if r.handler != nil {
						if err := r.handler(gctx, doc, report); err != nil {
							return fmt.Errorf("handle document %s: %w", doc.ID(), err)
						}
					}
				}
			}
		})
	}

	err := g.Wait()
	mu.Lock()
	defer mu.Unlock()
	return sum, err
}

// Slice returns a closed channel holding docs.
func Slice(docs ...*cas.Document) <-chan *cas.Document {
	ch := make(chan *cas.Document, len(docs))
	for _, d := range docs {
		ch <- d
	}
	close(ch)
	return ch
}
