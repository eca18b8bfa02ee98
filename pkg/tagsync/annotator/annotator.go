// Package annotator runs the external tagger over a document's token spans and
// writes the resulting tags and lemmata back into the document.
package annotator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cognicore/tagsync/internal/telemetry"
	"github.com/cognicore/tagsync/pkg/tagsync/cas"
	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
	"github.com/cognicore/tagsync/pkg/tagsync/lemma"
	"github.com/cognicore/tagsync/pkg/tagsync/model"
	"github.com/cognicore/tagsync/pkg/tagsync/tagger"
)

// State is the annotator's position in a run.
type State int32

const (
	StateIdle State = iota
	StateConfigured
	StateExtracting
	StateTagging
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateExtracting:
		return "extracting"
	case StateTagging:
		return "tagging"
	case StateWriting:
		return "writing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config is the per-annotator configuration. It is fixed once New returns.
type Config struct {
	// AnnotationType is the type whose annotations are the tokens to tag.
	AnnotationType string
	// TagFeature and LemmaFeature are "feature" or "type:feature".
	TagFeature   string
	LemmaFeature string
	// Update writes onto the token annotations instead of creating new ones.
	Update bool
	// Arguments are passed to the tagger process unchanged.
	Arguments []string
	// Lowercase sends lower-cased token text to the tagger.
	Lowercase bool
}

// Report summarizes one run.
type Report struct {
	Tokens  int
	Created int
	// Skipped is set when the tagger failed and the document was left untouched.
	Skipped bool
}

// Annotator tags documents one at a time with a single Tagger.
type Annotator struct {
	cfg     Config
	tagAddr FeatureAddress
	lemAddr FeatureAddress
	param   *model.Parameter
	tagger  tagger.Tagger
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu    sync.Mutex
	bound *binding
	state atomic.Int32
}

// binding caches the handles resolved against one type system.
type binding struct {
	ts     *cas.TypeSystem
	source *cas.Type
	writer Writer
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithLogger sets the logger used to report recovered tagger failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Annotator) { a.logger = l }
}

// WithMetrics records run metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Annotator) { a.metrics = m }
}

// New validates cfg and attaches the tagger with its arguments and model.
func New(cfg Config, param *model.Parameter, tg tagger.Tagger, opts ...Option) (*Annotator, error) {
	if strings.TrimSpace(cfg.AnnotationType) == "" {
		return nil, internalerr.Configf("annotation.type", "annotation type is required")
	}
	if param == nil {
		return nil, internalerr.Configf("tagger.parameter", "model parameter is required")
	}
	if tg == nil {
		return nil, internalerr.Configf("tagger", "tagger is required")
	}

	tagAddr, lemAddr, err := parseAddresses(cfg)
	if err != nil {
		return nil, err
	}

	a := &Annotator{
		cfg:     cfg,
		tagAddr: tagAddr,
		lemAddr: lemAddr,
		param:   param,
		tagger:  tg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, addr := range []FeatureAddress{tagAddr, lemAddr} {
		if !cfg.Update && addr.Type == cfg.AnnotationType {
			a.logger.Warn("Create mode adds annotations of the token type; later runs will tag them too",
				"type", cfg.AnnotationType, "feature", addr.String())
		}
	}

	tg.SetArguments(cfg.Arguments)
	if err := tg.SetModel(param.Model()); err != nil {
		return nil, &internalerr.ConfigurationError{Field: "tagger.model", Err: err}
	}
	a.state.Store(int32(StateConfigured))
	return a, nil
}

// Check resolves cfg's type and feature names against ts without a tagger.
func Check(cfg Config, ts *cas.TypeSystem) error {
	if strings.TrimSpace(cfg.AnnotationType) == "" {
		return internalerr.Configf("annotation.type", "annotation type is required")
	}
	tagAddr, lemAddr, err := parseAddresses(cfg)
	if err != nil {
		return err
	}
	source, err := ts.Type(cfg.AnnotationType)
	if err != nil {
		return err
	}
	if _, err := tagAddr.resolve(ts, source); err != nil {
		return err
	}
	_, err = lemAddr.resolve(ts, source)
	return err
}

func parseAddresses(cfg Config) (tag, lem FeatureAddress, err error) {
	if tag, err = ParseFeatureAddress("annotation.tagFeature", cfg.TagFeature); err != nil {
		return
	}
	if lem, err = ParseFeatureAddress("annotation.lemmaFeature", cfg.LemmaFeature); err != nil {
		return
	}
	if cfg.Update {
		for _, addr := range []FeatureAddress{tag, lem} {
			if addr.Compound() && addr.Type != cfg.AnnotationType {
				err = internalerr.Configf("annotation.update",
					"feature %s is not on %s; update mode writes to the token type", addr, cfg.AnnotationType)
				return
			}
		}
		return
	}
	// created annotations of the token type would be tagged again by the next run
	for _, f := range []struct {
		field string
		addr  FeatureAddress
	}{{"annotation.tagFeature", tag}, {"annotation.lemmaFeature", lem}} {
		if !f.addr.Compound() {
			err = internalerr.Configf(f.field,
				"create mode needs a Type:feature address, got %q", f.addr.Feature)
			return
		}
	}
	return
}

// State returns the current run state.
func (a *Annotator) State() State { return State(a.state.Load()) }

// Config returns the annotator's configuration.
func (a *Annotator) Config() Config { return a.cfg }

// Close stops the tagger.
func (a *Annotator) Close() error { return a.tagger.Close() }

// Process tags every token annotation in doc.
//
// A TaggerProcessError is logged and leaves doc unchanged; Process then
// returns a skipped report and a nil error. Schema errors, a canceled ctx and
// any other failure are returned.
func (a *Annotator) Process(ctx context.Context, doc Document) (Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.setState(StateIdle)

	// picks up a parameter override between runs; free when unchanged
	if err := a.tagger.SetModel(a.param.Model()); err != nil {
		return Report{}, &internalerr.ConfigurationError{Field: "tagger.model", Err: err}
	}

	a.setState(StateExtracting)
	b, err := a.bind(doc.TypeSystem())
	if err != nil {
		return Report{}, err
	}
	spans := Extract(doc, b.source)
	if len(spans) == 0 {
		a.metrics.RecordRun(ctx, telemetry.OutcomeEmpty, 0, 0)
		return Report{}, nil
	}

	covered := make([]string, len(spans))
	input := make([]string, len(spans))
	for i, s := range spans {
		covered[i] = doc.CoveredText(s)
		input[i] = covered[i]
		if a.cfg.Lowercase {
			input[i] = strings.ToLower(input[i])
		}
	}

	a.setState(StateTagging)
	start := time.Now()
	results, err := a.tagger.Process(ctx, input)
	if err == nil && len(results) != len(spans) {
		err = &internalerr.TaggerProcessError{
			Op:  "process",
			Err: fmt.Errorf("sent %d tokens, received %d results", len(spans), len(results)),
		}
	}
	a.metrics.RecordBatch(ctx, time.Since(start), err == nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			a.metrics.RecordRun(ctx, telemetry.OutcomeFailed, len(spans), 0)
			return Report{}, fmt.Errorf("tag document %s: %w", doc.ID(), ctxErr)
		}
		var procErr *internalerr.TaggerProcessError
		if errors.As(err, &procErr) {
			a.logger.Warn("Tagging failed, document left untagged",
				"doc", doc.ID(), "tokens", len(spans), "error", procErr.Cause().Error())
			a.metrics.RecordRun(ctx, telemetry.OutcomeSkipped, len(spans), 0)
			return Report{Tokens: len(spans), Skipped: true}, nil
		}
		a.metrics.RecordRun(ctx, telemetry.OutcomeFailed, len(spans), 0)
		return Report{}, fmt.Errorf("tag document %s: %w", doc.ID(), err)
	}

	a.setState(StateWriting)
	report := Report{Tokens: len(spans)}
	for i, s := range spans {
		n, err := b.writer.Write(doc, s, results[i].Tag, lemma.Resolve(results[i].Lemma, covered[i]))
		report.Created += n
		if err != nil {
			a.metrics.RecordRun(ctx, telemetry.OutcomeFailed, len(spans), report.Created)
			return report, fmt.Errorf("write token %d of document %s: %w", i, doc.ID(), err)
		}
	}

	a.metrics.RecordRun(ctx, telemetry.OutcomeTagged, len(spans), report.Created)
	return report, nil
}

// bind resolves the configured names against ts, reusing the last result when
// the type system is unchanged.
func (a *Annotator) bind(ts *cas.TypeSystem) (*binding, error) {
	if a.bound != nil && a.bound.ts == ts {
		return a.bound, nil
	}

	source, err := ts.Type(a.cfg.AnnotationType)
	if err != nil {
		return nil, err
	}
	tag, err := a.tagAddr.resolve(ts, source)
	if err != nil {
		return nil, err
	}
	lem, err := a.lemAddr.resolve(ts, source)
	if err != nil {
		return nil, err
	}

	a.bound = &binding{
		ts:     ts,
		source: source,
		writer: Writer{Update: a.cfg.Update, Tag: tag, Lemma: lem},
	}
	return a.bound, nil
}

func (a *Annotator) setState(s State) { a.state.Store(int32(s)) }
