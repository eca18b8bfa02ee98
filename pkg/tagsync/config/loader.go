package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cognicore/tagsync/internal/telemetry"
	"github.com/cognicore/tagsync/pkg/tagsync/annotator"
	"github.com/cognicore/tagsync/pkg/tagsync/cas"
	"github.com/cognicore/tagsync/pkg/tagsync/ingest"
	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
	"github.com/cognicore/tagsync/pkg/tagsync/model"
	"github.com/cognicore/tagsync/pkg/tagsync/store"
	"github.com/cognicore/tagsync/pkg/tagsync/store/memstore"
	"github.com/cognicore/tagsync/pkg/tagsync/store/sqlite"
	"github.com/cognicore/tagsync/pkg/tagsync/tagger"
)

// Loader loads the configuration file and constructs components
type Loader struct {
	ConfigPath string
	// ParameterOverride, when set, wins over tagger.parameterOverride.
	ParameterOverride string
	// StorePath, when set, wins over store.path.
	StorePath string
}

// Components holds everything built from one configuration
type Components struct {
	Config     *Config
	TypeSystem *cas.TypeSystem
	TokenType  *cas.Type
	Parameter  *model.Parameter
	Tokenizer  *ingest.Tokenizer
	Pipeline   *ingest.Pipeline
	Annotator  annotator.Config
}

// Load reads the configuration and returns initialized components
func (l *Loader) Load() (*Components, error) {
	cfg, err := Load(l.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if l.ParameterOverride != "" {
		cfg.Tagger.ParameterOverride = l.ParameterOverride
	}
	if l.StorePath != "" {
		cfg.Store.Path = l.StorePath
	}
	return Build(cfg)
}

// Build constructs components from an already validated config.
func Build(cfg *Config) (*Components, error) {
	comp := &Components{Config: cfg}

	// Type system
	comp.TypeSystem = cas.NewTypeSystem()
	for _, td := range cfg.Types {
		if _, err := comp.TypeSystem.AddType(td.Name, td.Features...); err != nil {
			return nil, internalerr.Configf("types", "%s: %v", td.Name, err)
		}
	}

	comp.Annotator = annotator.Config{
		AnnotationType: cfg.Annotation.Type,
		TagFeature:     cfg.Annotation.TagFeature,
		LemmaFeature:   cfg.Annotation.LemmaFeature,
		Update:         cfg.Annotation.Update,
		Arguments:      cfg.Tagger.Arguments,
		Lowercase:      cfg.Tagger.LowercaseInput(),
	}
	if err := annotator.Check(comp.Annotator, comp.TypeSystem); err != nil {
		return nil, &internalerr.ConfigurationError{Field: "annotation", Err: err}
	}
	comp.TokenType, _ = comp.TypeSystem.Type(cfg.Annotation.Type)

	// Model parameter
	param, err := model.Load(cfg.Tagger.Parameter)
	if err != nil {
		return nil, fmt.Errorf("load tagger parameter: %w", err)
	}
	if err := param.Override(cfg.Tagger.ParameterOverride); err != nil {
		return nil, fmt.Errorf("load tagger parameter override: %w", err)
	}
	comp.Parameter = param

	// Tokenizer
	mode, err := ingest.ParseMode(cfg.Tokenizer.Mode)
	if err != nil {
		return nil, err
	}
	comp.Tokenizer = ingest.NewTokenizer(mode)
	comp.Pipeline = ingest.NewPipeline(comp.Tokenizer, comp.TokenType)

	return comp, nil
}

// NewTagger creates a tagger for the configured home. The process itself is
// spawned by the first batch.
func (c *Components) NewTagger(logger *slog.Logger) *tagger.Process {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []tagger.Option{tagger.WithLogger(logger)}
	if c.Config.Tagger.Padding != nil {
		opts = append(opts, tagger.WithPadding(*c.Config.Tagger.Padding))
	}
	return tagger.NewProcess(c.Config.Tagger.Home, opts...)
}

// NewAnnotator builds an annotator with its own tagger process.
func (c *Components) NewAnnotator(logger *slog.Logger, metrics *telemetry.Metrics) (*annotator.Annotator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tg := c.NewTagger(logger)
	a, err := annotator.New(c.Annotator, c.Parameter, tg,
		annotator.WithLogger(logger),
		annotator.WithMetrics(metrics),
	)
	if err != nil {
		_ = tg.Close()
		return nil, err
	}
	return a, nil
}

// OpenStore opens the configured document store.
func (c *Components) OpenStore(ctx context.Context) (store.Store, error) {
	switch c.Config.Store.Driver {
	case DriverMemory:
		return memstore.New(), nil
	case DriverSQLite:
		st, err := sqlite.OpenSQLite(ctx, c.Config.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
		}
		return st, nil
	}
	return nil, internalerr.Configf("store.driver", "unknown driver %q", c.Config.Store.Driver)
}
