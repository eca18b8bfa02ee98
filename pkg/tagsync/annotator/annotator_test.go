package annotator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/cognicore/tagsync/internal/telemetry"
	"github.com/cognicore/tagsync/pkg/tagsync/cas"
	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
	"github.com/cognicore/tagsync/pkg/tagsync/model"
	"github.com/cognicore/tagsync/pkg/tagsync/tagger"
	"github.com/cognicore/tagsync/pkg/tagsync/tagger/mocks"
	"github.com/cognicore/tagsync/pkg/tagsync/tagger/taggertest"
)

const sampleText = "This is a text without any special character ."

type tuple struct {
	Begin, End int
	Lemma, Tag string
}

var sampleTuples = []tuple{
	{0, 4, "this", "DT"},
	{5, 7, "be", "VBZ"},
	{8, 9, "a", "DT"},
	{10, 14, "text", "NN"},
	{15, 22, "without", "IN"},
	{23, 26, "any", "DT"},
	{27, 34, "special", "JJ"},
	{35, 44, "character", "NN"},
	{45, 46, ".", "SENT"},
}

func newTypeSystem(t *testing.T) *cas.TypeSystem {
	t.Helper()
	ts := cas.NewTypeSystem()
	for _, td := range []struct {
		name     string
		features []string
	}{
		{"Token", []string{"pos", "lemma"}},
		{"POS", []string{"value"}},
		{"Lemma", []string{"value"}},
		{"Analysis", []string{"tag", "lemma"}},
	} {
		_, err := ts.AddType(td.name, td.features...)
		require.NoError(t, err)
	}
	return ts
}

// newTokenized indexes one Token per whitespace-separated word.
func newTokenized(t *testing.T, ts *cas.TypeSystem, text string) *cas.Document {
	t.Helper()
	doc := cas.NewDocument(ts, text)
	tokenType, err := ts.Type("Token")
	require.NoError(t, err)

	begin := -1
	runes := []rune(text)
	for i := 0; i <= len(runes); i++ {
		space := i == len(runes) || unicode.IsSpace(runes[i])
		switch {
		case !space && begin < 0:
			begin = i
		case space && begin >= 0:
			a, err := doc.CreateAnnotation(tokenType, begin, i)
			require.NoError(t, err)
			require.NoError(t, doc.AddToIndex(a))
			begin = -1
		}
	}
	return doc
}

func newParameter(t *testing.T) *model.Parameter {
	t.Helper()
	p, err := model.New("/opt/treetagger/lib/english.par", "utf-8")
	require.NoError(t, err)
	return p
}

func feature(t *testing.T, ts *cas.TypeSystem, addr string) *cas.Feature {
	t.Helper()
	a, err := ParseFeatureAddress("test", addr)
	require.NoError(t, err)
	typ, err := ts.Type(a.Type)
	require.NoError(t, err)
	f, err := typ.Feature(a.Feature)
	require.NoError(t, err)
	return f
}

func value(t *testing.T, a *cas.Annotation, f *cas.Feature) string {
	t.Helper()
	v, ok := a.StringValue(f)
	require.True(t, ok, "%s has no value for %s", a.CoveredText(), f)
	return v
}

func updateConfig() Config {
	return Config{
		AnnotationType: "Token",
		TagFeature:     "pos",
		LemmaFeature:   "lemma",
		Update:         true,
		Lowercase:      true,
	}
}

func TestProcess_UpdateModeWritesOntoTokens(t *testing.T) {
	t.Parallel()
	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, sampleText)
	lex := taggertest.English()

	a, err := New(updateConfig(), newParameter(t), lex)
	require.NoError(t, err)

	report, err := a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Report{Tokens: 9}, report)
	assert.Equal(t, 9, doc.Size(), "update mode adds no annotations")

	pos := feature(t, ts, "Token:pos")
	lem := feature(t, ts, "Token:lemma")
	var got []tuple
	for _, tok := range doc.Select(pos.Domain()) {
		got = append(got, tuple{tok.Begin(), tok.End(), value(t, tok, lem), value(t, tok, pos)})
	}
	assert.Equal(t, sampleTuples, got)
	assert.Equal(t, StateIdle, a.State())
}

func TestProcess_UpdateModeIsIdempotent(t *testing.T) {
	t.Parallel()
	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, sampleText)

	a, err := New(updateConfig(), newParameter(t), taggertest.English())
	require.NoError(t, err)

	_, err = a.Process(context.Background(), doc)
	require.NoError(t, err)
	_, err = a.Process(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, 9, doc.Size())
	pos := feature(t, ts, "Token:pos")
	assert.Equal(t, "VBZ", value(t, doc.Select(pos.Domain())[1], pos))
}

func TestProcess_CreateModeAddsSeparateAnnotations(t *testing.T) {
	t.Parallel()
	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, sampleText)

	cfg := Config{
		AnnotationType: "Token",
		TagFeature:     "POS:value",
		LemmaFeature:   "Lemma:value",
		Lowercase:      true,
	}
	a, err := New(cfg, newParameter(t), taggertest.English())
	require.NoError(t, err)

	report, err := a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Report{Tokens: 9, Created: 18}, report)
	assert.Equal(t, 27, doc.Size())

	tokenType, err := ts.Type("Token")
	require.NoError(t, err)
	tokens := doc.Select(tokenType)
	require.Len(t, tokens, 9)
	for _, tok := range tokens {
		_, ok := tok.StringValue(feature(t, ts, "Token:pos"))
		assert.False(t, ok, "source annotations stay untouched")
	}

	posVal := feature(t, ts, "POS:value")
	lemVal := feature(t, ts, "Lemma:value")
	tags := doc.Select(posVal.Domain())
	lemmas := doc.Select(lemVal.Domain())
	require.Len(t, tags, 9)
	require.Len(t, lemmas, 9)

	var got []tuple
	for i := range tags {
		assert.Equal(t, tokens[i].Begin(), lemmas[i].Begin())
		assert.Equal(t, tokens[i].End(), lemmas[i].End())
		got = append(got, tuple{tags[i].Begin(), tags[i].End(), value(t, lemmas[i], lemVal), value(t, tags[i], posVal)})
	}
	assert.Equal(t, sampleTuples, got)
}

func TestProcess_CreateModeSameTypeCreatesTwoAnnotations(t *testing.T) {
	t.Parallel()
	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, "This is")

	cfg := Config{
		AnnotationType: "Token",
		TagFeature:     "Analysis:tag",
		LemmaFeature:   "Analysis:lemma",
		Lowercase:      true,
	}
	a, err := New(cfg, newParameter(t), taggertest.English())
	require.NoError(t, err)

	report, err := a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Created)

	tag := feature(t, ts, "Analysis:tag")
	lem := feature(t, ts, "Analysis:lemma")
	analyses := doc.Select(tag.Domain())
	require.Len(t, analyses, 4)

	// per span: the tag annotation first, then the lemma annotation
	assert.Equal(t, "DT", value(t, analyses[0], tag))
	_, ok := analyses[0].StringValue(lem)
	assert.False(t, ok)
	assert.Equal(t, "this", value(t, analyses[1], lem))
	_, ok = analyses[1].StringValue(tag)
	assert.False(t, ok)
}

func TestProcess_LemmaResolution(t *testing.T) {
	t.Parallel()
	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, "Zyzzyva saw that")

	lex := taggertest.English()
	lex.Entries["saw"] = taggertest.Entry{Tag: "VBD", Lemma: "see|saw?"}
	lex.Entries["that"] = taggertest.Entry{Tag: "IN", Lemma: "that?"}

	a, err := New(updateConfig(), newParameter(t), lex)
	require.NoError(t, err)
	_, err = a.Process(context.Background(), doc)
	require.NoError(t, err)

	lem := feature(t, ts, "Token:lemma")
	tokens := doc.Select(lem.Domain())
	assert.Equal(t, "Zyzzyva", value(t, tokens[0], lem), "absent lemma falls back to the covered text")
	assert.Equal(t, "saw", value(t, tokens[1], lem))
	assert.Equal(t, "that", value(t, tokens[2], lem))
}

func TestProcess_Lowercasing(t *testing.T) {
	t.Parallel()
	for _, lower := range []bool{true, false} {
		ts := newTypeSystem(t)
		doc := newTokenized(t, ts, "This IS")
		lex := taggertest.English()

		cfg := updateConfig()
		cfg.Lowercase = lower
		a, err := New(cfg, newParameter(t), lex)
		require.NoError(t, err)
		_, err = a.Process(context.Background(), doc)
		require.NoError(t, err)

		batches := lex.Batches()
		require.Len(t, batches, 1)
		if lower {
			assert.Equal(t, []string{"this", "is"}, batches[0])
		} else {
			assert.Equal(t, []string{"This", "IS"}, batches[0])
		}
	}
}

func TestProcess_EmptyDocumentSkipsTagger(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tg := mocks.NewMockTagger(ctrl)
	tg.EXPECT().SetArguments(gomock.Any())
	tg.EXPECT().SetModel(gomock.Any()).Return(nil).AnyTimes()

	a, err := New(updateConfig(), newParameter(t), tg)
	require.NoError(t, err)

	doc := cas.NewDocument(newTypeSystem(t), "   ")
	report, err := a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestProcess_TaggerFailureLeavesDocumentUntouched(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tg := mocks.NewMockTagger(ctrl)
	tg.EXPECT().SetArguments([]string{"-quiet"})
	tg.EXPECT().SetModel("/opt/treetagger/lib/english.par:utf-8").Return(nil).AnyTimes()
	tg.EXPECT().Process(gomock.Any(), gomock.Len(9)).Return(nil, &internalerr.TaggerProcessError{
		Op:  "process",
		Err: errors.New("segmentation fault"),
	})

	var logs bytes.Buffer
	cfg := Config{
		AnnotationType: "Token",
		TagFeature:     "POS:value",
		LemmaFeature:   "Lemma:value",
		Arguments:      []string{"-quiet"},
	}
	a, err := New(cfg, newParameter(t), tg, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, sampleText)
	report, err := a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Report{Tokens: 9, Skipped: true}, report)
	assert.Equal(t, 9, doc.Size())
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "segmentation fault")
	assert.Contains(t, logs.String(), doc.ID())
}

func TestProcess_MisalignedResultsAreSkipped(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tg := mocks.NewMockTagger(ctrl)
	tg.EXPECT().SetArguments(gomock.Any())
	tg.EXPECT().SetModel(gomock.Any()).Return(nil).AnyTimes()
	tg.EXPECT().Process(gomock.Any(), gomock.Any()).Return([]tagger.Result{{Tag: "DT"}}, nil)

	a, err := New(updateConfig(), newParameter(t), tg, WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, "This is")
	report, err := a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	pos := feature(t, ts, "Token:pos")
	for _, tok := range doc.Select(pos.Domain()) {
		_, ok := tok.StringValue(pos)
		assert.False(t, ok)
	}
}

func TestProcess_OtherErrorsPropagate(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tg := mocks.NewMockTagger(ctrl)
	tg.EXPECT().SetArguments(gomock.Any())
	tg.EXPECT().SetModel(gomock.Any()).Return(nil).AnyTimes()
	boom := errors.New("boom")
	tg.EXPECT().Process(gomock.Any(), gomock.Any()).Return(nil, boom)

	a, err := New(updateConfig(), newParameter(t), tg)
	require.NoError(t, err)

	doc := newTokenized(t, newTypeSystem(t), "This")
	_, err = a.Process(context.Background(), doc)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), doc.ID())
}

func TestProcess_CanceledRunIsFatal(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tg := mocks.NewMockTagger(ctrl)
	tg.EXPECT().SetArguments(gomock.Any())
	tg.EXPECT().SetModel(gomock.Any()).Return(nil).AnyTimes()
	tg.EXPECT().Process(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ []string) ([]tagger.Result, error) {
			<-ctx.Done()
			return nil, &internalerr.TaggerProcessError{Op: "process", Err: ctx.Err()}
		})

	var logs bytes.Buffer
	a, err := New(updateConfig(), newParameter(t), tg, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, "this hangs")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := a.Process(ctx, doc)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), doc.ID())
	assert.False(t, report.Skipped)
	assert.NotContains(t, logs.String(), "level=WARN")

	pos := feature(t, ts, "Token:pos")
	for _, tok := range doc.Select(pos.Domain()) {
		_, ok := tok.StringValue(pos)
		assert.False(t, ok)
	}
}

func TestProcess_SchemaErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "missing source type",
			cfg:     Config{AnnotationType: "Word", TagFeature: "pos", LemmaFeature: "lemma", Update: true},
			wantErr: internalerr.ErrSchema,
		},
		{
			name:    "missing feature",
			cfg:     Config{AnnotationType: "Token", TagFeature: "tag", LemmaFeature: "lemma", Update: true},
			wantErr: internalerr.ErrFeatureNotFound,
		},
		{
			name:    "missing output type",
			cfg:     Config{AnnotationType: "Token", TagFeature: "Tag:value", LemmaFeature: "Lemma:value"},
			wantErr: internalerr.ErrSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg, newParameter(t), taggertest.English())
			require.NoError(t, err)

			ts := newTypeSystem(t)
			doc := newTokenized(t, ts, sampleText)
			_, err = a.Process(context.Background(), doc)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 9, doc.Size())
		})
	}
}

func TestProcess_ReusesBindingPerTypeSystem(t *testing.T) {
	t.Parallel()
	a, err := New(updateConfig(), newParameter(t), taggertest.English())
	require.NoError(t, err)

	ts1 := newTypeSystem(t)
	_, err = a.Process(context.Background(), newTokenized(t, ts1, "This"))
	require.NoError(t, err)
	first := a.bound
	_, err = a.Process(context.Background(), newTokenized(t, ts1, "is"))
	require.NoError(t, err)
	assert.Same(t, first, a.bound)

	ts2 := newTypeSystem(t)
	doc := newTokenized(t, ts2, "a")
	_, err = a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Same(t, ts2, a.bound.ts)
	pos := feature(t, ts2, "Token:pos")
	assert.Equal(t, "DT", value(t, doc.Select(pos.Domain())[0], pos))
}

func TestProcess_PicksUpParameterOverride(t *testing.T) {
	t.Parallel()
	lex := taggertest.English()
	param := newParameter(t)
	a, err := New(updateConfig(), param, lex)
	require.NoError(t, err)
	assert.Equal(t, "/opt/treetagger/lib/english.par:utf-8", lex.Model())

	override := filepath.Join(t.TempDir(), "german.properties")
	require.NoError(t, os.WriteFile(override, []byte("file=/models/german.par\nencoding=latin1\n"), 0644))
	require.NoError(t, param.Override(override))

	_, err = a.Process(context.Background(), newTokenized(t, newTypeSystem(t), "This"))
	require.NoError(t, err)
	assert.Equal(t, "/models/german.par:latin1", lex.Model())
}

func TestProcess_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	m, err := telemetry.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	cfg := Config{AnnotationType: "Token", TagFeature: "POS:value", LemmaFeature: "Lemma:value"}
	a, err := New(cfg, newParameter(t), taggertest.English(), WithMetrics(m))
	require.NoError(t, err)
	_, err = a.Process(context.Background(), newTokenized(t, newTypeSystem(t), sampleText))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[metric.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["tagsync_runs_total"])
	assert.Equal(t, int64(9), sums["tagsync_tokens_total"])
	assert.Equal(t, int64(18), sums["tagsync_annotations_created_total"])
}

func TestNew_ConfigurationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no type", Config{TagFeature: "pos", LemmaFeature: "lemma"}},
		{"no tag feature", Config{AnnotationType: "Token", LemmaFeature: "lemma"}},
		{"malformed address", Config{AnnotationType: "Token", TagFeature: "a:b:c", LemmaFeature: "lemma"}},
		{"empty address part", Config{AnnotationType: "Token", TagFeature: "pos", LemmaFeature: ":lemma"}},
		{"update on foreign type", Config{AnnotationType: "Token", TagFeature: "POS:value", LemmaFeature: "lemma", Update: true}},
		{"create with plain tag", Config{AnnotationType: "Token", TagFeature: "pos", LemmaFeature: "Lemma:value"}},
		{"create with plain lemma", Config{AnnotationType: "Token", TagFeature: "POS:value", LemmaFeature: "lemma"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, newParameter(t), taggertest.English())
			require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
		})
	}
}

func TestNew_CompoundAddressOnSourceTypeInUpdateMode(t *testing.T) {
	t.Parallel()
	cfg := Config{AnnotationType: "Token", TagFeature: "Token:pos", LemmaFeature: "Token:lemma", Update: true}
	a, err := New(cfg, newParameter(t), taggertest.English())
	require.NoError(t, err)

	doc := newTokenized(t, newTypeSystem(t), "is")
	_, err = a.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Size())
}

func TestNew_CreateModeOnTokenTypeWarns(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	cfg := Config{AnnotationType: "Token", TagFeature: "Token:pos", LemmaFeature: "Lemma:value"}
	_, err := New(cfg, newParameter(t), taggertest.English(), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "feature=Token:pos")
	assert.NotContains(t, logs.String(), "Lemma:value")
}

func TestNew_ModelRejected(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tg := mocks.NewMockTagger(ctrl)
	tg.EXPECT().SetArguments(gomock.Any())
	tg.EXPECT().SetModel(gomock.Any()).Return(internalerr.Configf("model.encoding", "unsupported encoding"))

	_, err := New(updateConfig(), newParameter(t), tg)
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestNew_PassesArgumentsAndModel(t *testing.T) {
	t.Parallel()
	lex := taggertest.English()
	cfg := updateConfig()
	cfg.Arguments = []string{"-quiet", "-no-unknown"}

	a, err := New(cfg, newParameter(t), lex)
	require.NoError(t, err)
	assert.Equal(t, StateConfigured, a.State())
	assert.Equal(t, []string{"-quiet", "-no-unknown"}, lex.Arguments())
	assert.Equal(t, "/opt/treetagger/lib/english.par:utf-8", lex.Model())

	require.NoError(t, a.Close())
	assert.True(t, lex.Closed())
}

func TestExtract(t *testing.T) {
	t.Parallel()
	ts := newTypeSystem(t)
	doc := newTokenized(t, ts, sampleText)

	token, err := ts.Type("Token")
	require.NoError(t, err)
	spans := Extract(doc, token)
	require.Len(t, spans, 9)
	assert.Equal(t, "This", spans[0].CoveredText())
	assert.Equal(t, ".", spans[8].CoveredText())

	lemmaType, err := ts.Type("Lemma")
	require.NoError(t, err)
	assert.Empty(t, Extract(doc, lemmaType))
}

func TestCheck(t *testing.T) {
	t.Parallel()
	ts := newTypeSystem(t)

	require.NoError(t, Check(updateConfig(), ts))
	require.NoError(t, Check(Config{AnnotationType: "Token", TagFeature: "POS:value", LemmaFeature: "Lemma:value"}, ts))

	err := Check(Config{AnnotationType: "Word", TagFeature: "pos", LemmaFeature: "lemma"}, ts)
	require.ErrorIs(t, err, internalerr.ErrSchema)
	err = Check(Config{AnnotationType: "Token", TagFeature: "POS:tag", LemmaFeature: "Lemma:value"}, ts)
	require.ErrorIs(t, err, internalerr.ErrFeatureNotFound)
	err = Check(Config{AnnotationType: "Token", TagFeature: "POS:value", LemmaFeature: "lemma"}, ts)
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	err = Check(Config{AnnotationType: "Token", TagFeature: "POS:value", LemmaFeature: "lemma", Update: true}, ts)
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}
