package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codematrix/internal/index"
	"github.com/fyrsmithlabs/codematrix/internal/metadata"
	"github.com/fyrsmithlabs/codematrix/internal/state"
	"github.com/fyrsmithlabs/codematrix/internal/telemetry"
	"github.com/fyrsmithlabs/codematrix/internal/vectorstore"
)

type fakeCompleter struct {
	answer string
	err    error
	panic  bool

	system, prompt string
	calls          atomic.Int32
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.calls.Add(1)
	if f.panic {
		panic("model exploded")
	}
	f.system, f.prompt = system, prompt
	return f.answer, f.err
}

type fakeEmbedder struct {
	err     error
	queries atomic.Int32
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.queries.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

// fakeHandle returns its results in order, capped at k.
type fakeHandle struct {
	results []vectorstore.SearchResult
	err     error
	lastK   int
}

func (h *fakeHandle) Nearest(_ context.Context, _ []float32, k int) ([]vectorstore.SearchResult, error) {
	h.lastK = k
	if h.err != nil {
		return nil, h.err
	}
	return append([]vectorstore.SearchResult(nil), h.results[:min(k, len(h.results))]...), nil
}
func (h *fakeHandle) Len() int     { return len(h.results) }
func (h *fakeHandle) Close() error { return nil }

func hits(sources ...string) []vectorstore.SearchResult {
	out := make([]vectorstore.SearchResult, len(sources))
	for i, s := range sources {
		out[i] = vectorstore.SearchResult{Content: "chunk from " + s + " #" + string(rune('a'+i)), Source: s}
	}
	return out
}

type fixture struct {
	tracker   *state.Tracker
	registry  *index.Registry
	embedder  *fakeEmbedder
	completer *fakeCompleter
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tracker:   state.NewTracker(),
		registry:  index.NewRegistry(nil),
		embedder:  &fakeEmbedder{},
		completer: &fakeCompleter{answer: "It registers routes with a decorator."},
	}
	engine, err := New(Config{}, f.tracker, f.registry, f.embedder, f.completer, nil)
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) register(id string, h *fakeHandle) {
	f.registry.Put(id, &index.Entry{
		RepoID:   id,
		Search:   h,
		Metadata: &metadata.RepoMetadata{TotalFiles: 12, CodeFiles: 7, Languages: map[string]int{"Python": 7}},
	})
}

func (f *fixture) activate(id string) {
	f.tracker.Update(state.Patch{Status: state.Set(state.StatusReady), RepoID: state.Set(id)})
}

func TestAsk(t *testing.T) {
	tel := telemetry.NewTestTelemetry(t)
	f := newFixture(t)
	f.register("flask", &fakeHandle{results: hits("app.py", "views.py", "app.py")})
	f.activate("flask")

	resp := f.engine.Ask(context.Background(), Request{Question: "How are routes registered?", TopK: 2})

	assert.Equal(t, "It registers routes with a decorator.", resp.Answer)
	assert.Equal(t, "flask", resp.RepoID)
	require.Len(t, resp.RetrievedChunks, 2)
	assert.Equal(t, []string{"app.py", "views.py"}, resp.Sources)

	assert.Equal(t, systemPrompt, f.completer.system)
	assert.Contains(t, f.completer.prompt, "Repository: flask")
	assert.Contains(t, f.completer.prompt, "Languages: Python")
	assert.Contains(t, f.completer.prompt, resp.RetrievedChunks[0]+"\n\n"+resp.RetrievedChunks[1])
	assert.Contains(t, f.completer.prompt, "Question:\nHow are routes registered?")
	assert.NotNil(t, tel.SpanByName("Engine.Ask"))
}

func TestAsk_DefaultAndMaxTopK(t *testing.T) {
	f := newFixture(t)
	sources := make([]string, 30)
	for i := range sources {
		sources[i] = "file.py"
	}
	h := &fakeHandle{results: hits(sources...)}
	f.register("flask", h)
	f.activate("flask")

	tests := []struct {
		name  string
		topK  int
		wantK int
	}{
		{"zero uses default", 0, 5},
		{"negative uses default", -3, 5},
		{"explicit", 3, 3},
		{"capped", 100, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.engine.Ask(context.Background(), Request{Question: "q", TopK: tt.topK})
			assert.Equal(t, tt.wantK, h.lastK)
			assert.Len(t, resp.RetrievedChunks, tt.wantK)
		})
	}
}

func TestAsk_KCappedAtIndexSize(t *testing.T) {
	f := newFixture(t)
	h := &fakeHandle{results: hits("a.py", "b.py")}
	f.register("flask", h)
	f.activate("flask")

	resp := f.engine.Ask(context.Background(), Request{Question: "q", TopK: 5})
	assert.Equal(t, 2, h.lastK)
	assert.Len(t, resp.RetrievedChunks, 2)
}

func TestAsk_FocusFile(t *testing.T) {
	f := newFixture(t)
	h := &fakeHandle{results: hits("a.py", "b.py", "src/app.py", "c.py", "src/app.py", "d.py")}
	f.register("flask", h)
	f.activate("flask")

	line := 42
	resp := f.engine.Ask(context.Background(), Request{
		Question:       "What does this do?",
		TopK:           2,
		FocusFile:      "/home/dev/flask/src/app.py",
		CursorPosition: &line,
	})

	assert.Equal(t, 4, h.lastK)
	require.Len(t, resp.RetrievedChunks, 4)
	assert.Equal(t, "chunk from src/app.py #c", resp.RetrievedChunks[0])
	assert.Equal(t, "chunk from a.py #a", resp.RetrievedChunks[1])
	assert.Equal(t, "chunk from b.py #b", resp.RetrievedChunks[2])
	assert.Equal(t, "chunk from c.py #d", resp.RetrievedChunks[3])
	assert.Equal(t, "src/app.py", resp.Sources[0])
	assert.Contains(t, f.completer.prompt, "/home/dev/flask/src/app.py with the cursor at line 42")
}

func TestAsk_Resolution(t *testing.T) {
	t.Run("empty registry and idle state", func(t *testing.T) {
		f := newFixture(t)
		resp := f.engine.Ask(context.Background(), Request{Question: "q"})
		assert.Equal(t, NoRepositoryAnswer, resp.Answer)
		assert.Empty(t, resp.RetrievedChunks)
		assert.NotNil(t, resp.RetrievedChunks)
		assert.Zero(t, f.completer.calls.Load())
	})

	t.Run("empty registry with recorded repository", func(t *testing.T) {
		f := newFixture(t)
		f.activate("flask")
		resp := f.engine.Ask(context.Background(), Request{Question: "q"})
		assert.Equal(t, NoRepositoryAnswer, resp.Answer)
	})

	t.Run("no recorded id falls back to first registered", func(t *testing.T) {
		f := newFixture(t)
		f.register("zeta", &fakeHandle{results: hits("z.py")})
		f.register("alpha", &fakeHandle{results: hits("a.py")})
		resp := f.engine.Ask(context.Background(), Request{Question: "q"})
		assert.Equal(t, "alpha", resp.RepoID)
		assert.Equal(t, []string{"a.py"}, resp.Sources)
	})

	t.Run("fuzzy match", func(t *testing.T) {
		f := newFixture(t)
		f.register("flask", &fakeHandle{results: hits("app.py")})
		f.activate("flask-main")
		resp := f.engine.Ask(context.Background(), Request{Question: "q"})
		assert.Equal(t, "flask", resp.RepoID)
	})

	t.Run("recorded id not registered", func(t *testing.T) {
		f := newFixture(t)
		f.register("django", &fakeHandle{results: hits("app.py")})
		f.activate("flask")
		resp := f.engine.Ask(context.Background(), Request{Question: "q"})
		assert.Equal(t, IndexClearedAnswer, resp.Answer)
		assert.Zero(t, f.embedder.queries.Load())
	})
}

func TestAsk_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture, h *fakeHandle)
		wantMsg string
	}{
		{
			name:    "embedding",
			setup:   func(f *fixture, _ *fakeHandle) { f.embedder.err = errors.New("quota exceeded") },
			wantMsg: "embedding question: quota exceeded",
		},
		{
			name:    "search",
			setup:   func(_ *fixture, h *fakeHandle) { h.err = vectorstore.ErrClosed },
			wantMsg: "searching index: search handle closed",
		},
		{
			name:    "completion",
			setup:   func(f *fixture, _ *fakeHandle) { f.completer.err = errors.New("API returned unexpected status code: 401") },
			wantMsg: "generating answer: API returned unexpected status code: 401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tel := telemetry.NewTestTelemetry(t)
			f := newFixture(t)
			h := &fakeHandle{results: hits("app.py")}
			f.register("flask", h)
			f.activate("flask")
			tt.setup(f, h)

			resp := f.engine.Ask(context.Background(), Request{Question: "q"})
			assert.Equal(t, errorAnswerPrefix+tt.wantMsg, resp.Answer)
			assert.NotNil(t, resp.RetrievedChunks)
			tel.AssertSpanEvent(t, "Engine.Ask", "exception")
		})
	}
}

func TestAsk_Panic(t *testing.T) {
	f := newFixture(t)
	f.register("flask", &fakeHandle{results: hits("app.py")})
	f.activate("flask")
	f.completer.panic = true

	var resp Response
	assert.NotPanics(t, func() {
		resp = f.engine.Ask(context.Background(), Request{Question: "q"})
	})
	assert.Equal(t, errorAnswerPrefix+"internal error: model exploded", resp.Answer)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t)
	resp := f.engine.Ask(context.Background(), Request{Question: "   "})
	assert.Equal(t, errorAnswerPrefix+ErrEmptyQuestion.Error(), resp.Answer)
}

func TestAsk_CachesQueryEmbeddings(t *testing.T) {
	f := newFixture(t)
	engine, err := New(Config{EmbeddingCacheSize: 8}, f.tracker, f.registry, f.embedder, f.completer, nil)
	require.NoError(t, err)
	f.register("flask", &fakeHandle{results: hits("app.py")})
	f.activate("flask")

	engine.Ask(context.Background(), Request{Question: "same"})
	engine.Ask(context.Background(), Request{Question: "same"})
	assert.Equal(t, int32(1), f.embedder.queries.Load())
}

func TestExplain(t *testing.T) {
	f := newFixture(t)
	f.completer.answer = "This adds two numbers."

	text, err := f.engine.Explain(context.Background(), "def add(a, b):\n    return a + b\n", Level5YearOld)
	require.NoError(t, err)
	assert.Equal(t, "This adds two numbers.", text)
	assert.Empty(t, f.completer.system)
	assert.Contains(t, f.completer.prompt, "like I'm a 5-year-old child")
	assert.Contains(t, f.completer.prompt, "```\ndef add(a, b):\n    return a + b\n```")

	_, err = f.engine.Explain(context.Background(), "x = 1", "wizard")
	require.NoError(t, err)
	assert.Contains(t, f.completer.prompt, "for an adult programmer")

	_, err = f.engine.Explain(context.Background(), " \n", LevelAdult)
	assert.ErrorIs(t, err, ErrEmptyCode)

	f.completer.err = errors.New("boom")
	_, err = f.engine.Explain(context.Background(), "x = 1", LevelTeenager)
	assert.ErrorContains(t, err, "explaining code: boom")
}

func TestNormalizeLevel(t *testing.T) {
	assert.Equal(t, Level10YearOld, NormalizeLevel(" 10-Year-Old "))
	assert.Equal(t, LevelTeenager, NormalizeLevel("teenager"))
	assert.Equal(t, LevelAdult, NormalizeLevel(""))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil, index.NewRegistry(nil), &fakeEmbedder{}, &fakeCompleter{}, nil)
	assert.Error(t, err)
	_, err = New(Config{}, state.NewTracker(), index.NewRegistry(nil), nil, &fakeCompleter{}, nil)
	assert.Error(t, err)
	_, err = New(Config{}, state.NewTracker(), index.NewRegistry(nil), &fakeEmbedder{}, nil, nil)
	assert.Error(t, err)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	c := Config{}
	c.ApplyDefaults()
	assert.Equal(t, 5, c.DefaultTopK)
	assert.Equal(t, 20, c.MaxTopK)

	c = Config{DefaultTopK: 50, MaxTopK: 10}
	c.ApplyDefaults()
	assert.Equal(t, 10, c.DefaultTopK)
}
