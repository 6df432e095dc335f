package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

type fakeModel struct {
	mu       sync.Mutex
	messages [][]llms.MessageContent
	opts     llms.CallOptions
	errs     []error
	reply    string
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgs)
	for _, o := range options {
		o(&f.opts)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func newTestClient(m llms.Model, retries int) *Client {
	c := NewWithModel(m, Config{Model: "llama3-8b-8192", Temperature: 0.7, MaxTokens: 4000, MaxRetries: retries}, nil)
	c.baseBackoff = time.Millisecond
	return c
}

func TestClient_Complete(t *testing.T) {
	m := &fakeModel{reply: "It is a web framework."}
	c := newTestClient(m, 0)

	got, err := c.Complete(context.Background(), "You are an expert.", "What is flask?")
	require.NoError(t, err)
	assert.Equal(t, "It is a web framework.", got)

	require.Len(t, m.messages, 1)
	msgs := m.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.TextContent{Text: "What is flask?"}, msgs[1].Parts[0])
	assert.Equal(t, 0.7, m.opts.Temperature)
	assert.Equal(t, 4000, m.opts.MaxTokens)
}

func TestClient_CompleteWithoutSystem(t *testing.T) {
	m := &fakeModel{reply: "ok"}
	_, err := newTestClient(m, 0).Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Len(t, m.messages[0], 1)
}

func TestClient_Retries(t *testing.T) {
	t.Run("transient then success", func(t *testing.T) {
		m := &fakeModel{
			reply: "done",
			errs:  []error{errors.New("API returned unexpected status code: 429"), errors.New("API returned unexpected status code: 503")},
		}
		got, err := newTestClient(m, 3).Complete(context.Background(), "", "q")
		require.NoError(t, err)
		assert.Equal(t, "done", got)
		assert.Len(t, m.messages, 3)
	})

	t.Run("non retryable", func(t *testing.T) {
		m := &fakeModel{errs: []error{errors.New("API returned unexpected status code: 401: invalid key")}}
		_, err := newTestClient(m, 3).Complete(context.Background(), "", "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key")
		assert.Len(t, m.messages, 1)
	})

	t.Run("exhausted", func(t *testing.T) {
		m := &fakeModel{errs: []error{
			errors.New("API returned unexpected status code: 500"),
			errors.New("API returned unexpected status code: 500"),
		}}
		_, err := newTestClient(m, 1).Complete(context.Background(), "", "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
	})
}

func TestClient_EmptyChoices(t *testing.T) {
	m := &emptyModel{}
	_, err := newTestClient(m, 0).Complete(context.Background(), "", "q")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

type emptyModel struct{ fakeModel }

func (e *emptyModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Model: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{APIKey: config.Secret("k")}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_OpenAICompatibleServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		assert.Equal(t, "llama3-8b-8192", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "llama3-8b-8192",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Flask routes requests."},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	c, err := New(Config{
		BaseURL:    srv.URL + "/",
		Model:      "llama3-8b-8192",
		APIKey:     config.Secret("gsk_test"),
		MaxRetries: 2,
		Timeout:    5 * time.Second,
	}, nil)
	require.NoError(t, err)
	c.baseBackoff = time.Millisecond

	got, err := c.Complete(context.Background(), "system", "How are routes handled?")
	require.NoError(t, err)
	assert.Equal(t, "Flask routes requests.", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.Default().LLM)
	assert.Equal(t, "llama3-8b-8192", cfg.Model)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 4000, cfg.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()
	assert.True(t, isRetryable(ctx, errors.New("API returned unexpected status code: 429: slow down")))
	assert.True(t, isRetryable(ctx, errors.New("API returned unexpected status code: 502")))
	assert.False(t, isRetryable(ctx, errors.New("API returned unexpected status code: 400")))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, isRetryable(cancelled, errors.New("API returned unexpected status code: 503")))
}
