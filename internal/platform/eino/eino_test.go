package eino

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatModel struct {
	got  []*schema.Message
	resp *schema.Message
	err  error
}

func (m *stubChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = input
	return m.resp, m.err
}

func (m *stubChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestServiceGenerate(t *testing.T) {
	stub := &stubChatModel{resp: &schema.Message{
		Role:    schema.Assistant,
		Content: "## Overview\nhello",
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}}
	svc := NewServiceWithModel(Config{Provider: ProviderGemini, Model: "gemini-test"}, stub)

	gen, err := svc.Generate(WithTask(context.Background(), "stories"), "write it", "you are a writer")
	require.NoError(t, err)
	assert.Equal(t, "## Overview\nhello", gen.Content)
	assert.Equal(t, "stories", gen.Metadata["task"])
	assert.Equal(t, "gemini-test", gen.Metadata["model"])
	assert.Equal(t, 15, gen.Metadata["total_tokens"])
	assert.Equal(t, "stop", gen.Metadata["finish_reason"])

	require.Len(t, stub.got, 2)
	assert.Equal(t, schema.System, stub.got[0].Role)
	assert.Equal(t, "you are a writer", stub.got[0].Content)
	assert.Equal(t, schema.User, stub.got[1].Role)
}

func TestServiceGenerateEmptyAndErrors(t *testing.T) {
	svc := NewServiceWithModel(Config{Provider: ProviderGemini}, &stubChatModel{resp: &schema.Message{Content: "  "}})
	_, err := svc.Generate(context.Background(), "p", "")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	boom := errors.New("quota exceeded")
	svc = NewServiceWithModel(Config{Provider: ProviderGemini}, &stubChatModel{err: boom})
	_, err = svc.Generate(context.Background(), "p", "")
	assert.ErrorIs(t, err, boom)
}

func TestFakeUsesTaskFromContext(t *testing.T) {
	f := NewFake()
	for _, task := range []string{"consolidate", "diagrams", "code", "structure", "stories", "specification"} {
		// the system instruction wording plays no part
		gen, err := f.Generate(WithTask(context.Background(), task), "Requirement:\nA ledger", "You are helpful.")
		require.NoError(t, err, task)
		assert.Equal(t, task, gen.Metadata["task"])
		assert.Equal(t, 1, f.CallCount(task), task)
	}

	gen, err := f.Generate(context.Background(), "Requirement:\nA ledger", "You draw diagrams.")
	require.NoError(t, err)
	assert.Equal(t, "specification", gen.Metadata["task"])
}

func TestFakeIsDeterministic(t *testing.T) {
	f := NewFake()
	ctx := WithTask(context.Background(), "code")
	a, err := f.Generate(ctx, "Requirement:\nA ledger service", "")
	require.NoError(t, err)
	b, err := f.Generate(ctx, "Requirement:\nA ledger service", "")
	require.NoError(t, err)

	assert.Equal(t, a.Content, b.Content)
	assert.Contains(t, a.Content, "A ledger service")
	assert.Equal(t, 2, f.CallCount("code"))
}

func TestFakeFailures(t *testing.T) {
	f := NewFake()
	boom := errors.New("unavailable")
	f.FailKind("diagrams", boom)

	_, err := f.Generate(WithTask(context.Background(), "diagrams"), "p", "")
	assert.ErrorIs(t, err, boom)

	f.Responses["stories"] = "   "
	_, err = f.Generate(WithTask(context.Background(), "stories"), "p", "")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewSelectsProvider(t *testing.T) {
	g, err := New(Config{Provider: "fake"})
	require.NoError(t, err)
	assert.IsType(t, &Fake{}, g)

	_, err = New(Config{Provider: "gemini"})
	assert.Error(t, err)

	_, err = New(Config{Provider: "claude"})
	assert.Error(t, err)
}

func TestOpenAIGenerator(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "## Overview\nok"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	gen, err := g.Generate(context.Background(), "write", "system")
	require.NoError(t, err)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "## Overview\nok", gen.Content)
	assert.Equal(t, int64(10), gen.Metadata["total_tokens"])
	assert.Equal(t, ProviderOpenAI, gen.Metadata["provider"])
}

func TestOpenAIGeneratorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "write", "")
	assert.Error(t, err)
}
