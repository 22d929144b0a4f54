package unifiedllm

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	closed   bool
	lastReq  Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:           "test_resp",
			Model:        "test-model",
			Provider:     name,
			Message:      AssistantMessage(text),
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("openai", "Hello!")
	client := NewClient(WithProvider("openai", mock))

	resp, err := client.Complete(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", resp.Text())
	}
	if mock.lastReq.Provider != "openai" {
		t.Errorf("expected provider to be filled in, got %q", mock.lastReq.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	primary := newMockAdapter("openai", "primary")
	secondary := newMockAdapter("local", "secondary")
	client := NewClient(
		WithProvider("openai", primary),
		WithProvider("local", secondary),
		WithDefaultProvider("openai"),
	)

	resp, err := client.Complete(context.Background(), Request{Provider: "local"})
	if err != nil || resp.Text() != "secondary" {
		t.Fatalf("explicit provider: got %v, %v", resp, err)
	}
	resp, err = client.Complete(context.Background(), Request{})
	if err != nil || resp.Text() != "primary" {
		t.Fatalf("default provider: got %v, %v", resp, err)
	}
}

func TestClientNoProvider(t *testing.T) {
	_, err := NewClient().Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	client := NewClient(WithProvider("openai", newMockAdapter("openai", "x")))
	_, err = client.Complete(context.Background(), Request{Provider: "missing"})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for unknown provider, got %v", err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	record := func(name string) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, name+":before")
			resp, err := next(ctx, req)
			order = append(order, name+":after")
			return resp, err
		}
	}
	client := NewClient(
		WithProvider("openai", newMockAdapter("openai", "ok")),
		WithMiddleware(record("outer"), record("inner")),
	)

	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"outer:before", "inner:before", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestClientRegisterProviderAndClose(t *testing.T) {
	client := NewClient()
	mock := newMockAdapter("openai", "registered")
	client.RegisterProvider("openai", mock)

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil || resp.Text() != "registered" {
		t.Fatalf("got %v, %v", resp, err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !mock.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	failing := &mockAdapter{name: "openai", err: &ServerError{}}
	client := NewClient(
		WithProvider("openai", failing),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	if _, err := client.Complete(context.Background(), Request{Model: "gpt-4o-mini"}); err == nil {
		t.Fatal("expected error")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warn entry, got %+v", entry)
	}
	if entry.Data["model"] != "gpt-4o-mini" || entry.Data["provider"] != "openai" {
		t.Errorf("unexpected fields: %v", entry.Data)
	}
}

type modelAdapter struct {
	*mockAdapter
	model string
}

func (m modelAdapter) DefaultModel() string { return m.model }

func TestClientStampsDefaultModel(t *testing.T) {
	mock := newMockAdapter("openai", "ok")
	client := NewClient(WithProvider("openai", modelAdapter{mockAdapter: mock, model: "gpt-4o-mini"}))

	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.lastReq.Model != "gpt-4o-mini" {
		t.Errorf("expected default model, got %q", mock.lastReq.Model)
	}

	if _, err := client.Complete(context.Background(), Request{Model: "gpt-4o"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.lastReq.Model != "gpt-4o" {
		t.Errorf("explicit model was overwritten: %q", mock.lastReq.Model)
	}
}

type failingCloser struct{ *mockAdapter }

func (failingCloser) Close() error { return errors.New("busy") }

func TestClientCloseReportsProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", failingCloser{newMockAdapter("openai", "")}))
	err := client.Close()
	if err == nil || err.Error() != "closing openai: busy" {
		t.Errorf("unexpected error: %v", err)
	}
}
