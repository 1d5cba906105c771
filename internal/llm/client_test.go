package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	return srv, client
}

func TestChatWithHistory(t *testing.T) {
	var gotReq Request
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "hello there!"}},
		})
	})

	reply, err := client.ChatWithHistory(context.Background(), "be friendly", []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hey"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("ChatWithHistory failed: %v", err)
	}
	if reply != "hello there!" {
		t.Errorf("reply = %q", reply)
	}
	if gotReq.System != "be friendly" {
		t.Errorf("system = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 3 {
		t.Errorf("expected full history forwarded, got %d messages", len(gotReq.Messages))
	}
	if gotReq.MaxTokens != 300 {
		t.Errorf("expected default max tokens 300, got %d", gotReq.MaxTokens)
	}
}

func TestCompleteAPIError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	})

	if _, err := client.Chat(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestAskUsesShortLimit(t *testing.T) {
	var gotReq Request
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "42"}},
		})
	})

	answer, err := client.Ask(context.Background(), "what is the answer", "a quiz")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer != "42" {
		t.Errorf("answer = %q", answer)
	}
	if gotReq.MaxTokens != 200 {
		t.Errorf("expected ask cap of 200 tokens, got %d", gotReq.MaxTokens)
	}
}

func TestIsConfigured(t *testing.T) {
	if NewClient(Config{}).IsConfigured() {
		t.Error("client without key should not report configured")
	}
	if !NewClient(Config{APIKey: "k"}).IsConfigured() {
		t.Error("client with key should report configured")
	}
}
