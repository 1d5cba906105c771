package requests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orbi-bot/orbi/internal/github"
)

func newTestLog(t *testing.T, issueHandler http.HandlerFunc) (*Log, string, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if issueHandler != nil {
			issueHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"number":   *calls,
			"html_url": "https://example.com/issues/1",
		})
	}))
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	extDir := filepath.Join(dataDir, "extensions")
	gh := github.NewClient(github.Config{
		Token: "t", Owner: "o", Repo: "r", BaseURL: srv.URL,
	})
	l := NewLog(Config{
		DataDir:        dataDir,
		ExtensionsDir:  extDir,
		GitHub:         gh,
		FeatureEnabled: true,
		ChildName:      "Mia",
	})
	return l, extDir, calls
}

func buildExtension(t *testing.T, extDir, title string) {
	t.Helper()
	dir := filepath.Join(extDir, SanitizeName(title))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(`{"id":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateFilesIssueAndLogs(t *testing.T) {
	l, _, calls := newTestLog(t, nil)

	res := l.Create(context.Background(), "Rainbow Mode", "a colorful mode", "make me rainbow")
	if !res.Success {
		t.Fatalf("Create failed: %s", res.Message)
	}
	if res.IssueNumber != 1 {
		t.Errorf("issue number = %d", res.IssueNumber)
	}
	if *calls != 1 {
		t.Errorf("expected 1 API call, got %d", *calls)
	}

	all := l.All()
	if len(all) != 1 || all[0].Status != StatusPending {
		t.Errorf("unexpected log contents: %+v", all)
	}
}

func TestDuplicateSuppressedOnlyWhenBuilt(t *testing.T) {
	t.Run("built extension blocks re-request", func(t *testing.T) {
		l, extDir, calls := newTestLog(t, nil)
		if res := l.Create(context.Background(), "Rainbow Mode", "d", "r"); !res.Success {
			t.Fatal(res.Message)
		}
		buildExtension(t, extDir, "Rainbow Mode")

		res := l.Create(context.Background(), "rainbow mode", "d", "r")
		if !res.Duplicate {
			t.Fatalf("expected duplicate verdict, got %+v", res)
		}
		if *calls != 1 {
			t.Errorf("issue server called %d times, want 1", *calls)
		}
	})

	t.Run("unbuilt request can be asked again", func(t *testing.T) {
		l, _, calls := newTestLog(t, nil)
		if res := l.Create(context.Background(), "Rainbow Mode", "d", "r"); !res.Success {
			t.Fatal(res.Message)
		}

		res := l.Create(context.Background(), "Rainbow Mode", "d", "r")
		if !res.Success {
			t.Fatalf("expected re-request to go through, got %+v", res)
		}
		if *calls != 2 {
			t.Errorf("expected 2 API calls, got %d", *calls)
		}
	})
}

func TestSimilar(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Rainbow Mode", "rainbow mode", true},
		{"add rainbow", "add rainbow mode", true},
		{"make a dinosaur game", "add the dinosaur game", true}, // word overlap
		{"snake game", "dance party", false},
		{"cat", "catapult game", false}, // short titles need exact match
	}
	for _, tt := range tests {
		if got := similar(tt.a, tt.b); got != tt.want {
			t.Errorf("similar(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCreateGatedByFeatureFlag(t *testing.T) {
	l, _, calls := newTestLog(t, nil)
	l.featureEnabled = false

	res := l.Create(context.Background(), "X Mode", "d", "r")
	if res.Success {
		t.Error("expected gated create to fail")
	}
	if *calls != 0 {
		t.Errorf("issue server should not be called, got %d", *calls)
	}
}

func TestSetStatusAndPending(t *testing.T) {
	l, _, _ := newTestLog(t, nil)
	l.Create(context.Background(), "Snake Game", "d", "r")

	if len(l.Pending()) != 1 {
		t.Fatal("expected one pending request")
	}
	if !l.SetStatus(1, StatusCompleted) {
		t.Fatal("SetStatus failed")
	}
	if len(l.Pending()) != 0 {
		t.Error("completed request still pending")
	}
	if l.SetStatus(99, StatusCompleted) {
		t.Error("unknown issue number should not update")
	}
	if l.SetStatus(1, "exploded") {
		t.Error("invalid status should be rejected")
	}
}

func TestLogCapAndPromptSection(t *testing.T) {
	l, _, _ := newTestLog(t, nil)
	for i := 0; i < maxRequests+5; i++ {
		l.append(Request{Title: "req", Status: StatusPending, CreatedAt: time.Now()})
	}
	if got := len(l.All()); got != maxRequests {
		t.Errorf("expected cap of %d, got %d", maxRequests, got)
	}

	section := l.PromptSection()
	if section == "" {
		t.Error("expected non-empty prompt section with pending requests")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Rainbow Mode", "rainbow_mode"},
		{"Cats & Dogs!!", "cats_dogs"},
		{"  spaced   out  ", "spaced_out"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, tt.want, got)
		}
	}
}

func TestSuggestAlternative(t *testing.T) {
	if s := SuggestAlternative("can you change voice please"); s == "" {
		t.Error("expected a suggestion for core voice change")
	}
	if s := SuggestAlternative("make a dinosaur game"); s != "" {
		t.Errorf("expected no suggestion, got %q", s)
	}
}
