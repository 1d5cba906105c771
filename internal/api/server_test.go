package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/orbi-bot/orbi/internal/actions"
	"github.com/orbi-bot/orbi/internal/chat"
	"github.com/orbi-bot/orbi/internal/config"
	"github.com/orbi-bot/orbi/internal/extension"
	"github.com/orbi-bot/orbi/internal/llm"
	"github.com/orbi-bot/orbi/internal/memory"
	"github.com/orbi-bot/orbi/internal/requests"
)

func writeExtension(t *testing.T, extensionsDir, id string, manifest map[string]interface{}) {
	t.Helper()
	dir := filepath.Join(extensionsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	extDir := filepath.Join(dataDir, "extensions")

	writeExtension(t, extDir, "cat_mode", map[string]interface{}{
		"id": "cat_mode", "name": "Cat Mode", "type": "mode",
	})
	writeExtension(t, extDir, "trivia_quiz", map[string]interface{}{
		"id": "trivia_quiz", "name": "Trivia Quiz", "type": "quiz",
	})

	cfg := config.Load(dataDir)
	reg := extension.NewRegistry(extDir, extension.APIDeps{Config: cfg})
	if _, err := reg.Discover(); err != nil {
		t.Fatal(err)
	}
	vs := extension.NewVersionStore(extDir)
	mem := memory.NewStore(dataDir, 10)
	reqs := requests.NewLog(requests.Config{DataDir: dataDir, ExtensionsDir: extDir})

	claude := llm.NewClient(llm.Config{})
	dispatcher := actions.NewDispatcher(mem, reg, vs, reqs, chat.NewJokeBox(reg), nil)
	prompt := &chat.PromptBuilder{Config: cfg, Memory: mem, Registry: reg, Requests: reqs}
	svc := chat.NewService(claude, chat.NewConversations(dataDir, 20), prompt, dispatcher)

	s := New(Config{
		Host:     "localhost",
		Port:     0,
		Config:   cfg,
		Registry: reg,
		Versions: vs,
		Memory:   mem,
		Requests: reqs,
		Chat:     svc,
	})
	return s, extDir
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var parsed map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, parsed
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := doJSON(t, s.Router(), "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["extensions_loaded"].(float64) != 2 {
		t.Errorf("extensions_loaded = %v", body["extensions_loaded"])
	}
}

func TestListExtensions(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := doJSON(t, s.Router(), "GET", "/api/extensions/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	exts := body["extensions"].([]interface{})
	if len(exts) != 2 {
		t.Errorf("expected 2 extensions, got %d", len(exts))
	}
}

func TestExtensionsByCategory(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("valid category", func(t *testing.T) {
		rec, body := doJSON(t, s.Router(), "GET", "/api/extensions/by-category/modes", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		exts := body["extensions"].([]interface{})
		if len(exts) != 1 {
			t.Errorf("expected 1 mode, got %d", len(exts))
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		rec, _ := doJSON(t, s.Router(), "GET", "/api/extensions/by-category/bogus", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestGetExtension(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := doJSON(t, s.Router(), "GET", "/api/extensions/cat_mode", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	ext := body["extension"].(map[string]interface{})
	if ext["name"] != "Cat Mode" {
		t.Errorf("name = %v", ext["name"])
	}

	rec, _ = doJSON(t, s.Router(), "GET", "/api/extensions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing extension status = %d", rec.Code)
	}
}

func TestToggleExtension(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doJSON(t, s.Router(), "PUT", "/api/extensions/cat_mode/enabled", map[string]interface{}{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	_, body := doJSON(t, s.Router(), "GET", "/api/extensions/by-category/modes", nil)
	if got := len(body["extensions"].([]interface{})); got != 0 {
		t.Errorf("disabled extension still listed in category, got %d", got)
	}
}

func TestDeleteExtension(t *testing.T) {
	s, extDir := newTestServer(t)

	rec, _ := doJSON(t, s.Router(), "DELETE", "/api/extensions/trivia_quiz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(extDir, "trivia_quiz")); !os.IsNotExist(err) {
		t.Error("extension directory still on disk")
	}

	rec, _ = doJSON(t, s.Router(), "DELETE", "/api/extensions/trivia_quiz", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rec.Code)
	}
}

func TestBackupAndRollbackFlow(t *testing.T) {
	s, extDir := newTestServer(t)

	rec, body := doJSON(t, s.Router(), "POST", "/api/extension-versions/cat_mode/backup", map[string]interface{}{"description": "Before change"})
	if rec.Code != http.StatusOK {
		t.Fatalf("backup status = %d", rec.Code)
	}
	versionID := body["version_id"].(string)
	if versionID == "" {
		t.Fatal("empty version id")
	}

	// Break the extension, then roll back.
	manifestPath := filepath.Join(extDir, "cat_mode", "manifest.json")
	if err := os.WriteFile(manifestPath, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, _ = doJSON(t, s.Router(), "POST", "/api/extension-versions/cat_mode/rollback/"+versionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback status = %d", rec.Code)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Error("manifest not restored")
	}

	rec, _ = doJSON(t, s.Router(), "POST", "/api/extension-versions/cat_mode/rollback/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown version status = %d", rec.Code)
	}
}

func TestSetVersionStatus(t *testing.T) {
	s, _ := newTestServer(t)

	_, body := doJSON(t, s.Router(), "POST", "/api/extension-versions/cat_mode/backup", map[string]interface{}{"description": "test"})
	versionID := body["version_id"].(string)

	rec, _ := doJSON(t, s.Router(), "PUT", fmt.Sprintf("/api/extension-versions/cat_mode/%s/status", versionID), map[string]interface{}{"status": "broken"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec, _ = doJSON(t, s.Router(), "PUT", fmt.Sprintf("/api/extension-versions/cat_mode/%s/status", versionID), map[string]interface{}{"status": "excellent"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status code = %d", rec.Code)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doJSON(t, s.Router(), "POST", "/api/memories/", map[string]interface{}{"fact": "Likes dinosaurs"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d", rec.Code)
	}

	_, body := doJSON(t, s.Router(), "GET", "/api/memories/", nil)
	if got := len(body["memories"].([]interface{})); got != 1 {
		t.Fatalf("expected 1 memory, got %d", got)
	}

	rec, body = doJSON(t, s.Router(), "DELETE", "/api/memories/dinosaurs", nil)
	if rec.Code != http.StatusOK || body["found"] != true || body["deleted"] != "Likes dinosaurs" {
		t.Errorf("forget: status=%d body=%v", rec.Code, body)
	}

	doJSON(t, s.Router(), "POST", "/api/memories/", map[string]interface{}{"fact": "a"})
	doJSON(t, s.Router(), "POST", "/api/memories/", map[string]interface{}{"fact": "b"})
	rec, _ = doJSON(t, s.Router(), "DELETE", "/api/memories/all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	_, body = doJSON(t, s.Router(), "GET", "/api/memories/", nil)
	if got := len(body["memories"].([]interface{})); got != 0 {
		t.Errorf("expected empty after clear, got %d", got)
	}
}

func TestRequestsStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	_, body := doJSON(t, s.Router(), "GET", "/api/extension-requests/status", nil)
	if body["enabled"] != false {
		t.Errorf("requests should be disabled without GitHub config: %v", body)
	}
}

func TestChatWithoutAPIKey(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := doJSON(t, s.Router(), "POST", "/api/chat", map[string]interface{}{"message": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(body["response"].(string), "brain connected") {
		t.Errorf("response = %v", body["response"])
	}
	if body["emotion"] != "sad" {
		t.Errorf("emotion = %v", body["emotion"])
	}

	rec, _ = doJSON(t, s.Router(), "POST", "/api/chat", map[string]interface{}{"message": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d", rec.Code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := doJSON(t, s.Router(), "GET", "/api/config/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := body["robot"]; !ok {
		t.Error("config missing robot section")
	}
	if _, leaked := body["claude"].(map[string]interface{})["api_key"]; leaked {
		t.Error("api key leaked in config response")
	}

	_, body = doJSON(t, s.Router(), "GET", "/api/config/value?path=server.port", nil)
	if body["value"].(float64) != 8080 {
		t.Errorf("server.port = %v", body["value"])
	}
}

func TestStateEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := doJSON(t, s.Router(), "GET", "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["emotion"] != "happy" {
		t.Errorf("default emotion = %v", body["emotion"])
	}
	if body["game_active"] != false {
		t.Errorf("game_active = %v", body["game_active"])
	}
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestWebSocketStateFlow(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWS(t, ts)

	// New clients get the current state first.
	msg := readMessage(t, conn)
	if msg["type"] != "state" {
		t.Fatalf("first message type = %v", msg["type"])
	}

	// Emotion changes are applied and broadcast back.
	if err := conn.WriteJSON(map[string]interface{}{"type": "emotion", "emotion": "glitchy"}); err != nil {
		t.Fatal(err)
	}
	msg = readMessage(t, conn)
	if msg["type"] != "emotion" || msg["emotion"] != "glitchy" {
		t.Fatalf("broadcast = %v", msg)
	}
	if got := s.state.State().Emotion; got != "glitchy" {
		t.Errorf("state emotion = %q", got)
	}

	// Ping is answered directly.
	if err := conn.WriteJSON(map[string]interface{}{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	msg = readMessage(t, conn)
	if msg["type"] != "pong" {
		t.Errorf("ping reply = %v", msg)
	}
}

func TestWebSocketOverlays(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	readMessage(t, conn) // initial state

	conn.WriteJSON(map[string]interface{}{"type": "show_overlay", "overlay_id": "cat_ears"})
	msg := readMessage(t, conn)
	overlays := msg["overlays"].([]interface{})
	if len(overlays) != 1 || overlays[0] != "cat_ears" {
		t.Fatalf("overlays = %v", overlays)
	}

	// Showing the same overlay twice does not duplicate it.
	conn.WriteJSON(map[string]interface{}{"type": "show_overlay", "overlay_id": "cat_ears"})
	msg = readMessage(t, conn)
	if got := len(msg["overlays"].([]interface{})); got != 1 {
		t.Errorf("duplicate overlay added, got %d", got)
	}

	// Hiding with no id clears everything.
	conn.WriteJSON(map[string]interface{}{"type": "hide_overlay"})
	msg = readMessage(t, conn)
	if got := len(msg["overlays"].([]interface{})); got != 0 {
		t.Errorf("overlays not cleared, got %d", got)
	}
}

func TestWebSocketEmergencyStop(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	readMessage(t, conn) // initial state

	// Dirty the state first.
	conn.WriteJSON(map[string]interface{}{"type": "disco", "enabled": true})
	readMessage(t, conn)
	conn.WriteJSON(map[string]interface{}{"type": "set_mode", "mode": "cat_mode", "enabled": true})
	readMessage(t, conn)

	conn.WriteJSON(map[string]interface{}{"type": "emergency_stop"})
	msg := readMessage(t, conn)
	if msg["type"] != "emergency_stop" {
		t.Fatalf("message type = %v", msg["type"])
	}
	state := msg["state"].(map[string]interface{})
	if state["disco_mode"] != false || state["emotion"] != "happy" {
		t.Errorf("state not reset: %v", state)
	}
	if s.state.State().ActiveMode != "" {
		t.Error("active mode not cleared")
	}
}

func TestWebSocketModeToggle(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWS(t, ts)
	readMessage(t, conn)

	conn.WriteJSON(map[string]interface{}{"type": "set_mode", "mode": "cat_mode", "enabled": true})
	msg := readMessage(t, conn)
	if msg["type"] != "mode_change" || msg["mode"] != "cat_mode" {
		t.Fatalf("broadcast = %v", msg)
	}
	if s.state.State().ActiveMode != "cat_mode" {
		t.Error("mode not set")
	}

	// Disabling a different mode leaves the active one alone.
	conn.WriteJSON(map[string]interface{}{"type": "set_mode", "mode": "pirate_mode", "enabled": false})
	readMessage(t, conn)
	if s.state.State().ActiveMode != "cat_mode" {
		t.Error("unrelated disable cleared the active mode")
	}

	conn.WriteJSON(map[string]interface{}{"type": "set_mode", "mode": "cat_mode", "enabled": false})
	readMessage(t, conn)
	if s.state.State().ActiveMode != "" {
		t.Error("mode not cleared")
	}
}
