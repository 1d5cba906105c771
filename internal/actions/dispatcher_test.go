package actions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/orbi-bot/orbi/internal/extension"
	"github.com/orbi-bot/orbi/internal/memory"
	"github.com/orbi-bot/orbi/internal/requests"
)

type fakeBroadcaster struct {
	messages []map[string]interface{}
}

func (f *fakeBroadcaster) Broadcast(m map[string]interface{}) {
	f.messages = append(f.messages, m)
}

type fakeJoker struct{}

func (fakeJoker) RandomJoke(jokeType string) string { return "Why did the robot cross the road?" }

func writeExtension(t *testing.T, extensionsDir, id, name string) {
	t.Helper()
	dir := filepath.Join(extensionsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := map[string]interface{}{"id": id, "name": name, "type": "mode"}
	data, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeBroadcaster, string) {
	t.Helper()
	dataDir := t.TempDir()
	extDir := filepath.Join(dataDir, "extensions")

	writeExtension(t, extDir, "cat_mode", "Cat Mode")

	reg := extension.NewRegistry(extDir, extension.APIDeps{})
	if _, err := reg.Discover(); err != nil {
		t.Fatal(err)
	}

	bc := &fakeBroadcaster{}
	d := NewDispatcher(
		memory.NewStore(dataDir, 10),
		reg,
		extension.NewVersionStore(extDir),
		requests.NewLog(requests.Config{DataDir: dataDir, ExtensionsDir: extDir}),
		fakeJoker{},
		bc,
	)
	return d, bc, extDir
}

func decodeAll(t *testing.T, raw string) []Action {
	t.Helper()
	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &raws); err != nil {
		t.Fatal(err)
	}
	return DecodeAll(raws)
}

func TestDecodeVariants(t *testing.T) {
	acts := decodeAll(t, `[
		{"type": "remember", "fact": "likes cats"},
		{"type": "tell_joke", "joke_type": "dad"},
		{"type": "end_conversation"},
		{"type": "activate_mode", "mode_name": "Cat Mode", "active": false},
		{"type": "do_a_flip", "speed": "fast"},
		"not even an object"
	]`)

	if len(acts) != 6 {
		t.Fatalf("expected 6 actions, got %d", len(acts))
	}
	if r, ok := acts[0].(*Remember); !ok || r.Fact != "likes cats" {
		t.Errorf("acts[0] = %#v", acts[0])
	}
	if j, ok := acts[1].(*TellJoke); !ok || j.JokeType != "dad" {
		t.Errorf("acts[1] = %#v", acts[1])
	}
	if _, ok := acts[2].(EndConversation); !ok {
		t.Errorf("acts[2] = %#v", acts[2])
	}
	if m, ok := acts[3].(*ActivateMode); !ok || m.Active == nil || *m.Active {
		t.Errorf("acts[3] = %#v", acts[3])
	}
	if _, ok := acts[4].(Unknown); !ok {
		t.Errorf("unrecognized type should decode as Unknown, got %#v", acts[4])
	}
	if _, ok := acts[5].(Unknown); !ok {
		t.Errorf("non-object should decode as Unknown, got %#v", acts[5])
	}
}

func TestRememberSkipsDuplicates(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	acts := decodeAll(t, `[
		{"type": "remember", "fact": "likes cats"},
		{"type": "remember", "fact": "Likes Cats"}
	]`)
	results := d.Dispatch(context.Background(), acts, "hi")

	// The duplicate is silently skipped, so only one save is reported.
	if len(results.MemoriesSaved) != 1 {
		t.Errorf("memories_saved = %v", results.MemoriesSaved)
	}
	if got := d.Memory.Count(); got != 1 {
		t.Errorf("stored memories = %d", got)
	}
}

func TestForgetRemovesFirstMatchOnly(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.Memory.Save("likes dinosaurs")
	d.Memory.Save("has a dinosaur toy")

	acts := decodeAll(t, `[{"type": "forget", "topic": "dinosaur"}]`)
	results := d.Dispatch(context.Background(), acts, "forget about dinosaurs")

	if len(results.MemoriesForgotten) != 1 {
		t.Fatalf("memories_forgotten = %v", results.MemoriesForgotten)
	}
	if results.MemoriesForgotten[0]["deleted"] != "likes dinosaurs" {
		t.Errorf("expected first match deleted: %v", results.MemoriesForgotten[0])
	}
	if got := d.Memory.Count(); got != 1 {
		t.Errorf("expected the second dinosaur fact to survive, count = %d", got)
	}

	// No match records nothing.
	results = d.Dispatch(context.Background(), decodeAll(t, `[{"type": "forget", "topic": "unicorns"}]`), "")
	if len(results.MemoriesForgotten) != 0 {
		t.Errorf("no-match forget recorded a result: %v", results.MemoriesForgotten)
	}
}

func TestDispatchRunsAllInOrder(t *testing.T) {
	d, bc, _ := newTestDispatcher(t)

	acts := decodeAll(t, `[
		{"type": "undo_power", "power_name": "Nonexistent Power"},
		{"type": "remember", "fact": "favorite animal is cats"},
		{"type": "tell_joke"}
	]`)

	results := d.Dispatch(context.Background(), acts, "hi")

	// The failed undo must not stop the rest.
	if results.PowerUndone == nil || results.PowerUndone["success"] != false {
		t.Errorf("expected failed undo recorded: %v", results.PowerUndone)
	}
	if len(results.MemoriesSaved) != 1 {
		t.Errorf("remember after failure did not run: %v", results.MemoriesSaved)
	}
	if len(results.JokesTold) != 1 || results.JokesTold[0]["joke"] == "" {
		t.Errorf("joke not told: %v", results.JokesTold)
	}

	// Every action is mirrored to clients before execution.
	actionBroadcasts := 0
	for _, m := range bc.messages {
		if m["type"] == "action" {
			actionBroadcasts++
		}
	}
	if actionBroadcasts != 3 {
		t.Errorf("expected 3 action broadcasts, got %d", actionBroadcasts)
	}
}

func TestTogglePowerByNameCaseInsensitive(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	f := false
	d.Dispatch(context.Background(), []Action{
		&TogglePower{PowerName: "CAT MODE", Enabled: &f},
	}, "")

	ext, _ := d.Registry.Get("cat_mode")
	if ext.Enabled {
		t.Error("extension should be disabled")
	}
}

func TestTogglePowerNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	results := d.Dispatch(context.Background(), []Action{
		&TogglePower{PowerName: "Ghost Mode"},
	}, "")

	if results.PowerToggled["error"] != "Power not found" {
		t.Errorf("unexpected toggle result: %v", results.PowerToggled)
	}
}

func TestUndoPowerRestoresLatestSnapshot(t *testing.T) {
	d, _, extDir := newTestDispatcher(t)

	notes := filepath.Join(extDir, "cat_mode", "notes.txt")
	os.WriteFile(notes, []byte("good"), 0o644)
	if _, err := d.Versions.Backup("cat_mode", "before change"); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(notes, []byte("broken"), 0o644)

	results := d.Dispatch(context.Background(), []Action{
		&UndoPower{PowerName: "cat_mode"},
	}, "")

	if results.PowerUndone["success"] != true {
		t.Fatalf("undo failed: %v", results.PowerUndone)
	}
	data, _ := os.ReadFile(notes)
	if string(data) != "good" {
		t.Errorf("file not restored, content = %q", data)
	}
}

func TestUndoPowerNoSnapshots(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	results := d.Dispatch(context.Background(), []Action{
		&UndoPower{PowerName: "Cat Mode"},
	}, "")

	if results.PowerUndone["error"] != "No previous version to restore" {
		t.Errorf("unexpected undo result: %v", results.PowerUndone)
	}
}

func TestActivateModeBroadcastsAndReportsMissingHandler(t *testing.T) {
	d, bc, _ := newTestDispatcher(t)

	results := d.Dispatch(context.Background(), []Action{
		&ActivateMode{ModeName: "Cat Mode"},
	}, "")

	if results.ModeActivated["success"] != true {
		t.Fatalf("activate failed: %v", results.ModeActivated)
	}
	// No handler is registered for this directory id in the test, so
	// the mode flips via broadcast but handler_called stays false.
	if results.ModeActivated["handler_called"] != false {
		t.Errorf("expected handler_called false: %v", results.ModeActivated)
	}

	found := false
	for _, m := range bc.messages {
		if m["type"] == "set_mode" && m["mode"] == "cat_mode" {
			found = true
		}
	}
	if !found {
		t.Error("set_mode broadcast missing")
	}
}

func TestActivateModeNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	results := d.Dispatch(context.Background(), []Action{
		&ActivateMode{ModeName: "Dragon Mode"},
	}, "")

	if results.ModeActivated["error"] != "Mode not found" {
		t.Errorf("unexpected result: %v", results.ModeActivated)
	}
}

func TestExtensionProposal(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	results := d.Dispatch(context.Background(), []Action{
		&ExtensionProposal{Title: "Times Tables Quiz", Description: "A quiz game"},
	}, "")

	if len(results.ExtensionProposals) != 1 {
		t.Fatalf("proposal not recorded: %v", results.ExtensionProposals)
	}
	if results.ExtensionProposals[0]["title"] != "Times Tables Quiz" {
		t.Errorf("unexpected proposal: %v", results.ExtensionProposals[0])
	}
}
