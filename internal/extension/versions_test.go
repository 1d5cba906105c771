package extension

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orbi-bot/orbi/internal/core"
)

func writeVersionedExtension(t *testing.T, extensionsDir, id, content string) {
	t.Helper()
	extDir := filepath.Join(extensionsDir, id)
	if err := os.MkdirAll(filepath.Join(extDir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"manifest.json":    `{"id": "` + id + `", "name": "Test Ext", "version": "1.0.0"}`,
		"notes.txt":        content,
		"assets/sprite.md": "sprite " + content,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(extDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if info.IsDir() {
			if rel != "." && rel[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if rel[0] == '.' {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestBackupAndList(t *testing.T) {
	dir := t.TempDir()
	writeVersionedExtension(t, dir, "my_ext", "v1")
	vs := NewVersionStore(dir)

	id, err := vs.Backup("my_ext", "first backup")
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty version id")
	}

	versions := vs.List("my_ext")
	if len(versions) != 1 {
		t.Fatalf("expected 1 version, got %d", len(versions))
	}
	if versions[0].Description != "first backup" {
		t.Errorf("description = %q", versions[0].Description)
	}
	if versions[0].Status != core.VersionWorking {
		t.Errorf("new backup should start as working, got %s", versions[0].Status)
	}

	if _, err := os.Stat(filepath.Join(dir, ".backups", "my_ext", id, "notes.txt")); err != nil {
		t.Errorf("backup file tree missing: %v", err)
	}
}

func TestBackupUnknownExtension(t *testing.T) {
	vs := NewVersionStore(t.TempDir())
	if _, err := vs.Backup("ghost", "x"); err != core.ErrExtensionNotFound {
		t.Errorf("expected ErrExtensionNotFound, got %v", err)
	}
}

func TestBackupCapEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	writeVersionedExtension(t, dir, "my_ext", "v1")
	vs := NewVersionStore(dir)

	var ids []string
	for i := 0; i < 7; i++ {
		id, err := vs.Backup("my_ext", "backup")
		if err != nil {
			t.Fatalf("Backup %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	versions := vs.List("my_ext")
	if len(versions) != 5 {
		t.Fatalf("expected cap of 5 versions, got %d", len(versions))
	}
	if versions[0].VersionID != ids[2] {
		t.Errorf("expected two oldest evicted, oldest kept = %s", versions[0].VersionID)
	}

	// Evicted snapshot directories are gone too.
	for _, old := range ids[:2] {
		if _, err := os.Stat(filepath.Join(dir, ".backups", "my_ext", old)); !os.IsNotExist(err) {
			t.Errorf("evicted backup %s still on disk", old)
		}
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeVersionedExtension(t, dir, "my_ext", "original")
	vs := NewVersionStore(dir)

	before := readTree(t, filepath.Join(dir, "my_ext"))
	id, err := vs.Backup("my_ext", "before edit")
	if err != nil {
		t.Fatal(err)
	}

	// Mutate the tree: change a file, add one, remove one.
	extDir := filepath.Join(dir, "my_ext")
	os.WriteFile(filepath.Join(extDir, "notes.txt"), []byte("edited"), 0o644)
	os.WriteFile(filepath.Join(extDir, "extra.txt"), []byte("new file"), 0o644)
	os.Remove(filepath.Join(extDir, "assets", "sprite.md"))

	if err := vs.Restore("my_ext", id); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	after := readTree(t, extDir)
	if len(after) != len(before) {
		t.Fatalf("tree shape differs after restore: %d vs %d files", len(after), len(before))
	}
	for name, want := range before {
		if after[name] != want {
			t.Errorf("file %s differs after restore", name)
		}
	}
}

func TestRestoreTakesSafetyBackupFirst(t *testing.T) {
	dir := t.TempDir()
	writeVersionedExtension(t, dir, "my_ext", "v1")
	vs := NewVersionStore(dir)

	id, err := vs.Backup("my_ext", "good state")
	if err != nil {
		t.Fatal(err)
	}
	if err := vs.Restore("my_ext", id); err != nil {
		t.Fatal(err)
	}

	versions := vs.List("my_ext")
	if len(versions) != 2 {
		t.Fatalf("expected safety backup to be recorded, got %d versions", len(versions))
	}
	safety := versions[1]
	if safety.Description != "Before rollback to "+id {
		t.Errorf("unexpected safety backup description %q", safety.Description)
	}

	// The restored target is marked current, not the safety backup.
	if !versions[0].IsCurrent {
		t.Error("restored version should be current")
	}
	if safety.IsCurrent {
		t.Error("safety backup should not be current")
	}
}

func TestRestoreUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	writeVersionedExtension(t, dir, "my_ext", "v1")
	vs := NewVersionStore(dir)

	if err := vs.Restore("my_ext", "my_ext_v999"); err != core.ErrVersionNotFound {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	dir := t.TempDir()
	writeVersionedExtension(t, dir, "my_ext", "v1")
	vs := NewVersionStore(dir)

	id, err := vs.Backup("my_ext", "testing round")
	if err != nil {
		t.Fatal(err)
	}

	if err := vs.SetStatus("my_ext", id, core.VersionBroken); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if got := vs.List("my_ext")[0].Status; got != core.VersionBroken {
		t.Errorf("status = %s", got)
	}

	if err := vs.SetStatus("my_ext", id, "exploded"); err == nil {
		t.Error("expected invalid status to be rejected")
	}
	if err := vs.SetStatus("my_ext", "nope", core.VersionWorking); err != core.ErrVersionNotFound {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestBackupSkipsHiddenEntries(t *testing.T) {
	dir := t.TempDir()
	writeVersionedExtension(t, dir, "my_ext", "v1")
	os.WriteFile(filepath.Join(dir, "my_ext", ".secret"), []byte("x"), 0o644)
	vs := NewVersionStore(dir)

	id, err := vs.Backup("my_ext", "backup")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".backups", "my_ext", id, ".secret")); !os.IsNotExist(err) {
		t.Error("hidden files should not be captured in backups")
	}
}
