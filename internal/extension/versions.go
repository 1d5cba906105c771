package extension

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/logging"
)

const maxVersionsPerExtension = 5

// VersionStore keeps rolling snapshots of extension directories so a
// bad edit can be undone. Snapshots live under extensions/.backups
// and the index in extensions/.versions.json.
type VersionStore struct {
	extensionsDir string
	log           *logging.Logger
}

// NewVersionStore creates a version store over an extensions directory.
func NewVersionStore(extensionsDir string) *VersionStore {
	return &VersionStore{
		extensionsDir: extensionsDir,
		log:           logging.Component("versions"),
	}
}

func (vs *VersionStore) backupsDir() string {
	return filepath.Join(vs.extensionsDir, ".backups")
}

func (vs *VersionStore) indexPath() string {
	return filepath.Join(vs.extensionsDir, ".versions.json")
}

type versionIndex struct {
	Extensions map[string]*extensionVersions `json:"extensions"`
}

type extensionVersions struct {
	Name     string               `json:"name"`
	Versions []*core.VersionEntry `json:"versions"`
}

func (vs *VersionStore) loadIndex() *versionIndex {
	idx := &versionIndex{Extensions: map[string]*extensionVersions{}}
	data, err := os.ReadFile(vs.indexPath())
	if err != nil {
		return idx
	}
	if err := json.Unmarshal(data, idx); err != nil {
		vs.log.Warn("versions index unreadable, starting fresh: %v", err)
		return &versionIndex{Extensions: map[string]*extensionVersions{}}
	}
	if idx.Extensions == nil {
		idx.Extensions = map[string]*extensionVersions{}
	}
	return idx
}

func (vs *VersionStore) saveIndex(idx *versionIndex) error {
	if err := os.MkdirAll(vs.extensionsDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(vs.indexPath(), data, 0o644)
}

// Backup snapshots an extension's full file tree. Returns the new
// version id. When the per-extension cap is reached the oldest
// snapshot is dropped, files included.
func (vs *VersionStore) Backup(extensionID, description string) (string, error) {
	srcDir := filepath.Join(vs.extensionsDir, extensionID)
	if _, err := os.Stat(srcDir); err != nil {
		return "", core.ErrExtensionNotFound
	}

	// Nanosecond timestamps keep rapid consecutive backups distinct.
	versionID := fmt.Sprintf("%s_v%d", extensionID, time.Now().UnixNano())
	dstDir := filepath.Join(vs.backupsDir(), extensionID, versionID)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	if err := copyTree(srcDir, dstDir, true); err != nil {
		return "", fmt.Errorf("copy extension files: %w", err)
	}

	manifest := LoadManifest(srcDir)
	name, manifestVersion := extensionID, "unknown"
	if manifest != nil {
		if manifest.Name != "" {
			name = manifest.Name
		}
		if manifest.Version != "" {
			manifestVersion = manifest.Version
		}
	}

	idx := vs.loadIndex()
	ev := idx.Extensions[extensionID]
	if ev == nil {
		ev = &extensionVersions{Name: name}
		idx.Extensions[extensionID] = ev
	}

	for _, v := range ev.Versions {
		v.IsCurrent = false
	}
	ev.Versions = append(ev.Versions, &core.VersionEntry{
		VersionID:       versionID,
		Description:     description,
		CreatedAt:       time.Now(),
		Status:          core.VersionWorking,
		ManifestVersion: manifestVersion,
	})

	for len(ev.Versions) > maxVersionsPerExtension {
		evicted := ev.Versions[0]
		ev.Versions = ev.Versions[1:]
		os.RemoveAll(filepath.Join(vs.backupsDir(), extensionID, evicted.VersionID))
	}

	if err := vs.saveIndex(idx); err != nil {
		return "", fmt.Errorf("save versions index: %w", err)
	}

	vs.log.Info("backed up %s as %s (%s)", extensionID, versionID, description)
	return versionID, nil
}

// Restore rolls an extension back to a snapshot. The current state is
// backed up first so the rollback itself can be undone. Hidden files
// in the extension directory are left alone.
func (vs *VersionStore) Restore(extensionID, versionID string) error {
	backupDir := filepath.Join(vs.backupsDir(), extensionID, versionID)
	if _, err := os.Stat(backupDir); err != nil {
		return core.ErrVersionNotFound
	}

	if _, err := vs.Backup(extensionID, "Before rollback to "+versionID); err != nil {
		return fmt.Errorf("safety backup: %w", err)
	}

	extDir := filepath.Join(vs.extensionsDir, extensionID)
	entries, err := os.ReadDir(extDir)
	if err != nil {
		if err := os.MkdirAll(extDir, 0o755); err != nil {
			return err
		}
	} else {
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if err := os.RemoveAll(filepath.Join(extDir, e.Name())); err != nil {
				return fmt.Errorf("clear extension dir: %w", err)
			}
		}
	}

	if err := copyTree(backupDir, extDir, false); err != nil {
		return fmt.Errorf("restore files: %w", err)
	}

	idx := vs.loadIndex()
	if ev := idx.Extensions[extensionID]; ev != nil {
		for _, v := range ev.Versions {
			v.IsCurrent = v.VersionID == versionID
		}
		if err := vs.saveIndex(idx); err != nil {
			return err
		}
	}

	vs.log.Info("restored %s to %s", extensionID, versionID)
	return nil
}

// SetStatus marks a snapshot as working, broken, or testing.
func (vs *VersionStore) SetStatus(extensionID, versionID string, status core.VersionStatus) error {
	switch status {
	case core.VersionWorking, core.VersionBroken, core.VersionTesting:
	default:
		return fmt.Errorf("invalid status %q", status)
	}

	idx := vs.loadIndex()
	ev := idx.Extensions[extensionID]
	if ev == nil {
		return core.ErrExtensionNotFound
	}
	for _, v := range ev.Versions {
		if v.VersionID == versionID {
			v.Status = status
			return vs.saveIndex(idx)
		}
	}
	return core.ErrVersionNotFound
}

// List returns an extension's snapshots, oldest first.
func (vs *VersionStore) List(extensionID string) []core.VersionEntry {
	idx := vs.loadIndex()
	ev := idx.Extensions[extensionID]
	if ev == nil {
		return nil
	}
	out := make([]core.VersionEntry, len(ev.Versions))
	for i, v := range ev.Versions {
		out[i] = *v
	}
	return out
}

// ListAll returns snapshots for every tracked extension.
func (vs *VersionStore) ListAll() map[string][]core.VersionEntry {
	idx := vs.loadIndex()
	out := make(map[string][]core.VersionEntry, len(idx.Extensions))
	for id, ev := range idx.Extensions {
		versions := make([]core.VersionEntry, len(ev.Versions))
		for i, v := range ev.Versions {
			versions[i] = *v
		}
		out[id] = versions
	}
	return out
}

// Latest returns the most recent snapshot for an extension, if any.
func (vs *VersionStore) Latest(extensionID string) (core.VersionEntry, bool) {
	versions := vs.List(extensionID)
	if len(versions) == 0 {
		return core.VersionEntry{}, false
	}
	return versions[len(versions)-1], true
}

// copyTree copies src's contents into dst. With skipHidden, top-level
// dot entries are not copied (backups must not swallow .backups).
func copyTree(src, dst string, skipHidden bool) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if skipHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath, false); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// TimeAgo renders a timestamp as child-friendly relative text.
func TimeAgo(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff > 48*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	case diff > 24*time.Hour:
		return "yesterday"
	case diff > time.Hour:
		h := int(diff.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	case diff > time.Minute:
		m := int(diff.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	default:
		return "just now"
	}
}
