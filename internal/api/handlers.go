package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/extension"
)

// --- Extensions ---

func (s *Server) handleListExtensions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"extensions": s.registry.All(),
		"counts":     s.registry.CategoryCounts(),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	counts := s.registry.CategoryCounts()
	categories := make([]map[string]interface{}, 0, len(core.Categories))
	for _, c := range core.Categories {
		slot := s.config.UICategories[string(c)]
		categories = append(categories, map[string]interface{}{
			"id":    c,
			"name":  slot.Name,
			"icon":  slot.Icon,
			"count": counts[c],
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (s *Server) handleExtensionsByCategory(w http.ResponseWriter, r *http.Request) {
	category := core.Category(chi.URLParam(r, "category"))
	if !core.IsValidCategory(category) {
		s.respondError(w, http.StatusBadRequest, "unknown category: "+string(category))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"category":   category,
		"extensions": s.registry.ByCategory(category),
	})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"modes": s.registry.ByCategory(core.CategoryModes),
	})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"games": s.registry.ByCategory(core.CategoryGames),
	})
}

func (s *Server) handleAllEmotions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"base":   core.BaseEmotions,
		"custom": s.registry.CustomEmotions(),
	})
}

func (s *Server) handleAllJokes(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"jokes": s.registry.CustomJokes(),
	})
}

func (s *Server) handleAllOverlays(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"overlays": s.registry.FaceOverlays(),
	})
}

func (s *Server) handleReloadExtensions(w http.ResponseWriter, r *http.Request) {
	exts, err := s.registry.Discover()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": len(exts),
	})
}

func (s *Server) handleGetExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "extensionID")
	ext, ok := s.registry.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "extension not found: "+id)
		return
	}

	versions := s.versions.List(id)
	history := make([]map[string]interface{}, 0, len(versions))
	for _, v := range versions {
		history = append(history, map[string]interface{}{
			"version_id":  v.VersionID,
			"description": v.Description,
			"status":      v.Status,
			"is_current":  v.IsCurrent,
			"created":     extension.TimeAgo(v.CreatedAt),
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"extension": ext,
		"versions":  history,
	})
}

func (s *Server) handleSetExtensionEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "extensionID")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.registry.SetEnabled(id, req.Enabled); err != nil {
		if errors.Is(err, core.ErrExtensionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Broadcast(map[string]interface{}{"type": "extension_toggled", "extension_id": id, "enabled": req.Enabled})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": req.Enabled})
}

func (s *Server) handleDeleteExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "extensionID")
	if err := s.registry.Delete(id); err != nil {
		if errors.Is(err, core.ErrExtensionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Broadcast(map[string]interface{}{"type": "extension_deleted", "extension_id": id})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// --- Extension versions ---

func (s *Server) handleAllVersions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"extensions": s.versions.ListAll(),
	})
}

func (s *Server) handleExtensionVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "extensionID")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"extension_id": id,
		"versions":     s.versions.List(id),
	})
}

func (s *Server) handleBackupExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "extensionID")
	var req struct {
		Description string `json:"description"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.Description == "" {
		req.Description = "Manual backup"
	}

	versionID, err := s.versions.Backup(id, req.Description)
	if err != nil {
		if errors.Is(err, core.ErrExtensionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"extension_id": id,
		"version_id":   versionID,
	})
}

func (s *Server) handleRollbackExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "extensionID")
	versionID := chi.URLParam(r, "versionID")

	if err := s.versions.Restore(id, versionID); err != nil {
		if errors.Is(err, core.ErrVersionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Reload so the restored code is live.
	if _, err := s.registry.Discover(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Broadcast(map[string]interface{}{"type": "extension_rolled_back", "extension_id": id, "version_id": versionID})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"extension_id": id,
		"restored":     versionID,
	})
}

func (s *Server) handleSetVersionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "extensionID")
	versionID := chi.URLParam(r, "versionID")
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.versions.SetStatus(id, versionID, core.VersionStatus(req.Status)); err != nil {
		if errors.Is(err, core.ErrVersionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"extension_id": id,
		"version_id":   versionID,
		"status":       req.Status,
	})
}

// --- Memories ---

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"memories": s.memory.All(),
	})
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fact string `json:"fact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Fact == "" {
		s.respondError(w, http.StatusBadRequest, "fact is required")
		return
	}
	saved, err := s.memory.Save(req.Fact)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"saved": saved, "fact": req.Fact})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.memory.Stats())
}

func (s *Server) handleClearMemories(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.Clear(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

func (s *Server) handleForgetMemory(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	deleted, found, err := s.memory.Forget(topic)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"found": found, "deleted": deleted})
}

// --- Extension requests ---

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": s.requests.All(),
	})
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		ChildRequest string `json:"child_request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	result := s.requests.Create(r.Context(), req.Title, req.Description, req.ChildRequest)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests": s.requests.Pending(),
	})
}

func (s *Server) handleRequestsStatus(w http.ResponseWriter, r *http.Request) {
	enabled, githubConfigured, featureEnabled := s.requests.Enabled()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":           enabled,
		"github_configured": githubConfigured,
		"feature_enabled":   featureEnabled,
	})
}

// --- Config ---

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.config)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if err := json.NewDecoder(r.Body).Decode(s.config); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.config.Save(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Broadcast(map[string]interface{}{"type": "config_updated"})
	s.respondJSON(w, http.StatusOK, s.config)
}

func (s *Server) handleConfigValue(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"path":  path,
		"value": s.config.Value(path, nil),
	})
}
