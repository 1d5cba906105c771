package api

import (
	"sync"

	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/extension"
	"github.com/orbi-bot/orbi/internal/logging"
)

// StateManager owns the live robot state and applies incoming
// WebSocket messages to it. All mutation goes through HandleMessage so
// every connected UI sees the same state.
type StateManager struct {
	mu       sync.Mutex
	state    core.RobotState
	hub      *Hub
	registry *extension.Registry
	log      *logging.Logger
}

// NewStateManager starts from the default state.
func NewStateManager(hub *Hub, registry *extension.Registry) *StateManager {
	return &StateManager{
		state:    core.DefaultRobotState(),
		hub:      hub,
		registry: registry,
		log:      logging.Component("state"),
	}
}

// State returns a snapshot of the current robot state.
func (s *StateManager) State() core.RobotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state
	snap.ActiveOverlays = append([]string{}, s.state.ActiveOverlays...)
	return snap
}

// OnConnect sends the current state to a newly connected client.
func (s *StateManager) OnConnect(clientID string) {
	s.hub.Send(clientID, map[string]interface{}{"type": "state", "data": s.State()})
}

// HandleMessage applies one incoming WebSocket message.
func (s *StateManager) HandleMessage(clientID string, data map[string]interface{}) {
	msgType, _ := data["type"].(string)

	switch msgType {
	case "emotion":
		emotion := stringOr(data, "emotion", "happy")
		s.mu.Lock()
		s.state.Emotion = emotion
		s.mu.Unlock()
		s.hub.Broadcast(map[string]interface{}{"type": "emotion", "emotion": emotion})
		s.log.Info("emotion: %s", emotion)

	case "disco":
		enabled := boolOr(data, "enabled", false)
		s.mu.Lock()
		s.state.DiscoMode = enabled
		s.mu.Unlock()
		s.hub.Broadcast(map[string]interface{}{"type": "disco", "enabled": enabled})
		s.log.Info("disco: %v", enabled)

	case "set_mode":
		mode, _ := data["mode"].(string)
		enabled := boolOr(data, "enabled", true)
		s.mu.Lock()
		if enabled {
			s.state.ActiveMode = mode
		} else if s.state.ActiveMode == mode {
			s.state.ActiveMode = ""
		}
		s.mu.Unlock()
		s.hub.Broadcast(map[string]interface{}{"type": "mode_change", "mode": mode, "enabled": enabled})
		s.log.Info("mode: %s = %v", mode, enabled)

	case "show_overlay":
		overlayID, _ := data["overlay_id"].(string)
		s.mu.Lock()
		if overlayID != "" && !contains(s.state.ActiveOverlays, overlayID) {
			s.state.ActiveOverlays = append(s.state.ActiveOverlays, overlayID)
		}
		overlays := append([]string{}, s.state.ActiveOverlays...)
		s.mu.Unlock()
		s.hub.Broadcast(map[string]interface{}{"type": "show_overlay", "overlay_id": overlayID, "overlays": overlays})

	case "hide_overlay":
		overlayID, _ := data["overlay_id"].(string)
		s.mu.Lock()
		if overlayID != "" {
			kept := s.state.ActiveOverlays[:0]
			for _, o := range s.state.ActiveOverlays {
				if o != overlayID {
					kept = append(kept, o)
				}
			}
			s.state.ActiveOverlays = kept
		} else {
			s.state.ActiveOverlays = []string{}
		}
		overlays := append([]string{}, s.state.ActiveOverlays...)
		s.mu.Unlock()
		s.hub.Broadcast(map[string]interface{}{"type": "hide_overlay", "overlay_id": overlayID, "overlays": overlays})

	case "ping":
		s.hub.Send(clientID, map[string]interface{}{"type": "pong"})

	case "action":
		action, _ := data["action"].(map[string]interface{})
		s.hub.Broadcast(map[string]interface{}{"type": "action", "action": action})

	case "speak":
		text, _ := data["text"].(string)
		if text != "" {
			s.hub.Broadcast(map[string]interface{}{"type": "speak", "text": text})
			s.log.Info("speak: %s", text)
		}

	case "panel_opened":
		panelType, _ := data["panelType"].(string)
		s.mu.Lock()
		s.state.ActivePanel = &core.ActivePanel{
			PanelID:     stringOr(data, "panelId", ""),
			ExtensionID: stringOr(data, "extensionId", ""),
			Type:        panelType,
		}
		if panelType == "game" {
			s.state.GameActive = true
		}
		s.mu.Unlock()
		s.log.Info("panel opened: %s (%s)", stringOr(data, "extensionId", ""), panelType)

	case "panel_closed", "close_panel":
		s.mu.Lock()
		s.state.ActivePanel = nil
		s.state.GameActive = false
		s.mu.Unlock()
		if msgType == "close_panel" {
			s.hub.Broadcast(map[string]interface{}{"type": "close_panel"})
		}
		s.log.Info("panel closed")

	case "start_voice_mode":
		s.hub.Broadcast(map[string]interface{}{"type": "start_voice_mode"})

	case "stop_voice_mode":
		s.hub.Broadcast(map[string]interface{}{"type": "stop_voice_mode"})

	case "emergency_stop":
		s.emergencyStop()

	case "launch_game", "run_extension", "game_control", "game_action":
		s.hub.Broadcast(data)

	default:
		s.log.Debug("unhandled message type: %q", msgType)
	}
}

// emergencyStop signals every extension to stop and resets the robot
// to its default state.
func (s *StateManager) emergencyStop() {
	if s.registry != nil {
		s.registry.StopAll()
		s.registry.ResetStops()
	}

	s.mu.Lock()
	s.state = core.DefaultRobotState()
	snap := s.state
	snap.ActiveOverlays = append([]string{}, s.state.ActiveOverlays...)
	s.mu.Unlock()

	s.hub.Broadcast(map[string]interface{}{"type": "emergency_stop", "state": snap})
	s.log.Warn("EMERGENCY STOP triggered")
}

func stringOr(data map[string]interface{}, key, def string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolOr(data map[string]interface{}, key string, def bool) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return def
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
