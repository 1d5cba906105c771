// Package core defines the fundamental types for ORBI.
// Everything the extension system, chat loop, and API share lives here.
package core

import (
	"errors"
	"time"
)

// Category is one of the 8 UI slots an extension can occupy.
type Category string

const (
	CategoryGames   Category = "games"
	CategoryModes   Category = "modes"
	CategoryTools   Category = "tools"
	CategoryQuizzes Category = "quizzes"
	CategoryCustom1 Category = "custom1"
	CategoryCustom2 Category = "custom2"
	CategoryCustom3 Category = "custom3"
	CategoryCustom4 Category = "custom4"
)

// Categories lists all valid category slots in UI order.
// The first four are fixed; custom1..4 are operator-configurable.
var Categories = []Category{
	CategoryGames, CategoryModes, CategoryTools, CategoryQuizzes,
	CategoryCustom1, CategoryCustom2, CategoryCustom3, CategoryCustom4,
}

// IsValidCategory reports whether c names one of the 8 slots.
func IsValidCategory(c Category) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// VoiceTrigger binds spoken phrases to an extension action.
type VoiceTrigger struct {
	Phrases []string `json:"phrases"`
	Action  string   `json:"action"`
}

// Manifest is the declarative descriptor stored in each
// extension's manifest.json.
type Manifest struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	Description   string         `json:"description,omitempty"`
	Version       string         `json:"version,omitempty"`
	Author        string         `json:"author,omitempty"`
	Type          string         `json:"type,omitempty"`
	Category      Category       `json:"category,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty"`
	VoiceTriggers []VoiceTrigger `json:"voice_triggers,omitempty"`
	UIComponents  []UIComponent  `json:"ui_components,omitempty"`
	UI            UIConfig       `json:"ui,omitempty"`
}

// UIComponent describes a panel an extension contributes to the face UI.
type UIComponent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	File string `json:"file,omitempty"`
}

// UIConfig holds the button appearance for category bars.
type UIConfig struct {
	ButtonLabel string `json:"button_label,omitempty"`
	ButtonEmoji string `json:"button_emoji,omitempty"`
	ButtonColor string `json:"button_color,omitempty"`
}

// Emotion is a named facial expression, optionally contributed
// by an extension.
type Emotion struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	ExtensionID string `json:"_extension_id,omitempty"`
}

// FaceOverlay is an SVG fragment or descriptor layered over the face.
type FaceOverlay struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Content     string `json:"content,omitempty"`
	ExtensionID string `json:"_extension_id,omitempty"`
}

// Extension is one discovered plugin unit.
type Extension struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Version       string         `json:"version"`
	Author        string         `json:"author"`
	Type          string         `json:"type"`
	Category      Category       `json:"category"`
	Enabled       bool           `json:"enabled"`
	Path          string         `json:"-"`
	Manifest      Manifest       `json:"-"`
	VoiceTriggers []VoiceTrigger `json:"voice_triggers,omitempty"`
	Emotions      []Emotion      `json:"emotions,omitempty"`
	Jokes         []string       `json:"jokes,omitempty"`
	FaceOverlays  []FaceOverlay  `json:"face_overlays,omitempty"`
	UIComponents  []UIComponent  `json:"ui_components,omitempty"`
	HasHandler    bool           `json:"has_handler"`
}

// VersionStatus marks how a snapshot behaved when last used.
type VersionStatus string

const (
	VersionWorking VersionStatus = "working"
	VersionBroken  VersionStatus = "broken"
	VersionTesting VersionStatus = "testing"
)

// VersionEntry records one snapshot of an extension's file tree.
type VersionEntry struct {
	VersionID       string        `json:"version_id"`
	Description     string        `json:"description"`
	CreatedAt       time.Time     `json:"created_at"`
	Status          VersionStatus `json:"status"`
	ManifestVersion string        `json:"manifest_version"`
	IsCurrent       bool          `json:"is_current"`
}

// RobotState is the volatile, process-wide robot record. It is owned
// by the websocket message handler; everyone else reads a copy.
type RobotState struct {
	Emotion        string       `json:"emotion"`
	DiscoMode      bool         `json:"disco_mode"`
	ActiveMode     string       `json:"active_mode,omitempty"`
	ActiveOverlays []string     `json:"active_overlays"`
	ActivePanel    *ActivePanel `json:"active_panel,omitempty"`
	GameActive     bool         `json:"game_active"`
}

// ActivePanel tracks which extension panel currently has the screen.
type ActivePanel struct {
	PanelID     string `json:"panel_id"`
	ExtensionID string `json:"extension_id"`
	Type        string `json:"type"`
}

// DefaultRobotState returns the state the robot boots with and
// returns to on emergency stop.
func DefaultRobotState() RobotState {
	return RobotState{
		Emotion:        "happy",
		ActiveOverlays: []string{},
	}
}

// BaseEmotions are the expressions the face UI always supports.
// Extensions may contribute more.
var BaseEmotions = []string{
	"happy", "sad", "surprised", "thinking", "sleepy",
	"glitchy", "sparkling", "laser-focused", "processing", "overclocked",
}

// IsBaseEmotion reports whether name is one of the built-in expressions.
func IsBaseEmotion(name string) bool {
	for _, e := range BaseEmotions {
		if e == name {
			return true
		}
	}
	return false
}

// Sentinel errors shared across packages.
var (
	ErrExtensionNotFound = errors.New("extension not found")
	ErrVersionNotFound   = errors.New("version not found")
	ErrNotConfigured     = errors.New("not configured")
)
