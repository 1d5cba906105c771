// Package config handles ORBI robot configuration.
//
// Settings live in settings.json under the data directory and are
// deep-merged over compiled defaults, so a partial file is always
// valid. Credentials are never written to the file; they come from
// the environment.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orbi-bot/orbi/internal/logging"
)

// Config holds all robot configuration.
type Config struct {
	DataDir string `json:"-"`

	Robot       RobotConfig       `json:"robot"`
	Child       ChildConfig       `json:"child"`
	WakeWords   WakeWordConfig    `json:"wake_words"`
	Personality PersonalityConfig `json:"personality"`
	Features    FeatureConfig     `json:"features"`
	Limits      LimitConfig       `json:"limits"`
	GitHub      GitHubConfig      `json:"github"`
	Server      ServerConfig      `json:"server"`
	Claude      ClaudeConfig      `json:"claude"`

	// UICategories configures the 4 operator-assignable category
	// slots (custom1..custom4) plus optional renames of fixed slots.
	UICategories map[string]CategorySlot `json:"ui_categories"`

	githubToken string
}

// RobotConfig identifies the robot.
type RobotConfig struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ChildConfig identifies the child the robot lives with.
type ChildConfig struct {
	Name      string `json:"name"`
	Birthdate string `json:"birthdate"` // YYYY-MM-DD
	Pronouns  string `json:"pronouns"`
}

// WakeWordConfig lists the phrases that wake the robot.
type WakeWordConfig struct {
	Primary  string   `json:"primary"`
	Variants []string `json:"variants"`
}

// PersonalityConfig shapes the system prompt.
type PersonalityConfig struct {
	Traits             []string `json:"traits"`
	SpeakingStyle      string   `json:"speaking_style"`
	CustomInstructions string   `json:"custom_instructions"`
}

// FeatureConfig gates optional behavior.
type FeatureConfig struct {
	VoiceEnabled             bool `json:"voice_enabled"`
	DiscoModeEnabled         bool `json:"disco_mode_enabled"`
	ExtensionCreationEnabled bool `json:"extension_creation_enabled"`
	MotorControlEnabled      bool `json:"motor_control_enabled"`
}

// LimitConfig caps resource usage.
type LimitConfig struct {
	MaxMemories             int `json:"max_memories"`
	MaxConversationMessages int `json:"max_conversation_messages"`
	MaxResponseTokens       int `json:"max_response_tokens"`
}

// GitHubConfig names the repository feature requests are filed against.
type GitHubConfig struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// ClaudeConfig for the Claude API.
type ClaudeConfig struct {
	APIKey string `json:"-"`
	Model  string `json:"model"`
}

// CategorySlot is the display configuration of one UI category.
type CategorySlot struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".orbi"),
		Robot: RobotConfig{
			Name:        "ORBI",
			DisplayName: "ORBI",
		},
		Child: ChildConfig{
			Pronouns: "they/them",
		},
		WakeWords: WakeWordConfig{
			Primary:  "hey orbi",
			Variants: []string{"hey orbi", "orbi"},
		},
		Personality: PersonalityConfig{
			Traits:        []string{"enthusiastic", "curious", "supportive", "loves jokes"},
			SpeakingStyle: "simple, friendly, age-appropriate",
		},
		Features: FeatureConfig{
			VoiceEnabled:             true,
			DiscoModeEnabled:         true,
			ExtensionCreationEnabled: true,
		},
		Limits: LimitConfig{
			MaxMemories:             50,
			MaxConversationMessages: 20,
			MaxResponseTokens:       300,
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Claude: ClaudeConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  "claude-haiku-4-5-20251001",
		},
		UICategories: map[string]CategorySlot{
			"games":   {Name: "Games", Icon: "🎮"},
			"modes":   {Name: "Modes", Icon: "🎭"},
			"tools":   {Name: "Tools", Icon: "🛠️"},
			"quizzes": {Name: "Quizzes", Icon: "🧠"},
			"custom1": {Name: "Stories", Icon: "📖"},
			"custom2": {Name: "Creative", Icon: "🎨"},
			"custom3": {Name: "Learning", Icon: "📚"},
			"custom4": {Name: "Fun", Icon: "😂"},
		},
	}
}

// Load loads config from settings.json under dataDir, falling back to
// defaults. A missing or corrupt file is never fatal.
func Load(dataDir string) *Config {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	path := filepath.Join(cfg.DataDir, "settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("could not read settings file: %v", err)
		}
		cfg.loadCredentials()
		return cfg
	}

	// Unmarshal over the defaults: absent keys keep default values.
	if err := json.Unmarshal(data, cfg); err != nil {
		logging.Warn("settings file is not valid JSON, using defaults: %v", err)
		cfg = Default()
		cfg.DataDir = dataDirOr(dataDir, cfg.DataDir)
		cfg.loadCredentials()
		return cfg
	}
	cfg.DataDir = dataDirOr(dataDir, cfg.DataDir)
	cfg.loadCredentials()
	return cfg
}

// Secrets holds credentials stored outside settings.json.
type Secrets struct {
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	GitHubToken     string `json:"github_token,omitempty"`
}

func (c *Config) credentialsPath() string {
	return filepath.Join(c.DataDir, "credentials.json")
}

// loadCredentials reads credentials.json, then lets the environment
// override it.
func (c *Config) loadCredentials() {
	if data, err := os.ReadFile(c.credentialsPath()); err == nil {
		var s Secrets
		if err := json.Unmarshal(data, &s); err == nil {
			c.Claude.APIKey = s.AnthropicAPIKey
			c.githubToken = s.GitHubToken
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Claude.APIKey = key
	}
}

// SaveSecrets writes credentials.json with owner-only permissions.
func (c *Config) SaveSecrets(s Secrets) error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.credentialsPath(), data, 0o600)
}

// LoadSecrets reads the stored credentials, without environment
// overrides.
func (c *Config) LoadSecrets() Secrets {
	var s Secrets
	if data, err := os.ReadFile(c.credentialsPath()); err == nil {
		json.Unmarshal(data, &s)
	}
	return s
}

func dataDirOr(explicit, fallback string) string {
	if explicit != "" {
		return explicit
	}
	return fallback
}

// Save writes settings.json. Credentials are never persisted.
func (c *Config) Save() error {
	path := filepath.Join(c.DataDir, "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Value returns a config value by dot-separated path (e.g.
// "robot.name"), via the JSON form. Missing paths return def.
func (c *Config) Value(path string, def interface{}) interface{} {
	raw, err := json.Marshal(c)
	if err != nil {
		return def
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return def
	}

	var cur interface{} = tree
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return def
		}
		cur, ok = m[key]
		if !ok {
			return def
		}
	}
	return cur
}

// RobotName returns the robot's name.
func (c *Config) RobotName() string {
	if c.Robot.Name == "" {
		return "ORBI"
	}
	return c.Robot.Name
}

// ChildName returns the child's name, which may be empty.
func (c *Config) ChildName() string {
	return c.Child.Name
}

// ChildAge computes the child's age from the configured birthdate.
// Returns 0, false when no valid birthdate is set.
func (c *Config) ChildAge() (int, bool) {
	if c.Child.Birthdate == "" {
		return 0, false
	}
	birth, err := time.Parse("2006-01-02", c.Child.Birthdate)
	if err != nil {
		return 0, false
	}

	now := time.Now()
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// GitHubToken returns the GitHub credential. The environment wins
// over the stored credential.
func (c *Config) GitHubToken() string {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token
	}
	return c.githubToken
}

// ExtensionsDir is where extension directories are discovered.
func (c *Config) ExtensionsDir() string {
	return filepath.Join(c.DataDir, "extensions")
}
