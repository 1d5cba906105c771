// Package requests tracks the extensions the child has asked for.
// Requests are logged locally, checked for duplicates, and filed as
// issues for a grown-up to review.
package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/orbi-bot/orbi/internal/github"
	"github.com/orbi-bot/orbi/internal/logging"
)

const (
	maxRequests       = 30
	requestExpiryDays = 7
)

// Status values a request moves through.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Request is one logged extension request.
type Request struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	IssueNumber int       `json:"issue_number,omitempty"`
	IssueURL    string    `json:"issue_url,omitempty"`
}

// Result reports the outcome of a create attempt in a form the chat
// loop can hand straight to the child.
type Result struct {
	Success       bool   `json:"success"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	IssueNumber   int    `json:"issue_number,omitempty"`
	IssueURL      string `json:"issue_url,omitempty"`
	Message       string `json:"message"`
	ExistingIssue int    `json:"existing_issue,omitempty"`
}

// Log is the request store plus its issue-filing collaborator.
type Log struct {
	mu             sync.Mutex
	path           string
	extensionsDir  string
	github         *github.Client
	featureEnabled bool
	childName      string
	log            *logging.Logger
}

// Config wires a request log.
type Config struct {
	DataDir        string
	ExtensionsDir  string
	GitHub         *github.Client
	FeatureEnabled bool
	ChildName      string
}

// NewLog creates the request log backed by extension_requests.json.
func NewLog(cfg Config) *Log {
	return &Log{
		path:           filepath.Join(cfg.DataDir, "extension_requests.json"),
		extensionsDir:  cfg.ExtensionsDir,
		github:         cfg.GitHub,
		featureEnabled: cfg.FeatureEnabled,
		childName:      cfg.ChildName,
		log:            logging.Component("requests"),
	}
}

type requestsFile struct {
	Requests []Request `json:"requests"`
}

func (l *Log) load() []Request {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil
	}
	var f requestsFile
	if err := json.Unmarshal(data, &f); err != nil {
		l.log.Warn("requests file unreadable, starting fresh: %v", err)
		return nil
	}
	return l.sweep(f.Requests)
}

// sweep drops requests older than the expiry window.
func (l *Log) sweep(reqs []Request) []Request {
	cutoff := time.Now().AddDate(0, 0, -requestExpiryDays)
	kept := reqs[:0]
	for _, r := range reqs {
		if r.CreatedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func (l *Log) save(reqs []Request) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(requestsFile{Requests: reqs}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0o644)
}

// Enabled reports whether extension requests can currently be filed.
func (l *Log) Enabled() (enabled, githubConfigured, featureEnabled bool) {
	githubConfigured = l.github != nil && l.github.IsConfigured()
	featureEnabled = l.featureEnabled
	return githubConfigured && featureEnabled, githubConfigured, featureEnabled
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// stopwords carry no signal when comparing request titles.
var stopwords = map[string]bool{
	"add": true, "make": true, "change": true, "the": true, "a": true,
	"an": true, "to": true, "for": true, "my": true, "me": true,
}

func meaningfulWords(title string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(title) {
		if !stopwords[w] {
			words[w] = true
		}
	}
	return words
}

// similar reports whether two requests look like the same ask.
func similar(newTitle, existingTitle string) bool {
	a, b := normalize(newTitle), normalize(existingTitle)

	if a == b {
		return true
	}
	// "add rainbow" vs "add rainbow mode"; short titles match too
	// many things, so containment only counts past 5 chars.
	if len(a) > 5 && (strings.Contains(a, b) || strings.Contains(b, a)) {
		return true
	}

	aw, bw := meaningfulWords(a), meaningfulWords(b)
	if len(aw) == 0 || len(bw) == 0 {
		return false
	}
	overlap := 0
	for w := range aw {
		if bw[w] {
			overlap++
		}
	}
	smaller := len(aw)
	if len(bw) < smaller {
		smaller = len(bw)
	}
	return float64(overlap) >= float64(smaller)*0.5
}

// extensionExists checks whether a requested extension was actually
// built, by folder name and manifest presence.
func (l *Log) extensionExists(title string) bool {
	dir := filepath.Join(l.extensionsDir, SanitizeName(title))
	_, err := os.Stat(filepath.Join(dir, "manifest.json"))
	return err == nil
}

// FindDuplicate returns an open request that matches, but only if its
// extension was actually built. A request that never materialized can
// be asked for again.
func (l *Log) FindDuplicate(title string) *Request {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.load() {
		if r.Status != StatusPending && r.Status != StatusInProgress {
			continue
		}
		if !similar(title, r.Title) {
			continue
		}
		if l.extensionExists(r.Title) {
			req := r
			return &req
		}
		l.log.Info("previous request %q was never built, allowing re-request", r.Title)
	}
	return nil
}

// Create files a new extension request: duplicate check, GitHub
// issue, local log entry.
func (l *Log) Create(ctx context.Context, title, description, childRequest string) Result {
	if enabled, ghOK, featOK := l.Enabled(); !enabled {
		switch {
		case !featOK:
			return Result{Message: "Extension requests are turned off"}
		case !ghOK:
			return Result{Message: "GitHub token not configured"}
		}
	}

	if existing := l.FindDuplicate(title); existing != nil {
		if existing.IssueNumber > 0 {
			return Result{
				Duplicate:     true,
				Message:       fmt.Sprintf("Already requested! It's Issue #%d.", existing.IssueNumber),
				ExistingIssue: existing.IssueNumber,
			}
		}
		return Result{Duplicate: true, Message: "Something similar was already requested!"}
	}

	body := l.featureIssueBody(title, description, childRequest)
	issue, err := l.github.CreateIssue(ctx, "[Extension] "+title, body,
		[]string{"orbi-request", "extension", "voice-request"})
	if err != nil {
		l.log.Error("failed to create issue: %v", err)
		return Result{Message: fmt.Sprintf("GitHub API error: %v", err)}
	}

	l.append(Request{
		Title:       title,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		IssueNumber: issue.Number,
		IssueURL:    issue.HTMLURL,
	})

	l.log.Info("created extension request #%d: %s", issue.Number, title)
	return Result{
		Success:     true,
		IssueNumber: issue.Number,
		IssueURL:    issue.HTMLURL,
		Message:     fmt.Sprintf("Created extension request #%d!", issue.Number),
	}
}

// ReportBug files a bug report about an installed extension.
func (l *Log) ReportBug(ctx context.Context, powerName, description string) Result {
	if l.github == nil || !l.github.IsConfigured() {
		return Result{Message: "GitHub not configured"}
	}

	title := fmt.Sprintf("[Bug] %s: %s", powerName, truncate(description, 50))
	body := bugIssueBody(powerName, description)
	issue, err := l.github.CreateIssue(ctx, title, body, []string{"orbi-request", "bug", "extension"})
	if err != nil {
		l.log.Error("failed to create bug report: %v", err)
		return Result{Message: fmt.Sprintf("GitHub API error: %v", err)}
	}

	return Result{
		Success:     true,
		IssueNumber: issue.Number,
		IssueURL:    issue.HTMLURL,
		Message:     fmt.Sprintf("Bug report created as issue #%d", issue.Number),
	}
}

func (l *Log) append(r Request) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reqs := append(l.load(), r)
	if len(reqs) > maxRequests {
		reqs = reqs[len(reqs)-maxRequests:]
	}
	if err := l.save(reqs); err != nil {
		l.log.Warn("could not persist request log: %v", err)
	}
}

// All returns every non-expired request.
func (l *Log) All() []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Pending returns open requests.
func (l *Log) Pending() []Request {
	var out []Request
	for _, r := range l.All() {
		if r.Status == StatusPending || r.Status == StatusInProgress {
			out = append(out, r)
		}
	}
	return out
}

// SetStatus updates a request's status by issue number.
func (l *Log) SetStatus(issueNumber int, status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
	default:
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	reqs := l.load()
	for i := range reqs {
		if reqs[i].IssueNumber == issueNumber {
			reqs[i].Status = status
			reqs[i].UpdatedAt = time.Now()
			if err := l.save(reqs); err != nil {
				l.log.Warn("could not persist request log: %v", err)
			}
			return true
		}
	}
	return false
}

// PromptSection renders open requests for the system prompt so the
// robot doesn't file the same ask twice.
func (l *Log) PromptSection() string {
	pending := l.Pending()
	if len(pending) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nPowers already requested (don't request these again):\n")
	for _, r := range pending {
		if r.IssueNumber > 0 {
			fmt.Fprintf(&b, "- %s (Issue #%d)\n", r.Title, r.IssueNumber)
		} else {
			fmt.Fprintf(&b, "- %s\n", r.Title)
		}
	}
	return b.String()
}

// SanitizeName converts a request title to a valid extension folder
// name: lowercase, underscores, alphanumerics only, 50 chars max.
func SanitizeName(title string) string {
	s := strings.ReplaceAll(normalize(title), " ", "_")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// SuggestAlternative maps requests that would need core changes to an
// extension-shaped counter-offer. Returns "" when nothing applies.
func SuggestAlternative(request string) string {
	lower := strings.ToLower(request)

	alternatives := []struct {
		trigger    string
		suggestion string
	}{
		{"change voice", "I can't change my core voice, but I could create a special talking mode! Want me to make a 'silly voice mode' where I add fun effects to what I say?"},
		{"change my face", "I can't redesign my whole face, but I could add overlays! Want me to create a mode with different eyes, ears, or accessories?"},
		{"make faster", "I can't speed up my brain, but I could create a quick-response mode for simple questions! Would you like that?"},
		{"change color permanently", "I can't change my core colors, but I could create color themes as modes! Want me to make a purple mode, rainbow mode, or something else?"},
		{"change wake word", "The wake word is set in my settings, but I could create additional trigger phrases! What word would you like me to also respond to?"},
		{"remove feature", "I can't remove my core features, but I could create a mode that hides or changes things! What would you like to change?"},
	}

	for _, alt := range alternatives {
		if strings.Contains(lower, alt.trigger) {
			return alt.suggestion
		}
	}
	return ""
}

func (l *Log) featureIssueBody(title, description, childRequest string) string {
	child := l.childName
	if child == "" {
		child = "the child"
	}
	folder := SanitizeName(title)

	var b strings.Builder
	fmt.Fprintf(&b, "## Extension Request from %s (via voice)\n\n", child)
	fmt.Fprintf(&b, "### Original Request\n%q\n\n", childRequest)
	fmt.Fprintf(&b, "### Feature Description\n%s\n\n---\n\n", description)
	b.WriteString("## Instructions\n\n")
	b.WriteString("**Create this feature as an extension.** Place all files in the `extensions/` folder.\n\n")
	b.WriteString("### Rules\n\n")
	fmt.Fprintf(&b, "- Create files only in `extensions/%s/`\n", folder)
	b.WriteString("- Do NOT modify core, config, or other extensions\n")
	b.WriteString("- A valid `manifest.json` is required\n\n")
	b.WriteString("### manifest.json template\n\n```json\n")
	fmt.Fprintf(&b, `{
  "id": %q,
  "name": %q,
  "description": %q,
  "version": "1.0.0",
  "author": %q,
  "type": "feature",
  "category": "tools",
  "enabled": true,
  "voice_triggers": [
    {"phrases": ["example trigger phrase"], "action": "example_action"}
  ]
}`, folder, title, description, child)
	b.WriteString("\n```\n\n")
	b.WriteString("Categories: games, modes, tools, quizzes, custom1 (stories), custom2 (creative), custom3 (learning), custom4 (fun).\n\n")
	fmt.Fprintf(&b, "Keep interactions fun, educational, and age-appropriate for %s.\n\n", child)
	b.WriteString("---\n\n*This request was made through the robot's voice interface. The child asked for this feature using their own words.*\n")
	return b.String()
}

func bugIssueBody(powerName, description string) string {
	var b strings.Builder
	b.WriteString("## Bug Report\n\n")
	fmt.Fprintf(&b, "**Extension:** %s\n", powerName)
	b.WriteString("**Reported via:** Voice interface\n\n")
	fmt.Fprintf(&b, "## Description\n%s\n\n---\n\n", description)
	b.WriteString("## Instructions for fixing\n\n")
	b.WriteString("1. Find the extension in the `extensions/` folder\n")
	b.WriteString("2. Review its manifest and handler\n")
	b.WriteString("3. Fix the reported issue and verify the extension loads\n\n")
	b.WriteString("*This bug was reported through the robot's voice interface.*\n")
	return b.String()
}
