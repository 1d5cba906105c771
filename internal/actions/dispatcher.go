package actions

import (
	"context"
	"encoding/json"

	"github.com/orbi-bot/orbi/internal/extension"
	"github.com/orbi-bot/orbi/internal/logging"
	"github.com/orbi-bot/orbi/internal/memory"
	"github.com/orbi-bot/orbi/internal/requests"
)

// Joker supplies jokes for the tell_joke action.
type Joker interface {
	RandomJoke(jokeType string) string
}

// Dispatcher executes decoded actions against the robot's services.
// Actions run in array order and failures never stop later actions;
// each records its outcome in Results instead.
type Dispatcher struct {
	Memory      *memory.Store
	Registry    *extension.Registry
	Versions    *extension.VersionStore
	Requests    *requests.Log
	Joker       Joker
	Broadcaster extension.Broadcaster

	log *logging.Logger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(mem *memory.Store, reg *extension.Registry, vs *extension.VersionStore, reqs *requests.Log, joker Joker, bc extension.Broadcaster) *Dispatcher {
	return &Dispatcher{
		Memory:      mem,
		Registry:    reg,
		Versions:    vs,
		Requests:    reqs,
		Joker:       joker,
		Broadcaster: bc,
		log:         logging.Component("actions"),
	}
}

// Results accumulates per-type outcomes of one dispatch pass.
type Results struct {
	MemoriesSaved      []string                 `json:"memories_saved"`
	MemoriesUpdated    []map[string]interface{} `json:"memories_updated"`
	MemoriesForgotten  []map[string]interface{} `json:"memories_forgotten"`
	ExtensionRequests  []requests.Result        `json:"extension_requests"`
	ExtensionProposals []map[string]interface{} `json:"extension_proposals"`
	JokesTold          []map[string]string      `json:"jokes_told"`
	PowersListed       map[string]interface{}   `json:"powers_listed,omitempty"`
	PowerToggled       map[string]interface{}   `json:"power_toggled,omitempty"`
	PowerUndone        map[string]interface{}   `json:"power_undone,omitempty"`
	ModeActivated      map[string]interface{}   `json:"mode_activated,omitempty"`
	BugReported        *requests.Result         `json:"bug_reported,omitempty"`
	EndConversation    bool                     `json:"end_conversation"`
}

func newResults() *Results {
	return &Results{
		MemoriesSaved:      []string{},
		MemoriesUpdated:    []map[string]interface{}{},
		MemoriesForgotten:  []map[string]interface{}{},
		ExtensionRequests:  []requests.Result{},
		ExtensionProposals: []map[string]interface{}{},
		JokesTold:          []map[string]string{},
	}
}

// broadcast mirrors each action to connected clients for real-time
// display. Best effort.
func (d *Dispatcher) broadcast(a Action) {
	if d.Broadcaster == nil {
		return
	}
	var payload interface{} = a
	if u, ok := a.(Unknown); ok {
		payload = json.RawMessage(u.Raw)
	}
	d.Broadcaster.Broadcast(map[string]interface{}{
		"type":        "action",
		"action_type": a.ActionType(),
		"action":      payload,
	})
}

// Dispatch executes every action in order. originalMessage is the
// child's verbatim message, used as the fallback child_request text.
func (d *Dispatcher) Dispatch(ctx context.Context, acts []Action, originalMessage string) *Results {
	results := newResults()

	for _, a := range acts {
		d.broadcast(a)
	}

	for _, a := range acts {
		switch act := a.(type) {
		case *Remember:
			d.remember(act, results)
		case *UpdateMemory:
			d.updateMemory(act, results)
		case *Forget:
			d.forget(act, results)
		case EndConversation:
			results.EndConversation = true
		case *TellJoke:
			d.tellJoke(act, results)
		case *ExtensionProposal:
			d.propose(act, results)
		case *ExtensionConfirmed:
			d.confirm(ctx, act, originalMessage, results)
		case ListPowers:
			d.listPowers(results)
		case *TogglePower:
			d.togglePower(act, results)
		case *UndoPower:
			d.undoPower(act, results)
		case *ActivateMode:
			d.activateMode(ctx, act, results)
		case *ReportBug:
			d.reportBug(ctx, act, results)
		case Unknown:
			d.log.Warn("ignoring unknown action: %s", string(act.Raw))
		}
	}

	return results
}

func (d *Dispatcher) remember(act *Remember, results *Results) {
	if act.Fact == "" {
		return
	}
	saved, err := d.Memory.Save(act.Fact)
	if err != nil {
		d.log.Warn("could not save memory: %v", err)
		return
	}
	if saved {
		results.MemoriesSaved = append(results.MemoriesSaved, act.Fact)
	}
}

func (d *Dispatcher) updateMemory(act *UpdateMemory, results *Results) {
	if act.Topic == "" || act.NewFact == "" {
		return
	}
	if err := d.Memory.Update(act.Topic, act.NewFact); err != nil {
		d.log.Warn("could not update memory: %v", err)
		return
	}
	results.MemoriesUpdated = append(results.MemoriesUpdated, map[string]interface{}{
		"topic":    act.Topic,
		"new_fact": act.NewFact,
	})
}

func (d *Dispatcher) forget(act *Forget, results *Results) {
	if act.Topic == "" {
		return
	}
	deleted, found, err := d.Memory.Forget(act.Topic)
	if err != nil {
		d.log.Warn("could not forget: %v", err)
		return
	}
	if found {
		results.MemoriesForgotten = append(results.MemoriesForgotten, map[string]interface{}{
			"topic":   act.Topic,
			"deleted": deleted,
		})
	}
}

func (d *Dispatcher) tellJoke(act *TellJoke, results *Results) {
	joke := ""
	if d.Joker != nil {
		joke = d.Joker.RandomJoke(act.JokeType)
	}
	jokeType := act.JokeType
	if jokeType == "" {
		jokeType = "random"
	}
	results.JokesTold = append(results.JokesTold, map[string]string{
		"type": jokeType,
		"joke": joke,
	})
}

func (d *Dispatcher) propose(act *ExtensionProposal, results *Results) {
	if act.Title == "" || act.Description == "" {
		return
	}
	results.ExtensionProposals = append(results.ExtensionProposals, map[string]interface{}{
		"type":        "proposal",
		"title":       act.Title,
		"description": act.Description,
		"message":     "I want to create: " + act.Description + ". Say 'yes' to create the extension!",
	})
}

func (d *Dispatcher) confirm(ctx context.Context, act *ExtensionConfirmed, originalMessage string, results *Results) {
	if act.Title == "" || act.Description == "" {
		return
	}
	childRequest := act.ChildRequest
	if childRequest == "" {
		childRequest = originalMessage
	}
	res := d.Requests.Create(ctx, act.Title, act.Description, childRequest)
	results.ExtensionRequests = append(results.ExtensionRequests, res)
}

func (d *Dispatcher) listPowers(results *Results) {
	all := d.Registry.All()
	powers := make([]map[string]interface{}, 0, len(all))
	active := 0
	for _, ext := range all {
		if ext.Enabled {
			active++
		}
		powers = append(powers, map[string]interface{}{
			"name":        ext.Name,
			"description": ext.Description,
			"enabled":     ext.Enabled,
			"type":        ext.Type,
			"version":     ext.Version,
		})
	}
	results.PowersListed = map[string]interface{}{
		"powers": powers,
		"total":  len(powers),
		"active": active,
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (d *Dispatcher) togglePower(act *TogglePower, results *Results) {
	enabled := boolOr(act.Enabled, true)

	ext, ok := d.Registry.Find(act.PowerName)
	if !ok {
		results.PowerToggled = map[string]interface{}{
			"name":    act.PowerName,
			"enabled": enabled,
			"success": false,
			"error":   "Power not found",
		}
		return
	}

	err := d.Registry.SetEnabled(ext.ID, enabled)
	results.PowerToggled = map[string]interface{}{
		"name":    ext.Name,
		"enabled": enabled,
		"success": err == nil,
	}
}

func (d *Dispatcher) undoPower(act *UndoPower, results *Results) {
	ext, ok := d.Registry.Find(act.PowerName)
	if !ok {
		results.PowerUndone = map[string]interface{}{
			"name":    act.PowerName,
			"success": false,
			"error":   "Power not found",
		}
		return
	}

	latest, ok := d.Versions.Latest(ext.ID)
	if !ok {
		results.PowerUndone = map[string]interface{}{
			"name":    ext.Name,
			"success": false,
			"error":   "No previous version to restore",
		}
		return
	}

	err := d.Versions.Restore(ext.ID, latest.VersionID)
	results.PowerUndone = map[string]interface{}{
		"name":             ext.Name,
		"version_restored": latest.Description,
		"success":          err == nil,
	}
	if err != nil {
		d.log.Warn("undo failed for %s: %v", ext.ID, err)
	}
}

func (d *Dispatcher) activateMode(ctx context.Context, act *ActivateMode, results *Results) {
	active := boolOr(act.Active, true)

	ext, ok := d.Registry.Find(act.ModeName)
	if !ok {
		results.ModeActivated = map[string]interface{}{
			"name":    act.ModeName,
			"active":  active,
			"success": false,
			"error":   "Mode not found",
		}
		return
	}

	if d.Broadcaster != nil {
		d.Broadcaster.Broadcast(map[string]interface{}{
			"type":      "set_mode",
			"mode":      ext.ID,
			"mode_name": ext.Name,
			"enabled":   active,
		})
	}

	handlerAction := "activate_" + ext.ID
	if !active {
		handlerAction = "deactivate_" + ext.ID
	}
	_, err := d.Registry.ExecuteAction(ctx, ext.ID, handlerAction, nil)

	results.ModeActivated = map[string]interface{}{
		"name":           ext.Name,
		"active":         active,
		"success":        true,
		"handler_called": err == nil,
	}
}

func (d *Dispatcher) reportBug(ctx context.Context, act *ReportBug, results *Results) {
	description := act.Description
	if description == "" {
		description = "Bug reported by user"
	}
	res := d.Requests.ReportBug(ctx, act.PowerName, description)
	results.BugReported = &res
}
