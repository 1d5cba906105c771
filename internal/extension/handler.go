package extension

import (
	"context"
	"sync"

	"github.com/orbi-bot/orbi/internal/core"
)

// Handler is the behavior contract an extension's compiled-in code
// implements. Discovery binds a registered handler to the extension
// directory of the same id.
type Handler interface {
	// OnLoad runs once when the registry binds the handler. The API
	// is scoped to the handler's extension.
	OnLoad(api *API) error

	// HandleAction executes a named action. Mode extensions receive
	// activate_<id> and deactivate_<id>.
	HandleAction(ctx context.Context, action string, params map[string]interface{}) (interface{}, error)

	// VoiceTriggers returns extra triggers beyond the manifest's.
	VoiceTriggers() []core.VoiceTrigger
}

var (
	handlersMu sync.RWMutex
	handlers   = map[string]Handler{}
)

// RegisterHandler registers a handler for an extension id. Called
// from init funcs of compiled-in extensions; last registration wins.
func RegisterHandler(extensionID string, h Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[extensionID] = h
}

// LookupHandler returns the registered handler for an extension id.
func LookupHandler(extensionID string) (Handler, bool) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	h, ok := handlers[extensionID]
	return h, ok
}
