package server

import (
	"time"

	"github.com/onnwee/live-herald/relay"
	"github.com/onnwee/live-herald/store"
)

// Connections reports each connection task's state. *relay.Manager satisfies it.
type Connections interface {
	States() map[string]relay.State
}

// Usage reports the daily request quota. *quota.Quota satisfies it.
type Usage interface {
	Usage() (date string, count, limit int)
	NextReset() time.Time
}

// Deps are the components the handlers read from. Ready may be nil, in
// which case the chat platform is treated as ready.
type Deps struct {
	Store       *store.Store
	Connections Connections
	Quota       Usage
	Accounts    []string
	Ready       func() bool
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}
