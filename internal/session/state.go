package session

import "github.com/Joseda-hg/lazytodo/internal/model"

// State is one of Unauthenticated, Loading, Authenticated or Failed.
type State interface {
	Name() string
	isState()
}

type Unauthenticated struct{}

type Loading struct{}

type Authenticated struct {
	Session model.Session
}

// Failed holds the message from the last rejected login or signup.
type Failed struct {
	Message string
}

func (Unauthenticated) Name() string { return "unauthenticated" }
func (Loading) Name() string         { return "loading" }
func (Authenticated) Name() string   { return "authenticated" }
func (Failed) Name() string          { return "failed" }

func (Unauthenticated) isState() {}
func (Loading) isState()         {}
func (Authenticated) isState()   {}
func (Failed) isState()          {}
