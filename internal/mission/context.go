package mission

import (
	"sync"
	"time"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/google/uuid"
)

// Context holds the current session and its zone/route registry
type Context struct {
	mu       sync.RWMutex
	Session  *core.Session
	Registry *Registry
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		Session:  &core.Session{MissionName: "No mission loaded"},
		Registry: NewRegistry(),
	}
}

// NewSession starts a session record with a fresh identifier.
func NewSession(missionName, layoutName, version string) *core.Session {
	return &core.Session{
		ID:          uuid.NewString(),
		MissionName: missionName,
		Layout:      layoutName,
		StartTime:   time.Now().UTC(),
		Version:     version,
	}
}

// GetSession returns the current session
func (mc *Context) GetSession() *core.Session {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.Session
}

// GetRegistry returns the current registry
func (mc *Context) GetRegistry() *Registry {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.Registry
}

// Loaded reports whether a session has been started.
func (mc *Context) Loaded() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.Session != nil && mc.Session.ID != ""
}

// SetMission sets the current session and registry
func (mc *Context) SetMission(session *core.Session, registry *Registry) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.Session = session
	mc.Registry = registry
}
