package hooks

import "context"

// HookType represents the type of hook.
type HookType string

// Supported hook types.
const (
	// PostResource runs after a resource was fetched, unpacked and normalized, or failed to.
	PostResource HookType = "post-resource"
	// PostRun runs once after the last subject of a run.
	PostRun HookType = "post-run"
)

// Hook represents a hook script with its type and content.
type Hook struct {
	Type    HookType
	Content string
}

// HookContext contains information passed to hooks.
type HookContext struct {
	Kind         string
	SubjectID    string
	SubjectLabel string
	ResourceID   string
	TypeName     string
	ResourceDir  string
	Status       string
	Detail       string
	Vars         map[string]interface{}
}

// HookManager defines the interface for managing hooks.
type HookManager interface {
	// Execute runs the specified hook type with the given context
	Execute(ctx context.Context, hookType HookType, hc HookContext) error

	// AddHook adds a new hook
	AddHook(hook Hook) error

	// RemoveHook removes a hook of the specified type
	RemoveHook(hookType HookType) error

	// HasHook checks if a hook of the specified type exists
	HasHook(hookType HookType) bool
}
