package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Reserved action targets.
const (
	TargetNone    = "none"
	TargetDefault = "default"
)

// ErrUnregisteredAction is matched by every *UnregisteredActionError.
var ErrUnregisteredAction = errors.New("unregistered notification action")

// UnregisteredActionError names the action that had no registered target.
type UnregisteredActionError struct {
	Action string
}

func (e *UnregisteredActionError) Error() string {
	return fmt.Sprintf("notification action %q has no registered target", e.Action)
}

func (e *UnregisteredActionError) Is(target error) bool {
	return target == ErrUnregisteredAction
}

// ActionRegistry maps notification action names to the target opened when
// the action fires. It is populated at startup and may be replaced at runtime
// by the application layer.
type ActionRegistry struct {
	mu      sync.RWMutex
	targets map[string]string
}

func NewActionRegistry(targets map[string]string) *ActionRegistry {
	r := &ActionRegistry{}
	r.Replace(targets)
	return r
}

// Replace swaps the whole table.
func (r *ActionRegistry) Replace(targets map[string]string) {
	next := make(map[string]string, len(targets))
	for action, target := range targets {
		next[action] = target
	}
	r.mu.Lock()
	r.targets = next
	r.mu.Unlock()
}

// Resolve returns the target for action.
func (r *ActionRegistry) Resolve(action string) (string, error) {
	r.mu.RLock()
	target, ok := r.targets[action]
	r.mu.RUnlock()
	if !ok || target == "" {
		return "", &UnregisteredActionError{Action: action}
	}
	return target, nil
}

// Actions lists the registered action names.
func (r *ActionRegistry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.targets))
	for action := range r.targets {
		names = append(names, action)
	}
	return names
}

func isTarget(target, reserved string) bool {
	return strings.EqualFold(target, reserved)
}
