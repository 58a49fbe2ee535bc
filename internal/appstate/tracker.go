// Package appstate tracks whether the application layer is in the
// foreground, as last reported by the application itself.
package appstate

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// State is an application lifecycle state.
type State string

const (
	Foreground State = "foreground"
	Background State = "background"
)

// ParseState accepts "foreground"/"active" and "background"/"inactive".
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "foreground", "active":
		return Foreground, nil
	case "background", "inactive":
		return Background, nil
	default:
		return "", fmt.Errorf("unknown application state %q", s)
	}
}

// Tracker implements dispatch.ForegroundProbe. A foreground report expires
// after staleAfter so a crashed application is not treated as foregrounded
// forever; zero disables expiry.
type Tracker struct {
	foreground atomic.Bool
	reportedAt atomic.Int64
	staleAfter time.Duration
	now        func() time.Time
}

func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{staleAfter: staleAfter, now: time.Now}
}

// Report records the application's state.
func (t *Tracker) Report(state State) {
	t.reportedAt.Store(t.now().UnixNano())
	t.foreground.Store(state == Foreground)
}

func (t *Tracker) IsForeground(context.Context) bool {
	if !t.foreground.Load() {
		return false
	}
	if t.staleAfter <= 0 {
		return true
	}
	age := t.now().Sub(time.Unix(0, t.reportedAt.Load()))
	return age <= t.staleAfter
}
