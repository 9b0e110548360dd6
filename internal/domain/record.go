package domain

import (
	"strings"
	"time"
)

// State is the lifecycle state of a payload's processing attempt.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateInvalid    State = "INVALID"
	StateAborted    State = "ABORTED"
)

var allStates = []State{
	StateProcessing,
	StateCompleted,
	StateFailed,
	StateInvalid,
	StateAborted,
}

// AllStates returns the known states in declaration order.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToUpper(strings.TrimSpace(value)))
	for _, s := range allStates {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether a state permits a fresh processing attempt.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateInvalid, StateAborted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits moving from one
// state to another. A record only moves from PROCESSING to a terminal state,
// or from a terminal state back to PROCESSING when a rerun is started.
func CanTransition(from, to State) bool {
	if from == StateProcessing {
		return to.IsTerminal()
	}
	return from.IsTerminal() && to == StateProcessing
}

// StateRecord is the persisted entity describing one payload's processing
// state. Records are created in PROCESSING and mutated only through
// transition operations; they are never deleted by this core.
type StateRecord struct {
	CollectionsWorkflow string
	ItemIDs             string
	State               State
	Created             time.Time
	Updated             time.Time
	// Attempts counts processing claims on this record, including the
	// current one. Canonical execution ids appended after launch do not
	// grow it, so it distinguishes first attempts from reruns.
	Attempts int
	// Executions holds execution identifiers, newest last. An attempt may
	// contribute two entries when the engine mints a canonical id.
	Executions []string
	// Outputs holds canonical output item references, set on COMPLETED.
	Outputs []string
	// LastError is the most recent failure message. It is retained across
	// non-failure transitions until overwritten by a new failure.
	LastError string
}

// Identity returns the record's deduplication key.
func (r StateRecord) Identity() Identity {
	return Identity{CollectionsWorkflow: r.CollectionsWorkflow, ItemIDs: r.ItemIDs}
}

// LatestExecution returns the newest execution identifier, or "" when the
// record has none.
func (r StateRecord) LatestExecution() string {
	if len(r.Executions) == 0 {
		return ""
	}
	return r.Executions[len(r.Executions)-1]
}
