// Package alert converts failing SLO statuses and zero-trust violations
// into deduplicated alert events.
//
// Alert state is a finite state machine keyed by alert identity:
//
//	Clear ──first failing observation──▶ Active
//	Active ──repeat failing observation──▶ Active (count++, no new notification)
//	Active ──operator ack──▶ Acknowledged (suppresses repeats, does not resolve)
//	Active/Acknowledged ──first passing observation──▶ Clear ("resolved" notification)
//
// The dedup window is one run: a condition failing across N consecutive
// runs yields one event with OccurrenceCount N, not N events. History is
// persisted between runs by the alert-history collaborator; Dispatch
// itself is a pure function over (now, observations, history).
package alert

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/reckon/internal/slo"
	"github.com/roach88/reckon/internal/zerotrust"
)

// State is an alert's position in the lifecycle.
type State string

const (
	StateClear        State = "clear"
	StateActive       State = "active"
	StateAcknowledged State = "acknowledged"
)

// Kind distinguishes what raised the alert.
type Kind string

const (
	KindSLO  Kind = "slo"
	KindRule Kind = "rule"
)

// Event is the deduplicated record of one failing condition.
type Event struct {
	// Key is the alert identity: "slo:<name>" or
	// "rule:<ruleId>/<entityRef>".
	Key string `json:"key"`

	Kind  Kind  `json:"kind"`
	State State `json:"state"`

	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	OccurrenceCount int64     `json:"occurrence_count"`

	// Acknowledged survives as a flag on the event even though the FSM
	// state also encodes it, so history rows stay self-describing.
	Acknowledged bool `json:"acknowledged"`
}

// Change describes what happened to an event this run.
type Change string

const (
	// ChangeCreated is a Clear→Active transition; a notification is due.
	ChangeCreated Change = "created"

	// ChangeRepeated is Active→Active; deduplicated, no notification.
	ChangeRepeated Change = "repeated"

	// ChangeResolved is Active/Acknowledged→Clear; a "resolved"
	// notification is due.
	ChangeResolved Change = "resolved"
)

// Transition pairs an event's new state with how it got there.
type Transition struct {
	Event  Event  `json:"event"`
	Change Change `json:"change"`
}

// Notifiable reports whether the transition warrants an out-of-band
// notification. Repeats are suppressed; so is anything on an
// acknowledged alert until it resolves.
func (t Transition) Notifiable() bool {
	if t.Change == ChangeRepeated {
		return false
	}
	return true
}

// SLOKey builds the alert identity for a failing SLO.
func SLOKey(name string) string { return "slo:" + name }

// RuleKey builds the alert identity for a zero-trust violation.
func RuleKey(ruleID, entityRef string) string {
	return fmt.Sprintf("rule:%s/%s", ruleID, entityRef)
}

// Dispatch computes this run's alert transitions.
//
// history holds the persisted Active and Acknowledged events keyed by
// alert identity; Clear events need no storage. The returned transitions
// are sorted by key for deterministic persistence and notification
// order.
//
// Dispatch never mutates history. Callers persist the transitions and
// deliver notifications for the Notifiable ones; two runs must never
// dispatch concurrently against the same history store (the run lock in
// internal/store serializes this).
func Dispatch(now time.Time, statuses []slo.Status, violations []zerotrust.Violation, history map[string]Event) []Transition {
	failing := make(map[string]Kind)
	for _, status := range statuses {
		if !status.Passed {
			failing[SLOKey(status.Name)] = KindSLO
		}
	}
	for _, viol := range violations {
		failing[RuleKey(viol.RuleID, viol.EntityRef)] = KindRule
	}

	var transitions []Transition

	for key, kind := range failing {
		prev, seen := history[key]
		if !seen || prev.State == StateClear {
			transitions = append(transitions, Transition{
				Change: ChangeCreated,
				Event: Event{
					Key:             key,
					Kind:            kind,
					State:           StateActive,
					FirstSeenAt:     now,
					LastSeenAt:      now,
					OccurrenceCount: 1,
				},
			})
			continue
		}

		// Repeat observation: update, never duplicate. Acknowledged
		// alerts stay acknowledged while the condition persists.
		next := prev
		next.LastSeenAt = now
		next.OccurrenceCount++
		transitions = append(transitions, Transition{Change: ChangeRepeated, Event: next})
	}

	// Conditions that were Active (or Acknowledged) and are no longer
	// failing resolve automatically.
	for key, prev := range history {
		if prev.State == StateClear {
			continue
		}
		if _, stillFailing := failing[key]; stillFailing {
			continue
		}
		next := prev
		next.State = StateClear
		next.LastSeenAt = now
		transitions = append(transitions, Transition{Change: ChangeResolved, Event: next})
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Event.Key < transitions[j].Event.Key
	})
	return transitions
}
