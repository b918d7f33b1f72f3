// Package alert holds the domain model of the alert scheduler: the validated
// payload a caller supplies, the persisted record with its lifecycle flags,
// the typed timer/notification identifiers and the error taxonomy shared by
// the store, the engine and the boundary layer.
package alert

import "strings"

// Owner identifies the external party that created an alert.
// (Realm, ID) is the indexed lookup key.
type Owner struct {
	Realm string `json:"realm"`
	ID    int64  `json:"ownerId"`
}

func (o Owner) IsZero() bool { return o.Realm == "" && o.ID == 0 }

// Matches reports exact (realm, id) equality.
func (o Owner) Matches(other Owner) bool { return o.Realm == other.Realm && o.ID == other.ID }

// Host returns the realm without its URL scheme, for display.
func (o Owner) Host() string {
	h := strings.TrimPrefix(o.Realm, "https://")
	return strings.TrimPrefix(h, "http://")
}

// Payload is the caller-supplied part of an alert. Values of this type are
// only ever produced by Validate (or copied from a stored record).
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// DueAt is the absolute trigger time in epoch milliseconds.
	DueAt int64 `json:"expires"`
	// RepeatInterval is stored and validated only; 0 means non-repeating.
	RepeatInterval int64 `json:"repeat"`
	// Actions is reserved and always nil.
	Actions    []any  `json:"actions"`
	Category   string `json:"category"`
	Persistent bool   `json:"persistent"`
	Tag        string `json:"tag"`
	Vibrate    bool   `json:"vibrate"`
}

// Record is a persisted alert.
type Record struct {
	// ID is assigned by the store; 0 means the record was never persisted.
	ID              int64   `json:"id,omitempty"`
	Owner           Owner   `json:"owner"`
	Payload         Payload `json:"data"`
	Triggered       bool    `json:"triggered"`
	Handled         bool    `json:"handled"`
	HasNotification bool    `json:"hasNotification"`
	PendingDelete   bool    `json:"pendingDelete"`
}

func (r Record) HasID() bool { return r.ID > 0 }

// View is the externally visible shape of a record.
type View struct {
	ID              int64   `json:"id"`
	Payload         Payload `json:"data"`
	Triggered       bool    `json:"triggered"`
	Handled         bool    `json:"handled"`
	HasNotification bool    `json:"hasNotification"`
}

func (r Record) View() View {
	return View{
		ID:              r.ID,
		Payload:         r.Payload,
		Triggered:       r.Triggered,
		Handled:         r.Handled,
		HasNotification: r.HasNotification,
	}
}

// Views maps records to their external shape.
func Views(recs []Record) []View {
	out := make([]View, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.View())
	}
	return out
}
