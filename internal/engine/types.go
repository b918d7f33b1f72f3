package engine

import (
	"context"
	"time"

	"alertd/internal/timer"
)

// Config controls notification rendering and preview behaviour.
type Config struct {
	// AppName prefixes the notification context text.
	AppName string
	// Icon is passed through to the notifier.
	Icon string
	// ClickPath is appended to the owner's realm to build the open target.
	ClickPath string
	// PreviewTTL is how long a preview stays up before it is dismissed.
	PreviewTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = "alertd"
	}
	if c.ClickPath == "" {
		c.ClickPath = "/game/index"
	}
	if c.PreviewTTL <= 0 {
		c.PreviewTTL = 5 * time.Second
	}
	return c
}

// Timers is the part of the timer service the engine needs.
type Timers interface {
	Arm(ctx context.Context, name string, at time.Time) error
	Cancel(ctx context.Context, name string) error
	OnFire(h timer.Handler)
}

// Event is one of TimerFired, NotificationClicked, NotificationClosed.
type Event interface {
	eventID() int64
}

// TimerFired reports that the timer of record ID came due.
type TimerFired struct{ ID int64 }

// NotificationClicked reports that the user opened the notification of
// record ID.
type NotificationClicked struct{ ID int64 }

// NotificationClosed reports that the notification of record ID went away.
type NotificationClosed struct{ ID int64 }

func (e TimerFired) eventID() int64          { return e.ID }
func (e NotificationClicked) eventID() int64 { return e.ID }
func (e NotificationClosed) eventID() int64  { return e.ID }

// RestoreReport summarizes Restore.
type RestoreReport struct {
	Armed     int `json:"armed"`
	Reshown   int `json:"reshown"`
	Finalized int `json:"finalized"`
	Cleared   int `json:"cleared"`
}
