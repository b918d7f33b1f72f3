package notifier

import (
	"context"
	"errors"
	"time"

	"alertd/internal/alert"
)

// ErrUnknownNotification is returned when simulating an action on an id
// that is not currently shown.
var ErrUnknownNotification = errors.New("unknown notification")

// Notification is what gets displayed.
type Notification struct {
	Title       string
	Body        string
	Icon        string
	ContextText string
	EventTime   time.Time
	Persistent  bool // stays until the user acts on it
	Vibrate     bool // audible/vibrating delivery
	Tag         string
}

type EventKind int

const (
	Clicked EventKind = iota + 1
	Closed
)

func (k EventKind) String() string {
	switch k {
	case Clicked:
		return "clicked"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event reports a user action on a shown notification.
type Event struct {
	Kind           EventKind
	NotificationID string
	At             time.Time
}

// EventHandler receives notification events. It may be called from any
// goroutine, including the one calling a simulation method.
type EventHandler func(ctx context.Context, ev Event)

// Service is the NotificationService contract.
type Service interface {
	// Show displays n under id, replacing any notification already shown
	// under that id.
	Show(ctx context.Context, id string, n Notification) error
	// Dismiss removes the notification without emitting events. Dismissing
	// an unknown id is not an error.
	Dismiss(ctx context.Context, id string) error
	// OnEvent registers h for Clicked and Closed events.
	OnEvent(h EventHandler)
}

// LiveLister is implemented by drivers that know which notifications are
// still displayed.
type LiveLister interface {
	Live(ctx context.Context) ([]string, error)
}

// Simulator is implemented by drivers whose user actions can be triggered
// programmatically.
type Simulator interface {
	Click(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
}

// Opener performs the owner-facing side effect of a clicked alert (bringing
// the owner's game page to the foreground).
type Opener interface {
	Open(ctx context.Context, owner alert.Owner, target string) error
}

// Config selects and configures the driver.
type Config struct {
	Driver   string // "memory" (default) | "telegram"
	Telegram TelegramConfig
}

type TelegramConfig struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint.
	APIURL        string
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}
