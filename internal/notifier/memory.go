package notifier

import (
	"context"
	"sort"
	"sync"
	"time"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

// Shown is a notification displayed by the memory driver.
type Shown struct {
	ID string
	Notification
	At time.Time
}

// Memory is an in-process notifier.
type Memory struct {
	log      logx.Logger
	handlers handlerSet

	mu      sync.Mutex
	live    map[string]Shown
	history []Shown
	showErr error
}

func NewMemory(log logx.Logger) *Memory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Memory{log: log, live: map[string]Shown{}}
}

func (m *Memory) OnEvent(h EventHandler) { m.handlers.add(h) }

func (m *Memory) Show(ctx context.Context, id string, n Notification) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.showErr != nil {
		return m.showErr
	}
	s := Shown{ID: id, Notification: n, At: time.Now()}
	m.live[id] = s
	m.history = append(m.history, s)
	m.log.Debug("notification shown", logx.String("id", id), logx.String("title", n.Title))
	return nil
}

func (m *Memory) Dismiss(ctx context.Context, id string) error {
	_ = ctx
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	return nil
}

// Live returns the ids currently shown, sorted.
func (m *Memory) Live(ctx context.Context) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	out := make([]string, 0, len(m.live))
	for id := range m.live {
		out = append(out, id)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out, nil
}

// Get returns the live notification for id.
func (m *Memory) Get(id string) (Shown, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live[id]
	return s, ok
}

// History returns every Show call in order.
func (m *Memory) History() []Shown {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Shown(nil), m.history...)
}

// FailShow makes subsequent Show calls fail with err (nil restores).
func (m *Memory) FailShow(err error) {
	m.mu.Lock()
	m.showErr = err
	m.mu.Unlock()
}

// Click simulates the user clicking id. The notification stays shown.
func (m *Memory) Click(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.live[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownNotification
	}
	m.handlers.emit(ctx, Clicked, id)
	return nil
}

// Close simulates the user closing id.
func (m *Memory) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.live[id]
	delete(m.live, id)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownNotification
	}
	m.handlers.emit(ctx, Closed, id)
	return nil
}

// LogOpener logs the open request. It is the opener for drivers that have
// no way to reach the owner.
type LogOpener struct{ Log logx.Logger }

func (o LogOpener) Open(ctx context.Context, owner alert.Owner, target string) error {
	_ = ctx
	o.Log.Info("open requested", logx.String("realm", owner.Realm), logx.Int64("owner", owner.ID), logx.String("target", target))
	return nil
}

// RecordingOpener remembers every open request.
type RecordingOpener struct {
	mu    sync.Mutex
	opens []OpenCall
	err   error
}

type OpenCall struct {
	Owner  alert.Owner
	Target string
}

func (o *RecordingOpener) Open(ctx context.Context, owner alert.Owner, target string) error {
	_ = ctx
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens = append(o.opens, OpenCall{Owner: owner, Target: target})
	return o.err
}

// Fail makes subsequent Open calls return err after recording them.
func (o *RecordingOpener) Fail(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *RecordingOpener) Calls() []OpenCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]OpenCall(nil), o.opens...)
}
