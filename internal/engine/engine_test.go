package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"alertd/internal/alert"
	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	"alertd/internal/storage"
	"alertd/internal/timer"
	logx "alertd/pkg/logx"
)

// fakeTimers arms nothing real; tests fire timers by hand.
type fakeTimers struct {
	mu      sync.Mutex
	armed   map[string]time.Time
	h       timer.Handler
	armErr  error
	cancels []string
	// beforeArm runs once, outside the lock, ahead of the next Arm.
	beforeArm func(name string)
}

func newFakeTimers() *fakeTimers { return &fakeTimers{armed: map[string]time.Time{}} }

func (f *fakeTimers) Arm(_ context.Context, name string, at time.Time) error {
	f.mu.Lock()
	hook := f.beforeArm
	f.beforeArm = nil
	f.mu.Unlock()
	if hook != nil {
		hook(name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armErr != nil {
		return f.armErr
	}
	f.armed[name] = at
	return nil
}

func (f *fakeTimers) Cancel(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, name)
	f.cancels = append(f.cancels, name)
	return nil
}

func (f *fakeTimers) OnFire(h timer.Handler) { f.h = h }

func (f *fakeTimers) isArmed(name string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.armed[name]
	return at, ok
}

// fire runs the handler if name is armed and reports whether it did.
func (f *fakeTimers) fire(ctx context.Context, name string) bool {
	f.mu.Lock()
	_, ok := f.armed[name]
	delete(f.armed, name)
	h := f.h
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(ctx, name)
	return true
}

type harness struct {
	e      *Engine
	store  storage.Store
	timers *fakeTimers
	notes  *notifier.Memory
	opener *notifier.RecordingOpener
	bus    *eventbus.Mem
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets wrap put a notifier in front of the memory one.
func newHarnessWith(t *testing.T, wrap func(*notifier.Memory) notifier.Service) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "alerts.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		store:  st,
		timers: newFakeTimers(),
		notes:  notifier.NewMemory(logx.Nop()),
		opener: &notifier.RecordingOpener{},
		bus:    eventbus.New(),
	}
	var notes notifier.Service = h.notes
	if wrap != nil {
		notes = wrap(h.notes)
	}
	h.e = New(Config{AppName: "Alerts", Icon: "icon.png", PreviewTTL: 50 * time.Millisecond}, st, h.timers, notes, h.opener, h.bus, logx.Nop())
	t.Cleanup(h.e.Close)
	return h
}

var (
	alice = alert.Owner{Realm: "https://a.example", ID: 1}
	bob   = alert.Owner{Realm: "https://a.example", ID: 2}
)

func payload(title string, due time.Time) alert.Payload {
	return alert.Payload{Title: title, Body: "body of " + title, DueAt: due.UnixMilli()}
}

func TestValidateIsPureAndStripsUnknownFields(t *testing.T) {
	h := newHarness(t)
	raw := map[string]any{
		"title":      "t",
		"body":       "b",
		"expires":    float64(1700000000000),
		"repeat":     float64(0),
		"actions":    nil,
		"persistent": true,
		"extra":      "dropped",
	}
	p, err := h.e.Validate(raw)
	require.NoError(t, err)
	require.Equal(t, alert.Payload{Title: "t", Body: "b", DueAt: 1700000000000, Persistent: true}, p)
	require.Contains(t, raw, "extra")

	recs, err := h.e.GetAllRaw(context.Background())
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestValidateNamesBadFieldAndPersistsNothing(t *testing.T) {
	h := newHarness(t)
	_, err := h.e.Validate(map[string]any{"title": 5, "body": "b", "expires": float64(1), "repeat": float64(0), "persistent": false})
	var ve *alert.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "title", ve.Field)
	require.ErrorIs(t, err, alert.ErrInvalidPayload)

	_, err = h.e.Create(context.Background(), alert.Payload{Actions: []any{1}}, alice)
	require.ErrorIs(t, err, alert.ErrInvalidPayload)
	recs, err := h.e.GetAllRaw(context.Background())
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Empty(t, h.timers.armed)
}

func TestCreateArmsTimerWithFlagsCleared(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	events, unsub := h.bus.Subscribe(8)
	defer unsub()

	due := time.Now().Add(time.Hour)
	id, err := h.e.Create(ctx, payload("raid", due), alice)
	require.NoError(t, err)
	require.Positive(t, id)

	rec, ok, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alice, rec.Owner)
	require.False(t, rec.Triggered)
	require.False(t, rec.Handled)
	require.False(t, rec.HasNotification)
	require.False(t, rec.PendingDelete)

	at, armed := h.timers.isArmed(alert.TimerName(id))
	require.True(t, armed)
	require.Equal(t, due.UnixMilli(), at.UnixMilli())

	ev := <-events
	require.Equal(t, eventbus.AlertCreated, ev.Type)
	require.Equal(t, id, ev.Data.(eventbus.AlertEvent).ID)
}

func TestCreateRequiresOwnerRealm(t *testing.T) {
	h := newHarness(t)
	_, err := h.e.Create(context.Background(), payload("x", time.Now()), alert.Owner{})
	require.ErrorIs(t, err, alert.ErrInvalidPayload)
}

func TestCreateRollsBackWhenArmFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.timers.armErr = errors.New("no timers")

	_, err := h.e.Create(ctx, payload("x", time.Now().Add(time.Hour)), alice)
	require.ErrorIs(t, err, alert.ErrTimer)

	recs, err := h.e.GetAllRaw(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestFireShowsThenClickHandlesAndOpensOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	due := time.Now().Add(time.Minute)
	id, err := h.e.Create(ctx, payload("raid", due), alice)
	require.NoError(t, err)

	require.True(t, h.timers.fire(ctx, alert.TimerName(id)))

	rec, ok, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.Triggered)
	require.True(t, rec.HasNotification)
	require.False(t, rec.Handled)

	shown, ok := h.notes.Get(alert.NotificationName(id))
	require.True(t, ok)
	require.Equal(t, "raid", shown.Title)
	require.Equal(t, "body of raid", shown.Body)
	require.Equal(t, "icon.png", shown.Icon)
	require.Equal(t, "Alerts − a.example", shown.ContextText)
	require.Equal(t, due.UnixMilli(), shown.EventTime.UnixMilli())

	require.NoError(t, h.notes.Click(ctx, alert.NotificationName(id)))

	rec, _, err = h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, rec.Handled)
	require.Equal(t, []notifier.OpenCall{{Owner: alice, Target: "https://a.example/game/index"}}, h.opener.Calls())
}

func TestOpenerFailureKeepsHandled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.opener.Fail(errors.New("no window"))
	id, err := h.e.Create(ctx, payload("x", time.Now()), alice)
	require.NoError(t, err)
	h.timers.fire(ctx, alert.TimerName(id))

	require.NoError(t, h.e.Dispatch(ctx, NotificationClicked{ID: id}))
	rec, _, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, rec.Handled)
	require.Len(t, h.opener.Calls(), 1)
}

func TestShowFailureLeavesRecordTriggered(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("x", time.Now()), alice)
	require.NoError(t, err)

	h.notes.FailShow(errors.New("display gone"))
	err = h.e.Dispatch(ctx, TimerFired{ID: id})
	require.ErrorIs(t, err, alert.ErrNotify)

	rec, _, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, rec.Triggered)
	require.False(t, rec.HasNotification)
}

func TestCloseMarksHandledAndClearsNotification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("x", time.Now()), alice)
	require.NoError(t, err)
	h.timers.fire(ctx, alert.TimerName(id))

	require.NoError(t, h.notes.Close(ctx, alert.NotificationName(id)))
	rec, ok, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.Handled)
	require.False(t, rec.HasNotification)
}

func TestDeleteBeforeFireNeverFires(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("x", time.Now().Add(time.Hour)), alice)
	require.NoError(t, err)

	require.NoError(t, h.e.Delete(ctx, id, nil))
	require.False(t, h.timers.fire(ctx, alert.TimerName(id)))
	require.Empty(t, h.notes.History())

	recs, err := h.e.GetAllRaw(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestStaleFireDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("x", time.Now()), alice)
	require.NoError(t, err)
	require.NoError(t, h.e.Delete(ctx, id, nil))

	require.NoError(t, h.e.Dispatch(ctx, TimerFired{ID: id}))
	recs, err := h.e.GetAllRaw(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Empty(t, h.notes.History())
}

func TestDoubleDelete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("x", time.Now().Add(time.Hour)), alice)
	require.NoError(t, err)

	require.NoError(t, h.e.Delete(ctx, id, nil))
	err = h.e.Delete(ctx, id, nil)
	require.ErrorIs(t, err, alert.ErrNotFound)
}

func TestSoftDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	events, unsub := h.bus.Subscribe(16, eventbus.AlertSoftDeleted, eventbus.AlertDeleted)
	defer unsub()

	id, err := h.e.Create(ctx, payload("x", time.Now()), alice)
	require.NoError(t, err)
	h.timers.fire(ctx, alert.TimerName(id))

	require.NoError(t, h.e.Delete(ctx, id, nil))
	require.Equal(t, eventbus.AlertSoftDeleted, (<-events).Type)

	_, ok, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.False(t, ok)
	all, err := h.e.GetAll(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, all)

	raw, err := h.e.GetAllRaw(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	require.True(t, raw[0].PendingDelete)

	// Mutations on a pending delete behave as missing.
	_, err = h.e.SetData(ctx, id, payload("y", time.Now()), nil)
	require.ErrorIs(t, err, alert.ErrNotFound)
	require.ErrorIs(t, h.e.Delete(ctx, id, nil), alert.ErrNotFound)

	require.NoError(t, h.notes.Close(ctx, alert.NotificationName(id)))
	require.Equal(t, eventbus.AlertDeleted, (<-events).Type)
	raw, err = h.e.GetAllRaw(ctx)
	require.NoError(t, err)
	require.Empty(t, raw)
}

func TestClickOnPendingDeleteStillHandles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("x", time.Now()), alice)
	require.NoError(t, err)
	h.timers.fire(ctx, alert.TimerName(id))
	require.NoError(t, h.e.Delete(ctx, id, nil))

	require.NoError(t, h.e.Dispatch(ctx, NotificationClicked{ID: id}))
	raw, err := h.e.GetAllRaw(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	require.True(t, raw[0].Handled)
	require.True(t, raw[0].PendingDelete)
}

func TestSetDataResetsAndRearms(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("old", time.Now()), alice)
	require.NoError(t, err)
	h.timers.fire(ctx, alert.TimerName(id))
	require.NoError(t, h.e.Dispatch(ctx, NotificationClicked{ID: id}))

	due := time.Now().Add(2 * time.Hour)
	got, err := h.e.SetData(ctx, id, payload("new", due), nil)
	require.NoError(t, err)
	require.Equal(t, id, got)

	rec, _, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, "new", rec.Payload.Title)
	require.False(t, rec.Triggered)
	require.False(t, rec.Handled)

	at, armed := h.timers.isArmed(alert.TimerName(id))
	require.True(t, armed)
	require.Equal(t, due.UnixMilli(), at.UnixMilli())
	require.Contains(t, h.timers.cancels, alert.TimerName(id))
}

func TestSetDataRejectsMissingAndInvalid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.e.SetData(ctx, 42, payload("x", time.Now()), nil)
	require.ErrorIs(t, err, alert.ErrNotFound)

	id, err := h.e.Create(ctx, payload("x", time.Now().Add(time.Hour)), alice)
	require.NoError(t, err)
	_, err = h.e.SetData(ctx, id, alert.Payload{Actions: []any{}}, nil)
	require.ErrorIs(t, err, alert.ErrInvalidPayload)
	_, armed := h.timers.isArmed(alert.TimerName(id))
	require.True(t, armed)
}

func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.e.Scoped(alice)
	b := h.e.Scoped(bob)

	id, err := a.Create(ctx, payload("mine", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	_, err = b.Create(ctx, payload("theirs", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, ok, err := b.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = b.SetData(ctx, id, payload("hijack", time.Now()))
	require.ErrorIs(t, err, alert.ErrNotFound)
	require.ErrorIs(t, b.Delete(ctx, id), alert.ErrNotFound)

	mine, err := a.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "mine", mine[0].Payload.Title)

	all, err := h.e.GetAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	rec, ok, err := a.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "mine", rec.Payload.Title)
}

func TestDispatchIgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.e.Dispatch(ctx, TimerFired{ID: 99}))
	require.NoError(t, h.e.Dispatch(ctx, NotificationClicked{ID: 99}))
	require.NoError(t, h.e.Dispatch(ctx, NotificationClosed{ID: 99}))
	require.Empty(t, h.opener.Calls())
}

func TestPreviewShowsAndAutoDismisses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ok, err := h.e.Preview(ctx, payload("peek", time.Now()), alice)
	require.NoError(t, err)
	require.True(t, ok)

	shown, live := h.notes.Get(alert.PreviewNotification)
	require.True(t, live)
	require.Equal(t, "peek", shown.Title)

	raw, err := h.e.GetAllRaw(ctx)
	require.NoError(t, err)
	require.Empty(t, raw)
	require.Empty(t, h.timers.armed)

	require.Eventually(t, func() bool {
		_, live := h.notes.Get(alert.PreviewNotification)
		return !live
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPreviewClickIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.e.Preview(ctx, payload("peek", time.Now()), alice)
	require.NoError(t, err)
	require.NoError(t, h.notes.Click(ctx, alert.PreviewNotification))
	require.Empty(t, h.opener.Calls())
}

func TestPreviewReportsShownOnNotifierFailure(t *testing.T) {
	h := newHarness(t)
	h.notes.FailShow(errors.New("down"))
	ok, err := h.e.Preview(context.Background(), payload("peek", time.Now()), alice)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.e.Preview(context.Background(), alert.Payload{Actions: []any{}}, alice)
	require.ErrorIs(t, err, alert.ErrInvalidPayload)
}

func TestPreviewIDLeavesLifecycleAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("stored", time.Now().Add(time.Hour)), alice)
	require.NoError(t, err)

	ok, err := h.e.PreviewID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	shown, live := h.notes.Get(alert.PreviewNotification)
	require.True(t, live)
	require.Equal(t, "stored", shown.Title)

	rec, _, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.False(t, rec.Triggered)
	require.False(t, rec.HasNotification)

	_, err = h.e.PreviewID(ctx, id+1)
	require.ErrorIs(t, err, alert.ErrNotFound)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	insert := func(r alert.Record) int64 {
		r.Owner = alice
		r.Payload = payload("r", time.Now().Add(-time.Minute))
		id, err := h.store.Insert(ctx, r)
		require.NoError(t, err)
		return id
	}
	pending := insert(alert.Record{})
	unshown := insert(alert.Record{Triggered: true})
	staleShown := insert(alert.Record{Triggered: true, HasNotification: true})
	liveShown := insert(alert.Record{Triggered: true, HasNotification: true})
	goneDelete := insert(alert.Record{Triggered: true, HasNotification: true, PendingDelete: true})
	handled := insert(alert.Record{Triggered: true, Handled: true})

	require.NoError(t, h.notes.Show(ctx, alert.NotificationName(liveShown), notifier.Notification{Title: "r"}))

	rep, err := h.e.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, RestoreReport{Armed: 1, Reshown: 1, Finalized: 1, Cleared: 1}, rep)

	_, armed := h.timers.isArmed(alert.TimerName(pending))
	require.True(t, armed)

	rec, _, err := h.e.Get(ctx, unshown, nil)
	require.NoError(t, err)
	require.True(t, rec.HasNotification)
	_, live := h.notes.Get(alert.NotificationName(unshown))
	require.True(t, live)

	rec, _, err = h.e.Get(ctx, staleShown, nil)
	require.NoError(t, err)
	require.False(t, rec.HasNotification)

	rec, _, err = h.e.Get(ctx, liveShown, nil)
	require.NoError(t, err)
	require.True(t, rec.HasNotification)

	_, ok, err := h.store.Get(ctx, goneDelete)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = h.e.Get(ctx, handled, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWithRealTimerService(t *testing.T) {
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.sqlite")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ts := timer.New(timer.Config{}, logx.Nop())
	ts.Start(ctx)
	defer ts.Stop(ctx)

	notes := notifier.NewMemory(logx.Nop())
	e := New(Config{}, st, ts, notes, &notifier.RecordingOpener{}, nil, logx.Nop())
	defer e.Close()

	soon, err := e.Create(ctx, payload("soon", time.Now().Add(50*time.Millisecond)), alice)
	require.NoError(t, err)
	later, err := e.Create(ctx, payload("later", time.Now().Add(50*time.Millisecond)), alice)
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, later, nil))

	require.Eventually(t, func() bool {
		rec, ok, err := e.Get(ctx, soon, nil)
		return err == nil && ok && rec.HasNotification
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	_, live := notes.Get(alert.NotificationName(later))
	require.False(t, live)
	shown, _ := notes.Get(alert.NotificationName(soon))
	require.Equal(t, "alertd − a.example", shown.ContextText)
}

// closingNotifier reports the notification as closed before Show returns.
type closingNotifier struct {
	*notifier.Memory
}

func (c closingNotifier) Show(ctx context.Context, id string, n notifier.Notification) error {
	if err := c.Memory.Show(ctx, id, n); err != nil {
		return err
	}
	return c.Memory.Close(ctx, id)
}

func TestCloseDuringShowIsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, func(m *notifier.Memory) notifier.Service { return closingNotifier{m} })
	id, err := h.e.Create(ctx, payload("x", time.Now()), alice)
	require.NoError(t, err)

	require.True(t, h.timers.fire(ctx, alert.TimerName(id)))
	rec, _, err := h.e.Get(ctx, id, nil)
	require.NoError(t, err)
	require.True(t, rec.Triggered)
	require.True(t, rec.Handled)
	require.False(t, rec.HasNotification)

	require.NoError(t, h.e.Delete(ctx, id, nil))
	_, ok, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok, "no notification is live, so delete must be hard")
}

func TestShowFailureAfterSoftDeleteFinalizes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.store.Insert(ctx, alert.Record{Owner: alice, Payload: payload("x", time.Now()), Triggered: true})
	require.NoError(t, err)

	// The record is soft-deleted while its notification is being shown.
	h.notes.FailShow(errors.New("display gone"))
	h.e.notes = deletingNotifier{Memory: h.notes, before: func() {
		_, err := storage.Merge(ctx, h.store, id, storage.Patch{PendingDelete: storage.Bool(true)})
		require.NoError(t, err)
	}}
	rec, _, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	require.ErrorIs(t, h.e.show(ctx, rec), alert.ErrNotify)

	_, ok, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

type deletingNotifier struct {
	*notifier.Memory
	before func()
}

func (d deletingNotifier) Show(ctx context.Context, id string, n notifier.Notification) error {
	d.before()
	return d.Memory.Show(ctx, id, n)
}

func TestDeleteDuringSetDataLeavesNoTimer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.e.Create(ctx, payload("x", time.Now().Add(time.Hour)), alice)
	require.NoError(t, err)

	deleted := make(chan error, 1)
	h.timers.mu.Lock()
	h.timers.beforeArm = func(string) {
		go func() { deleted <- h.e.Delete(ctx, id, nil) }()
		// Delete must wait for SetData; give it the chance to run first.
		select {
		case err := <-deleted:
			deleted <- err
		case <-time.After(50 * time.Millisecond):
		}
	}
	h.timers.mu.Unlock()

	_, err = h.e.SetData(ctx, id, payload("y", time.Now().Add(2*time.Hour)), nil)
	require.NoError(t, err)
	require.NoError(t, <-deleted)

	_, ok, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
	_, armed := h.timers.isArmed(alert.TimerName(id))
	require.False(t, armed)
	require.Zero(t, h.e.locks.held())
}

func TestCreateCancelsTimerWhenRemovedWhileArming(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.timers.mu.Lock()
	h.timers.beforeArm = func(name string) {
		id, ok := alert.ParseTimerName(name)
		require.True(t, ok)
		require.NoError(t, h.store.Delete(ctx, id))
	}
	h.timers.mu.Unlock()

	id, err := h.e.Create(ctx, payload("x", time.Now().Add(time.Hour)), alice)
	require.NoError(t, err)
	_, armed := h.timers.isArmed(alert.TimerName(id))
	require.False(t, armed)
}

func TestIDLocksSerializePerID(t *testing.T) {
	var l idLocks
	unlockA := l.lock(1)
	unlockB := l.lock(2)
	require.Equal(t, 2, l.held())

	got := make(chan struct{})
	go func() {
		u := l.lock(1)
		close(got)
		u()
	}()
	select {
	case <-got:
		t.Fatal("second holder of id 1 got the lock")
	case <-time.After(30 * time.Millisecond):
	}
	unlockA()
	<-got
	unlockB()
	require.Zero(t, l.held())
}
