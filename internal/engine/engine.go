package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"alertd/internal/alert"
	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	"alertd/internal/storage"
	logx "alertd/pkg/logx"
)

type Engine struct {
	cfg    Config
	log    logx.Logger
	store  storage.Store
	timers Timers
	notes  notifier.Service
	opener notifier.Opener
	bus    eventbus.Bus
	locks  idLocks

	pmu          sync.Mutex
	previewTimer *time.Timer
}

// New builds the engine and subscribes it to timer fires and notification
// events. bus may be nil; opener defaults to logging.
func New(cfg Config, st storage.Store, timers Timers, notes notifier.Service, opener notifier.Opener, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opener == nil {
		opener = notifier.LogOpener{Log: log}
	}
	e := &Engine{
		cfg:    cfg.withDefaults(),
		log:    log,
		store:  st,
		timers: timers,
		notes:  notes,
		opener: opener,
		bus:    bus,
	}
	timers.OnFire(e.onTimer)
	notes.OnEvent(e.onNotification)
	return e
}

// Validate checks and coerces a raw payload. It has no side effects.
func (e *Engine) Validate(raw any) (alert.Payload, error) {
	return alert.Validate(raw)
}

// Create persists a new alert for owner and arms its timer.
func (e *Engine) Create(ctx context.Context, p alert.Payload, owner alert.Owner) (int64, error) {
	p, err := p.Check()
	if err != nil {
		return 0, err
	}
	if err := checkOwner(owner); err != nil {
		return 0, err
	}
	id, err := e.store.Insert(ctx, alert.Record{Owner: owner, Payload: p})
	if err != nil {
		return 0, alert.StoreFailure("insert", err)
	}
	unlock := e.locks.lock(id)
	defer unlock()

	name := alert.TimerName(id)
	if err := e.timers.Arm(ctx, name, p.Due()); err != nil {
		// An unarmed record would never fire; take it back out.
		if derr := e.store.Delete(ctx, id); derr != nil {
			e.log.Error("rollback after arm failure", logx.Int64("id", id), logx.Err(derr))
		}
		return 0, alert.TimerFailure("arm", err)
	}
	// The id was listable between Insert and lock; a delete in that window
	// found no timer to cancel.
	if cur, ok, err := e.store.Get(ctx, id); err == nil && (!ok || cur.PendingDelete) {
		if cerr := e.timers.Cancel(ctx, name); cerr != nil {
			return 0, alert.TimerFailure("cancel", cerr)
		}
		e.log.Info("alert deleted while arming", logx.Int64("id", id))
		return id, nil
	}
	e.log.Info("alert created", logx.Int64("id", id), logx.String("realm", owner.Realm), logx.Int64("owner", owner.ID), logx.Time("due", p.Due()))
	e.publish(eventbus.AlertCreated, alert.Record{ID: id, Owner: owner, Payload: p}, "")
	return id, nil
}

// SetData replaces the payload of id, resets it to armed and re-arms its
// timer. With owner set, a record of another owner is NotFound.
func (e *Engine) SetData(ctx context.Context, id int64, p alert.Payload, owner *alert.Owner) (int64, error) {
	p, err := p.Check()
	if err != nil {
		return 0, err
	}
	unlock := e.locks.lock(id)
	defer unlock()

	before, err := e.visible(ctx, id, owner)
	if err != nil {
		return 0, err
	}

	name := alert.TimerName(id)
	if err := e.timers.Cancel(ctx, name); err != nil {
		return 0, alert.TimerFailure("cancel", err)
	}
	rec, err := e.store.Update(ctx, id, func(r *alert.Record) (storage.Mutation, error) {
		if !visibleTo(*r, owner) {
			return storage.Keep, alert.NotFound(id)
		}
		r.Payload = p
		r.Triggered = false
		r.Handled = false
		return storage.Save, nil
	})
	if err != nil {
		if !errors.Is(err, alert.ErrNotFound) && !before.Triggered {
			// The old schedule is still the stored one.
			if aerr := e.timers.Arm(ctx, name, before.Payload.Due()); aerr != nil {
				e.log.Error("re-arm after failed update", logx.Int64("id", id), logx.Err(aerr))
			}
		}
		return 0, alert.StoreFailure("update", err)
	}
	if err := e.timers.Arm(ctx, name, p.Due()); err != nil {
		return 0, alert.TimerFailure("arm", err)
	}
	e.log.Info("alert updated", logx.Int64("id", id), logx.Time("due", p.Due()))
	e.publish(eventbus.AlertUpdated, rec, "")
	return id, nil
}

// Delete cancels the timer of id and removes the record. A record whose
// notification is still displayed is only flagged and goes away when the
// notification closes.
func (e *Engine) Delete(ctx context.Context, id int64, owner *alert.Owner) error {
	unlock := e.locks.lock(id)
	defer unlock()

	if _, err := e.visible(ctx, id, owner); err != nil {
		return err
	}
	// Cancel waits for an in-flight fire, so hasNotification below is final.
	if err := e.timers.Cancel(ctx, alert.TimerName(id)); err != nil {
		return alert.TimerFailure("cancel", err)
	}

	soft := false
	rec, err := e.store.Update(ctx, id, func(r *alert.Record) (storage.Mutation, error) {
		if !visibleTo(*r, owner) {
			return storage.Keep, alert.NotFound(id)
		}
		if r.HasNotification {
			soft = true
			r.PendingDelete = true
			return storage.Save, nil
		}
		return storage.Remove, nil
	})
	if err != nil {
		return alert.StoreFailure("delete", err)
	}
	if soft {
		e.log.Info("alert soft-deleted", logx.Int64("id", id))
		e.publish(eventbus.AlertSoftDeleted, rec, "notification live")
		return nil
	}
	e.log.Info("alert deleted", logx.Int64("id", id))
	e.publish(eventbus.AlertDeleted, rec, "")
	return nil
}

// Get returns a visible record. Pending deletes and, with owner set, records
// of other owners are reported as absent.
func (e *Engine) Get(ctx context.Context, id int64, owner *alert.Owner) (alert.Record, bool, error) {
	rec, err := e.visible(ctx, id, owner)
	if errors.Is(err, alert.ErrNotFound) {
		return alert.Record{}, false, nil
	}
	if err != nil {
		return alert.Record{}, false, err
	}
	return rec, true, nil
}

// GetAll lists visible records in insertion order, optionally for one owner.
func (e *Engine) GetAll(ctx context.Context, owner *alert.Owner) ([]alert.Record, error) {
	recs, err := e.store.List(ctx, owner)
	if err != nil {
		return nil, alert.StoreFailure("list", err)
	}
	out := recs[:0]
	for _, r := range recs {
		if !r.PendingDelete {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetAllRaw lists every stored record, pending deletes included.
func (e *Engine) GetAllRaw(ctx context.Context) ([]alert.Record, error) {
	recs, err := e.store.List(ctx, nil)
	if err != nil {
		return nil, alert.StoreFailure("list", err)
	}
	return recs, nil
}

// CreateEphemeral builds a record that is never stored or scheduled.
func (e *Engine) CreateEphemeral(p alert.Payload, owner alert.Owner) (alert.Record, error) {
	p, err := p.Check()
	if err != nil {
		return alert.Record{}, err
	}
	return alert.Record{Owner: owner, Payload: p}, nil
}

// Trigger shows the notification for rec and returns its id.
func (e *Engine) Trigger(ctx context.Context, rec alert.Record) (string, error) {
	nid := alert.NotificationFor(rec)
	if err := e.notes.Show(ctx, nid, e.notification(rec)); err != nil {
		return nid, alert.NotifyFailure("show", err)
	}
	return nid, nil
}

func (e *Engine) notification(rec alert.Record) notifier.Notification {
	ctxText := e.cfg.AppName
	if host := rec.Owner.Host(); host != "" {
		ctxText += " − " + host
	}
	return notifier.Notification{
		Title:       rec.Payload.Title,
		Body:        rec.Payload.Body,
		Icon:        e.cfg.Icon,
		ContextText: ctxText,
		EventTime:   rec.Payload.Due(),
		Persistent:  rec.Payload.Persistent,
		Vibrate:     rec.Payload.Vibrate,
		Tag:         rec.Payload.Tag,
	}
}

// Close stops the pending preview dismissal.
func (e *Engine) Close() {
	e.pmu.Lock()
	if e.previewTimer != nil {
		e.previewTimer.Stop()
		e.previewTimer = nil
	}
	e.pmu.Unlock()
}

// visible loads id and applies the read-facing filters.
func (e *Engine) visible(ctx context.Context, id int64, owner *alert.Owner) (alert.Record, error) {
	rec, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return alert.Record{}, alert.StoreFailure("get", err)
	}
	if !ok || !visibleTo(rec, owner) {
		return alert.Record{}, alert.NotFound(id)
	}
	return rec, nil
}

func visibleTo(r alert.Record, owner *alert.Owner) bool {
	if r.PendingDelete {
		return false
	}
	return owner == nil || r.Owner.Matches(*owner)
}

func checkOwner(o alert.Owner) error {
	if o.Realm == "" {
		return &alert.ValidationError{Field: "owner", Reason: "needs a realm"}
	}
	return nil
}

func (e *Engine) publish(typ string, rec alert.Record, reason string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.AlertEvent{
		ID:     rec.ID,
		Realm:  rec.Owner.Realm,
		Owner:  rec.Owner.ID,
		DueAt:  rec.Payload.DueAt,
		Reason: reason,
	}})
}
