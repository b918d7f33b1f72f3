package engine

import (
	"context"
	"errors"
	"fmt"

	"alertd/internal/alert"
	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	"alertd/internal/storage"
	logx "alertd/pkg/logx"
)

// Dispatch applies one incoming event. Events for records that are gone are
// ignored; the returned error is only for store or notifier failures.
func (e *Engine) Dispatch(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case TimerFired:
		return e.fired(ctx, ev.ID)
	case NotificationClicked:
		return e.clicked(ctx, ev.ID)
	case NotificationClosed:
		return e.closed(ctx, ev.ID)
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
}

func (e *Engine) onTimer(ctx context.Context, name string) {
	id, ok := alert.ParseTimerName(name)
	if !ok {
		e.log.Debug("ignoring foreign timer", logx.String("name", name))
		return
	}
	if err := e.Dispatch(ctx, TimerFired{ID: id}); err != nil {
		e.log.Error("timer fire failed", logx.Int64("id", id), logx.Err(err))
	}
}

func (e *Engine) onNotification(ctx context.Context, ev notifier.Event) {
	id, ok := alert.ParseNotificationName(ev.NotificationID)
	if !ok {
		// Previews and foreign notifications carry no state.
		return
	}
	var in Event
	switch ev.Kind {
	case notifier.Clicked:
		in = NotificationClicked{ID: id}
	case notifier.Closed:
		in = NotificationClosed{ID: id}
	default:
		return
	}
	if err := e.Dispatch(ctx, in); err != nil {
		e.log.Error("notification event failed", logx.Int64("id", id), logx.String("kind", ev.Kind.String()), logx.Err(err))
	}
}

// fired marks the record triggered with a live notification and shows it.
func (e *Engine) fired(ctx context.Context, id int64) error {
	skipped := false
	rec, err := e.store.Update(ctx, id, func(r *alert.Record) (storage.Mutation, error) {
		if r.PendingDelete {
			skipped = true
			return storage.Keep, nil
		}
		r.Triggered = true
		r.HasNotification = true
		return storage.Save, nil
	})
	if errors.Is(err, alert.ErrNotFound) {
		e.log.Debug("fire for missing alert", logx.Int64("id", id))
		return nil
	}
	if err != nil {
		return alert.StoreFailure("trigger", err)
	}
	if skipped {
		return nil
	}
	e.publish(eventbus.AlertTriggered, rec, "")
	return e.display(ctx, rec)
}

// show flags an already triggered record as having a live notification and
// shows it again.
func (e *Engine) show(ctx context.Context, rec alert.Record) error {
	skipped := false
	rec, err := e.store.Update(ctx, rec.ID, func(r *alert.Record) (storage.Mutation, error) {
		if r.PendingDelete {
			skipped = true
			return storage.Keep, nil
		}
		r.HasNotification = true
		return storage.Save, nil
	})
	if errors.Is(err, alert.ErrNotFound) {
		return nil
	}
	if err != nil {
		return alert.StoreFailure("mark shown", err)
	}
	if skipped {
		return nil
	}
	return e.display(ctx, rec)
}

// display shows rec, whose hasNotification flag is already stored. A close
// reported while Show runs therefore lands after the flag and wins. When
// Show fails the flag is taken back.
func (e *Engine) display(ctx context.Context, rec alert.Record) error {
	if _, err := e.Trigger(ctx, rec); err != nil {
		_, uerr := e.store.Update(ctx, rec.ID, func(r *alert.Record) (storage.Mutation, error) {
			if r.PendingDelete {
				return storage.Remove, nil
			}
			r.HasNotification = false
			return storage.Save, nil
		})
		if uerr != nil && !errors.Is(uerr, alert.ErrNotFound) {
			e.log.Error("unmark after failed show", logx.Int64("id", rec.ID), logx.Err(uerr))
		}
		return err
	}
	e.log.Info("alert shown", logx.Int64("id", rec.ID), logx.String("title", rec.Payload.Title))
	e.publish(eventbus.AlertShown, rec, "")
	return nil
}

// clicked marks the record handled and asks the opener to bring the owner's
// page forward. Opener failures are logged only.
func (e *Engine) clicked(ctx context.Context, id int64) error {
	rec, err := storage.Merge(ctx, e.store, id, storage.Patch{Handled: storage.Bool(true)})
	if errors.Is(err, alert.ErrNotFound) {
		return nil
	}
	if err != nil {
		return alert.StoreFailure("mark handled", err)
	}
	e.publish(eventbus.AlertHandled, rec, "clicked")
	target := rec.Owner.Realm + e.cfg.ClickPath
	if err := e.opener.Open(ctx, rec.Owner, target); err != nil {
		e.log.Warn("open failed", logx.Int64("id", id), logx.String("target", target), logx.Err(err))
	}
	return nil
}

// closed finishes a pending delete, or marks the record handled with no
// notification left.
func (e *Engine) closed(ctx context.Context, id int64) error {
	removed := false
	rec, err := e.store.Update(ctx, id, func(r *alert.Record) (storage.Mutation, error) {
		if r.PendingDelete {
			removed = true
			return storage.Remove, nil
		}
		r.Handled = true
		r.HasNotification = false
		return storage.Save, nil
	})
	if errors.Is(err, alert.ErrNotFound) {
		return nil
	}
	if err != nil {
		return alert.StoreFailure("mark closed", err)
	}
	if removed {
		e.log.Info("alert deleted", logx.Int64("id", id), logx.String("reason", "notification closed"))
		e.publish(eventbus.AlertDeleted, rec, "notification closed")
		return nil
	}
	e.publish(eventbus.AlertHandled, rec, "closed")
	return nil
}
