package engine

import (
	"context"
	"errors"

	"alertd/internal/alert"
	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	"alertd/internal/storage"
	logx "alertd/pkg/logx"
)

// Restore brings timers and notifications back in line with the store after
// a restart. Pending records are re-armed (past-due ones fire at once) and
// triggered records that never got a notification are shown again. When the
// notifier can list live notifications, pending deletes whose notification
// is gone are finalized and stale hasNotification flags are cleared.
//
// A failure on one record is logged and the rest are still processed; the
// first such failure is returned.
func (e *Engine) Restore(ctx context.Context) (RestoreReport, error) {
	var rep RestoreReport
	recs, err := e.store.List(ctx, nil)
	if err != nil {
		return rep, alert.StoreFailure("list", err)
	}

	live, known := e.liveNotifications(ctx)
	gone := func(r alert.Record) bool {
		if !known {
			return false
		}
		_, ok := live[alert.NotificationName(r.ID)]
		return !ok
	}

	var first error
	note := func(id int64, err error) {
		if err == nil {
			return
		}
		e.log.Error("restore failed", logx.Int64("id", id), logx.Err(err))
		if first == nil {
			first = err
		}
	}

	for _, r := range recs {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		switch {
		case r.PendingDelete:
			if !gone(r) {
				continue
			}
			if err := e.store.Delete(ctx, r.ID); err != nil {
				note(r.ID, alert.StoreFailure("delete", err))
				continue
			}
			rep.Finalized++
			e.publish(eventbus.AlertDeleted, r, "notification gone")

		case !r.Triggered:
			if err := e.timers.Arm(ctx, alert.TimerName(r.ID), r.Payload.Due()); err != nil {
				note(r.ID, alert.TimerFailure("arm", err))
				continue
			}
			rep.Armed++

		case r.HasNotification:
			if !gone(r) {
				continue
			}
			_, err := storage.Merge(ctx, e.store, r.ID, storage.Patch{HasNotification: storage.Bool(false)})
			if err != nil && !errors.Is(err, alert.ErrNotFound) {
				note(r.ID, alert.StoreFailure("clear", err))
				continue
			}
			rep.Cleared++

		case !r.Handled:
			if err := e.show(ctx, r); err != nil {
				note(r.ID, err)
				continue
			}
			rep.Reshown++
		}
	}
	e.log.Info("alerts restored",
		logx.Int("armed", rep.Armed),
		logx.Int("reshown", rep.Reshown),
		logx.Int("finalized", rep.Finalized),
		logx.Int("cleared", rep.Cleared),
	)
	return rep, first
}

// liveNotifications returns the set of shown notification ids. known is
// false when the notifier cannot tell.
func (e *Engine) liveNotifications(ctx context.Context) (map[string]struct{}, bool) {
	ll, ok := e.notes.(notifier.LiveLister)
	if !ok {
		return nil, false
	}
	ids, err := ll.Live(ctx)
	if err != nil {
		e.log.Warn("listing live notifications failed", logx.Err(err))
		return nil, false
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, true
}
