package engine

import (
	"context"
	"time"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

// Preview shows p for owner without storing or scheduling anything. The
// notification is dismissed after PreviewTTL. A notifier failure is logged
// and still reported as shown.
func (e *Engine) Preview(ctx context.Context, p alert.Payload, owner alert.Owner) (bool, error) {
	rec, err := e.CreateEphemeral(p, owner)
	if err != nil {
		return false, err
	}
	e.preview(ctx, rec)
	return true, nil
}

// PreviewID shows a stored record as a preview. Its lifecycle is untouched.
func (e *Engine) PreviewID(ctx context.Context, id int64) (bool, error) {
	rec, err := e.visible(ctx, id, nil)
	if err != nil {
		return false, err
	}
	rec.ID = 0
	e.preview(ctx, rec)
	return true, nil
}

func (e *Engine) preview(ctx context.Context, rec alert.Record) {
	nid, err := e.Trigger(ctx, rec)
	if err != nil {
		e.log.Warn("preview failed", logx.Err(err))
		return
	}
	e.log.Debug("preview shown", logx.String("title", rec.Payload.Title))

	e.pmu.Lock()
	defer e.pmu.Unlock()
	if e.previewTimer != nil {
		e.previewTimer.Stop()
	}
	e.previewTimer = time.AfterFunc(e.cfg.PreviewTTL, func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notes.Dismiss(dctx, nid); err != nil {
			e.log.Warn("preview dismiss failed", logx.Err(err))
		}
	})
}
