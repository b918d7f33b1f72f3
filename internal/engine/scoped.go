package engine

import (
	"context"

	"alertd/internal/alert"
)

// Scoped is the engine as seen by one owner: every lookup is filtered to
// that owner and foreign records read as missing.
type Scoped struct {
	e     *Engine
	owner alert.Owner
}

func (e *Engine) Scoped(owner alert.Owner) Scoped {
	return Scoped{e: e, owner: owner}
}

func (s Scoped) Owner() alert.Owner { return s.owner }

func (s Scoped) Get(ctx context.Context, id int64) (alert.Record, bool, error) {
	return s.e.Get(ctx, id, &s.owner)
}

func (s Scoped) GetAll(ctx context.Context) ([]alert.Record, error) {
	return s.e.GetAll(ctx, &s.owner)
}

func (s Scoped) Create(ctx context.Context, p alert.Payload) (int64, error) {
	return s.e.Create(ctx, p, s.owner)
}

func (s Scoped) SetData(ctx context.Context, id int64, p alert.Payload) (int64, error) {
	return s.e.SetData(ctx, id, p, &s.owner)
}

func (s Scoped) Delete(ctx context.Context, id int64) error {
	return s.e.Delete(ctx, id, &s.owner)
}

func (s Scoped) Preview(ctx context.Context, p alert.Payload) (bool, error) {
	return s.e.Preview(ctx, p, s.owner)
}
