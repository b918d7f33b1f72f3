package api

import (
	"context"
	"time"

	"alertd/internal/alert"
)

const (
	HeaderRealm     = "X-Alert-Realm"
	HeaderOwner     = "X-Alert-Owner"
	HeaderRequestID = "X-Request-ID"

	maxBodyBytes = 64 << 10
)

type Config struct {
	Addr       string // default "127.0.0.1:8470"
	AdminToken string
	// AllowInsecure permits a non-loopback Addr without AdminToken.
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RatePerSec limits requests per owner; 0 disables limiting.
	RatePerSec float64
	Burst      int

	// Pprof mounts net/http/pprof under /v1/admin/debug/pprof/.
	Pprof bool
}

// Engine is what the boundary needs from the alert engine.
type Engine interface {
	Validate(raw any) (alert.Payload, error)
	Get(ctx context.Context, id int64, owner *alert.Owner) (alert.Record, bool, error)
	GetAll(ctx context.Context, owner *alert.Owner) ([]alert.Record, error)
	GetAllRaw(ctx context.Context) ([]alert.Record, error)
	Create(ctx context.Context, p alert.Payload, owner alert.Owner) (int64, error)
	SetData(ctx context.Context, id int64, p alert.Payload, owner *alert.Owner) (int64, error)
	Delete(ctx context.Context, id int64, owner *alert.Owner) error
	Preview(ctx context.Context, p alert.Payload, owner alert.Owner) (bool, error)
	PreviewID(ctx context.Context, id int64) (bool, error)
}

type idResponse struct {
	ID int64 `json:"id"`
}

type deletedResponse struct {
	Deleted bool `json:"deleted"`
}

type shownResponse struct {
	Shown bool `json:"shown"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
