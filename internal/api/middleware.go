package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	ownerKey
)

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func ownerFrom(ctx context.Context) alert.Owner {
	o, _ := ctx.Value(ownerKey).(alert.Owner)
	return o
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

// withRequest assigns a request id, recovers panics and writes the access log.
func (s *Server) withRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("handler panic",
					logx.String("request_id", id),
					logx.Any("panic", p),
					logx.String("stack", string(debug.Stack())),
				)
				if rec.status == 0 {
					s.writeStatus(rec, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				}
			}
			s.log.Debug("http request",
				logx.String("request_id", id),
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", rec.status),
				logx.Int("bytes", rec.bytes),
				logx.Duration("took", time.Since(start)),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}

// withOwner resolves the owner headers and applies the per-owner rate limit.
func (s *Server) withOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		realm := strings.TrimSpace(r.Header.Get(HeaderRealm))
		rawID := strings.TrimSpace(r.Header.Get(HeaderOwner))
		id, err := strconv.ParseInt(rawID, 10, 64)
		if realm == "" || err != nil {
			s.writeStatus(w, r, http.StatusUnauthorized, "missing or malformed owner headers")
			return
		}
		owner := alert.Owner{Realm: realm, ID: id}
		if !s.limits.allow(owner) {
			w.Header().Set("Retry-After", "1")
			s.writeStatus(w, r, http.StatusTooManyRequests, "rate limited")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	}
}

// withAdmin accepts "Authorization: Bearer <token>" or "?token=<token>"
// when an admin token is configured.
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(s.cfg.AdminToken)
	if tok == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				next(w, r)
				return
			}
			s.unauthorized(w, r)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			next(w, r)
			return
		}
		s.unauthorized(w, r)
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	s.writeStatus(w, r, http.StatusUnauthorized, "unauthorized")
}

const (
	limiterIdle  = 10 * time.Minute
	limiterSweep = 1024
)

// ownerLimits holds one token bucket per owner. Idle buckets are swept once
// the map grows past limiterSweep entries.
type ownerLimits struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[alert.Owner]*ownerBucket
}

type ownerBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newOwnerLimits(perSec float64, burst int) *ownerLimits {
	if perSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(1, int(perSec))
	}
	return &ownerLimits{limit: rate.Limit(perSec), burst: burst, buckets: map[alert.Owner]*ownerBucket{}}
}

func (l *ownerLimits) allow(o alert.Owner) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[o]
	if b == nil {
		if len(l.buckets) >= limiterSweep {
			for k, v := range l.buckets {
				if now.Sub(v.seen) > limiterIdle {
					delete(l.buckets, k)
				}
			}
		}
		b = &ownerBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[o] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
