package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	rtsup "alertd/internal/runtime/supervisor"
	logx "alertd/pkg/logx"
)

const defaultAddr = "127.0.0.1:8470"

type Server struct {
	cfg    Config
	log    logx.Logger
	eng    Engine
	bus    eventbus.Bus
	notes  notifier.Service
	limits *ownerLimits

	mu   sync.Mutex
	ln   net.Listener
	srv  *http.Server
	sup  *rtsup.Supervisor
	sups map[string]func() *rtsup.Supervisor
	done chan struct{} // closed on Stop; ends event streams
}

// New builds the server. bus and notes may be nil; the routes that need them
// then answer 501.
func New(cfg Config, eng Engine, bus eventbus.Bus, notes notifier.Service, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaultAddr
	}
	return &Server{
		cfg:    cfg,
		log:    log,
		eng:    eng,
		bus:    bus,
		notes:  notes,
		limits: newOwnerLimits(cfg.RatePerSec, cfg.Burst),
		done:   make(chan struct{}),
	}
}

func (s *Server) ctxDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Supervisor returns the server's supervisor (nil if not started).
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Addr returns the bound address once listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start listens and serves in the background, restarting the listener with
// backoff if it fails. It refuses a non-loopback address without an admin
// token unless AllowInsecure is set.
func (s *Server) Start(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if !s.cfg.AllowInsecure && s.cfg.AdminToken == "" && !isLoopbackAddr(addr) {
		return errors.New("api refused to start: non-loopback addr requires admin_token or allow_insecure")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	// Listen once synchronously so bind errors reach the caller.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.done = make(chan struct{})
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "api"))),
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithBackoff(500*time.Millisecond, 10*time.Second),
	)
	s.log.Info("api started", logx.String("addr", ln.Addr().String()), logx.Bool("admin_token_set", s.cfg.AdminToken != ""))
	return nil
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.ln = ln
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv = srv
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(cctx)
	})
	defer stop()

	err := srv.Serve(ln)

	s.mu.Lock()
	if s.ln == ln {
		s.ln = nil
	}
	if s.srv == srv {
		s.srv = nil
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("api server exited unexpectedly")
	}
	return err
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	if sup == nil {
		s.mu.Unlock()
		return
	}
	s.sup = nil
	close(s.done)
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("api stopped")
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
