package api

import (
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"sort"
	"strings"

	"alertd/internal/eventbus"
	rtsup "alertd/internal/runtime/supervisor"
)

const pprofPrefix = "/v1/admin/debug/pprof/"

// AddSupervisor exposes a supervisor's snapshot on the runtime route.
func (s *Server) AddSupervisor(name string, fn func() *rtsup.Supervisor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sups == nil {
		s.sups = map[string]func() *rtsup.Supervisor{}
	}
	s.sups[name] = fn
}

func (s *Server) mountDebug(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/admin/runtime", s.withAdmin(s.runtimeInfo))
	if !s.cfg.Pprof {
		return
	}
	mux.HandleFunc(pprofPrefix, s.withAdmin(pprofIndex))
	mux.HandleFunc(pprofPrefix+"cmdline", s.withAdmin(hpprof.Cmdline))
	mux.HandleFunc(pprofPrefix+"profile", s.withAdmin(hpprof.Profile))
	mux.HandleFunc(pprofPrefix+"symbol", s.withAdmin(hpprof.Symbol))
	mux.HandleFunc(pprofPrefix+"trace", s.withAdmin(hpprof.Trace))
}

// pprof.Index assumes requests are rooted at /debug/pprof/.
func pprofIndex(w http.ResponseWriter, r *http.Request) {
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, pprofPrefix)
	hpprof.Index(w, r2)
}

type runtimeResponse struct {
	Goroutines  int                       `json:"goroutines"`
	HeapAlloc   uint64                    `json:"heap_alloc"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors"`
	Events      *eventStats               `json:"events,omitempty"`
}

type eventStats struct {
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
}

func (s *Server) runtimeInfo(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	out := runtimeResponse{
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   ms.HeapAlloc,
		Supervisors: map[string]rtsup.Snapshot{"api": s.Supervisor().Snapshot()},
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.sups))
	for name := range s.sups {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]func() *rtsup.Supervisor, 0, len(names))
	for _, name := range names {
		fns = append(fns, s.sups[name])
	}
	s.mu.Unlock()
	for i, fn := range fns {
		out.Supervisors[names[i]] = fn().Snapshot()
	}

	if m, ok := s.bus.(*eventbus.Mem); ok {
		out.Events = &eventStats{Subscribers: m.Subscribers(), Dropped: m.Dropped()}
	}
	writeJSON(w, http.StatusOK, out)
}
