package timer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	logx "alertd/pkg/logx"
)

// Arm schedules a one-shot wake-up for name at the absolute time at,
// replacing any timer already armed under that name. A time in the past
// fires immediately.
func (s *Service) Arm(ctx context.Context, name string, at time.Time) error {
	_ = ctx
	if strings.TrimSpace(name) == "" {
		return errors.New("timer name required")
	}
	if at.IsZero() {
		return errors.New("timer time required")
	}
	loc := s.location()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if t, ok := s.timers[name]; ok {
		_ = t.t.Stop()
		delete(s.timers, name)
	}
	s.seq++
	ver := s.seq

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers[name] = &oneShot{
		t:   time.AfterFunc(delay, func() { s.fire(name, ver) }),
		at:  at,
		ver: ver,
	}
	s.log.Debug("timer armed", logx.String("name", name), logx.Time("at", at.In(loc)), logx.Duration("in", delay))
	return nil
}

// Cancel disarms name. If the timer's handler is already running, Cancel
// waits for it to return (or for ctx to end). Cancelling an unknown name is
// a no-op.
func (s *Service) Cancel(ctx context.Context, name string) error {
	s.tmu.Lock()
	removed := false
	if t, ok := s.timers[name]; ok {
		_ = t.t.Stop()
		delete(s.timers, name)
		removed = true
	}
	wait := s.inflight[name]
	s.tmu.Unlock()

	if removed {
		s.log.Debug("timer cancelled", logx.String("name", name))
	}
	if wait == nil {
		return nil
	}
	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending lists armed timers ordered by fire time.
func (s *Service) Pending() []Entry {
	s.tmu.Lock()
	out := make([]Entry, 0, len(s.timers))
	for name, t := range s.timers {
		out = append(out, Entry{Name: name, At: t.at})
	}
	s.tmu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Name < out[j].Name
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Armed reports whether name is currently armed.
func (s *Service) Armed(name string) bool {
	s.tmu.Lock()
	_, ok := s.timers[name]
	s.tmu.Unlock()
	return ok
}

func (s *Service) fire(name string, ver uint64) {
	s.tmu.Lock()
	cur, ok := s.timers[name]
	if !ok || cur.ver != ver || s.stopped {
		s.tmu.Unlock()
		return
	}
	delete(s.timers, name)
	h := s.handler
	done := make(chan struct{})
	s.inflight[name] = done
	s.tmu.Unlock()

	defer func() {
		s.tmu.Lock()
		if s.inflight[name] == done {
			delete(s.inflight, name)
		}
		s.tmu.Unlock()
		close(done)
		if r := recover(); r != nil {
			s.log.Error("timer handler panic", logx.String("name", name), logx.Any("panic", r))
		}
	}()

	if h == nil {
		s.log.Warn("timer fired without handler", logx.String("name", name))
		return
	}
	s.log.Debug("timer fired", logx.String("name", name))
	h(s.baseCtx, name)
}

func (s *Service) location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		return time.Local
	}
	return s.loc
}
