package notifier

import (
	"context"
	"sync"
	"time"
)

// handlerSet fans events out to registered handlers.
type handlerSet struct {
	mu sync.RWMutex
	hs []EventHandler
}

func (s *handlerSet) add(h EventHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.hs = append(s.hs, h)
	s.mu.Unlock()
}

func (s *handlerSet) emit(ctx context.Context, kind EventKind, id string) {
	ev := Event{Kind: kind, NotificationID: id, At: time.Now()}
	s.mu.RLock()
	hs := append([]EventHandler(nil), s.hs...)
	s.mu.RUnlock()
	for _, h := range hs {
		h(ctx, ev)
	}
}
