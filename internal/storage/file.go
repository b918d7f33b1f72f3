package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every CompactEvery writes and on
// Maintain. All state is held in memory; a single mutex makes every Update
// atomic.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	records map[int64]alert.Record
	nextID  int64

	writes       int
	compactEvery int
}

type fileSnapshot struct {
	NextID  int64          `json:"next_id"`
	Records []alert.Record `json:"records"`
}

type journalEntry struct {
	Op  string        `json:"op"` // "put" | "del"
	ID  int64         `json:"id"`
	Rec *alert.Record `json:"rec,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		records:      map[int64]alert.Record{},
		nextID:       1,
		compactEvery: cfg.CompactEvery,
	}
	if s.compactEvery <= 0 {
		s.compactEvery = 500
	}

	if err := s.loadSnapshot(snapPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := s.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("records", len(s.records)))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Insert(ctx context.Context, rec alert.Record) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	rec.ID = s.nextID
	if err := s.appendLocked(journalEntry{Op: "put", ID: rec.ID, Rec: &rec}); err != nil {
		return 0, err
	}
	s.nextID++
	s.records[rec.ID] = rec
	return rec.ID, nil
}

func (s *fileStore) Get(ctx context.Context, id int64) (alert.Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return alert.Record{}, false, ErrClosed
	}
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *fileStore) List(ctx context.Context, owner *alert.Owner) ([]alert.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	out := make([]alert.Record, 0, len(s.records))
	for _, rec := range s.records {
		if owner != nil && !rec.Owner.Matches(*owner) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) Update(ctx context.Context, id int64, fn MutateFunc) (alert.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return alert.Record{}, ErrClosed
	}
	before, ok := s.records[id]
	if !ok {
		return alert.Record{}, alert.NotFound(id)
	}
	rec := before
	m, err := fn(&rec)
	if err != nil {
		return alert.Record{}, err
	}
	rec.ID = id
	rec.Owner = before.Owner

	switch m {
	case Keep:
		return rec, nil
	case Remove:
		if err := s.appendLocked(journalEntry{Op: "del", ID: id}); err != nil {
			return alert.Record{}, err
		}
		delete(s.records, id)
		return before, nil
	default:
		if err := s.appendLocked(journalEntry{Op: "put", ID: id, Rec: &rec}); err != nil {
			return alert.Record{}, err
		}
		s.records[id] = rec
		return rec, nil
	}
}

func (s *fileStore) Delete(ctx context.Context, id int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if _, ok := s.records[id]; !ok {
		return nil
	}
	if err := s.appendLocked(journalEntry{Op: "del", ID: id}); err != nil {
		return err
	}
	delete(s.records, id)
	return nil
}

// Maintain compacts the journal into the snapshot.
func (s *fileStore) Maintain(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return s.compactLocked()
}

func (s *fileStore) appendLocked(e journalEntry) error {
	if err := json.NewEncoder(s.journal).Encode(e); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		// Best-effort compact; the journal stays authoritative on failure.
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := fileSnapshot{NextID: s.nextID, Records: make([]alert.Record, 0, len(s.records))}
	for _, rec := range s.records {
		snap.Records = append(snap.Records, rec)
	}
	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].ID < snap.Records[j].ID })

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, rec := range snap.Records {
		s.records[rec.ID] = rec
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
	}
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn last line after a crash is expected; skip it.
			continue
		}
		if e.ID <= 0 {
			continue
		}
		switch e.Op {
		case "put":
			if e.Rec == nil {
				continue
			}
			rec := *e.Rec
			rec.ID = e.ID
			s.records[e.ID] = rec
		case "del":
			delete(s.records, e.ID)
		}
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}
	return sc.Err()
}
