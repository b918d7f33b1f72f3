package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

// dialect captures the differences between the SQL drivers.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of "?"
	numbered bool
	// lock clause appended to the SELECT inside Update
	forUpdate string
}

// sqlStore implements Store on database/sql. Queries are written with "?"
// placeholders and rebound per dialect.
type sqlStore struct {
	db  *sql.DB
	log logx.Logger
	d   dialect
}

const selectColumns = `SELECT id, realm, owner_id, payload, triggered, handled, has_notification, pending_delete FROM alerts`

func (s *sqlStore) q(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Insert(ctx context.Context, rec alert.Record) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()
	var id int64
	err = s.db.QueryRowContext(ctx, s.q(
		`INSERT INTO alerts(realm, owner_id, due_at, payload, triggered, handled, has_notification, pending_delete, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?) RETURNING id`),
		rec.Owner.Realm, rec.Owner.ID, rec.Payload.DueAt, string(payload),
		rec.Triggered, rec.Handled, rec.HasNotification, rec.PendingDelete, now, now,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqlStore) Get(ctx context.Context, id int64) (alert.Record, bool, error) {
	if s == nil || s.db == nil {
		return alert.Record{}, false, ErrClosed
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.q(selectColumns+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Record{}, false, nil
	}
	if err != nil {
		return alert.Record{}, false, err
	}
	return rec, true, nil
}

func (s *sqlStore) List(ctx context.Context, owner *alert.Owner) ([]alert.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var (
		rows *sql.Rows
		err  error
	)
	if owner == nil {
		rows, err = s.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q(selectColumns+` WHERE realm = ? AND owner_id = ? ORDER BY id`), owner.Realm, owner.ID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []alert.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) Update(ctx context.Context, id int64, fn MutateFunc) (alert.Record, error) {
	if s == nil || s.db == nil {
		return alert.Record{}, ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return alert.Record{}, err
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, s.q(selectColumns+` WHERE id = ?`+s.d.forUpdate), id))
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Record{}, alert.NotFound(id)
	}
	if err != nil {
		return alert.Record{}, err
	}

	before := rec
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
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM alerts WHERE id = ?`), id); err != nil {
			return alert.Record{}, err
		}
		if err := tx.Commit(); err != nil {
			return alert.Record{}, err
		}
		return before, nil
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return alert.Record{}, err
	}
	_, err = tx.ExecContext(ctx, s.q(
		`UPDATE alerts SET due_at = ?, payload = ?, triggered = ?, handled = ?, has_notification = ?, pending_delete = ?, updated_at = ?
		 WHERE id = ?`),
		rec.Payload.DueAt, string(payload), rec.Triggered, rec.Handled, rec.HasNotification, rec.PendingDelete,
		time.Now().UnixMilli(), id,
	)
	if err != nil {
		return alert.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return alert.Record{}, err
	}
	return rec, nil
}

func (s *sqlStore) Delete(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM alerts WHERE id = ?`), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (alert.Record, error) {
	var (
		rec     alert.Record
		payload string
	)
	err := row.Scan(&rec.ID, &rec.Owner.Realm, &rec.Owner.ID, &payload,
		&rec.Triggered, &rec.Handled, &rec.HasNotification, &rec.PendingDelete)
	if err != nil {
		return alert.Record{}, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return alert.Record{}, err
	}
	return rec, nil
}
