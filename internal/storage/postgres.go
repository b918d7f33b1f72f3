package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	logx "alertd/pkg/logx"

	_ "github.com/lib/pq"
)

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(context.Background(), db, "migrations_postgres.sql"); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("postgres store opened")
	return newPostgresStore(db, log), nil
}

// newPostgresStore wraps an open connection pool. The schema must exist.
func newPostgresStore(db *sql.DB, log logx.Logger) *sqlStore {
	return &sqlStore{db: db, log: log, d: dialect{name: "postgres", numbered: true, forUpdate: " FOR UPDATE"}}
}
