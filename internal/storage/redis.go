package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

// maxTxRetries bounds optimistic-lock retries in Update. Every failed round
// means another writer committed, so it only needs to exceed the number of
// concurrent writers of one record.
const maxTxRetries = 128

// redisStore keeps one JSON value per record plus two sorted sets (all ids,
// ids per owner) scored by id, which gives insertion order for free.
//
// Keys (under prefix):
//   - seq                    INCR counter for ids
//   - rec:<id>               JSON record
//   - ids                    ZSET of every id
//   - owner:<realm>|<owner>  ZSET of an owner's ids
type redisStore struct {
	rdb    *redis.Client
	log    logx.Logger
	prefix string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	log.Debug("redis store opened", logx.String("addr", addr))
	return newRedisStore(rdb, cfg.Redis.Prefix, log), nil
}

func newRedisStore(rdb *redis.Client, prefix string, log logx.Logger) *redisStore {
	if prefix == "" {
		prefix = "alertd:"
	}
	return &redisStore{rdb: rdb, log: log, prefix: prefix}
}

func (s *redisStore) seqKey() string { return s.prefix + "seq" }
func (s *redisStore) idsKey() string { return s.prefix + "ids" }
func (s *redisStore) recKey(id int64) string { return s.prefix + "rec:" + strconv.FormatInt(id, 10) }
func (s *redisStore) ownerKey(o alert.Owner) string {
	return s.prefix + "owner:" + o.Realm + "|" + strconv.FormatInt(o.ID, 10)
}

func (s *redisStore) Close() error { return s.rdb.Close() }

func (s *redisStore) Insert(ctx context.Context, rec alert.Record) (int64, error) {
	id, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	b, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	member := &redis.Z{Score: float64(id), Member: id}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recKey(id), b, 0)
		p.ZAdd(ctx, s.idsKey(), member)
		p.ZAdd(ctx, s.ownerKey(rec.Owner), member)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *redisStore) Get(ctx context.Context, id int64) (alert.Record, bool, error) {
	b, err := s.rdb.Get(ctx, s.recKey(id)).Bytes()
	if err == redis.Nil {
		return alert.Record{}, false, nil
	}
	if err != nil {
		return alert.Record{}, false, err
	}
	var rec alert.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return alert.Record{}, false, err
	}
	return rec, true, nil
}

func (s *redisStore) List(ctx context.Context, owner *alert.Owner) ([]alert.Record, error) {
	key := s.idsKey()
	if owner != nil {
		key = s.ownerKey(*owner)
	}
	ids, err := s.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := []alert.Record{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.prefix+"rec:"+id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Removed between ZRANGE and MGET.
			continue
		}
		var rec alert.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *redisStore) Update(ctx context.Context, id int64, fn MutateFunc) (alert.Record, error) {
	key := s.recKey(id)
	var result alert.Record

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return alert.NotFound(id)
		}
		if err != nil {
			return err
		}
		var before alert.Record
		if err := json.Unmarshal(b, &before); err != nil {
			return err
		}
		rec := before
		m, err := fn(&rec)
		if err != nil {
			return err
		}
		rec.ID = id
		rec.Owner = before.Owner

		switch m {
		case Keep:
			result = rec
			return nil
		case Remove:
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, key)
				p.ZRem(ctx, s.idsKey(), id)
				p.ZRem(ctx, s.ownerKey(before.Owner), id)
				return nil
			})
			result = before
			return err
		default:
			nb, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, nb, 0)
				return nil
			})
			result = rec
			return err
		}
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return alert.Record{}, err
		}
		return result, nil
	}
	return alert.Record{}, redis.TxFailedErr
}

func (s *redisStore) Delete(ctx context.Context, id int64) error {
	_, err := s.Update(ctx, id, func(*alert.Record) (Mutation, error) { return Remove, nil })
	if errors.Is(err, alert.ErrNotFound) {
		return nil
	}
	return err
}
