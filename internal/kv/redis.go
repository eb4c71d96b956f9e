package kv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

const scanPageSize = 256

// Redis is a Store on a redis server. Values live in one hash keyed by the
// encoded key; a sorted set with equal scores keeps the keys in lexical order
// for range reads. Commits run in MULTI, guarded by WATCH when they carry
// checks.
type Redis struct {
	client *redis.Client
	values string
	keys   string
	seq    string
}

func NewRedis(client *redis.Client, namespace string) *Redis {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "kv"
	}
	return &Redis{
		client: client,
		values: namespace + ":values",
		keys:   namespace + ":keys",
		seq:    namespace + ":seq",
	}
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts *redis.Options, namespace string) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewRedis(client, namespace), nil
}

func (s *Redis) Get(ctx context.Context, key Key) (*Entry, error) {
	enc, err := key.Encode()
	if err != nil {
		return nil, err
	}
	raw, err := s.client.HGet(ctx, s.values, string(enc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	entry, err := newEntry(enc, raw)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Redis) List(ctx context.Context, prefix Key, opts ListOptions) (*ListResult, error) {
	start, end, err := prefixRange(prefix)
	if err != nil {
		return nil, err
	}

	bounds := &redis.ZRangeBy{
		Min: "[" + string(start),
		Max: "(" + string(end),
	}
	if opts.Cursor != "" {
		after, err := decodeCursor(opts.Cursor, start, end)
		if err != nil {
			return nil, err
		}
		if opts.Reverse {
			bounds.Max = "(" + string(after)
		} else {
			bounds.Min = "(" + string(after)
		}
	}
	if opts.Limit > 0 {
		bounds.Count = int64(opts.Limit) + 1
	}

	var members []string
	if opts.Reverse {
		members, err = s.client.ZRevRangeByLex(ctx, s.keys, bounds).Result()
	} else {
		members, err = s.client.ZRangeByLex(ctx, s.keys, bounds).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redis range: %w", err)
	}

	result := &ListResult{Entries: []Entry{}}
	more := opts.Limit > 0 && len(members) > opts.Limit
	if more {
		members = members[:opts.Limit]
	}
	entries, err := s.load(ctx, members)
	if err != nil {
		return nil, err
	}
	result.Entries = entries
	if more && len(members) > 0 {
		result.Cursor = encodeCursor([]byte(members[len(members)-1]))
	}
	return result, nil
}

func (s *Redis) Scan(ctx context.Context, prefix Key, fn func(Entry) error) error {
	start, end, err := prefixRange(prefix)
	if err != nil {
		return err
	}
	lower := "[" + string(start)
	for {
		members, err := s.client.ZRangeByLex(ctx, s.keys, &redis.ZRangeBy{
			Min:   lower,
			Max:   "(" + string(end),
			Count: scanPageSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("redis range: %w", err)
		}
		entries, err := s.load(ctx, members)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := fn(entry); err != nil {
				return err
			}
		}
		if len(members) < scanPageSize {
			return nil
		}
		lower = "(" + members[len(members)-1]
	}
}

// load fetches values for members, skipping any deleted since the range read.
func (s *Redis) load(ctx context.Context, members []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(members))
	if len(members) == 0 {
		return entries, nil
	}
	values, err := s.client.HMGet(ctx, s.values, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		entry, err := newEntry([]byte(members[i]), []byte(raw))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var errCheckFailed = errors.New("kv: check failed")

func (s *Redis) Commit(ctx context.Context, op *AtomicOperation) (CommitResult, error) {
	checks, mutations, err := op.encode()
	if err != nil {
		return CommitResult{}, err
	}

	var watched []string
	if len(checks) > 0 {
		watched = []string{s.values}
	}

	var stamp string
	txf := func(tx *redis.Tx) error {
		for _, c := range checks {
			raw, err := tx.HGet(ctx, s.values, string(c.key)).Bytes()
			current := ""
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			case len(raw) < stampLen:
				return fmt.Errorf("kv: stored value too short at %s", hex.EncodeToString(c.key))
			default:
				current, _, _ = unpackValue(raw)
			}
			if current != c.versionstamp {
				return errCheckFailed
			}
		}

		seq, err := tx.Incr(ctx, s.seq).Uint64()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range mutations {
				member := string(m.key)
				switch m.kind {
				case mutationSet:
					pipe.HSet(ctx, s.values, member, packValue(seq, m.value))
					pipe.ZAdd(ctx, s.keys, redis.Z{Score: 0, Member: member})
				case mutationDelete:
					pipe.HDel(ctx, s.values, member)
					pipe.ZRem(ctx, s.keys, member)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		stamp = formatVersionstamp(seq)
		return nil
	}

	err = s.client.Watch(ctx, txf, watched...)
	switch {
	case err == nil:
		return CommitResult{OK: true, Versionstamp: stamp}, nil
	case errors.Is(err, errCheckFailed), errors.Is(err, redis.TxFailedErr):
		return CommitResult{OK: false}, nil
	default:
		return CommitResult{}, fmt.Errorf("redis commit: %w", err)
	}
}

func (s *Redis) Close() error {
	return s.client.Close()
}

var _ Store = (*Redis)(nil)
