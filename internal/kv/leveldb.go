package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// seqKey holds the last committed versionstamp. Encoded tuple keys never
// start with 0xFF, so it stays outside every listable range.
var seqKey = []byte{0xFF, 's', 'e', 'q'}

// LevelDB is a Store on goleveldb. Commits are serialised by a mutex so
// checks and writes observe a single order.
type LevelDB struct {
	db *leveldb.DB

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// OpenLevelDB opens (or creates) a store at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return NewLevelDB(db)
}

// OpenMemory returns a volatile store backed by in-memory leveldb storage.
func OpenMemory() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return NewLevelDB(db)
}

func NewLevelDB(db *leveldb.DB) (*LevelDB, error) {
	s := &LevelDB{db: db}
	raw, err := db.Get(seqKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("read sequence: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("corrupt sequence record (%d bytes)", len(raw))
	default:
		s.seq = binary.BigEndian.Uint64(raw)
	}
	return s, nil
}

func (s *LevelDB) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := key.Encode()
	if err != nil {
		return nil, err
	}
	raw, err := s.db.Get(enc, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap(err)
	}
	entry, err := newEntry(enc, raw)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *LevelDB) List(ctx context.Context, prefix Key, opts ListOptions) (*ListResult, error) {
	start, end, err := prefixRange(prefix)
	if err != nil {
		return nil, err
	}

	rng := &util.Range{Start: start, Limit: end}
	if opts.Cursor != "" {
		after, err := decodeCursor(opts.Cursor, start, end)
		if err != nil {
			return nil, err
		}
		if opts.Reverse {
			rng.Limit = after
		} else {
			rng.Start = successor(after)
		}
	}

	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	first, next := iter.First, iter.Next
	if opts.Reverse {
		first, next = iter.Last, iter.Prev
	}

	result := &ListResult{Entries: []Entry{}}
	var lastKey []byte
	for ok := first(); ok; ok = next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.Limit > 0 && len(result.Entries) == opts.Limit {
			result.Cursor = encodeCursor(lastKey)
			break
		}
		entry, err := newEntry(iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		lastKey = append(lastKey[:0], iter.Key()...)
		result.Entries = append(result.Entries, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, s.wrap(err)
	}
	return result, nil
}

func (s *LevelDB) Scan(ctx context.Context, prefix Key, fn func(Entry) error) error {
	start, end, err := prefixRange(prefix)
	if err != nil {
		return err
	}
	iter := s.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := newEntry(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return s.wrap(iter.Error())
}

func (s *LevelDB) Commit(ctx context.Context, op *AtomicOperation) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}
	checks, mutations, err := op.encode()
	if err != nil {
		return CommitResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CommitResult{}, ErrClosed
	}

	for _, c := range checks {
		current, err := s.versionstamp(c.key)
		if err != nil {
			return CommitResult{}, err
		}
		if current != c.versionstamp {
			return CommitResult{OK: false}, nil
		}
	}

	seq := s.seq + 1
	batch := new(leveldb.Batch)
	for _, m := range mutations {
		switch m.kind {
		case mutationSet:
			batch.Put(m.key, packValue(seq, m.value))
		case mutationDelete:
			batch.Delete(m.key)
		}
	}
	var seqRaw [8]byte
	binary.BigEndian.PutUint64(seqRaw[:], seq)
	batch.Put(seqKey, seqRaw[:])

	if err := s.db.Write(batch, nil); err != nil {
		return CommitResult{}, s.wrap(err)
	}
	s.seq = seq
	return CommitResult{OK: true, Versionstamp: formatVersionstamp(seq)}, nil
}

func (s *LevelDB) versionstamp(key []byte) (string, error) {
	raw, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", s.wrap(err)
	}
	if len(raw) < stampLen {
		return "", fmt.Errorf("kv: stored value too short at %x", key)
	}
	return formatVersionstamp(binary.BigEndian.Uint64(raw[:stampLen])), nil
}

func (s *LevelDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *LevelDB) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("leveldb: %w", err)
}

var _ Store = (*LevelDB)(nil)
