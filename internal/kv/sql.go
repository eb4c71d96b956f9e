package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const sequenceRowID = 1

type sqlEntry struct {
	Key   []byte `gorm:"column:entry_key;primaryKey"`
	Value []byte `gorm:"column:entry_value;not null"`
	Seq   int64  `gorm:"column:seq;not null"`
}

func (sqlEntry) TableName() string { return "kv_entries" }

type sqlSequence struct {
	ID  int   `gorm:"column:id;primaryKey;autoIncrement:false"`
	Seq int64 `gorm:"column:seq;not null"`
}

func (sqlSequence) TableName() string { return "kv_sequence" }

// SQL is a Store on a relational database through gorm. Keys are stored as
// binary primary keys, which sqlite and postgres both order bytewise. Every
// commit bumps the single kv_sequence row first, so concurrent commits
// serialise on that row lock and checks read a settled state.
type SQL struct {
	db *gorm.DB

	mu     sync.Mutex
	closed atomic.Bool
}

// SQLOptions tunes OpenSQLite and OpenPostgres.
type SQLOptions struct {
	Logger  gormlogger.Interface
	Tracing bool
}

// OpenSQLite opens (or creates) a sqlite database file.
func OpenSQLite(path string, opts SQLOptions) (*SQL, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection avoids SQLITE_BUSY between pooled writers
	sqlDB.SetMaxOpenConns(1)
	return NewSQL(db, opts)
}

// OpenPostgres connects with a libpq-style or URL dsn.
func OpenPostgres(dsn string, opts SQLOptions) (*SQL, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewSQL(db, opts)
}

func gormConfig(opts SQLOptions) *gorm.Config {
	log := opts.Logger
	if log == nil {
		log = gormlogger.Discard
	}
	return &gorm.Config{Logger: log, SkipDefaultTransaction: true}
}

// NewSQL migrates the kv tables on db and seeds the sequence row.
func NewSQL(db *gorm.DB, opts SQLOptions) (*SQL, error) {
	if opts.Tracing {
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithoutQueryVariables())); err != nil {
			return nil, fmt.Errorf("install gorm tracing: %w", err)
		}
	}
	if err := db.AutoMigrate(&sqlEntry{}, &sqlSequence{}); err != nil {
		return nil, fmt.Errorf("migrate kv tables: %w", err)
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sqlSequence{ID: sequenceRowID}).Error
	if err != nil {
		return nil, fmt.Errorf("seed kv sequence: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Get(ctx context.Context, key Key) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	enc, err := key.Encode()
	if err != nil {
		return nil, err
	}
	var rows []sqlEntry
	err = s.db.WithContext(ctx).
		Where("entry_key = ?", enc).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sql get: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	entry, err := rows[0].entry()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *SQL) List(ctx context.Context, prefix Key, opts ListOptions) (*ListResult, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	start, end, err := prefixRange(prefix)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&sqlEntry{}).
		Where("entry_key >= ? AND entry_key < ?", start, end)
	if opts.Cursor != "" {
		after, err := decodeCursor(opts.Cursor, start, end)
		if err != nil {
			return nil, err
		}
		if opts.Reverse {
			q = q.Where("entry_key < ?", after)
		} else {
			q = q.Where("entry_key > ?", after)
		}
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "entry_key"}, Desc: opts.Reverse})
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit + 1)
	}

	var rows []sqlEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sql range: %w", err)
	}

	more := opts.Limit > 0 && len(rows) > opts.Limit
	if more {
		rows = rows[:opts.Limit]
	}
	result := &ListResult{Entries: make([]Entry, 0, len(rows))}
	for _, row := range rows {
		entry, err := row.entry()
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, entry)
	}
	if more && len(rows) > 0 {
		result.Cursor = encodeCursor(rows[len(rows)-1].Key)
	}
	return result, nil
}

// Scan reads in pages and releases each page before calling fn, so fn may
// commit to the same store.
func (s *SQL) Scan(ctx context.Context, prefix Key, fn func(Entry) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	start, end, err := prefixRange(prefix)
	if err != nil {
		return err
	}

	lowerOp, lower := ">=", start
	for {
		var rows []sqlEntry
		err := s.db.WithContext(ctx).
			Where("entry_key "+lowerOp+" ? AND entry_key < ?", lower, end).
			Order("entry_key").
			Limit(scanPageSize).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("sql range: %w", err)
		}
		for _, row := range rows {
			entry, err := row.entry()
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		if len(rows) < scanPageSize {
			return nil
		}
		lowerOp, lower = ">", rows[len(rows)-1].Key
	}
}

func (s *SQL) Commit(ctx context.Context, op *AtomicOperation) (CommitResult, error) {
	checks, mutations, err := op.encode()
	if err != nil {
		return CommitResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return CommitResult{}, ErrClosed
	}

	var stamp string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sqlSequence{}).
			Where("id = ?", sequenceRowID).
			UpdateColumn("seq", gorm.Expr("seq + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errors.New("kv: sequence row missing")
		}
		var sequence sqlSequence
		if err := tx.Where("id = ?", sequenceRowID).Take(&sequence).Error; err != nil {
			return err
		}

		for _, c := range checks {
			current, err := versionstampOf(tx, c.key)
			if err != nil {
				return err
			}
			if current != c.versionstamp {
				return errCheckFailed
			}
		}

		for _, m := range mutations {
			var err error
			switch m.kind {
			case mutationSet:
				value := m.value
				if value == nil {
					value = []byte{}
				}
				err = tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "entry_key"}},
					DoUpdates: clause.AssignmentColumns([]string{"entry_value", "seq"}),
				}).Create(&sqlEntry{Key: m.key, Value: value, Seq: sequence.Seq}).Error
			case mutationDelete:
				err = tx.Where("entry_key = ?", m.key).Delete(&sqlEntry{}).Error
			}
			if err != nil {
				return err
			}
		}
		stamp = formatVersionstamp(uint64(sequence.Seq))
		return nil
	})
	switch {
	case err == nil:
		return CommitResult{OK: true, Versionstamp: stamp}, nil
	case errors.Is(err, errCheckFailed):
		return CommitResult{OK: false}, nil
	default:
		return CommitResult{}, fmt.Errorf("sql commit: %w", err)
	}
}

func versionstampOf(tx *gorm.DB, key []byte) (string, error) {
	q := tx.Select("seq").Where("entry_key = ?", key).Limit(1)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []sqlEntry
	if err := q.Find(&rows).Error; err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return formatVersionstamp(uint64(rows[0].Seq)), nil
}

func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r sqlEntry) entry() (Entry, error) {
	key, err := DecodeKey(r.Key)
	if err != nil {
		return Entry{}, err
	}
	value := make([]byte, len(r.Value))
	copy(value, r.Value)
	return Entry{Key: key, Value: value, Versionstamp: formatVersionstamp(uint64(r.Seq))}, nil
}

var _ Store = (*SQL)(nil)
