package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smallbiznis/invites/internal/invite/domain"
	"github.com/smallbiznis/invites/internal/kv"
)

const (
	primaryPrefix = "invites"
	indexPrefix   = "invites_by_createdAt"
)

func primaryKey(code string) kv.Key {
	return kv.Key{primaryPrefix, code}
}

func indexKey(createdAt int64, code string) kv.Key {
	return kv.Key{indexPrefix, createdAt, code}
}

// InvitesKv stores each invite twice: under ["invites", code] and under
// ["invites_by_createdAt", createdAt, code]. Both copies are written and
// removed in the same atomic operation.
type InvitesKv struct {
	store kv.Store
}

func New(store kv.Store) *InvitesKv {
	return &InvitesKv{store: store}
}

func Provide(store kv.Store) domain.Repository {
	return New(store)
}

// Add writes invite under both keys. A previous record for the same code is
// replaced and its index entry removed in the same commit.
func (r *InvitesKv) Add(ctx context.Context, invite domain.Invite) error {
	if err := domain.Validate(invite); err != nil {
		return err
	}
	value, err := json.Marshal(invite)
	if err != nil {
		return fmt.Errorf("encode invite: %w", err)
	}

	current, err := r.store.Get(ctx, primaryKey(invite.Code))
	if err != nil {
		return fmt.Errorf("get invite: %w", err)
	}
	op := kv.NewAtomic()
	if current == nil {
		op.Check(kv.Check{Key: primaryKey(invite.Code)})
	} else {
		previous, err := decode(current.Value)
		if err != nil {
			return err
		}
		op.Check(kv.Check{Key: primaryKey(invite.Code), Versionstamp: current.Versionstamp})
		if previous.CreatedAt != invite.CreatedAt {
			op.Delete(indexKey(previous.CreatedAt, invite.Code))
		}
	}
	op.Set(primaryKey(invite.Code), value).
		Set(indexKey(invite.CreatedAt, invite.Code), value)

	res, err := r.store.Commit(ctx, op)
	if err != nil {
		return fmt.Errorf("add invite: %w", err)
	}
	if !res.OK {
		return domain.ErrCommitFailed
	}
	return nil
}

func (r *InvitesKv) Get(ctx context.Context, code string) (*domain.Invite, error) {
	entry, err := r.store.Get(ctx, primaryKey(code))
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	return decode(entry.Value)
}

func (r *InvitesKv) Delete(ctx context.Context, code string) error {
	op, err := r.deleteOp(ctx, kv.NewAtomic(), code)
	if err != nil {
		return err
	}
	if op.Empty() {
		return nil
	}
	res, err := r.store.Commit(ctx, op)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	if !res.OK {
		return domain.ErrCommitFailed
	}
	return nil
}

func (r *InvitesKv) DeleteMany(ctx context.Context, codes []string) error {
	op := kv.NewAtomic()
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}

		var err error
		if op, err = r.deleteOp(ctx, op, code); err != nil {
			return err
		}
	}
	if op.Empty() {
		return nil
	}
	res, err := r.store.Commit(ctx, op)
	if err != nil {
		return fmt.Errorf("delete invites: %w", err)
	}
	if !res.OK {
		return domain.ErrBulkDeleteFailed
	}
	return nil
}

// deleteOp appends the removal of code's primary and index keys to op,
// guarded by the primary's current versionstamp.
func (r *InvitesKv) deleteOp(ctx context.Context, op *kv.AtomicOperation, code string) (*kv.AtomicOperation, error) {
	entry, err := r.store.Get(ctx, primaryKey(code))
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	if entry == nil {
		return op, nil
	}
	invite, err := decode(entry.Value)
	if err != nil {
		return nil, err
	}
	return op.
		Check(kv.Check{Key: primaryKey(code), Versionstamp: entry.Versionstamp}).
		Delete(primaryKey(code)).
		Delete(indexKey(invite.CreatedAt, code)), nil
}

func (r *InvitesKv) DeleteAll(ctx context.Context) error {
	op := kv.NewAtomic()
	for _, prefix := range []string{primaryPrefix, indexPrefix} {
		err := r.store.Scan(ctx, kv.Key{prefix}, func(e kv.Entry) error {
			op.Delete(e.Key)
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", prefix, err)
		}
	}
	if op.Empty() {
		return nil
	}
	res, err := r.store.Commit(ctx, op)
	if err != nil {
		return fmt.Errorf("delete all invites: %w", err)
	}
	if !res.OK {
		return domain.ErrDeleteAllFailed
	}
	return nil
}

func (r *InvitesKv) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}
	page, err := r.store.List(ctx, kv.Key{indexPrefix}, kv.ListOptions{
		Limit:   limit,
		Reverse: req.Reverse,
		Cursor:  req.Cursor,
	})
	if errors.Is(err, kv.ErrInvalidCursor) {
		return nil, domain.ErrInvalidCursor
	}
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}

	resp := &domain.ListResponse{
		Items:  make([]domain.Invite, 0, len(page.Entries)),
		Cursor: page.Cursor,
	}
	for _, entry := range page.Entries {
		invite, err := decode(entry.Value)
		if err != nil {
			return nil, err
		}
		resp.Items = append(resp.Items, *invite)
	}
	return resp, nil
}

// Reindex rewrites the index entry of every stored invite, then drops index
// entries whose primary record is gone or carries another createdAt. The
// returned count is the number of invites reindexed.
func (r *InvitesKv) Reindex(ctx context.Context) (int, error) {
	count := 0
	live := make(map[string]kv.Entry)
	err := r.store.Scan(ctx, kv.Key{primaryPrefix}, func(e kv.Entry) error {
		invite, err := decode(e.Value)
		if err != nil {
			return err
		}
		res, err := kv.Set(ctx, r.store, indexKey(invite.CreatedAt, invite.Code), e.Value)
		if err != nil {
			return err
		}
		if !res.OK {
			return domain.ErrCommitFailed
		}
		live[invite.Code] = e
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("reindex invites: %w", err)
	}

	var stale []kv.Key
	err = r.store.Scan(ctx, kv.Key{indexPrefix}, func(e kv.Entry) error {
		createdAt, code, ok := indexParts(e.Key)
		if !ok {
			stale = append(stale, e.Key)
			return nil
		}
		primary, found := live[code]
		if found {
			invite, err := decode(primary.Value)
			if err != nil {
				return err
			}
			if invite.CreatedAt == createdAt {
				return nil
			}
		}
		stale = append(stale, e.Key)
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("scan invite index: %w", err)
	}

	for _, key := range stale {
		op := kv.NewAtomic().Delete(key)
		if _, code, ok := indexParts(key); ok {
			// a concurrent Add of the same code wins over the prune
			op.Check(kv.Check{Key: primaryKey(code), Versionstamp: live[code].Versionstamp})
		}
		res, err := r.store.Commit(ctx, op)
		if err != nil {
			return count, fmt.Errorf("prune invite index: %w", err)
		}
		if !res.OK {
			return count, fmt.Errorf("prune invite index: %w", domain.ErrCommitFailed)
		}
	}
	return count, nil
}

func (r *InvitesKv) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats := &domain.IndexStats{}
	primaries := make(map[string]int64)
	err := r.store.Scan(ctx, kv.Key{primaryPrefix}, func(e kv.Entry) error {
		invite, err := decode(e.Value)
		if err != nil {
			return err
		}
		primaries[invite.Code] = invite.CreatedAt
		stats.Primary++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan invites: %w", err)
	}

	indexed := make(map[string]struct{}, len(primaries))
	err = r.store.Scan(ctx, kv.Key{indexPrefix}, func(e kv.Entry) error {
		stats.Index++
		createdAt, code, ok := indexParts(e.Key)
		if !ok {
			stats.Orphaned++
			return nil
		}
		if at, found := primaries[code]; found && at == createdAt {
			indexed[code] = struct{}{}
			return nil
		}
		stats.Orphaned++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan invite index: %w", err)
	}
	stats.Missing = stats.Primary - len(indexed)
	return stats, nil
}

func indexParts(key kv.Key) (int64, string, bool) {
	if len(key) != 3 {
		return 0, "", false
	}
	createdAt, ok := key[1].(int64)
	if !ok {
		return 0, "", false
	}
	code, ok := key[2].(string)
	return createdAt, code, ok
}

func decode(value []byte) (*domain.Invite, error) {
	var invite domain.Invite
	if err := json.Unmarshal(value, &invite); err != nil {
		return nil, fmt.Errorf("decode invite: %w", err)
	}
	return &invite, nil
}

var _ domain.Repository = (*InvitesKv)(nil)
