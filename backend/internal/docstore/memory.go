package docstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

type memCollection map[string]bson.Raw

// MemoryStore is an in-process Store used by tests and local runs without MongoDB.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]map[Collection]memCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]map[Collection]memCollection)}
}

func (s *MemoryStore) Get(_ context.Context, account string, c Collection, id string) (bson.Raw, error) {
	if err := ValidateAccount(account); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.accounts[account][c][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRaw(raw), nil
}

func (s *MemoryStore) Find(_ context.Context, account string, c Collection, filter bson.M) ([]bson.Raw, error) {
	if err := ValidateAccount(account); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.accounts[account][c]
	ids := make([]string, 0, len(col))
	for id := range col {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []bson.Raw
	for _, id := range ids {
		ok, err := matches(col[id], filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cloneRaw(col[id]))
		}
	}
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, account string, c Collection, id string, doc interface{}) error {
	return s.Commit(ctx, account, []Op{CreateOp(c, id, doc)})
}

func (s *MemoryStore) Set(ctx context.Context, account string, c Collection, id string, doc interface{}) error {
	return s.Commit(ctx, account, []Op{SetOp(c, id, doc)})
}

func (s *MemoryStore) Update(ctx context.Context, account string, c Collection, id string, fields bson.M) error {
	return s.Commit(ctx, account, []Op{UpdateOp(c, id, fields)})
}

func (s *MemoryStore) Delete(ctx context.Context, account string, c Collection, id string) error {
	return s.Commit(ctx, account, []Op{DeleteOp(c, id)})
}

// Commit applies ops to a copy of the account and swaps it in only if every op succeeds.
func (s *MemoryStore) Commit(_ context.Context, account string, ops []Op) error {
	if err := checkBatch(account, ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.accounts[account]
	next := make(map[Collection]memCollection, len(current))
	for c, col := range current {
		next[c] = col
	}
	copied := make(map[Collection]bool)

	for i, op := range ops {
		if !copied[op.Collection] {
			col := make(memCollection, len(next[op.Collection]))
			for id, raw := range next[op.Collection] {
				col[id] = raw
			}
			next[op.Collection] = col
			copied[op.Collection] = true
		}
		if err := applyMemory(next[op.Collection], op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}

	s.accounts[account] = next
	return nil
}

func applyMemory(col memCollection, op Op) error {
	switch op.Kind {
	case OpCreate, OpSet:
		if _, exists := col[op.ID]; exists && op.Kind == OpCreate {
			return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrAlreadyExists)
		}
		doc, err := toDocument(op.ID, op.Doc)
		if err != nil {
			return err
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", op.Collection, op.ID, err)
		}
		col[op.ID] = raw
	case OpUpdate:
		existing, ok := col[op.ID]
		if !ok {
			return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, ErrNotFound)
		}
		var doc bson.M
		if err := bson.Unmarshal(existing, &doc); err != nil {
			return fmt.Errorf("unmarshal %s/%s: %w", op.Collection, op.ID, err)
		}
		for k, v := range op.Fields {
			doc[k] = v
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", op.Collection, op.ID, err)
		}
		col[op.ID] = raw
	case OpDelete:
		delete(col, op.ID)
	default:
		return fmt.Errorf("unknown op kind %s", op.Kind)
	}
	return nil
}

// matches supports top-level equality filters only.
func matches(raw bson.Raw, filter bson.M) (bool, error) {
	for key, want := range filter {
		got, err := raw.LookupErr(key)
		if err != nil {
			return false, nil
		}
		typ, data, err := bson.MarshalValue(want)
		if err != nil {
			return false, fmt.Errorf("filter %q: %w", key, err)
		}
		if got.Type != typ || !bytes.Equal(got.Value, data) {
			return false, nil
		}
	}
	return true, nil
}

func cloneRaw(raw bson.Raw) bson.Raw {
	out := make(bson.Raw, len(raw))
	copy(out, raw)
	return out
}
