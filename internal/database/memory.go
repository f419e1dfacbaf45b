package database

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"momento/entity"
)

// Memory is an in-process store with the same semantics as MongoDB. It backs
// the local environment and tests; data does not survive a restart.
type Memory struct {
	mu    sync.RWMutex
	codes map[entity.Kind]map[string]*entity.AccessCode
	usage map[entity.Kind][]*entity.UsageRecord
	users map[string]*entity.User
}

func NewMemory() *Memory {
	return &Memory{
		codes: map[entity.Kind]map[string]*entity.AccessCode{
			entity.KindBeta:  {},
			entity.KindEvent: {},
		},
		usage: map[entity.Kind][]*entity.UsageRecord{},
		users: map[string]*entity.User{},
	}
}

func (m *Memory) GetUser(_ context.Context, token string) (*entity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *Memory) SaveUser(_ context.Context, user *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.Token] = &cp
	return nil
}

func (m *Memory) GetCode(_ context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.codes[kind][code]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

func (m *Memory) ListCodes(_ context.Context, kind entity.Kind) ([]*entity.AccessCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*entity.AccessCode, 0, len(m.codes[kind]))
	for _, record := range m.codes[kind] {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (m *Memory) CreateCode(_ context.Context, record *entity.AccessCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes, ok := m.codes[record.Kind]
	if !ok {
		codes = map[string]*entity.AccessCode{}
		m.codes[record.Kind] = codes
	}
	if _, exists := codes[record.Code]; exists {
		return ErrDuplicate
	}
	codes[record.Code] = record.Clone()
	return nil
}

func (m *Memory) DeleteCode(_ context.Context, kind entity.Kind, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[kind][code]; !ok {
		return ErrNotFound
	}
	delete(m.codes[kind], code)
	return nil
}

func (m *Memory) SetCodeActive(_ context.Context, kind entity.Kind, code string, active bool) (*entity.AccessCode, error) {
	return m.update(kind, code, func(r *entity.AccessCode) bool {
		r.IsActive = active
		return true
	})
}

func (m *Memory) ResetUsage(_ context.Context, kind entity.Kind, code string) (*entity.AccessCode, error) {
	return m.update(kind, code, func(r *entity.AccessCode) bool {
		r.CurrentUses = 0
		r.CurrentFiles = 0
		return true
	})
}

func (m *Memory) IncrementUsage(_ context.Context, kind entity.Kind, code string, uses, files int, at time.Time) (*entity.AccessCode, error) {
	return m.update(kind, code, func(r *entity.AccessCode) bool {
		r.CurrentUses += uses
		r.CurrentFiles += files
		r.LastUsedAt = &at
		return true
	})
}

func (m *Memory) IncrementUsageBelow(_ context.Context, kind entity.Kind, code string, at time.Time) (*entity.AccessCode, error) {
	record, err := m.update(kind, code, func(r *entity.AccessCode) bool {
		if !r.IsActive || r.UsesExhausted() {
			return false
		}
		r.CurrentUses++
		r.LastUsedAt = &at
		return true
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConditionFailed
	}
	return record, err
}

// update applies fn under the write lock; fn returns false to leave the
// record untouched and report ErrConditionFailed.
func (m *Memory) update(kind entity.Kind, code string, fn func(*entity.AccessCode) bool) (*entity.AccessCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.codes[kind][code]
	if !ok {
		return nil, ErrNotFound
	}
	if !fn(record) {
		return nil, ErrConditionFailed
	}
	return record.Clone(), nil
}

func (m *Memory) AddUsage(_ context.Context, record *entity.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.usage[record.Kind] = append(m.usage[record.Kind], &cp)
	return nil
}

func (m *Memory) ListUsage(_ context.Context, kind entity.Kind, code string, limit int) ([]*entity.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*entity.UsageRecord, 0)
	for _, r := range m.usage[kind] {
		if r.Code == code {
			cp := *r
			records = append(records, &cp)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].UsedAt.Equal(records[j].UsedAt) {
			return records[i].Id > records[j].Id
		}
		return records[i].UsedAt.After(records[j].UsedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
