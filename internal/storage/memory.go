package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cartengine/internal/domain"
)

type memoryEntry struct {
	id         string
	items      []domain.CartItem
	conditions ConditionSet
	metadata   map[string]interface{}
	version    int64
	createdAt  time.Time
	updatedAt  time.Time
}

// Memory is the in-process backend: a mutex-guarded map keyed by
// identifier and instance. It tracks versions and timestamps, which makes
// it a faithful stand-in for the persistent backends in tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry)}
}

func memKey(identifier, instance string) string {
	return identifier + "\x00" + instance
}

// entryLocked returns the entry for the key, creating it when absent.
// Callers must hold the write lock.
func (m *Memory) entryLocked(identifier, instance string) *memoryEntry {
	key := memKey(identifier, instance)
	e, ok := m.entries[key]
	if !ok {
		now := time.Now().UTC()
		e = &memoryEntry{
			id:        uuid.NewString(),
			metadata:  make(map[string]interface{}),
			createdAt: now,
			updatedAt: now,
		}
		m.entries[key] = e
	}
	return e
}

func (m *Memory) Has(_ context.Context, identifier, instance string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[memKey(identifier, instance)]
	return ok, nil
}

func (m *Memory) GetItems(_ context.Context, identifier, instance string) ([]domain.CartItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return nil, nil
	}
	return cloneItems(e.items), nil
}

func (m *Memory) PutItems(_ context.Context, identifier, instance string, items []domain.CartItem, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(identifier, instance)
	if err := checkVersion(e.version, expected); err != nil {
		return 0, err
	}
	e.items = cloneItems(items)
	m.touchLocked(e)
	return e.version, nil
}

func (m *Memory) GetConditions(_ context.Context, identifier, instance string) (ConditionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return ConditionSet{}, nil
	}
	return e.conditions.Clone(), nil
}

func (m *Memory) PutConditions(_ context.Context, identifier, instance string, conditions ConditionSet, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(identifier, instance)
	if err := checkVersion(e.version, expected); err != nil {
		return 0, err
	}
	e.conditions = conditions.Clone()
	m.touchLocked(e)
	return e.version, nil
}

func (m *Memory) PutBoth(_ context.Context, identifier, instance string, items []domain.CartItem, conditions ConditionSet, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(identifier, instance)
	if err := checkVersion(e.version, expected); err != nil {
		return 0, err
	}
	e.items = cloneItems(items)
	e.conditions = conditions.Clone()
	m.touchLocked(e)
	return e.version, nil
}

func (m *Memory) GetMetadata(_ context.Context, identifier, instance, key string) (interface{}, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return nil, false, nil
	}
	v, ok := e.metadata[key]
	return v, ok, nil
}

func (m *Memory) PutMetadata(_ context.Context, identifier, instance, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(identifier, instance)
	e.metadata[key] = value
	m.touchLocked(e)
	return nil
}

func (m *Memory) PutMetadataBatch(_ context.Context, identifier, instance string, values map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(identifier, instance)
	for k, v := range values {
		e.metadata[k] = v
	}
	m.touchLocked(e)
	return nil
}

func (m *Memory) DeleteMetadata(_ context.Context, identifier, instance, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return nil
	}
	delete(e.metadata, key)
	m.touchLocked(e)
	return nil
}

func (m *Memory) GetAllMetadata(_ context.Context, identifier, instance string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return map[string]interface{}{}, nil
	}
	out := make(map[string]interface{}, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) ClearMetadata(_ context.Context, identifier, instance string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return nil
	}
	e.metadata = make(map[string]interface{})
	m.touchLocked(e)
	return nil
}

func (m *Memory) Forget(_ context.Context, identifier, instance string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memKey(identifier, instance))
	return nil
}

func (m *Memory) ForgetIdentifier(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := identifier + "\x00"
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *Memory) Instances(_ context.Context, identifier string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := identifier + "\x00"
	var out []string
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, strings.TrimPrefix(key, prefix))
		}
	}
	return out, nil
}

func (m *Memory) Version(_ context.Context, identifier, instance string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return 0, true, nil
	}
	return e.version, true, nil
}

func (m *Memory) ID(_ context.Context, identifier, instance string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryLocked(identifier, instance).id, nil
}

func (m *Memory) SwapIdentifier(_ context.Context, oldIdentifier, newIdentifier, instance string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldKey := memKey(oldIdentifier, instance)
	e, ok := m.entries[oldKey]
	if !ok {
		return false, nil
	}
	delete(m.entries, oldKey)
	m.entries[memKey(newIdentifier, instance)] = e
	m.touchLocked(e)
	return true, nil
}

func (m *Memory) CreatedAt(_ context.Context, identifier, instance string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return nil, nil
	}
	t := e.createdAt
	return &t, nil
}

func (m *Memory) UpdatedAt(_ context.Context, identifier, instance string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[memKey(identifier, instance)]
	if !ok {
		return nil, nil
	}
	t := e.updatedAt
	return &t, nil
}

func (m *Memory) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	return nil
}

func (m *Memory) touchLocked(e *memoryEntry) {
	e.version++
	e.updatedAt = time.Now().UTC()
}

func checkVersion(current, expected int64) error {
	if expected == VersionAny || current == expected {
		return nil
	}
	return &domain.ConflictError{AttemptedVersion: expected, CurrentVersion: current}
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return nil
	}
	out := make([]domain.CartItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
