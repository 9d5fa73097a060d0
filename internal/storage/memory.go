package storage

import (
	"sync"

	"github.com/yves-gaignard/poolmanager/internal/calendar"
	"github.com/yves-gaignard/poolmanager/internal/logic"
	"github.com/yves-gaignard/poolmanager/internal/pump"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a volatile Store, used when the database is disabled.
type MemoryStore struct {
	mu        sync.RWMutex
	values    map[string]string
	events    []logic.Event
	maxEvents int
}

// NewMemoryStore creates a store keeping at most maxEvents events.
func NewMemoryStore(maxEvents int) *MemoryStore {
	return &MemoryStore{
		values:    make(map[string]string),
		maxEvents: maxEvents,
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) SetValue(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetValue(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) SavePump(state pump.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range pumpValues(state) {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStore) LoadPump(name string) (Saved, bool, error) {
	return loadPump(name, m.GetValue)
}

func (m *MemoryStore) Checkpoint(day calendar.Date) error {
	return m.SetValue(keyDay, dayFormat.Text(day))
}

func (m *MemoryStore) LastDay() (calendar.Date, bool, error) {
	return lastDay(m.GetValue)
}

func (m *MemoryStore) InsertEvent(event logic.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxEvents > 0 && len(m.events) >= m.maxEvents {
		m.events = m.events[1:] // drop oldest
	}
	m.events = append(m.events, event)
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (m *MemoryStore) RecentEvents(limit int) ([]logic.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.events)
	if limit < n {
		n = limit
	}
	out := make([]logic.Event, 0, n)
	for i := len(m.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}
