package store

import (
	"encoding/json"
	"sync"
)

// MemoryKV is an in-process implementation of KV used by tests so they do
// not need a Badger directory per test case. It satisfies the same atomic
// get/set-per-key contract as BadgerKV.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKV returns an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(slot string, out any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[slot]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryKV) Set(slot string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[slot] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Close() error { return nil }
