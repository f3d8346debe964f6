package localstore

import (
	"context"
	"sync"
)

// Memory is a Storage kept in process memory. Fail, when set, is returned
// by the operations it names ("get", "set", "delete").
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
	fail map[string]error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte), fail: make(map[string]error)}
}

// FailOn makes op return err until cleared with a nil err.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["get"]; err != nil {
		return nil, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["set"]; err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["delete"]; err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}
