package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hedge_go/internal/domain"
)

// Memory is an in-process store with the same semantics as Storage.
// It backs dry runs and tests.
type Memory struct {
	mu        sync.RWMutex
	positions map[string]map[string]domain.Position
	events    []domain.HedgeEvent
	settings  map[string]string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		positions: make(map[string]map[string]domain.Position),
		settings:  make(map[string]string),
	}
}

func (m *Memory) GetPosition(_ context.Context, account, symbol string) (*domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[account][symbol]
	if !ok {
		return nil, nil
	}
	cp := clonePosition(p)
	return &cp, nil
}

func (m *Memory) UpsertPosition(_ context.Context, account string, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.positions[account] == nil {
		m.positions[account] = make(map[string]domain.Position)
	}
	m.positions[account][p.Symbol] = clonePosition(p)
	return nil
}

func (m *Memory) ListPositions(_ context.Context, account string) (map[string]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]domain.Position, len(m.positions[account]))
	for sym, p := range m.positions[account] {
		result[sym] = clonePosition(p)
	}
	return result, nil
}

// UpdatePosition holds the write lock for the whole read-modify-write.
func (m *Memory) UpdatePosition(_ context.Context, account, symbol string, fn func(*domain.Position) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[account][symbol]
	if !ok {
		return fmt.Errorf("%s/%s: %w", account, symbol, domain.ErrPositionNotFound)
	}
	work := clonePosition(p)
	if err := fn(&work); err != nil {
		return err
	}
	m.positions[account][symbol] = work
	return nil
}

func (m *Memory) AppendEvent(_ context.Context, ev domain.HedgeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// History returns the newest events for a pair, newest first. Events with
// the same timestamp come back in reverse insertion order.
func (m *Memory) History(_ context.Context, account, symbol string, limit int) ([]domain.HedgeEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.HedgeEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if ev := m.events[i]; ev.Account == account && ev.Symbol == symbol {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *Memory) LoadSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		result[k] = v
	}
	return result, nil
}

func clonePosition(p domain.Position) domain.Position {
	if p.Option != nil {
		opt := *p.Option
		p.Option = &opt
	}
	if p.Legs != nil {
		legs := make(map[string]domain.Position, len(p.Legs))
		for k, v := range p.Legs {
			legs[k] = clonePosition(v)
		}
		p.Legs = legs
	}
	return p
}
