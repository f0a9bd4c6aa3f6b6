package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"hedge_go/internal/domain"
)

// Key identifies a monitored pair.
type Key struct {
	Account string
	Symbol  string
}

func (k Key) String() string { return k.Account + "/" + k.Symbol }

// MonitorCounter tracks how many monitors are running. *infra.Metrics implements it.
type MonitorCounter interface {
	IncrementMonitors()
	DecrementMonitors()
}

type task struct {
	monitor  *Monitor
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

// Registry owns the running monitors. At most one monitor runs per pair.
type Registry struct {
	mu      sync.Mutex
	tasks   map[Key]*task
	counter MonitorCounter
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. counter may be nil.
func NewRegistry(counter MonitorCounter) *Registry {
	return &Registry{
		tasks:   make(map[Key]*task),
		counter: counter,
		logger:  slog.Default().With("module", "registry"),
	}
}

// Start runs m in its own goroutine under a child of ctx.
// It fails with domain.ErrMonitorExists if the pair is already monitored,
// including while a previous monitor for the pair is still stopping.
func (r *Registry) Start(ctx context.Context, m *Monitor) error {
	key := Key{Account: m.Account(), Symbol: m.Symbol()}

	r.mu.Lock()
	if _, ok := r.tasks[key]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", key, domain.ErrMonitorExists)
	}
	runCtx, cancel := context.WithCancel(ctx)
	t := &task{monitor: m, cancel: cancel, done: make(chan struct{})}
	r.tasks[key] = t
	r.mu.Unlock()

	if r.counter != nil {
		r.counter.IncrementMonitors()
	}
	r.logger.Info("Monitor registered", slog.String("pair", key.String()))

	go func() {
		defer close(t.done)
		m.Run(runCtx)

		r.mu.Lock()
		if r.tasks[key] == t {
			delete(r.tasks, key)
		}
		r.mu.Unlock()

		if r.counter != nil {
			r.counter.DecrementMonitors()
		}
	}()
	return nil
}

// Lookup returns the running monitor for a pair.
func (r *Registry) Lookup(account, symbol string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[Key{Account: account, Symbol: symbol}]
	if !ok || t.stopping {
		return nil, false
	}
	return t.monitor, true
}

// Stop cancels a monitor and waits for its current tick to finish. The pair
// stays registered until the run goroutine exits.
func (r *Registry) Stop(account, symbol string) error {
	key := Key{Account: account, Symbol: symbol}

	r.mu.Lock()
	t, ok := r.tasks[key]
	if ok {
		t.stopping = true
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", key, domain.ErrMonitorNotFound)
	}
	t.cancel()
	<-t.done
	r.logger.Info("Monitor stopped", slog.String("pair", key.String()))
	return nil
}

// StopAll stops every monitor and waits for all of them.
func (r *Registry) StopAll() {
	r.mu.Lock()
	tasks := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		t.stopping = true
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// Active returns the monitored pairs sorted by account then symbol. Pairs
// being stopped are left out.
func (r *Registry) Active() []Key {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.tasks))
	for k, t := range r.tasks {
		if !t.stopping {
			keys = append(keys, k)
		}
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Account != keys[j].Account {
			return keys[i].Account < keys[j].Account
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	return keys
}
