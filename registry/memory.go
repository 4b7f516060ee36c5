package registry

import (
	"context"
	"sync"
)

// MemoryRegistry is an in-process Registry. It ignores TTLs and is meant for
// tests and single-process setups.
type MemoryRegistry struct {
	mu        sync.Mutex
	endpoints map[string][]Endpoint
	watchers  map[string][]chan []Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		endpoints: make(map[string][]Endpoint),
		watchers:  make(map[string][]chan []Endpoint),
	}
}

func (m *MemoryRegistry) Register(_ context.Context, ep Endpoint, _ int64) error {
	if _, err := HostPort(ep.Addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	eps := m.endpoints[ep.ServiceName]
	for i := range eps {
		if eps[i].Addr == ep.Addr {
			eps[i] = ep
			m.notify(ep.ServiceName)
			return nil
		}
	}
	m.endpoints[ep.ServiceName] = append(eps, ep)
	m.notify(ep.ServiceName)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, serviceName, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	eps := m.endpoints[serviceName]
	for i := range eps {
		if eps[i].Addr == addr {
			m.endpoints[serviceName] = append(eps[:i:i], eps[i+1:]...)
			m.notify(serviceName)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Endpoint{}, m.endpoints[serviceName]...), nil
}

func (m *MemoryRegistry) Watch(ctx context.Context, serviceName string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	m.mu.Lock()
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[serviceName]
		for i := range ws {
			if ws[i] == ch {
				m.watchers[serviceName] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notify hands the current list to every watcher, replacing a pending
// list the watcher has not consumed yet. Called with m.mu held.
func (m *MemoryRegistry) notify(serviceName string) {
	for _, ch := range m.watchers[serviceName] {
		snapshot := append([]Endpoint{}, m.endpoints[serviceName]...)
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
