package peersync

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/models"
)

// TurnAdvisory shares whose turn it is between peers. It is last-write-wins and never
// authoritative: the engine's CurrentPlayer always decides. cache.RedisTurnAdvisory is the
// production implementation.
type TurnAdvisory interface {
	Announce(ctx context.Context, matchID uuid.UUID, seat models.Seat) error
	Current(ctx context.Context, matchID uuid.UUID) (models.Seat, error)
	Watch(ctx context.Context, matchID uuid.UUID) (<-chan models.Seat, error)
}

// MemoryAdvisory is an in-process TurnAdvisory for tests and same-process play.
type MemoryAdvisory struct {
	mu       sync.Mutex
	current  map[uuid.UUID]models.Seat
	watchers map[uuid.UUID][]chan models.Seat
}

func NewMemoryAdvisory() *MemoryAdvisory {
	return &MemoryAdvisory{
		current:  make(map[uuid.UUID]models.Seat),
		watchers: make(map[uuid.UUID][]chan models.Seat),
	}
}

func (m *MemoryAdvisory) Announce(_ context.Context, matchID uuid.UUID, seat models.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[matchID] = seat
	for _, ch := range m.watchers[matchID] {
		select {
		case ch <- seat:
		default:
			// slow watcher; it will catch up on the next announcement
		}
	}
	return nil
}

func (m *MemoryAdvisory) Current(_ context.Context, matchID uuid.UUID) (models.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[matchID], nil
}

func (m *MemoryAdvisory) Watch(ctx context.Context, matchID uuid.UUID) (<-chan models.Seat, error) {
	ch := make(chan models.Seat, 8)
	m.mu.Lock()
	m.watchers[matchID] = append(m.watchers[matchID], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[matchID]
		for i, w := range list {
			if w == ch {
				m.watchers[matchID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
