// Package memory is an in-process ports.Store. It is the default backend and
// the one used by service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/99minutos/custody-tracker/internal/core/domain"
)

type historyKey struct {
	productID uint64
	index     uint64
}

// Store keeps products, the history arena and role grants in memory.
type Store struct {
	mu       sync.RWMutex
	lastID   uint64
	products map[uint64]domain.Product
	history  map[historyKey]domain.HistoryItem
	roles    map[string]map[domain.Role]struct{}
}

func NewStore() *Store {
	return &Store{
		products: make(map[uint64]domain.Product),
		history:  make(map[historyKey]domain.HistoryItem),
		roles:    make(map[string]map[domain.Role]struct{}),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateProduct(_ context.Context, p domain.Product, first domain.HistoryItem) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	p.ID = s.lastID
	p.HistoryLen = 1
	first.Index = 0
	s.products[p.ID] = p
	s.history[historyKey{p.ID, 0}] = first

	out := p
	return &out, nil
}

func (s *Store) GetProduct(_ context.Context, id uint64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product, item domain.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.products[p.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if item.Index != stored.HistoryLen {
		return domain.ErrConcurrentUpdate
	}

	stored.Owner = p.Owner
	stored.Status = p.Status
	stored.HistoryLen++
	s.history[historyKey{p.ID, item.Index}] = item
	s.products[p.ID] = stored
	return nil
}

func (s *Store) HistoryCount(_ context.Context, id uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	return p.HistoryLen, nil
}

func (s *Store) HistoryItem(_ context.Context, id, index uint64) (*domain.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if index >= p.HistoryLen {
		return nil, domain.ErrHistoryIndexOutOfRange
	}
	item := s.history[historyKey{id, index}]
	return &item, nil
}

func (s *Store) HistoryWindow(_ context.Context, id, count uint64) ([]domain.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	n := min(count, p.HistoryLen)
	out := make([]domain.HistoryItem, 0, n)
	for i := p.HistoryLen - n; i < p.HistoryLen; i++ {
		out = append(out, s.history[historyKey{id, i}])
	}
	return out, nil
}

func (s *Store) GrantRole(_ context.Context, actor string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.roles[actor]
	if !ok {
		set = make(map[domain.Role]struct{})
		s.roles[actor] = set
	}
	set[role] = struct{}{}
	return nil
}

func (s *Store) ListRoles(_ context.Context, actor string) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Role, 0, len(s.roles[actor]))
	for r := range s.roles[actor] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
