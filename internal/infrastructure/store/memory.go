package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-status-hub/internal/domain"
)

// MemoryStore is an in-process Store. All documents are copied in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	services  map[string]domain.Service
	incidents map[string]domain.Incident
	uptime    map[string][]domain.UptimePoint
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services:  make(map[string]domain.Service),
		incidents: make(map[string]domain.Incident),
		uptime:    make(map[string][]domain.UptimePoint),
	}
}

func (m *MemoryStore) ListServices(ctx context.Context) ([]domain.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Service, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetService(ctx context.Context, id string) (domain.Service, error) {
	if err := ctx.Err(); err != nil {
		return domain.Service{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.services[id]
	if !ok {
		return domain.Service{}, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) GetServices(ctx context.Context, ids []string) ([]domain.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Service, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.services[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateService(ctx context.Context, s domain.Service) (domain.Service, error) {
	if err := ctx.Err(); err != nil {
		return domain.Service{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, exists := m.services[s.ID]; exists {
		return domain.Service{}, fmt.Errorf("service %s already exists", s.ID)
	}
	m.services[s.ID] = s
	return s, nil
}

func (m *MemoryStore) UpdateService(ctx context.Context, id string, patch domain.ServicePatch) (ServiceChange, error) {
	if err := ctx.Err(); err != nil {
		return ServiceChange{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before, ok := m.services[id]
	if !ok {
		return ServiceChange{}, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	after := patch.Apply(before)
	m.services[id] = after
	return ServiceChange{Before: before, After: after}, nil
}

func (m *MemoryStore) DeleteService(ctx context.Context, id string) (domain.Service, error) {
	if err := ctx.Err(); err != nil {
		return domain.Service{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.services[id]
	if !ok {
		return domain.Service{}, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	delete(m.services, id)
	delete(m.uptime, id)
	return s, nil
}

func (m *MemoryStore) ListIncidents(ctx context.Context) ([]domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		out = append(out, copyIncident(inc))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return domain.Incident{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	inc, ok := m.incidents[id]
	if !ok {
		return domain.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	return copyIncident(inc), nil
}

func (m *MemoryStore) CreateIncident(ctx context.Context, inc domain.Incident) (domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return domain.Incident{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if _, exists := m.incidents[inc.ID]; exists {
		return domain.Incident{}, fmt.Errorf("incident %s already exists", inc.ID)
	}
	inc = copyIncident(normalizeIncident(inc))
	m.incidents[inc.ID] = inc
	return copyIncident(inc), nil
}

func (m *MemoryStore) UpdateIncident(ctx context.Context, id string, patch domain.IncidentPatch) (IncidentChange, error) {
	if err := ctx.Err(); err != nil {
		return IncidentChange{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before, ok := m.incidents[id]
	if !ok {
		return IncidentChange{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	after := patch.Apply(before)
	m.incidents[id] = after
	return IncidentChange{Before: copyIncident(before), After: copyIncident(after)}, nil
}

func (m *MemoryStore) DeleteIncident(ctx context.Context, id string) (domain.Incident, error) {
	if err := ctx.Err(); err != nil {
		return domain.Incident{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	inc, ok := m.incidents[id]
	if !ok {
		return domain.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	delete(m.incidents, id)
	return inc, nil
}

func (m *MemoryStore) AppendUptime(ctx context.Context, p domain.UptimePoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uptime[p.ServiceID] = append(m.uptime[p.ServiceID], p)
	return nil
}

func (m *MemoryStore) ListUptime(ctx context.Context, serviceID string, since time.Time) ([]domain.UptimePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.UptimePoint
	for _, p := range m.uptime[serviceID] {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close(context.Context) error {
	return nil
}

func copyIncident(inc domain.Incident) domain.Incident {
	inc.Services = append([]string{}, inc.Services...)
	inc.Updates = append([]domain.IncidentUpdate{}, inc.Updates...)
	return inc
}
