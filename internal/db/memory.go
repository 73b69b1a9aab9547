package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/propertyline/triage/internal/models"
)

type tenant struct {
	propertyID string
	unit       string
}

// MemoryStore keeps all state in process. A single mutex serializes every
// mutation, which makes TryReserve linearizable.
type MemoryStore struct {
	mu            sync.Mutex
	tickets       map[string]models.Ticket
	calls         map[string]models.CallSession
	technicians   map[string]models.Technician
	notifications []models.NotificationRecord
	properties    map[string]models.Property
	tenants       map[string]tenant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:       make(map[string]models.Ticket),
		calls:         make(map[string]models.CallSession),
		technicians:   make(map[string]models.Technician),
		notifications: make([]models.NotificationRecord, 0, 64),
		properties:    make(map[string]models.Property),
		tenants:       make(map[string]tenant),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() {}

func (m *MemoryStore) CreateTicket(_ context.Context, t models.Ticket) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.ID]; ok {
		return models.Ticket{}, fmt.Errorf("%w: ticket %s already exists", models.ErrValidation, t.ID)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = models.TicketCreated
	}
	m.tickets[t.ID] = t
	return t, nil
}

func (m *MemoryStore) GetTicket(_ context.Context, id string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, fmt.Errorf("%w: ticket %s", models.ErrNotFound, id)
	}
	return t, nil
}

func (m *MemoryStore) ListTickets(_ context.Context, f TicketFilter) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Urgency != nil && t.Urgency != *f.Urgency {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (m *MemoryStore) AssignTicket(_ context.Context, ticketID, technicianID string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return models.Ticket{}, fmt.Errorf("%w: ticket %s", models.ErrNotFound, ticketID)
	}
	if t.Status != models.TicketCreated || t.AssignedTo != nil {
		return models.Ticket{}, fmt.Errorf("%w: ticket %s is %s", models.ErrInvalidTransition, ticketID, t.Status)
	}
	tech := technicianID
	t.AssignedTo = &tech
	t.Status = models.TicketDispatched
	t.UpdatedAt = time.Now().UTC()
	m.tickets[ticketID] = t
	return t, nil
}

func (m *MemoryStore) UpdateTicketStatus(_ context.Context, id string, status models.TicketStatus) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, fmt.Errorf("%w: ticket %s", models.ErrNotFound, id)
	}
	if !t.CanTransition(status) {
		return models.Ticket{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, t.Status, status)
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	m.tickets[id] = t
	return t, nil
}

func (m *MemoryStore) CreateCall(_ context.Context, s models.CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[s.ID]; ok {
		return fmt.Errorf("%w: call %s already exists", models.ErrValidation, s.ID)
	}
	m.calls[s.ID] = cloneCall(s)
	return nil
}

func (m *MemoryStore) GetCall(_ context.Context, id string) (models.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.calls[id]
	if !ok {
		return models.CallSession{}, fmt.Errorf("%w: call %s", models.ErrNotFound, id)
	}
	return cloneCall(s), nil
}

func (m *MemoryStore) UpdateCall(_ context.Context, s models.CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[s.ID]; !ok {
		return fmt.Errorf("%w: call %s", models.ErrNotFound, s.ID)
	}
	s.UpdatedAt = time.Now().UTC()
	m.calls[s.ID] = cloneCall(s)
	return nil
}

func (m *MemoryStore) QueryAvailable(_ context.Context, skills []string) ([]models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Technician
	for _, t := range m.technicians {
		if t.Available && t.HasAnySkill(skills) {
			out = append(out, cloneTechnician(t))
		}
	}
	sortTechnicians(out)
	return out, nil
}

func (m *MemoryStore) QueryAllAvailable(_ context.Context) ([]models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Technician
	for _, t := range m.technicians {
		if t.Available {
			out = append(out, cloneTechnician(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResponseTimeMinutes == out[j].ResponseTimeMinutes {
			return out[i].ID < out[j].ID
		}
		return out[i].ResponseTimeMinutes < out[j].ResponseTimeMinutes
	})
	return out, nil
}

func (m *MemoryStore) TryReserve(_ context.Context, technicianID, ticketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.technicians[technicianID]
	if !ok {
		return false, fmt.Errorf("%w: technician %s", models.ErrNotFound, technicianID)
	}
	if !t.Available {
		return false, nil
	}
	t.Available = false
	ref := ticketID
	t.CurrentTicketID = &ref
	t.UpdatedAt = time.Now().UTC()
	m.technicians[technicianID] = t
	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, technicianID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.technicians[technicianID]
	if !ok {
		return fmt.Errorf("%w: technician %s", models.ErrNotFound, technicianID)
	}
	t.Available = true
	t.CurrentTicketID = nil
	t.UpdatedAt = time.Now().UTC()
	m.technicians[technicianID] = t
	return nil
}

func (m *MemoryStore) GetTechnician(_ context.Context, id string) (models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.technicians[id]
	if !ok {
		return models.Technician{}, fmt.Errorf("%w: technician %s", models.ErrNotFound, id)
	}
	return cloneTechnician(t), nil
}

func (m *MemoryStore) ListTechnicians(_ context.Context) ([]models.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Technician, 0, len(m.technicians))
	for _, t := range m.technicians {
		out = append(out, cloneTechnician(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertTechnician sets availability only on insert; afterwards it belongs to
// reservation and release.
func (m *MemoryStore) UpsertTechnician(_ context.Context, t models.Technician) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.technicians[t.ID]; ok {
		t.Available = prev.Available
		t.CurrentTicketID = prev.CurrentTicketID
	} else {
		t.CurrentTicketID = nil
	}
	t.UpdatedAt = time.Now().UTC()
	m.technicians[t.ID] = cloneTechnician(t)
	return nil
}

func (m *MemoryStore) AppendNotification(_ context.Context, n models.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, ticketID string) ([]models.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationRecord
	for _, n := range m.notifications {
		if n.TicketID == ticketID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetProperty(_ context.Context, id string) (models.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok {
		return models.Property{}, fmt.Errorf("%w: property %s", models.ErrNotFound, id)
	}
	return p, nil
}

func (m *MemoryStore) ResolveTenant(_ context.Context, phone string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[phone]
	if !ok {
		return "", "", fmt.Errorf("%w: tenant %s", models.ErrNotFound, phone)
	}
	return t.propertyID, t.unit, nil
}

func (m *MemoryStore) PutProperty(p models.Property) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = p
}

func (m *MemoryStore) PutTenant(phone, propertyID, unit string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[phone] = tenant{propertyID: propertyID, unit: unit}
}

// SeedDemo loads the demo technician pool and properties.
func (m *MemoryStore) SeedDemo() {
	for _, t := range DemoTechnicians() {
		_ = m.UpsertTechnician(context.Background(), t)
	}
	for _, p := range DemoProperties() {
		m.PutProperty(p)
	}
}

func DemoTechnicians() []models.Technician {
	return []models.Technician{
		{ID: "1", Name: "John Smith", Phone: "+1234567890", Email: "john@example.com", Skills: []string{"plumbing", "general"}, Available: true, Zone: "Zone A", Rating: 4.8, ResponseTimeMinutes: 25, HourlyRate: 85, EmergencyRate: 125, MaxJobs: 3},
		{ID: "2", Name: "Maria Garcia", Phone: "+1234567891", Email: "maria@example.com", Skills: []string{"electrical", "hvac"}, Available: true, Zone: "Zone B", Rating: 4.9, ResponseTimeMinutes: 30, HourlyRate: 95, EmergencyRate: 140, MaxJobs: 3},
		{ID: "3", Name: "Mike Johnson", Phone: "+1234567892", Email: "mike@example.com", Skills: []string{"plumbing", "hvac", "appliance"}, Available: false, Zone: "Zone A", Rating: 4.7, ResponseTimeMinutes: 20, HourlyRate: 90, EmergencyRate: 135, MaxJobs: 2},
	}
}

func DemoProperties() []models.Property {
	return []models.Property{
		{ID: "PROP-001", Address: "123 Main St, City"},
		{ID: "PROP-002", Address: "456 Oak Ave, City", VIP: true},
	}
}

func sortTechnicians(ts []models.Technician) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Rating != ts[j].Rating {
			return ts[i].Rating > ts[j].Rating
		}
		if ts[i].ResponseTimeMinutes != ts[j].ResponseTimeMinutes {
			return ts[i].ResponseTimeMinutes < ts[j].ResponseTimeMinutes
		}
		return ts[i].ID < ts[j].ID
	})
}

func paginate(ts []models.Ticket, limit, offset int) []models.Ticket {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ts) {
		return []models.Ticket{}
	}
	ts = ts[offset:]
	if limit > 0 && limit < len(ts) {
		ts = ts[:limit]
	}
	return ts
}

func cloneTechnician(t models.Technician) models.Technician {
	t.Skills = append([]string(nil), t.Skills...)
	if t.CurrentTicketID != nil {
		v := *t.CurrentTicketID
		t.CurrentTicketID = &v
	}
	return t
}

func cloneCall(s models.CallSession) models.CallSession {
	s.Transcript = append([]models.Turn(nil), s.Transcript...)
	s.AskedFollowUps = append([]string(nil), s.AskedFollowUps...)
	s.PendingFollowUp = append([]string(nil), s.PendingFollowUp...)
	if s.Classification != nil {
		c := s.Classification.Clone()
		s.Classification = &c
	}
	if s.TicketID != nil {
		v := *s.TicketID
		s.TicketID = &v
	}
	return s
}
