package db

import (
	"context"

	"github.com/propertyline/triage/internal/models"
)

type TicketFilter struct {
	Status   models.TicketStatus
	Urgency  *models.Urgency
	Category models.Category
	Limit    int // 0 means no limit
	Offset   int
}

type TicketStore interface {
	CreateTicket(ctx context.Context, t models.Ticket) (models.Ticket, error)
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error)
	// AssignTicket moves a CREATED ticket to DISPATCHED and sets its technician.
	AssignTicket(ctx context.Context, ticketID, technicianID string) (models.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id string, status models.TicketStatus) (models.Ticket, error)
}

type CallStore interface {
	CreateCall(ctx context.Context, s models.CallSession) error
	GetCall(ctx context.Context, id string) (models.CallSession, error)
	UpdateCall(ctx context.Context, s models.CallSession) error
}

// TechnicianRegistry is the shared technician pool.
// TryReserve must be an atomic "is available AND mark unavailable".
type TechnicianRegistry interface {
	QueryAvailable(ctx context.Context, skills []string) ([]models.Technician, error)
	QueryAllAvailable(ctx context.Context) ([]models.Technician, error)
	TryReserve(ctx context.Context, technicianID, ticketID string) (bool, error)
	Release(ctx context.Context, technicianID string) error
	GetTechnician(ctx context.Context, id string) (models.Technician, error)
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
	UpsertTechnician(ctx context.Context, t models.Technician) error
}

type NotificationLog interface {
	AppendNotification(ctx context.Context, n models.NotificationRecord) error
	ListNotifications(ctx context.Context, ticketID string) ([]models.NotificationRecord, error)
}

type PropertyStore interface {
	GetProperty(ctx context.Context, id string) (models.Property, error)
	// ResolveTenant maps a caller phone to its property and unit.
	ResolveTenant(ctx context.Context, phone string) (propertyID string, unit string, err error)
}

// Repository is everything the service needs from persistence.
type Repository interface {
	TicketStore
	CallStore
	TechnicianRegistry
	NotificationLog
	PropertyStore
	Ping(ctx context.Context) error
	Close()
}
