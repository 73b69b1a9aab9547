package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propertyline/triage/internal/models"
)

// Store is the Postgres-backed Repository.
type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

const ticketColumns = `id, call_id, title, description, category, urgency, status, property_id, unit, tenant_phone, assigned_to, classification, created_at, updated_at`

func scanTicket(row scanner) (models.Ticket, error) {
	var (
		t        models.Ticket
		category string
		urgency  string
		status   string
		classRaw []byte
	)
	if err := row.Scan(&t.ID, &t.CallID, &t.Title, &t.Description, &category, &urgency, &status,
		&t.PropertyID, &t.Unit, &t.TenantPhone, &t.AssignedTo, &classRaw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return models.Ticket{}, err
	}
	u, err := models.ParseUrgency(urgency)
	if err != nil {
		return models.Ticket{}, err
	}
	t.Category = models.Category(category)
	t.Urgency = u
	t.Status = models.TicketStatus(status)
	if len(classRaw) > 0 {
		var c models.Classification
		if err := json.Unmarshal(classRaw, &c); err != nil {
			return models.Ticket{}, fmt.Errorf("decode ticket classification: %w", err)
		}
		t.Classification = &c
	}
	return t, nil
}

func marshalNullable(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *Store) CreateTicket(ctx context.Context, t models.Ticket) (models.Ticket, error) {
	classJSON, err := marshalNullable(t.Classification, t.Classification == nil)
	if err != nil {
		return models.Ticket{}, err
	}
	if t.Status == "" {
		t.Status = models.TicketCreated
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO tickets (id, call_id, title, description, category, urgency, status, property_id, unit, tenant_phone, assigned_to, classification, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
		RETURNING `+ticketColumns,
		t.ID, t.CallID, t.Title, t.Description, string(t.Category), t.Urgency.String(), string(t.Status),
		t.PropertyID, t.Unit, t.TenantPhone, t.AssignedTo, classJSON)
	return scanTicket(row)
}

func (s *Store) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, fmt.Errorf("%w: ticket %s", models.ErrNotFound, id)
	}
	return t, err
}

func (s *Store) ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error) {
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var args []any
	var wheres []string
	if f.Status != "" {
		args = append(args, string(f.Status))
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Urgency != nil {
		args = append(args, f.Urgency.String())
		wheres = append(wheres, fmt.Sprintf("urgency = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		wheres = append(wheres, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) AssignTicket(ctx context.Context, ticketID, technicianID string) (models.Ticket, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE tickets SET status = $3, assigned_to = $2, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND assigned_to IS NULL
		RETURNING `+ticketColumns,
		ticketID, technicianID, string(models.TicketDispatched), string(models.TicketCreated))
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.GetTicket(ctx, ticketID)
		if getErr != nil {
			return models.Ticket{}, getErr
		}
		return models.Ticket{}, fmt.Errorf("%w: ticket %s is %s", models.ErrInvalidTransition, ticketID, current.Status)
	}
	return t, err
}

func (s *Store) UpdateTicketStatus(ctx context.Context, id string, status models.TicketStatus) (models.Ticket, error) {
	var out models.Ticket
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, id)
		t, err := scanTicket(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: ticket %s", models.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if !t.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, t.Status, status)
		}
		row = tx.QueryRow(ctx, `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+ticketColumns, id, string(status))
		out, err = scanTicket(row)
		return err
	})
	return out, err
}

const callColumns = `id, caller_phone, state, scenario_key, follow_up_rounds, asked_follow_ups, pending_follow_ups, transcript, classification, ticket_id, created_at, updated_at`

func scanCall(row scanner) (models.CallSession, error) {
	var (
		c          models.CallSession
		state      string
		transcript []byte
		classRaw   []byte
	)
	if err := row.Scan(&c.ID, &c.CallerPhone, &state, &c.ScenarioKey, &c.FollowUpRounds, &c.AskedFollowUps,
		&c.PendingFollowUp, &transcript, &classRaw, &c.TicketID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.CallSession{}, err
	}
	c.State = models.CallState(state)
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &c.Transcript); err != nil {
			return models.CallSession{}, fmt.Errorf("decode transcript: %w", err)
		}
	}
	if len(classRaw) > 0 {
		var cl models.Classification
		if err := json.Unmarshal(classRaw, &cl); err != nil {
			return models.CallSession{}, fmt.Errorf("decode call classification: %w", err)
		}
		c.Classification = &cl
	}
	return c, nil
}

func callArgs(c models.CallSession) ([]any, error) {
	transcript, err := json.Marshal(c.Transcript)
	if err != nil {
		return nil, err
	}
	classJSON, err := marshalNullable(c.Classification, c.Classification == nil)
	if err != nil {
		return nil, err
	}
	asked := c.AskedFollowUps
	if asked == nil {
		asked = []string{}
	}
	pending := c.PendingFollowUp
	if pending == nil {
		pending = []string{}
	}
	return []any{c.ID, c.CallerPhone, string(c.State), c.ScenarioKey, c.FollowUpRounds, asked, pending, transcript, classJSON, c.TicketID}, nil
}

func (s *Store) CreateCall(ctx context.Context, c models.CallSession) error {
	args, err := callArgs(c)
	if err != nil {
		return err
	}
	args = append(args, c.CreatedAt)
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO calls (id, caller_phone, state, scenario_key, follow_up_rounds, asked_follow_ups, pending_follow_ups, transcript, classification, ticket_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
	`, args...)
	return err
}

func (s *Store) GetCall(ctx context.Context, id string) (models.CallSession, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	c, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CallSession{}, fmt.Errorf("%w: call %s", models.ErrNotFound, id)
	}
	return c, err
}

func (s *Store) UpdateCall(ctx context.Context, c models.CallSession) error {
	args, err := callArgs(c)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE calls SET caller_phone = $2, state = $3, scenario_key = $4, follow_up_rounds = $5,
			asked_follow_ups = $6, pending_follow_ups = $7, transcript = $8, classification = $9, ticket_id = $10, updated_at = NOW()
		WHERE id = $1
	`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: call %s", models.ErrNotFound, c.ID)
	}
	return nil
}

const technicianColumns = `id, name, phone, email, skills, available, rating, response_time_minutes, hourly_rate, emergency_rate, max_jobs, zone, current_ticket_id, updated_at`

func scanTechnician(row scanner) (models.Technician, error) {
	var t models.Technician
	err := row.Scan(&t.ID, &t.Name, &t.Phone, &t.Email, &t.Skills, &t.Available, &t.Rating, &t.ResponseTimeMinutes,
		&t.HourlyRate, &t.EmergencyRate, &t.MaxJobs, &t.Zone, &t.CurrentTicketID, &t.UpdatedAt)
	return t, err
}

func (s *Store) queryTechnicians(ctx context.Context, query string, args ...any) ([]models.Technician, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) QueryAvailable(ctx context.Context, skills []string) ([]models.Technician, error) {
	return s.queryTechnicians(ctx, `SELECT `+technicianColumns+` FROM technicians
		WHERE available AND skills && $1
		ORDER BY rating DESC, response_time_minutes ASC, id ASC`, skills)
}

func (s *Store) QueryAllAvailable(ctx context.Context) ([]models.Technician, error) {
	return s.queryTechnicians(ctx, `SELECT `+technicianColumns+` FROM technicians
		WHERE available
		ORDER BY response_time_minutes ASC, id ASC`)
}

func (s *Store) TryReserve(ctx context.Context, technicianID, ticketID string) (bool, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `
		UPDATE technicians SET available = false, current_ticket_id = $2, updated_at = NOW()
		WHERE id = $1 AND available
		RETURNING id
	`, technicianID, ticketID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetTechnician(ctx, technicianID); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Release(ctx context.Context, technicianID string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE technicians SET available = true, current_ticket_id = NULL, updated_at = NOW() WHERE id = $1`, technicianID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: technician %s", models.ErrNotFound, technicianID)
	}
	return nil
}

func (s *Store) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	t, err := scanTechnician(s.Pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Technician{}, fmt.Errorf("%w: technician %s", models.ErrNotFound, id)
	}
	return t, err
}

func (s *Store) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	return s.queryTechnicians(ctx, `SELECT `+technicianColumns+` FROM technicians ORDER BY id ASC`)
}

// UpsertTechnician leaves available and current_ticket_id untouched on update.
func (s *Store) UpsertTechnician(ctx context.Context, t models.Technician) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO technicians (id, name, phone, email, skills, available, rating, response_time_minutes, hourly_rate, emergency_rate, max_jobs, zone, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			skills = EXCLUDED.skills,
			rating = EXCLUDED.rating,
			response_time_minutes = EXCLUDED.response_time_minutes,
			hourly_rate = EXCLUDED.hourly_rate,
			emergency_rate = EXCLUDED.emergency_rate,
			max_jobs = EXCLUDED.max_jobs,
			zone = EXCLUDED.zone,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.Name, t.Phone, t.Email, t.Skills, t.Available, t.Rating, t.ResponseTimeMinutes, t.HourlyRate, t.EmergencyRate, t.MaxJobs, t.Zone)
	return err
}

func (s *Store) AppendNotification(ctx context.Context, n models.NotificationRecord) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO notifications (id, ticket_id, recipient, channel, message, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7, NOW()))
	`, n.ID, n.TicketID, n.Recipient, n.Channel, n.Message, string(n.Status), nullTime(n))
	return err
}

func nullTime(n models.NotificationRecord) any {
	if n.CreatedAt.IsZero() {
		return nil
	}
	return n.CreatedAt
}

func (s *Store) ListNotifications(ctx context.Context, ticketID string) ([]models.NotificationRecord, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, ticket_id, recipient, channel, message, status, created_at FROM notifications WHERE ticket_id = $1 ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.NotificationRecord
	for rows.Next() {
		var (
			n      models.NotificationRecord
			status string
		)
		if err := rows.Scan(&n.ID, &n.TicketID, &n.Recipient, &n.Channel, &n.Message, &status, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Status = models.DeliveryStatus(status)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) GetProperty(ctx context.Context, id string) (models.Property, error) {
	var p models.Property
	err := s.Pool.QueryRow(ctx, `SELECT id, address, vip FROM properties WHERE id = $1`, id).Scan(&p.ID, &p.Address, &p.VIP)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Property{}, fmt.Errorf("%w: property %s", models.ErrNotFound, id)
	}
	return p, err
}

func (s *Store) ResolveTenant(ctx context.Context, phone string) (string, string, error) {
	var propertyID, unit string
	err := s.Pool.QueryRow(ctx, `SELECT property_id, unit FROM tenants WHERE phone = $1`, phone).Scan(&propertyID, &unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", fmt.Errorf("%w: tenant %s", models.ErrNotFound, phone)
	}
	return propertyID, unit, err
}
