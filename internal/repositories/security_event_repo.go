package repositories

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

const securityEventColumns = `id, event_type, severity, actor_id, ip_address, user_agent, details, created_at`

func scanSecurityEventRow(scanner rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent

	err := scanner.Scan(
		&event.ID, &event.EventType, &event.Severity, &event.ActorID,
		&event.IPAddress, &event.UserAgent, &event.Details, &event.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

// Insert appends one event. IDs are ULIDs, so the primary key sorts by
// creation time.
func (r *SecurityEventRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	now := time.Now()
	event.ID = ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	event.CreatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_events (id, event_type, severity, actor_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID, event.EventType, event.Severity, event.ActorID,
		event.IPAddress, event.UserAgent, event.Details, event.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// EventFilter narrows event listings. Zero values mean no constraint.
type EventFilter struct {
	EventType string
	ActorID   string
	Since     time.Time
	Limit     int
	Offset    int
}

func (r *SecurityEventRepository) List(ctx context.Context, filter EventFilter) ([]*models.SecurityEvent, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE ($1 = '' OR event_type = $1)
			AND ($2 = '' OR actor_id = $2)
			AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY id DESC
		LIMIT $4 OFFSET $5
	`

	var since *time.Time
	if !filter.Since.IsZero() {
		since = &filter.Since
	}

	rows, err := r.pool.Query(ctx, query, filter.EventType, filter.ActorID, since, filter.Limit, filter.Offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var events []*models.SecurityEvent
	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountsSince aggregates event counts per type and severity over a trailing
// window, for the security metrics endpoint.
func (r *SecurityEventRepository) CountsSince(ctx context.Context, since time.Time) ([]models.EventCount, error) {
	query := `
		SELECT event_type, severity, COUNT(*)
		FROM security_events
		WHERE created_at >= $1
		GROUP BY event_type, severity
		ORDER BY event_type, severity
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var counts []models.EventCount
	for rows.Next() {
		var c models.EventCount
		if err := rows.Scan(&c.EventType, &c.Severity, &c.Count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
