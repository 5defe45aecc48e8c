package social

import (
	"context"
	"errors"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDirectory stores users and connections in Postgres.
type PGDirectory struct {
	pool *pgxpool.Pool
}

func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

const userColumns = `id, email, full_name, password_hash, avatar, role, company, batch, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Password, &u.Avatar, &u.Role,
		&u.Company, &u.Batch, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal("Database error", err)
	}
	return &u, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (d *PGDirectory) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "alumni"
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt, u.IsActive = now, now, true

	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Email, u.FullName, u.Password, u.Avatar, u.Role, u.Company, u.Batch, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("Email already registered")
	}
	if err != nil {
		return apperror.Internal("Failed to create user", err)
	}
	return nil
}

func (d *PGDirectory) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (d *PGDirectory) UserByID(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, apperror.NotFound("User not found")
	}
	return scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (d *PGDirectory) Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return out, nil
	}

	rows, err := d.pool.Query(ctx, `SELECT id, full_name, COALESCE(avatar, ''), role FROM users WHERE id = ANY($1)`, valid)
	if err != nil {
		return nil, apperror.Internal("Database error", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.FullName, &s.Avatar, &s.Role); err != nil {
			return nil, apperror.Internal("Database error", err)
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func (d *PGDirectory) RequestConnection(ctx context.Context, requesterID, recipientID string, message *string) (*models.Connection, error) {
	if err := checkRequest(requesterID, recipientID); err != nil {
		return nil, err
	}
	if _, err := d.UserByID(ctx, recipientID); err != nil {
		return nil, err
	}

	conn := models.Connection{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      models.ConnectionPending,
		Message:     message,
		CreatedAt:   time.Now(),
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO connections (id, requester_id, recipient_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conn.ID, conn.RequesterID, conn.RecipientID, conn.Status, conn.Message, conn.CreatedAt)
	if isUniqueViolation(err) {
		return nil, apperror.Conflict("Connection already exists")
	}
	if err != nil {
		return nil, apperror.Internal("Failed to create connection", err)
	}
	return &conn, nil
}

func (d *PGDirectory) RespondConnection(ctx context.Context, connectionID, userID string, accept bool) (*models.Connection, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, apperror.Internal("Database error", err)
	}
	defer tx.Rollback(ctx)

	var conn models.Connection
	err = tx.QueryRow(ctx, `
		SELECT id, requester_id, recipient_id, status, message, created_at, accepted_at
		FROM connections WHERE id = $1 FOR UPDATE
	`, connectionID).Scan(&conn.ID, &conn.RequesterID, &conn.RecipientID, &conn.Status,
		&conn.Message, &conn.CreatedAt, &conn.AcceptedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("Connection not found")
	}
	if err != nil {
		return nil, apperror.Internal("Database error", err)
	}

	if err := respond(&conn, userID, accept); err != nil {
		return nil, err
	}
	if accept {
		now := time.Now()
		conn.AcceptedAt = &now
	}
	if _, err := tx.Exec(ctx, `UPDATE connections SET status = $2, accepted_at = $3 WHERE id = $1`,
		conn.ID, conn.Status, conn.AcceptedAt); err != nil {
		return nil, apperror.Internal("Failed to update connection", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.Internal("Failed to update connection", err)
	}
	return &conn, nil
}

func (d *PGDirectory) ListConnections(ctx context.Context, userID string, status models.ConnectionStatus) ([]models.ConnectionWithUser, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT
			c.id, c.status, c.requester_id = $1, c.created_at,
			u.id, u.email, u.full_name, u.avatar, u.role, u.company, u.batch, u.created_at
		FROM connections c
		INNER JOIN users u ON u.id = CASE WHEN c.requester_id = $1 THEN c.recipient_id ELSE c.requester_id END
		WHERE (c.requester_id = $1 OR c.recipient_id = $1) AND c.status = $2
		ORDER BY c.created_at DESC
	`, userID, status)
	if err != nil {
		return nil, apperror.Internal("Database error", err)
	}
	defer rows.Close()

	conns := []models.ConnectionWithUser{}
	for rows.Next() {
		var c models.ConnectionWithUser
		u := &c.User
		if err := rows.Scan(&c.ID, &c.Status, &c.Outgoing, &c.CreatedAt,
			&u.ID, &u.Email, &u.FullName, &u.Avatar, &u.Role, &u.Company, &u.Batch, &u.CreatedAt); err != nil {
			return nil, apperror.Internal("Database error", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (d *PGDirectory) AreConnected(ctx context.Context, userA, userB string) (bool, error) {
	if !validID(userA) || !validID(userB) {
		return false, nil
	}
	var ok bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM connections
			WHERE status = 'accepted'
			AND ((requester_id = $1 AND recipient_id = $2) OR (requester_id = $2 AND recipient_id = $1))
		)
	`, userA, userB).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}
