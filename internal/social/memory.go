package social

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/models"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process Directory for development and tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	byEmail map[string]string
	conns   map[string]*models.Connection
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		conns:   make(map[string]*models.Connection),
	}
}

func (d *MemoryDirectory) CreateUser(_ context.Context, u *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := d.byEmail[email]; ok {
		return apperror.Conflict("Email already registered")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = "alumni"
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt, u.IsActive = now, now, true

	stored := *u
	d.users[u.ID] = &stored
	d.byEmail[email] = u.ID
	return nil
}

func (d *MemoryDirectory) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	d.mu.RLock()
	id, ok := d.byEmail[strings.ToLower(email)]
	d.mu.RUnlock()
	if !ok {
		return nil, apperror.NotFound("User not found")
	}
	return d.UserByID(ctx, id)
}

func (d *MemoryDirectory) UserByID(_ context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, apperror.NotFound("User not found")
	}
	out := *u
	return &out, nil
}

// SetActive toggles a user's active flag.
func (d *MemoryDirectory) SetActive(id string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		u.IsActive = active
	}
}

func (d *MemoryDirectory) Summaries(_ context.Context, ids []string) (map[string]models.UserSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

func (d *MemoryDirectory) findPair(a, b string) *models.Connection {
	for _, c := range d.conns {
		if (c.RequesterID == a && c.RecipientID == b) || (c.RequesterID == b && c.RecipientID == a) {
			return c
		}
	}
	return nil
}

func (d *MemoryDirectory) RequestConnection(_ context.Context, requesterID, recipientID string, message *string) (*models.Connection, error) {
	if err := checkRequest(requesterID, recipientID); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[recipientID]; !ok {
		return nil, apperror.NotFound("User not found")
	}
	if d.findPair(requesterID, recipientID) != nil {
		return nil, apperror.Conflict("Connection already exists")
	}
	conn := &models.Connection{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      models.ConnectionPending,
		Message:     message,
		CreatedAt:   time.Now(),
	}
	d.conns[conn.ID] = conn
	out := *conn
	return &out, nil
}

func (d *MemoryDirectory) RespondConnection(_ context.Context, connectionID, userID string, accept bool) (*models.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored, ok := d.conns[connectionID]
	if !ok {
		return nil, apperror.NotFound("Connection not found")
	}
	conn := *stored
	if err := respond(&conn, userID, accept); err != nil {
		return nil, err
	}
	if accept {
		now := time.Now()
		conn.AcceptedAt = &now
	}
	*stored = conn
	return &conn, nil
}

// Connect records an accepted connection between a and b.
func (d *MemoryDirectory) Connect(a, b string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if c := d.findPair(a, b); c != nil {
		c.Status, c.AcceptedAt = models.ConnectionAccepted, &now
		return
	}
	id := uuid.NewString()
	d.conns[id] = &models.Connection{
		ID: id, RequesterID: a, RecipientID: b,
		Status: models.ConnectionAccepted, CreatedAt: now, AcceptedAt: &now,
	}
}

func (d *MemoryDirectory) ListConnections(_ context.Context, userID string, status models.ConnectionStatus) ([]models.ConnectionWithUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []models.ConnectionWithUser{}
	for _, c := range d.conns {
		if c.Status != status || (c.RequesterID != userID && c.RecipientID != userID) {
			continue
		}
		other := c.RecipientID
		if other == userID {
			other = c.RequesterID
		}
		u, ok := d.users[other]
		if !ok {
			continue
		}
		out = append(out, models.ConnectionWithUser{
			ID:        c.ID,
			Status:    c.Status,
			User:      u.ToResponse(),
			Outgoing:  c.RequesterID == userID,
			CreatedAt: c.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (d *MemoryDirectory) AreConnected(_ context.Context, userA, userB string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := d.findPair(userA, userB)
	return c != nil && c.Status == models.ConnectionAccepted, nil
}
