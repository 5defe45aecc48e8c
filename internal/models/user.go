package models

import "time"

// User represents a member of the alumni network
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"fullName" db:"full_name"`
	Password  string    `json:"-" db:"password_hash"` // Never expose in JSON
	Avatar    *string   `json:"avatar,omitempty" db:"avatar"`
	Role      string    `json:"role" db:"role"` // 'student' or 'alumni'
	Company   *string   `json:"company,omitempty" db:"company"`
	Batch     *string   `json:"batch,omitempty" db:"batch"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// UserResponse is what we send to clients (without sensitive data)
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Avatar    *string   `json:"avatar,omitempty"`
	Role      string    `json:"role"`
	Company   *string   `json:"company,omitempty"`
	Batch     *string   `json:"batch,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserSummary holds the display fields embedded in chat payloads
type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role,omitempty"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Avatar:    u.Avatar,
		Role:      u.Role,
		Company:   u.Company,
		Batch:     u.Batch,
		CreatedAt: u.CreatedAt,
	}
}

// Summary converts User to the display fields used in chat payloads
func (u *User) Summary() UserSummary {
	s := UserSummary{ID: u.ID, FullName: u.FullName, Role: u.Role}
	if u.Avatar != nil {
		s.Avatar = *u.Avatar
	}
	return s
}

// ConnectionStatus is the state of a connection request
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
)

// Connection links two users of the network
type Connection struct {
	ID          string           `json:"id" db:"id"`
	RequesterID string           `json:"requesterId" db:"requester_id"`
	RecipientID string           `json:"recipientId" db:"recipient_id"`
	Status      ConnectionStatus `json:"status" db:"status"`
	Message     *string          `json:"message,omitempty" db:"message"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
	AcceptedAt  *time.Time       `json:"acceptedAt,omitempty" db:"accepted_at"`
}

// ConnectionWithUser includes the other party's user information
type ConnectionWithUser struct {
	ID        string           `json:"id"`
	Status    ConnectionStatus `json:"status"`
	User      UserResponse     `json:"user"`
	Outgoing  bool             `json:"outgoing"`
	CreatedAt time.Time        `json:"createdAt"`
}
