package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role tags a party. Students and alumni share one connection ledger.
type Role string

const (
	RoleStudent Role = "student"
	RoleAlumni  Role = "alumni"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts singular and plural forms as used by the route aliases.
func ParseRole(s string) (Role, error) {
	switch s {
	case "student", "students":
		return RoleStudent, nil
	case "alumni", "alumnus":
		return RoleAlumni, nil
	case "admin", "admins":
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole
}

// User represents a user in the domain layer
type User struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Branch    *string   `json:"branch,omitempty"`
	BatchYear *int      `json:"batch_year,omitempty"`
	ImageURL  *string   `json:"image_url,omitempty"`
	IsOnline  bool      `json:"is_online"`
	CreatedAt time.Time `json:"created_at"`
}

// UserResponse is the public representation of a user
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	BatchYear int       `json:"batch_year,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	IsOnline  bool      `json:"is_online"`
}

// ToResponse converts a User to a UserResponse
func (u *User) ToResponse() *UserResponse {
	response := &UserResponse{
		ID:       u.ID,
		Role:     u.Role,
		Username: u.Username,
		Email:    u.Email,
		IsOnline: u.IsOnline,
	}

	if u.Branch != nil {
		response.Branch = *u.Branch
	}
	if u.BatchYear != nil {
		response.BatchYear = *u.BatchYear
	}
	if u.ImageURL != nil {
		response.ImageURL = *u.ImageURL
	}

	return response
}

// DisplayName is what notifications call the user.
func (u *User) DisplayName() string {
	if u == nil || u.Username == "" {
		return "user"
	}
	return u.Username
}

// Directory is the read side of the identity store plus the presence flag.
// Accounts themselves are created elsewhere.
type Directory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsersByRole(ctx context.Context, role Role) ([]*User, error)
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
	ResetPresence(ctx context.Context) error
}
