package models

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// User is the minimal identity row the core subsystem references.
// Account creation and session management live in the identity service;
// the JWT middleware hands the core a normalized id + role.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Handle    string    `gorm:"size:64;uniqueIndex;not null" json:"handle"`
	Role      UserRole  `gorm:"size:20;not null;default:USER" json:"role"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// AuthenticatedUser is the normalized caller identity passed into core
// services. Produced once by the auth middleware, never re-derived ad hoc.
type AuthenticatedUser struct {
	ID   uuid.UUID
	Role UserRole
}

func (u AuthenticatedUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}
