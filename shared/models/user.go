package models

import (
	"time"
)

// User represents a registered platform user. The primary key is the
// Cognito subject so identity lookups never need a join.
type User struct {
	CognitoID      string       `json:"cognito_id" gorm:"type:varchar(255);primaryKey"`
	Name           string       `json:"name"`
	Email          string       `json:"email" gorm:"not null"`
	Image          string       `json:"image,omitempty"`
	Role           UserRole     `json:"role" gorm:"type:varchar(20);default:'USER'"`
	VerifiedStatus UserVerified `json:"verified_status" gorm:"type:varchar(20);default:'UNVERIFIED'"`
	CreatedAt      time.Time    `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
	LastLoginAt    *time.Time   `json:"last_login_at,omitempty"`

	Listings []Listing `json:"listings,omitempty" gorm:"foreignKey:UserID;references:CognitoID"`
}

type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPERADMIN"
)

type UserVerified string

const (
	UserVerifiedYes UserVerified = "VERIFIED"
	UserVerifiedNo  UserVerified = "UNVERIFIED"
)

func (User) TableName() string {
	return "users"
}

func (u *User) GetID() string {
	return u.CognitoID
}

// RightToChangeRoles lists the roles each role is allowed to assign.
var RightToChangeRoles = map[UserRole][]UserRole{
	RoleAdmin:      {RoleUser, RoleAdmin},
	RoleSuperAdmin: {RoleUser, RoleAdmin, RoleSuperAdmin},
	RoleUser:       {},
}

// CanModifyRole lists the roles whose holders each role may modify.
var CanModifyRole = map[UserRole][]UserRole{
	RoleAdmin:      {RoleUser, RoleAdmin},
	RoleSuperAdmin: {RoleUser, RoleAdmin, RoleSuperAdmin},
	RoleUser:       {},
}

// RightToVerifyUsers marks which roles may change a user's verified status.
var RightToVerifyUsers = map[UserRole]bool{
	RoleAdmin:      true,
	RoleSuperAdmin: true,
	RoleUser:       false,
}

func roleIn(role UserRole, roles []UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanAssignRole reports whether actor may hand out the given role.
func CanAssignRole(actor, target UserRole) bool {
	return roleIn(target, RightToChangeRoles[actor])
}

// CanModifyUserRole reports whether actor may change the role of a user
// currently holding the given role.
func CanModifyUserRole(actor, current UserRole) bool {
	return roleIn(current, CanModifyRole[actor])
}

// UserInfo represents the acting principal derived from JWT claims.
// It is rebuilt per request and never trusted from the client body.
type UserInfo struct {
	CognitoID      string       `json:"cognito_id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Role           UserRole     `json:"role"`
	VerifiedStatus UserVerified `json:"verified_status"`
}

func (ui *UserInfo) IsAdminUser() bool {
	return ui.Role == RoleAdmin || ui.Role == RoleSuperAdmin
}

func (ui *UserInfo) IsVerified() bool {
	return ui.VerifiedStatus == UserVerifiedYes
}

// UserProfile represents the user profile stored in Redis
type UserProfile struct {
	CognitoID      string `json:"cognito_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	VerifiedStatus string `json:"verified_status"`
}

// TokenSession represents a session stored in Redis
type TokenSession struct {
	UserProfile UserProfile `json:"user_profile"`
	CreatedAt   time.Time   `json:"created_at"`
	LastUsedAt  time.Time   `json:"last_used_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	SessionID   string      `json:"session_id"`
}

func (ts *TokenSession) IsExpired() bool {
	return time.Now().After(ts.ExpiresAt)
}

func (ts *TokenSession) UpdateLastUsed() {
	ts.LastUsedAt = time.Now()
}
