package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoleUser is applied to every account at creation.
const RoleUser = "user"

// Roles is the set of role names granted to an account. It is stored as a JSON
// array column.
type Roles []string

// DefaultRoles returns the roles a new account starts with.
func DefaultRoles() Roles {
	return Roles{RoleUser}
}

// OrDefault returns r, or DefaultRoles when r is empty.
func (r Roles) OrDefault() Roles {
	if len(r) == 0 {
		return DefaultRoles()
	}
	out := make(Roles, len(r))
	copy(out, r)
	return out
}

// Account represents a registered user of the shop.
type Account struct {
	ID           uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Name         string     `json:"name" gorm:"size:255;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	DateOfBirth  *time.Time `json:"dob,omitempty"`
	Contact      *string    `json:"contact,omitempty" gorm:"size:64"`
	Roles        Roles      `json:"roles" gorm:"size:255;not null;serializer:json"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// BeforeCreate sets UUID before creating the record.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Sanitize returns the account without its password hash.
func (a *Account) Sanitize() *SanitizedAccount {
	return &SanitizedAccount{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		DateOfBirth: a.DateOfBirth,
		Contact:     a.Contact,
		Roles:       a.Roles.OrDefault(),
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a *Account) Clone() *Account {
	c := *a
	c.Roles = a.Roles.OrDefault()
	if a.DateOfBirth != nil {
		dob := *a.DateOfBirth
		c.DateOfBirth = &dob
	}
	if a.Contact != nil {
		contact := *a.Contact
		c.Contact = &contact
	}
	if a.LastLoginAt != nil {
		last := *a.LastLoginAt
		c.LastLoginAt = &last
	}
	return &c
}

// AccountPatch lists the fields an update may change. Nil fields are left alone.
type AccountPatch struct {
	Name        *string
	Email       *string
	LastLoginAt *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.LastLoginAt == nil
}

// Apply writes the patch onto a.
func (p AccountPatch) Apply(a *Account) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.LastLoginAt != nil {
		last := *p.LastLoginAt
		a.LastLoginAt = &last
	}
}

// SanitizedAccount is an account as returned to callers: no password hash.
type SanitizedAccount struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	DateOfBirth *time.Time `json:"dob,omitempty"`
	Contact     *string    `json:"contact,omitempty"`
	Roles       Roles      `json:"roles"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Summary is the id/name/email triple sent back after register and login.
func (s *SanitizedAccount) Summary() UserSummary {
	return UserSummary{ID: s.ID, Name: s.Name, Email: s.Email}
}

// Profile is the projection served by the profile endpoints.
func (s *SanitizedAccount) Profile() Profile {
	return Profile{Name: s.Name, Email: s.Email, Contact: s.Contact, DateOfBirth: s.DateOfBirth}
}

// UserSummary identifies the authenticated account in auth responses.
type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Profile is the public profile of an account.
type Profile struct {
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Contact     *string    `json:"contact"`
	DateOfBirth *time.Time `json:"dob"`
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
