package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ann@ex.com", NormalizeEmail("  Ann@Ex.COM \t"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestRoles_OrDefault(t *testing.T) {
	assert.Equal(t, Roles{"user"}, Roles(nil).OrDefault())
	assert.Equal(t, Roles{"user"}, Roles{}.OrDefault())

	admin := Roles{"admin", "user"}
	got := admin.OrDefault()
	assert.Equal(t, admin, got)
	got[0] = "changed"
	assert.Equal(t, "admin", admin[0])
}

func TestAccount_SanitizeOmitsPasswordHash(t *testing.T) {
	contact := "+1 555"
	acc := &Account{
		ID:           uuid.New(),
		Name:         "Ann",
		Email:        "ann@ex.com",
		PasswordHash: "$2a$10$secret",
		Contact:      &contact,
		CreatedAt:    time.Now(),
	}

	sanitized := acc.Sanitize()
	data, err := json.Marshal(sanitized)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret")
	assert.Equal(t, Roles{"user"}, sanitized.Roles)
	assert.Equal(t, UserSummary{ID: acc.ID, Name: "Ann", Email: "ann@ex.com"}, sanitized.Summary())
	assert.Equal(t, &contact, sanitized.Profile().Contact)

	raw, err := json.Marshal(acc)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestAccount_CloneIsDeep(t *testing.T) {
	now := time.Now()
	acc := &Account{Name: "Ann", Roles: Roles{"user"}, LastLoginAt: &now}

	c := acc.Clone()
	c.Roles[0] = "admin"
	*c.LastLoginAt = now.Add(time.Hour)

	assert.Equal(t, "user", acc.Roles[0])
	assert.Equal(t, now, *acc.LastLoginAt)
}

func TestAccountPatch_Apply(t *testing.T) {
	name := "Bob"
	email := "bob@ex.com"
	now := time.Now()
	acc := &Account{Name: "Ann", Email: "ann@ex.com"}

	assert.True(t, AccountPatch{}.IsEmpty())

	patch := AccountPatch{Name: &name, Email: &email, LastLoginAt: &now}
	assert.False(t, patch.IsEmpty())
	patch.Apply(acc)

	assert.Equal(t, "Bob", acc.Name)
	assert.Equal(t, "bob@ex.com", acc.Email)
	require.NotNil(t, acc.LastLoginAt)
	assert.Equal(t, now, *acc.LastLoginAt)
}
