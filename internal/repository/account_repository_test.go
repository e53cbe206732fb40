package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/model"
)

func newAccount(email string) *model.Account {
	return &model.Account{
		Name:         "Ann",
		Email:        email,
		PasswordHash: "hash",
		Roles:        model.DefaultRoles(),
		CreatedAt:    time.Now(),
	}
}

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, translateError("op", gorm.ErrRecordNotFound), apperrors.ErrAccountNotFound)
	assert.ErrorIs(t, translateError("op", gorm.ErrDuplicatedKey), apperrors.ErrDuplicateEmail)

	cause := errors.New("connection reset")
	err := translateError("create account", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "create account: connection reset", err.Error())
}

func TestMemoryRepository_CreateAndFind(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	acc := newAccount("ann@ex.com")
	require.NoError(t, repo.Create(ctx, acc))
	assert.NotEqual(t, uuid.Nil, acc.ID)

	byEmail, err := repo.FindByEmail(ctx, "ann@ex.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byEmail.ID)

	byID, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann@ex.com", byID.Email)

	_, err = repo.FindByEmail(ctx, "nobody@ex.com")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	acc := newAccount("ann@ex.com")
	require.NoError(t, repo.Create(ctx, acc))

	found, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	found.Name = "Mallory"

	again, err := repo.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", again.Name)
}

func TestMemoryRepository_DuplicateEmail(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newAccount("ann@ex.com")))
	err := repo.Create(ctx, newAccount("ann@ex.com"))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
}

func TestMemoryRepository_ConcurrentCreateKeepsOneAccount(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newAccount("race@ex.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperrors.ErrDuplicateEmail):
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, dupes)
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	ann := newAccount("ann@ex.com")
	bob := newAccount("bob@ex.com")
	require.NoError(t, repo.Create(ctx, ann))
	require.NoError(t, repo.Create(ctx, bob))

	name := "Annie"
	email := "annie@ex.com"
	now := time.Now()
	updated, err := repo.Update(ctx, ann.ID, model.AccountPatch{Name: &name, Email: &email, LastLoginAt: &now})
	require.NoError(t, err)
	assert.Equal(t, "Annie", updated.Name)
	assert.Equal(t, "annie@ex.com", updated.Email)
	require.NotNil(t, updated.LastLoginAt)

	_, err = repo.FindByEmail(ctx, "ann@ex.com")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	found, err := repo.FindByEmail(ctx, "annie@ex.com")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, found.ID)

	taken := "bob@ex.com"
	_, err = repo.Update(ctx, ann.ID, model.AccountPatch{Email: &taken})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
	still, err := repo.FindByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "annie@ex.com", still.Email)

	same := "annie@ex.com"
	_, err = repo.Update(ctx, ann.ID, model.AccountPatch{Email: &same})
	assert.NoError(t, err)

	_, err = repo.Update(ctx, uuid.New(), model.AccountPatch{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestMemoryRepository_CanceledContext(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.Create(ctx, newAccount("ann@ex.com")), context.Canceled)
	_, err := repo.FindByEmail(ctx, "ann@ex.com")
	assert.ErrorIs(t, err, context.Canceled)
}
