package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/model"
)

type memoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*model.Account
	byEmail map[string]uuid.UUID
}

// NewMemoryAccountRepository returns an in-process repository. Insert-if-absent
// by email happens under a single lock, so it gives the same uniqueness
// guarantee as the database index.
func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		byID:    make(map[uuid.UUID]*model.Account),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *memoryAccountRepository) Create(ctx context.Context, account *model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[account.Email]; taken {
		return apperrors.ErrDuplicateEmail
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	r.byID[account.ID] = account.Clone()
	r.byEmail[account.Email] = account.ID
	return nil
}

func (r *memoryAccountRepository) Update(ctx context.Context, id uuid.UUID, patch model.AccountPatch) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	if patch.Email != nil && *patch.Email != stored.Email {
		if owner, taken := r.byEmail[*patch.Email]; taken && owner != id {
			return nil, apperrors.ErrDuplicateEmail
		}
		delete(r.byEmail, stored.Email)
		r.byEmail[*patch.Email] = id
	}
	patch.Apply(stored)
	return stored.Clone(), nil
}

func (r *memoryAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	return stored.Clone(), nil
}

func (r *memoryAccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	return r.byID[id].Clone(), nil
}
