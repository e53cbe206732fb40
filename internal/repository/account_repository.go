package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/model"
)

// AccountRepository defines account persistence operations. Emails passed in
// are expected to be normalized already; implementations enforce that no two
// accounts share an email, even under concurrent writes.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	Update(ctx context.Context, id uuid.UUID, patch model.AccountPatch) (*model.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new GORM-backed account repository.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create inserts a new account. The unique index on email makes the insert
// atomic with respect to email uniqueness.
func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return translateError("create account", err)
	}
	return nil
}

// Update applies patch to the account with id inside a transaction and returns
// the stored result.
func (r *accountRepository) Update(ctx context.Context, id uuid.UUID, patch model.AccountPatch) (*model.Account, error) {
	var updated model.Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&updated).Error; err != nil {
			return err
		}
		if patch.IsEmpty() {
			return nil
		}

		fields := map[string]interface{}{}
		if patch.Name != nil {
			fields["name"] = *patch.Name
		}
		if patch.Email != nil {
			fields["email"] = *patch.Email
		}
		if patch.LastLoginAt != nil {
			fields["last_login_at"] = *patch.LastLoginAt
		}
		if err := tx.Model(&model.Account{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return nil, translateError("update account", err)
	}
	return &updated, nil
}

// FindByID finds an account by ID.
func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, translateError("find account by id", err)
	}
	return &account, nil
}

// FindByEmail finds an account by its normalized email.
func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, translateError("find account by email", err)
	}
	return &account, nil
}

// translateError maps GORM errors onto the domain errors the service expects.
func translateError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrAccountNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.ErrDuplicateEmail
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
