package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
	"github.com/vissharm/ecommerce-app-user-service/internal/cache"
	apperrors "github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/events"
	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
	"github.com/vissharm/ecommerce-app-user-service/internal/model"
	"github.com/vissharm/ecommerce-app-user-service/internal/observability"
	"github.com/vissharm/ecommerce-app-user-service/internal/repository"
)

const (
	// DefaultTimeout bounds every operation when no timeout is configured.
	DefaultTimeout = 10 * time.Second

	profileCacheTTL    = 5 * time.Minute
	profileCachePrefix = "account:"
	publishTimeout     = 2 * time.Second

	// dummyPassword is hashed once and verified against for unknown emails.
	dummyPassword = "not-a-real-password"
)

// Column widths of the accounts table, in characters.
const (
	MaxNameLength    = 255
	MaxEmailLength   = 255
	MaxContactLength = 64
)

// Operation names used in logs and metrics.
const (
	OpRegister      = "register"
	OpLogin         = "login"
	OpGetProfile    = "get_profile"
	OpUpdateProfile = "update_profile"
	OpLogout        = "logout"
)

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	DateOfBirth *time.Time
	Contact     *string
}

// UpdateProfileInput carries the optional fields of a profile update.
type UpdateProfileInput struct {
	Name  *string
	Email *string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token   string
	Account *model.SanitizedAccount
}

// AccountService handles registration, login and profile operations.
type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	GetProfile(ctx context.Context, accountID uuid.UUID) (*model.SanitizedAccount, error)
	UpdateProfile(ctx context.Context, accountID uuid.UUID, in UpdateProfileInput) (*model.SanitizedAccount, error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

// Options holds the collaborators of the account service. Cache, Publisher,
// Metrics and Logger are optional.
type Options struct {
	Repository repository.AccountRepository
	Hasher     auth.PasswordHasher
	Tokens     *auth.JWTService
	TokenStore auth.TokenStoreInterface
	Cache      *cache.Client
	Publisher  events.Publisher
	Metrics    *observability.Metrics
	Logger     logging.Logger
	Timeout    time.Duration
}

type accountService struct {
	repo       repository.AccountRepository
	hasher     auth.PasswordHasher
	tokens     *auth.JWTService
	tokenStore auth.TokenStoreInterface
	cache      *cache.Client
	publisher  events.Publisher
	metrics    *observability.Metrics
	logger     logging.Logger
	timeout    time.Duration
	validate   *validator.Validate
	now        func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

// NewAccountService creates a new account service.
func NewAccountService(opts Options) AccountService {
	svc := &accountService{
		repo:       opts.Repository,
		hasher:     opts.Hasher,
		tokens:     opts.Tokens,
		tokenStore: opts.TokenStore,
		cache:      opts.Cache,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		timeout:    opts.Timeout,
		validate:   validator.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if svc.publisher == nil {
		svc.publisher = events.NopPublisher{}
	}
	if svc.logger == nil {
		svc.logger = logging.Nop()
	}
	if svc.timeout <= 0 {
		svc.timeout = DefaultTimeout
	}
	return svc
}

// Register validates the input, stores a new account and issues its first token.
func (s *accountService) Register(ctx context.Context, in RegisterInput) (result *AuthResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() { s.observe(OpRegister, err) }()

	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)
	switch {
	case name == "":
		return nil, apperrors.Validation("name is required")
	case email == "":
		return nil, apperrors.Validation("email is required")
	case in.Password == "":
		return nil, apperrors.Validation("password is required")
	}
	if err := checkLength("name", name, MaxNameLength); err != nil {
		return nil, err
	}
	if err := checkLength("email", email, MaxEmailLength); err != nil {
		return nil, err
	}
	contact := trimmedOrNil(in.Contact)
	if contact != nil {
		if err := checkLength("contact", *contact, MaxContactLength); err != nil {
			return nil, err
		}
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return nil, apperrors.Validation("email is malformed")
	}

	// The store's unique index is authoritative; this only avoids a wasted hash.
	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, apperrors.ErrDuplicateEmail
	case err != nil && !errors.Is(err, apperrors.ErrAccountNotFound):
		return nil, fmt.Errorf("check account existence: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.Validation("password is too long")
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &model.Account{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		DateOfBirth:  in.DateOfBirth,
		Contact:      contact,
		Roles:        model.DefaultRoles(),
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEmail) {
			return nil, apperrors.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	sanitized := account.Sanitize()
	token, err := s.issue(sanitized)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID.String())
	s.publish(ctx, events.TypeAccountRegistered, sanitized)
	return &AuthResult{Token: token, Account: sanitized}, nil
}

// Login checks the credentials, records the login time and issues a token.
func (s *accountService) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() { s.observe(OpLogin, err) }()

	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrAccountNotFound) {
			return nil, fmt.Errorf("find account: %w", err)
		}
		// Spend the same hashing time as a real verify.
		if _, verr := s.hasher.Verify(ctx, password, s.dummy(ctx)); verr != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("verify password: %w", ctx.Err())
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now()
	updated, err := s.repo.Update(ctx, account.ID, model.AccountPatch{LastLoginAt: &now})
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	sanitized := updated.Sanitize()
	s.store(ctx, sanitized)

	token, err := s.issue(sanitized)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeAccountLoggedIn, sanitized)
	return &AuthResult{Token: token, Account: sanitized}, nil
}

// GetProfile returns the sanitized account, served from cache when possible.
func (s *accountService) GetProfile(ctx context.Context, accountID uuid.UUID) (result *model.SanitizedAccount, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() { s.observe(OpGetProfile, err) }()

	var cached model.SanitizedAccount
	if s.cache.GetJSON(ctx, profileCacheKey(accountID), &cached) {
		return &cached, nil
	}

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	// Only fill an empty slot: an update that committed after the read above
	// has already written a newer copy.
	sanitized := account.Sanitize()
	if err := s.cache.SetJSONIfAbsent(ctx, profileCacheKey(accountID), sanitized, profileCacheTTL); err != nil {
		s.logger.Warn(ctx, "profile cache write failed", "account_id", accountID.String(), "error", err)
	}
	return sanitized, nil
}

// UpdateProfile applies a name and/or email change.
func (s *accountService) UpdateProfile(ctx context.Context, accountID uuid.UUID, in UpdateProfileInput) (result *model.SanitizedAccount, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() { s.observe(OpUpdateProfile, err) }()

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	var patch model.AccountPatch
	if in.Name != nil {
		if name := strings.TrimSpace(*in.Name); name != "" && name != account.Name {
			if err := checkLength("name", name, MaxNameLength); err != nil {
				return nil, err
			}
			patch.Name = &name
		}
	}
	if in.Email != nil {
		email := model.NormalizeEmail(*in.Email)
		if email != "" && email != account.Email {
			if err := checkLength("email", email, MaxEmailLength); err != nil {
				return nil, err
			}
			if err := s.validate.Var(email, "email"); err != nil {
				return nil, apperrors.Validation("email is malformed")
			}
			owner, err := s.repo.FindByEmail(ctx, email)
			switch {
			case err == nil && owner != nil && owner.ID != account.ID:
				return nil, apperrors.ErrDuplicateEmail
			case err != nil && !errors.Is(err, apperrors.ErrAccountNotFound):
				return nil, fmt.Errorf("check email owner: %w", err)
			}
			patch.Email = &email
		}
	}

	if patch.IsEmpty() {
		return account.Sanitize(), nil
	}

	updated, err := s.repo.Update(ctx, accountID, patch)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrDuplicateEmail):
			return nil, apperrors.ErrDuplicateEmail
		case errors.Is(err, apperrors.ErrAccountNotFound):
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	sanitized := updated.Sanitize()
	s.store(ctx, sanitized)
	s.publish(ctx, events.TypeProfileUpdated, sanitized)
	return sanitized, nil
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *accountService) Logout(ctx context.Context, claims *auth.Claims) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() { s.observe(OpLogout, err) }()

	if claims == nil || claims.ID == "" {
		return auth.ErrTokenInvalid
	}
	if s.tokenStore == nil {
		return nil
	}
	if err := s.tokenStore.RevokeToken(ctx, claims.ID, claims.RemainingTTL(s.now())); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *accountService) issue(account *model.SanitizedAccount) (string, error) {
	token, err := s.tokens.GenerateToken(auth.Identity{
		ID:    account.ID,
		Name:  account.Name,
		Email: account.Email,
		Roles: account.Roles,
	})
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// dummy returns a hash of a throwaway password. Only a successful hash is
// kept; after a failure the next call tries again.
func (s *accountService) dummy(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyHash != "" {
		return s.dummyHash
	}
	hash, err := s.hasher.Hash(context.WithoutCancel(ctx), dummyPassword)
	if err != nil {
		s.logger.Error(ctx, "dummy hash failed", "error", err)
		return ""
	}
	s.dummyHash = hash
	return hash
}

// publish emits an event without letting its outcome affect the caller.
func (s *accountService) publish(ctx context.Context, eventType string, account *model.SanitizedAccount) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := events.AccountEvent{
		AccountID:  account.ID.String(),
		Name:       account.Name,
		Email:      account.Email,
		OccurredAt: s.now(),
	}
	if err := s.publisher.Publish(ctx, eventType, event); err != nil {
		s.logger.Warn(ctx, "event publish failed", "type", eventType, "account_id", event.AccountID, "error", err)
	}
}

func checkLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return apperrors.Validation("%s must be at most %d characters", field, limit)
	}
	return nil
}

// store writes the freshly committed profile through to the cache.
func (s *accountService) store(ctx context.Context, account *model.SanitizedAccount) {
	if err := s.cache.SetJSON(ctx, profileCacheKey(account.ID), account, profileCacheTTL); err != nil {
		s.logger.Warn(ctx, "profile cache write failed", "account_id", account.ID.String(), "error", err)
	}
}

func (s *accountService) observe(op string, err error) {
	outcome := observability.OutcomeSuccess
	switch {
	case err == nil:
	case apperrors.IsInternal(err):
		outcome = observability.OutcomeError
	default:
		outcome = observability.OutcomeRejected
	}
	s.metrics.ObserveAuth(op, outcome)
}

func profileCacheKey(id uuid.UUID) string {
	return profileCachePrefix + id.String()
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
