package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
	apperrors "github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/model"
	"github.com/vissharm/ecommerce-app-user-service/internal/service"
)

// MockAccountService is a mock implementation of service.AccountService.
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *MockAccountService) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *MockAccountService) GetProfile(ctx context.Context, id uuid.UUID) (*model.SanitizedAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SanitizedAccount), args.Error(1)
}

func (m *MockAccountService) UpdateProfile(ctx context.Context, id uuid.UUID, in service.UpdateProfileInput) (*model.SanitizedAccount, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SanitizedAccount), args.Error(1)
}

func (m *MockAccountService) Logout(ctx context.Context, claims *auth.Claims) error {
	args := m.Called(ctx, claims)
	return args.Error(0)
}

type testValidator struct {
	validator *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = &testValidator{validator: validator.New()}
	return e
}

func sampleAccount() *model.SanitizedAccount {
	contact := "555-0100"
	return &model.SanitizedAccount{
		ID:      uuid.MustParse("9b2f8c1e-0000-4000-8000-000000000001"),
		Name:    "Ann",
		Email:   "ann@ex.com",
		Contact: &contact,
		Roles:   model.DefaultRoles(),
	}
}

func claimsFor(id uuid.UUID) *auth.Claims {
	c := &auth.Claims{Name: "Ann", Email: "ann@ex.com"}
	c.Subject = id.String()
	c.ID = "jti-1"
	return c
}

// serve runs h and lets echo's error handler render any returned error.
func serve(e *echo.Echo, h echo.HandlerFunc, req *http.Request, claims *auth.Claims) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if claims != nil {
		c.Set(ClaimsContextKey, claims)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAccountHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMock  func(*MockAccountService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "created",
			body: `{"name":"Ann","email":"Ann@Ex.com","password":"secret1","dob":"1990-04-01","contact":"555-0100"}`,
			setupMock: func(m *MockAccountService) {
				m.On("Register", mock.Anything, mock.MatchedBy(func(in service.RegisterInput) bool {
					return in.Email == "Ann@Ex.com" && in.DateOfBirth != nil &&
						in.DateOfBirth.Equal(time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC)) &&
						in.Contact != nil && *in.Contact == "555-0100"
				})).Return(&service.AuthResult{Token: "tok", Account: sampleAccount()}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing password",
			body:       `{"name":"Ann","email":"ann@ex.com"}`,
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "bad dob",
			body:       `{"name":"Ann","email":"ann@ex.com","password":"x","dob":"01/04/1990"}`,
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "malformed json",
			body:       `{"name":`,
			setupMock:  func(m *MockAccountService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "duplicate",
			body: `{"name":"Ann","email":"ann@ex.com","password":"secret1"}`,
			setupMock: func(m *MockAccountService) {
				m.On("Register", mock.Anything, mock.Anything).Return(nil, apperrors.ErrDuplicateEmail)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "DUPLICATE_EMAIL",
		},
		{
			name: "internal",
			body: `{"name":"Ann","email":"ann@ex.com","password":"secret1"}`,
			setupMock: func(m *MockAccountService) {
				m.On("Register", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: refused"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAccountService)
			tt.setupMock(svc)
			h := NewAccountHandler(svc, nil)

			rec := serve(newTestEcho(), h.Register, jsonRequest(http.MethodPost, "/api/users/register", tt.body), nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				body := decodeError(t, rec)
				assert.Equal(t, tt.wantCode, body.Code)
				assert.NotContains(t, body.Error, "dial tcp")
				return
			}
			var resp AuthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, "tok", resp.Token)
			assert.Equal(t, "ann@ex.com", resp.User.Email)
			assert.NotContains(t, rec.Body.String(), "password")
			svc.AssertExpectations(t)
		})
	}
}

func TestAccountHandler_Login(t *testing.T) {
	svc := new(MockAccountService)
	svc.On("Login", mock.Anything, "ann@ex.com", "secret1").Return(&service.AuthResult{Token: "tok", Account: sampleAccount()}, nil)
	svc.On("Login", mock.Anything, "ann@ex.com", "wrong").Return(nil, apperrors.ErrInvalidCredentials)
	svc.On("Login", mock.Anything, "nobody@ex.com", "secret1").Return(nil, apperrors.ErrInvalidCredentials)
	h := NewAccountHandler(svc, nil)
	e := newTestEcho()

	rec := serve(e, h.Login, jsonRequest(http.MethodPost, "/api/users/login", `{"email":"ann@ex.com","password":"secret1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, sampleAccount().ID, resp.User.ID)

	wrong := serve(e, h.Login, jsonRequest(http.MethodPost, "/api/users/login", `{"email":"ann@ex.com","password":"wrong"}`), nil)
	unknown := serve(e, h.Login, jsonRequest(http.MethodPost, "/api/users/login", `{"email":"nobody@ex.com","password":"secret1"}`), nil)
	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
}

func TestAccountHandler_GetProfile(t *testing.T) {
	account := sampleAccount()

	t.Run("ok", func(t *testing.T) {
		svc := new(MockAccountService)
		svc.On("GetProfile", mock.Anything, account.ID).Return(account, nil)
		h := NewAccountHandler(svc, nil)

		rec := serve(newTestEcho(), h.GetProfile, httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), claimsFor(account.ID))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"name":"Ann","email":"ann@ex.com","contact":"555-0100","dob":null}`, rec.Body.String())
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockAccountService)
		svc.On("GetProfile", mock.Anything, account.ID).Return(nil, apperrors.ErrAccountNotFound)
		h := NewAccountHandler(svc, nil)

		rec := serve(newTestEcho(), h.GetProfile, httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), claimsFor(account.ID))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "ACCOUNT_NOT_FOUND", decodeError(t, rec).Code)
	})

	t.Run("no claims", func(t *testing.T) {
		h := NewAccountHandler(new(MockAccountService), nil)

		rec := serve(newTestEcho(), h.GetProfile, httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "TOKEN_INVALID", decodeError(t, rec).Code)
	})

	t.Run("bad subject", func(t *testing.T) {
		h := NewAccountHandler(new(MockAccountService), nil)
		claims := claimsFor(account.ID)
		claims.Subject = "not-a-uuid"

		rec := serve(newTestEcho(), h.GetProfile, httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), claims)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAccountHandler_UpdateProfile(t *testing.T) {
	account := sampleAccount()

	t.Run("ok", func(t *testing.T) {
		updated := sampleAccount()
		updated.Email = "annie@ex.com"
		svc := new(MockAccountService)
		svc.On("UpdateProfile", mock.Anything, account.ID, mock.MatchedBy(func(in service.UpdateProfileInput) bool {
			return in.Name == nil && in.Email != nil && *in.Email == "annie@ex.com"
		})).Return(updated, nil)
		h := NewAccountHandler(svc, nil)

		req := jsonRequest(http.MethodPut, "/api/users/profile", `{"email":"annie@ex.com"}`)
		rec := serve(newTestEcho(), h.UpdateProfile, req, claimsFor(account.ID))

		require.Equal(t, http.StatusOK, rec.Code)
		var profile model.Profile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
		assert.Equal(t, "annie@ex.com", profile.Email)
		svc.AssertExpectations(t)
	})

	t.Run("duplicate", func(t *testing.T) {
		svc := new(MockAccountService)
		svc.On("UpdateProfile", mock.Anything, account.ID, mock.Anything).Return(nil, apperrors.ErrDuplicateEmail)
		h := NewAccountHandler(svc, nil)

		req := jsonRequest(http.MethodPut, "/api/users/profile", `{"email":"bob@ex.com"}`)
		rec := serve(newTestEcho(), h.UpdateProfile, req, claimsFor(account.ID))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "DUPLICATE_EMAIL", decodeError(t, rec).Code)
	})
}

func TestAccountHandler_Logout(t *testing.T) {
	account := sampleAccount()
	claims := claimsFor(account.ID)
	svc := new(MockAccountService)
	svc.On("Logout", mock.Anything, claims).Return(nil)
	h := NewAccountHandler(svc, nil)

	rec := serve(newTestEcho(), h.Logout, httptest.NewRequest(http.MethodPost, "/api/users/logout", nil), claims)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestParseDate(t *testing.T) {
	str := func(s string) *string { return &s }

	got, err := parseDate(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDate(str("1990-04-01"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseDate(str("1990-04-01T10:00:00+02:00"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(1990, 4, 1, 8, 0, 0, 0, time.UTC), *got)

	_, err = parseDate(str("April 1st"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAccountHandler_ValidationMessages(t *testing.T) {
	long := strings.Repeat("x", 256)
	tests := []struct {
		name    string
		handler func(*AccountHandler) echo.HandlerFunc
		method  string
		body    string
		want    string
	}{
		{
			name:    "register missing name",
			handler: func(h *AccountHandler) echo.HandlerFunc { return h.Register },
			method:  http.MethodPost,
			body:    `{"email":"ann@ex.com","password":"secret1"}`,
			want:    "validation failed: name is required",
		},
		{
			name:    "register missing password",
			handler: func(h *AccountHandler) echo.HandlerFunc { return h.Register },
			method:  http.MethodPost,
			body:    `{"name":"Ann","email":"ann@ex.com"}`,
			want:    "validation failed: password is required",
		},
		{
			name:    "register name too long",
			handler: func(h *AccountHandler) echo.HandlerFunc { return h.Register },
			method:  http.MethodPost,
			body:    `{"name":"` + long + `","email":"ann@ex.com","password":"secret1"}`,
			want:    "validation failed: name must be at most 255 characters",
		},
		{
			name:    "register contact too long",
			handler: func(h *AccountHandler) echo.HandlerFunc { return h.Register },
			method:  http.MethodPost,
			body:    `{"name":"Ann","email":"ann@ex.com","password":"secret1","contact":"` + strings.Repeat("1", 65) + `"}`,
			want:    "validation failed: contact must be at most 64 characters",
		},
		{
			name:    "update email too long",
			handler: func(h *AccountHandler) echo.HandlerFunc { return h.UpdateProfile },
			method:  http.MethodPut,
			body:    `{"email":"` + long + `"}`,
			want:    "validation failed: email must be at most 255 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAccountService)
			h := NewAccountHandler(svc, nil)

			rec := serve(newTestEcho(), tt.handler(h), jsonRequest(tt.method, "/api/users/x", tt.body), claimsFor(uuid.New()))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", body.Code)
			assert.Equal(t, tt.want, body.Error)
			assert.NotContains(t, body.Error, "Key:")
			svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
			svc.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDescribeValidation_NonValidatorError(t *testing.T) {
	assert.Equal(t, "request is invalid", describeValidation(errors.New("boom")))
}
