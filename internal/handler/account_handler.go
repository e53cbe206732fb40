package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
	"github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
	"github.com/vissharm/ecommerce-app-user-service/internal/model"
	"github.com/vissharm/ecommerce-app-user-service/internal/service"
)

// ClaimsContextKey is where the auth middleware stores the verified *auth.Claims.
const ClaimsContextKey = "user"

const dateLayout = "2006-01-02"

// AccountHandler handles the /api/users endpoints.
type AccountHandler struct {
	accountService service.AccountService
	logger         logging.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountService service.AccountService, logger logging.Logger) *AccountHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &AccountHandler{accountService: accountService, logger: logger}
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Email    string  `json:"email" validate:"required,max=255"`
	Password string  `json:"password" validate:"required"`
	DOB      *string `json:"dob,omitempty"`
	Contact  *string `json:"contact,omitempty" validate:"omitempty,max=64"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=255"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest represents a profile update. Absent fields are left alone.
type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Email *string `json:"email,omitempty" validate:"omitempty,max=255"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    model.UserSummary `json:"user"`
}

// SuccessResponse is returned by operations with no payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// Register godoc
// @Summary Register a new user
// @Tags users
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	dob, err := parseDate(req.DOB)
	if err != nil {
		return h.fail(c, err)
	}

	result, err := h.accountService.Register(c.Request().Context(), service.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		DateOfBirth: dob,
		Contact:     req.Contact,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, AuthResponse{
		Success: true,
		Token:   result.Token,
		User:    result.Account.Summary(),
	})
}

// Login godoc
// @Summary Login user
// @Tags users
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	result, err := h.accountService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Token:   result.Token,
		User:    result.Account.Summary(),
	})
}

// GetProfile godoc
// @Summary Get the caller's profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.Profile
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/profile [get]
func (h *AccountHandler) GetProfile(c echo.Context) error {
	claims, err := claimsFromContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return h.fail(c, auth.ErrTokenInvalid)
	}

	account, err := h.accountService.GetProfile(c.Request().Context(), accountID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, account.Profile())
}

// UpdateProfile godoc
// @Summary Update the caller's name and/or email
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} model.Profile
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/profile [put]
func (h *AccountHandler) UpdateProfile(c echo.Context) error {
	claims, err := claimsFromContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return h.fail(c, auth.ErrTokenInvalid)
	}

	var req UpdateProfileRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	account, err := h.accountService.UpdateProfile(c.Request().Context(), accountID, service.UpdateProfileInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, account.Profile())
}

// Logout godoc
// @Summary Revoke the presented token
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/logout [post]
func (h *AccountHandler) Logout(c echo.Context) error {
	claims, err := claimsFromContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.accountService.Logout(c.Request().Context(), claims); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *AccountHandler) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if c.Echo().Validator == nil {
		return nil
	}
	if err := c.Validate(req); err != nil {
		return h.fail(c, errors.Validation("%s", describeValidation(err)))
	}
	return nil
}

// describeValidation turns the first failed rule into a client-facing message.
func describeValidation(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return "request is invalid"
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "email":
		return field + " is malformed"
	default:
		return field + " is invalid"
	}
}

// fail maps err to the JSON error body. Internal causes are logged, never returned.
func (h *AccountHandler) fail(c echo.Context, err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	if httpErr.StatusCode == http.StatusInternalServerError {
		h.logger.Error(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		)
	}
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func claimsFromContext(c echo.Context) (*auth.Claims, error) {
	claims, ok := c.Get(ClaimsContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return nil, auth.ErrTokenInvalid
	}
	return claims, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.Validation("dob must be a date (YYYY-MM-DD)")
}
