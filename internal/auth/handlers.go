package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /auth/register
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,username"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	Role            string `json:"role" validate:"required,oneof=client lawyer"`
}

// Request body for /auth/token. Username may also be the account email.
type TokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Request body for /auth/token/refresh
type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type AccessResponse struct {
	Access string `json:"access"`
}

// Profile response for /profile
type ProfileResponse struct {
	ID        uuid.UUID   `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Phone     string      `json:"phone"`
	Address   string      `json:"address"`
	City      string      `json:"city"`
	State     string      `json:"state"`
	Zipcode   string      `json:"zipcode"`
	Bio       string      `json:"bio"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Request body for PATCH /profile. Role is deliberately absent.
type UpdateProfileRequest struct {
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Phone     *string `json:"phone" validate:"omitempty,phone"`
	Address   *string `json:"address" validate:"omitempty,max=1000"`
	City      *string `json:"city" validate:"omitempty,max=100"`
	State     *string `json:"state" validate:"omitempty,max=100"`
	Zipcode   *string `json:"zipcode" validate:"omitempty,max=20"`
	Bio       *string `json:"bio" validate:"omitempty,max=2000"`
}

func toProfile(u models.User) ProfileResponse {
	return ProfileResponse{
		ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role,
		FirstName: u.FirstName, LastName: u.LastName,
		Phone: u.Phone, Address: u.Address, City: u.City, State: u.State,
		Zipcode: u.Zipcode, Bio: u.Bio,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

/* ============================== Handler ================================= */

type Handler struct {
	db         *gorm.DB
	tokens     *Tokens
	principals *Principals
}

func NewHandler(db *gorm.DB, tokens *Tokens, principals *Principals) *Handler {
	return &Handler{db: db, tokens: tokens, principals: principals}
}

const badCredentials = "No active account found with the given credentials"

/* ============================== Register ================================ */

// @Summary      Register
// @Description  Register a new user (client or lawyer)
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  RegisterRequest  true  "Registration payload"
// @Success      201      {object}  ProfileResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Router       /auth/register [post]
func (h *Handler) Register(c *fiber.Ctx) error {
	var in RegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	// Uniqueness is reported per field, like other validation errors
	db := h.db.WithContext(c.UserContext())
	errs := map[string][]string{}
	var n int64
	if err := db.Model(&models.User{}).Where("username = ?", in.Username).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		errs["username"] = append(errs["username"], "A user with that username already exists.")
	}
	if err := db.Model(&models.User{}).Where("email = ?", in.Email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		errs["email"] = append(errs["email"], "A user with that email already exists.")
	}
	if len(errs) > 0 {
		return validation.Respond(c, errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	u := models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.Role(in.Role),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if err := db.Create(&u).Error; err != nil {
		// lost a race with a concurrent registration
		return fiber.NewError(fiber.StatusConflict, "username or email already exists")
	}
	return c.Status(fiber.StatusCreated).JSON(toProfile(u))
}

/* ================================ Token ================================= */

// @Summary      Obtain token pair
// @Description  Authenticate with username (or email) and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  TokenRequest  true  "Credentials"
// @Success      200      {object}  TokenPair
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /auth/token [post]
func (h *Handler) Token(c *fiber.Ctx) error {
	var in TokenRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Username = strings.TrimSpace(in.Username)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	err := h.db.WithContext(c.UserContext()).
		Where("username = ? OR email = ?", in.Username, strings.ToLower(in.Username)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, badCredentials)
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.NewError(fiber.StatusUnauthorized, badCredentials)
	}

	pair, err := h.tokens.Issue(u.ID.String(), string(u.Role))
	if err != nil {
		return err
	}
	return c.JSON(pair)
}

// @Summary      Refresh access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  RefreshRequest  true  "Refresh token"
// @Success      200      {object}  AccessResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /auth/token/refresh [post]
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var in RefreshRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	claims, err := h.tokens.Parse(in.Refresh, kindRefresh)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Token is invalid or expired")
	}
	id, err := uuid.Parse(claims.Sub)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Token is invalid or expired")
	}
	p, err := h.principals.Lookup(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Token is invalid or expired")
	}

	access, err := h.tokens.IssueAccess(p.ID.String(), string(p.Role))
	if err != nil {
		return err
	}
	return c.JSON(AccessResponse{Access: access})
}

/* =============================== Profile ================================ */

// @Summary      Get current user profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  ProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /profile [get]
func (h *Handler) Profile(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)

	var u models.User
	err := h.db.WithContext(c.UserContext()).First(&u, "id = ?", p.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	return c.JSON(toProfile(u))
}

// @Summary      Update current user profile
// @Description  Partial update; role cannot be changed
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateProfileRequest  true  "Fields to update"
// @Success      200  {object}  ProfileResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /profile [patch]
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)

	var in UpdateProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if in.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = &e
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	db := h.db.WithContext(c.UserContext())
	var u models.User
	err := db.First(&u, "id = ?", p.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.ErrUnauthorized
	}
	if err != nil {
		return err
	}

	if in.Email != nil && *in.Email != u.Email {
		var n int64
		if err := db.Model(&models.User{}).Where("email = ? AND id <> ?", *in.Email, u.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return validation.Respond(c, map[string][]string{
				"email": {"A user with that email already exists."},
			})
		}
	}

	updates := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("email", in.Email)
	set("first_name", in.FirstName)
	set("last_name", in.LastName)
	set("phone", in.Phone)
	set("address", in.Address)
	set("city", in.City)
	set("state", in.State)
	set("zipcode", in.Zipcode)
	set("bio", in.Bio)

	if len(updates) > 0 {
		if err := db.Model(&u).Updates(updates).Error; err != nil {
			return err
		}
	}
	if err := db.First(&u, "id = ?", p.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrUnauthorized
		}
		return err
	}
	return c.JSON(toProfile(u))
}
