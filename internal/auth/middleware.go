package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

/* =========================== Principal cache ============================ */

var errUnknownUser = errors.New("user no longer exists")

// Principals resolves token subjects to principals, caching the lookup for a
// short TTL so every request does not hit the users table.
type Principals struct {
	db    *gorm.DB
	cache *gocache.Cache
}

func NewPrincipals(db *gorm.DB, ttl time.Duration) *Principals {
	return &Principals{db: db, cache: gocache.New(ttl, 2*ttl)}
}

// Lookup returns the principal for a user id; the role comes from the store,
// not from the token.
func (p *Principals) Lookup(ctx context.Context, id uuid.UUID) (authz.Principal, error) {
	key := id.String()
	if v, ok := p.cache.Get(key); ok {
		return v.(authz.Principal), nil
	}
	var u models.User
	err := p.db.WithContext(ctx).Select("id", "role").First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authz.Principal{}, errUnknownUser
	}
	if err != nil {
		return authz.Principal{}, err
	}
	pr := authz.Principal{ID: u.ID, Role: u.Role}
	p.cache.SetDefault(key, pr)
	return pr, nil
}

// Forget drops a cached principal.
func (p *Principals) Forget(id uuid.UUID) { p.cache.Delete(id.String()) }

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer access token and injects userID and role into the context.
func RequireAuth(tokens *Tokens, principals *Principals) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}

		claims, err := tokens.Parse(strings.TrimPrefix(h, "Bearer "), kindAccess)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		id, err := uuid.Parse(claims.Sub)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		p, err := principals.Lookup(c.UserContext(), id)
		if errors.Is(err, errUnknownUser) {
			return fiber.ErrUnauthorized
		}
		if err != nil {
			return err
		}

		c.Locals("userID", p.ID.String())
		c.Locals("role", string(p.Role))
		return c.Next()
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case fiber.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// statusOf maps a domain error kind to its HTTP status.
func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindInvalidState:
		return fiber.StatusConflict
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindValidation, apperr.KindExternal:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler returns the global Fiber error handler. Domain and Fiber errors
// are rendered as models.ErrorResponse; anything else is logged and hidden behind a 500.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return c.Status(statusOf(ae.Kind)).JSON(models.ErrorResponse{
				Error:   true,
				Message: ae.Message,
				Code:    ae.Kind.String(),
			})
		}

		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			if strings.TrimSpace(fe.Message) != "" {
				msg = fe.Message
			}
		} else {
			log.Error("unhandled error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Error:   true,
			Message: msg,
			Code:    httpCodeToString(code),
		})
	}
}
