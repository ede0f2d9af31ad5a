// Package authz is the single capability check for the API. Handlers ask
// Authorize(principal, action, resource) instead of testing roles inline, and
// list endpoints filter rows through the visibility scopes in scopes.go.
package authz

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

// Principal is the authenticated caller.
type Principal struct {
	ID   uuid.UUID
	Role models.Role
}

func (p Principal) IsClient() bool { return p.Role == models.RoleClient }
func (p Principal) IsLawyer() bool { return p.Role == models.RoleLawyer }

type Action string

const (
	FileRequest     Action = "case_request:create"
	ListOwnRequests Action = "case_request:list_own"
	UpdateRequest   Action = "case_request:update"
	WithdrawRequest Action = "case_request:withdraw"
	AttachDocument  Action = "case_request:attach"
	ApproveRequest  Action = "case_request:approve"
	RejectRequest   Action = "case_request:reject"

	CreateCase    Action = "case:create"
	UpdateCase    Action = "case:update"
	RemindPayment Action = "case:remind_payment"
	ReadDocument  Action = "document:read"

	CreateNote Action = "note:create"
	ListNotes  Action = "note:list"
	UpdateNote Action = "note:update"

	CreatePayment       Action = "payment:create"
	CreatePaymentIntent Action = "payment:create_intent"
	ConfirmPayment      Action = "payment:confirm"
)

// Resource carries the ownership facts an action is checked against.
type Resource struct {
	ClientID uuid.UUID  // owning client of the request/case
	LawyerID *uuid.UUID // assigned lawyer of the case
	AuthorID uuid.UUID  // author of a note
	Pending  bool       // request still awaiting a decision
}

var errDenied = apperr.Forbidden("You do not have permission to perform this action")

// Authorize returns nil when p may perform a on r, and a Forbidden error otherwise.
func Authorize(p Principal, a Action, r Resource) error {
	if allowed(p, a, r) {
		return nil
	}
	return errDenied
}

func allowed(p Principal, a Action, r Resource) bool {
	if p.ID == uuid.Nil {
		return false
	}
	switch a {
	case FileRequest, ListOwnRequests:
		return p.IsClient()
	case ApproveRequest, RejectRequest, CreateCase:
		return p.IsLawyer()
	case UpdateRequest, WithdrawRequest, AttachDocument:
		return p.IsClient() && r.ClientID == p.ID
	case UpdateCase, RemindPayment:
		return p.IsLawyer() && isAssigned(p, r)
	case ReadDocument:
		if p.IsClient() {
			return r.ClientID == p.ID
		}
		return p.IsLawyer() && (r.Pending || isAssigned(p, r))
	case CreateNote, ListNotes:
		// Not scoped to the case's client/lawyer pair.
		return true
	case UpdateNote:
		return r.AuthorID == p.ID
	case CreatePaymentIntent:
		return p.IsClient() && r.ClientID == p.ID
	case CreatePayment, ConfirmPayment:
		return (p.IsClient() && r.ClientID == p.ID) || (p.IsLawyer() && isAssigned(p, r))
	default:
		return false
	}
}

func isAssigned(p Principal, r Resource) bool {
	return r.LawyerID != nil && *r.LawyerID == p.ID
}

/* ============================ Fiber helpers ============================= */

// FromCtx reads the principal placed in locals by the auth middleware.
func FromCtx(c *fiber.Ctx) (Principal, bool) {
	id, _ := c.Locals("userID").(string)
	role, _ := c.Locals("role").(string)
	uid, err := uuid.Parse(id)
	if err != nil {
		return Principal{}, false
	}
	return Principal{ID: uid, Role: models.Role(role)}, true
}

// MustPrincipal reads the principal or panics (route is missing RequireAuth).
func MustPrincipal(c *fiber.Ctx) Principal {
	p, ok := FromCtx(c)
	if !ok {
		panic(errors.New("principal not in context"))
	}
	return p
}

// Require rejects the request unless the caller may perform a, judged on role alone.
func Require(a Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := FromCtx(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		if err := Authorize(p, a, Resource{}); err != nil {
			return err
		}
		return c.Next()
	}
}
