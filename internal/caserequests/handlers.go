// Package caserequests serves the client-facing ledger of case requests:
// filing, editing and withdrawing while pending, attaching a document, and
// the lawyer's view of the pending queue.
package caserequests

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/storage"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
	"github.com/aldoetobex/lawsuit-backend/pkg/validation"
)

type Handler struct {
	db    *gorm.DB
	store storage.ObjectStore // nil when storage is not configured
	log   *zap.Logger
}

func NewHandler(db *gorm.DB, store storage.ObjectStore, log *zap.Logger) *Handler {
	return &Handler{db: db, store: store, log: log.Named("caserequests")}
}

var requestOrdering = []string{"created_at", "amount_involved"}

func withClient(db *gorm.DB) *gorm.DB { return db.Preload("Client") }

func toPage(pg models.Page[models.CaseRequest], p authz.Principal) models.Page[RequestResponse] {
	return models.Page[RequestResponse]{
		Page: pg.Page, PageSize: pg.PageSize, Total: pg.Total, Pages: pg.Pages,
		Items: lo.Map(pg.Items, func(r models.CaseRequest, _ int) RequestResponse { return toResponse(r, p) }),
	}
}

// lookup finds an open request visible to p. Resolved requests are soft
// deleted and only reachable through my_cases and the derived case/rejection.
func (h *Handler) lookup(ctx context.Context, db *gorm.DB, id uuid.UUID, p authz.Principal) (models.CaseRequest, error) {
	var r models.CaseRequest
	err := db.WithContext(ctx).Scopes(authz.RequestScope(p)).
		First(&r, "case_requests.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, apperr.NotFound("case request not found")
	}
	return r, err
}

/* ================================= List ================================= */

// @Summary      List case requests
// @Description  Clients see their open requests; lawyers see every pending request (contact details redacted)
// @Tags         case-requests
// @Security     BearerAuth
// @Produce      json
// @Param        page       query int    false "page"
// @Param        pageSize   query int    false "pageSize"
// @Param        status     query string false "pending|approved|rejected"
// @Param        case_type  query string false "case type"
// @Param        search     query string false "title or description"
// @Param        ordering   query string false "created_at, amount_involved, prefix - for descending"
// @Success      200  {object}  models.Page[RequestResponse]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /case-requests [get]
func (h *Handler) List(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.CaseRequest{}).Scopes(authz.RequestScope(p))
	if st := strings.TrimSpace(c.Query("status")); st != "" {
		q = q.Where("case_requests.status = ?", st)
	}
	if ct := strings.TrimSpace(c.Query("case_type")); ct != "" {
		q = q.Where("case_requests.case_type = ?", ct)
	}
	q = utils.Search(q, c.Query("search"), "case_requests.title", "case_requests.description")
	order := utils.Ordering(c.Query("ordering"), "case_requests", requestOrdering, "case_requests.created_at DESC")

	var rows []models.CaseRequest
	pg, err := utils.Paginate(q, page, size, &rows, withClient, func(db *gorm.DB) *gorm.DB { return db.Order(order) })
	if err != nil {
		return err
	}
	return c.JSON(toPage(pg, p))
}

// @Summary      My case requests
// @Description  Every request the client filed, including approved and rejected ones
// @Tags         case-requests
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  models.Page[RequestResponse]
// @Failure      403  {object}  models.ErrorResponse
// @Router       /case-requests/my_cases [get]
func (h *Handler) MyCases(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	if err := authz.Authorize(p, authz.ListOwnRequests, authz.Resource{}); err != nil {
		return err
	}
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Unscoped().Model(&models.CaseRequest{}).
		Where("case_requests.client_id = ?", p.ID)

	var rows []models.CaseRequest
	pg, err := utils.Paginate(q, page, size, &rows, withClient,
		func(db *gorm.DB) *gorm.DB { return db.Order("case_requests.created_at DESC") })
	if err != nil {
		return err
	}
	return c.JSON(toPage(pg, p))
}

// @Summary      Case request detail
// @Tags         case-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case request id (uuid)"
// @Success      200  {object}  RequestResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /case-requests/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	id, err := utils.ParamUUID(c, "id", "case request")
	if err != nil {
		return err
	}
	r, err := h.lookup(c.UserContext(), h.db.Scopes(withClient), id, p)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(r, p))
}

/* ================================ Create ================================ */

// @Summary      File a case request
// @Description  Client submits a new case request for lawyers to review
// @Tags         case-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateRequest  true  "Case request"
// @Success      201  {object}  RequestResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /case-requests [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	if err := authz.Authorize(p, authz.FileRequest, authz.Resource{}); err != nil {
		return err
	}

	var in CreateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.CaseType = strings.TrimSpace(in.CaseType)
	in.RequestedLawyerType = strings.TrimSpace(in.RequestedLawyerType)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	r := models.CaseRequest{
		ClientID:            p.ID,
		Title:               in.Title,
		Description:         in.Description,
		CaseType:            in.CaseType,
		Status:              models.RequestPending,
		AmountInvolved:      in.AmountInvolved.Round(2),
		RequestedLawyerType: in.RequestedLawyerType,
	}
	db := h.db.WithContext(c.UserContext())
	if err := db.Create(&r).Error; err != nil {
		return err
	}
	if err := db.Scopes(withClient).First(&r, "id = ?", r.ID).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toResponse(r, p))
}

/* ================================ Update ================================ */

// lockOwnPending loads a request for its owner under a row lock and checks it
// is still pending.
func lockOwnPending(tx *gorm.DB, id uuid.UUID, p authz.Principal, a authz.Action, verb string) (models.CaseRequest, error) {
	var r models.CaseRequest
	err := tx.Unscoped().Scopes(authz.RequestScope(p)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&r, "case_requests.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, apperr.NotFound("case request not found")
	}
	if err != nil {
		return r, err
	}
	if err := authz.Authorize(p, a, authz.Resource{ClientID: r.ClientID}); err != nil {
		return r, err
	}
	if r.Status != models.RequestPending {
		return r, apperr.InvalidState("only pending case requests can be " + verb)
	}
	return r, nil
}

// @Summary      Edit case request
// @Description  Owner edits a request while it is still pending
// @Tags         case-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "case request id (uuid)"
// @Param        payload  body  UpdateRequest  true  "Fields to update"
// @Success      200  {object}  RequestResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /case-requests/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	id, err := utils.ParamUUID(c, "id", "case request")
	if err != nil {
		return err
	}

	var in UpdateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	for _, s := range []*string{in.Title, in.Description, in.CaseType, in.RequestedLawyerType} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	updates := map[string]any{}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.CaseType != nil {
		updates["case_type"] = *in.CaseType
	}
	if in.AmountInvolved != nil {
		updates["amount_involved"] = in.AmountInvolved.Round(2)
	}
	if in.RequestedLawyerType != nil {
		updates["requested_lawyer_type"] = *in.RequestedLawyerType
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		r, err := lockOwnPending(tx, id, p, authz.UpdateRequest, "updated")
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&r).Updates(updates).Error
	})
	if err != nil {
		return err
	}

	r, err := h.lookup(c.UserContext(), h.db.Scopes(withClient), id, p)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(r, p))
}

// @Summary      Withdraw case request
// @Description  Owner withdraws a pending request; it and its document are removed
// @Tags         case-requests
// @Security     BearerAuth
// @Param        id   path string true "case request id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /case-requests/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	id, err := utils.ParamUUID(c, "id", "case request")
	if err != nil {
		return err
	}

	var key string
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		r, err := lockOwnPending(tx, id, p, authz.WithdrawRequest, "withdrawn")
		if err != nil {
			return err
		}
		key = r.DocumentKey
		if err := utils.LogCaseHistory(tx, r.ID, p.ID, "withdrawn", string(r.Status), "", ""); err != nil {
			return err
		}
		return tx.Unscoped().Delete(&r).Error
	})
	if err != nil {
		return err
	}

	// The row is gone; a leftover object is only wasted space.
	if key != "" && h.store != nil {
		if err := h.store.Delete(c.UserContext(), key); err != nil {
			h.log.Warn("delete withdrawn document", zap.String("key", key), zap.Error(err))
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}
