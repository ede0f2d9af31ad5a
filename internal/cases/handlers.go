package cases

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/storage"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
	"github.com/aldoetobex/lawsuit-backend/pkg/validation"
)

type Handler struct {
	db    *gorm.DB
	lc    *Lifecycle
	store storage.ObjectStore // nil when storage is not configured
}

func NewHandler(db *gorm.DB, lc *Lifecycle, store storage.ObjectStore) *Handler {
	return &Handler{db: db, lc: lc, store: store}
}

var caseOrdering = []string{"created_at", "updated_at", "registration_fee", "amount_involved", "case_number"}

// withParties preloads what the case DTO renders.
func withParties(db *gorm.DB) *gorm.DB {
	return db.Preload("Client").Preload("Lawyer").Preload("Payment")
}

// findCase loads a case visible to p, with notes when full is set.
func (h *Handler) findCase(c *fiber.Ctx, p authz.Principal, full bool) (models.Case, error) {
	var cs models.Case
	id, err := utils.ParamUUID(c, "id", "case")
	if err != nil {
		return cs, err
	}
	q := h.db.WithContext(c.UserContext()).Scopes(authz.CaseScope(p), withParties)
	if full {
		q = q.Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("case_notes.created_at ASC") }).
			Preload("Notes.Author")
	}
	err = q.First(&cs, "cases.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cs, apperr.NotFound("case not found")
	}
	return cs, err
}

/* ================================= List ================================= */

// @Summary      List cases
// @Description  Clients see their cases, lawyers the cases assigned to them
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "approved|closed"
// @Param        search    query string false "title or case number"
// @Param        ordering  query string false "e.g. -created_at, registration_fee"
// @Success      200  {object}  models.Page[CaseResponse]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases [get]
func (h *Handler) List(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Case{}).Scopes(authz.CaseScope(p))
	if st := strings.TrimSpace(c.Query("status")); st != "" {
		q = q.Where("cases.status = ?", st)
	}
	q = utils.Search(q, c.Query("search"), "cases.title", "cases.case_number")
	order := utils.Ordering(c.Query("ordering"), "cases", caseOrdering, "cases.created_at DESC")

	var rows []models.Case
	pg, err := utils.Paginate(q, page, size, &rows, withParties, func(db *gorm.DB) *gorm.DB { return db.Order(order) })
	if err != nil {
		return err
	}
	return c.JSON(models.Page[CaseResponse]{
		Page: pg.Page, PageSize: pg.PageSize, Total: pg.Total, Pages: pg.Pages,
		Items: lo.Map(pg.Items, func(cs models.Case, _ int) CaseResponse { return toCase(cs) }),
	})
}

/* ================================= Read ================================= */

// @Summary      Case detail
// @Description  Case with its notes and registration fee payment
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  CaseResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	cs, err := h.findCase(c, authz.MustPrincipal(c), true)
	if err != nil {
		return err
	}
	return c.JSON(toCase(cs))
}

/* ================================ Approve =============================== */

// @Summary      Approve case request (by body)
// @Description  Lawyer approves a pending case request; creates the case and its registration fee payment
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Request to approve"
// @Success      201  {object}  CaseResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	cs, err := h.lc.Approve(c.UserContext(), in.CaseRequestID, authz.MustPrincipal(c), in.RegistrationFee)
	if err != nil {
		return err
	}
	out, err := h.reload(c, cs.ID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      Approve case request
// @Description  Lawyer approves the pending case request identified by id
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true   "case request id (uuid)"
// @Param        payload  body  ApproveRequest  false  "Optional registration fee override"
// @Success      201  {object}  ApproveResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/approve_case [post]
func (h *Handler) ApproveCase(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id", "case request")
	if err != nil {
		return err
	}
	var in ApproveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.ErrBadRequest
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs, err := h.lc.Approve(c.UserContext(), id, authz.MustPrincipal(c), in.RegistrationFee)
	if err != nil {
		return err
	}
	out, err := h.reload(c, cs.ID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(ApproveResponse{Message: "Case approved successfully", Case: out})
}

// @Summary      Reject case request
// @Description  Lawyer rejects the pending case request identified by id
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true   "case request id (uuid)"
// @Param        payload  body  RejectRequest  false  "Rejection reason"
// @Success      201  {object}  RejectResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/reject_case [post]
func (h *Handler) RejectCase(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id", "case request")
	if err != nil {
		return err
	}
	var in RejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.ErrBadRequest
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	rc, err := h.lc.Reject(c.UserContext(), id, authz.MustPrincipal(c), in.RejectionReason)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Preload("Client").Preload("RejectedBy").
		First(rc, "id = ?", rc.ID).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(RejectResponse{Message: "Case rejected successfully", RejectedCase: toRejected(*rc)})
}

func (h *Handler) reload(c *fiber.Ctx, id uuid.UUID) (CaseResponse, error) {
	var cs models.Case
	if err := h.db.WithContext(c.UserContext()).Scopes(withParties).First(&cs, "id = ?", id).Error; err != nil {
		return CaseResponse{}, err
	}
	return toCase(cs), nil
}

/* ================================ Update ================================ */

// @Summary      Update case
// @Description  Assigned lawyer changes status or records the registration fee as paid
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  UpdateCaseRequest  true  "Fields to update"
// @Success      200  {object}  CaseResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	cs, err := h.findCase(c, p, false)
	if err != nil {
		return err
	}

	var in UpdateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	upd := CaseUpdate{RegistrationFeePaid: in.RegistrationFeePaid}
	if in.Status != nil {
		upd.Status = lo.ToPtr(models.CaseStatus(*in.Status))
	}
	if _, err := h.lc.UpdateCase(c.UserContext(), cs.ID, p, upd); err != nil {
		return err
	}

	cs, err = h.findCase(c, p, true)
	if err != nil {
		return err
	}
	return c.JSON(toCase(cs))
}

// @Summary      Send payment reminder
// @Description  Assigned lawyer queues a registration fee reminder email to the client
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      202  {object}  map[string]string  "message"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/remind_payment [post]
func (h *Handler) RemindPayment(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	cs, err := h.findCase(c, p, false)
	if err != nil {
		return err
	}
	if err := h.lc.RemindPayment(c.UserContext(), cs.ID, p); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Payment reminder queued"})
}
