package cases

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
	"github.com/aldoetobex/lawsuit-backend/pkg/validation"
)

// Notes are reachable by any authenticated user who knows the case id; they
// are not filtered through CaseScope.

func (h *Handler) caseExists(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := utils.ParamUUID(c, "id", "case")
	if err != nil {
		return id, err
	}
	var n int64
	if err := h.db.WithContext(c.UserContext()).Model(&models.Case{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return id, err
	}
	if n == 0 {
		return id, apperr.NotFound("case not found")
	}
	return id, nil
}

// @Summary      List case notes
// @Tags         notes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}   NoteResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/notes [get]
func (h *Handler) ListNotes(c *fiber.Ctx) error {
	if err := authz.Authorize(authz.MustPrincipal(c), authz.ListNotes, authz.Resource{}); err != nil {
		return err
	}
	caseID, err := h.caseExists(c)
	if err != nil {
		return err
	}
	var notes []models.CaseNote
	if err := h.db.WithContext(c.UserContext()).Preload("Author").
		Where("case_id = ?", caseID).Order("created_at DESC").Find(&notes).Error; err != nil {
		return err
	}
	return c.JSON(lo.Map(notes, func(n models.CaseNote, _ int) NoteResponse { return toNote(n) }))
}

// @Summary      Add case note
// @Description  The current user becomes the author
// @Tags         notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string       true  "case id (uuid)"
// @Param        payload  body  NoteRequest  true  "Note"
// @Success      201  {object}  NoteResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/notes [post]
func (h *Handler) CreateNote(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	if err := authz.Authorize(p, authz.CreateNote, authz.Resource{}); err != nil {
		return err
	}
	caseID, err := h.caseExists(c)
	if err != nil {
		return err
	}
	var in NoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Content = strings.TrimSpace(in.Content)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	n := models.CaseNote{CaseID: caseID, AuthorID: p.ID, Content: in.Content}
	db := h.db.WithContext(c.UserContext())
	if err := db.Create(&n).Error; err != nil {
		return err
	}
	if err := db.Preload("Author").First(&n, "id = ?", n.ID).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toNote(n))
}

// @Summary      Edit case note
// @Description  Only the author may edit a note
// @Tags         notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string       true  "case id (uuid)"
// @Param        noteID   path  string       true  "note id (uuid)"
// @Param        payload  body  NoteRequest  true  "Note"
// @Success      200  {object}  NoteResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/notes/{noteID} [patch]
func (h *Handler) UpdateNote(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	caseID, err := utils.ParamUUID(c, "id", "case")
	if err != nil {
		return err
	}
	noteID, err := utils.ParamUUID(c, "noteID", "note")
	if err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	var n models.CaseNote
	err = db.First(&n, "id = ? AND case_id = ?", noteID, caseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("note not found")
	}
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.UpdateNote, authz.Resource{AuthorID: n.AuthorID}); err != nil {
		return err
	}

	var in NoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Content = strings.TrimSpace(in.Content)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if err := db.Model(&n).Update("content", in.Content).Error; err != nil {
		return err
	}
	if err := db.Preload("Author").First(&n, "id = ?", n.ID).Error; err != nil {
		return err
	}
	return c.JSON(toNote(n))
}
