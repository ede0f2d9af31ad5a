package cases

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
)

func withRejectionParties(db *gorm.DB) *gorm.DB {
	return db.Preload("Client").Preload("RejectedBy")
}

// @Summary      List rejected cases
// @Description  Clients see their rejections, lawyers the ones they issued (newest first)
// @Tags         rejected-cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        search    query string false "title or description"
// @Success      200  {object}  models.Page[RejectedCaseResponse]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /rejected-cases [get]
func (h *Handler) ListRejected(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.RejectedCase{}).Scopes(authz.RejectionScope(p))
	q = utils.Search(q, c.Query("search"), "rejected_cases.title", "rejected_cases.description")

	var rows []models.RejectedCase
	pg, err := utils.Paginate(q, page, size, &rows, withRejectionParties,
		func(db *gorm.DB) *gorm.DB { return db.Order("rejected_cases.rejected_at DESC") })
	if err != nil {
		return err
	}
	return c.JSON(models.Page[RejectedCaseResponse]{
		Page: pg.Page, PageSize: pg.PageSize, Total: pg.Total, Pages: pg.Pages,
		Items: lo.Map(pg.Items, func(r models.RejectedCase, _ int) RejectedCaseResponse { return toRejected(r) }),
	})
}

// @Summary      Rejected case detail
// @Tags         rejected-cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "rejected case id (uuid)"
// @Success      200  {object}  RejectedCaseResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /rejected-cases/{id} [get]
func (h *Handler) GetRejected(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	id, err := utils.ParamUUID(c, "id", "rejected case")
	if err != nil {
		return err
	}
	var r models.RejectedCase
	err = h.db.WithContext(c.UserContext()).Scopes(authz.RejectionScope(p), withRejectionParties).
		First(&r, "rejected_cases.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("rejected case not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(toRejected(r))
}
