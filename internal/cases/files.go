package cases

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
)

// DocumentURLTTL is how long a signed document URL stays valid.
const DocumentURLTTL = 60 * time.Second

// Signed Download URL godoc
// @Summary      Get signed URL for the case document
// @Description  Case client or the assigned lawyer obtains a short-lived signed URL
// @Tags         files
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /cases/{id}/document [get]
func (h *Handler) GetDocument(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	cs, err := h.findCase(c, p, false)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ReadDocument, authz.Resource{ClientID: cs.ClientID, LawyerID: cs.LawyerID}); err != nil {
		return err
	}
	if cs.DocumentKey == "" {
		return apperr.NotFound("case has no document")
	}
	if h.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "document storage is not configured")
	}

	url, err := h.store.SignedURL(c.UserContext(), cs.DocumentKey, DocumentURLTTL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"url":        url,
		"expires_in": int(DocumentURLTTL.Seconds()),
		"now":        time.Now().UTC(),
	})
}
