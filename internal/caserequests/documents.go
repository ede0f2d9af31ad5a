package caserequests

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/storage"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
)

const (
	maxDocumentSize = 10 * 1024 * 1024
	documentURLTTL  = 60 * time.Second
)

var allowedDocumentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// Upload Document godoc
// @Summary      Attach a document to a case request
// @Description  Owner uploads one PDF/PNG/JPEG (max 10MB) while the request is pending; replaces any earlier one
// @Tags         files
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id        path      string  true  "case request id (uuid)"
// @Param        document  formData  file    true  "PDF/PNG/JPEG"
// @Success      201  {object}  map[string]any  "document_key, name, size"
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /case-requests/{id}/documents [post]
func (h *Handler) UploadDocument(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	id, err := utils.ParamUUID(c, "id", "case request")
	if err != nil {
		return err
	}
	if h.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "document storage is not configured")
	}

	fh, err := c.FormFile("document")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "document is required (multipart field: document)")
	}
	if fh.Size <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty file")
	}
	if fh.Size > maxDocumentSize {
		return fiber.NewError(fiber.StatusBadRequest, "max 10MB per file")
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}
	if !allowedDocumentTypes[ct] {
		return fiber.NewError(fiber.StatusBadRequest, "only PDF, PNG or JPEG are allowed")
	}

	ctx := c.UserContext()

	// Cheap check first so outsiders and decided requests never reach storage.
	if _, err := h.lookupOwnPending(ctx, id, p); err != nil {
		return err
	}

	// The upload runs outside any transaction to a key nothing points at yet;
	// only the short locked write below publishes it.
	key := storage.DocumentKey(id.String(), fh.Filename)
	f, err := fh.Open()
	if err != nil {
		return err
	}
	err = h.store.Upload(ctx, key, f, ct, fh.Size)
	_ = f.Close()
	if err != nil {
		h.log.Warn("document upload failed", zap.String("key", key), zap.Error(err))
		return apperr.External("document upload failed")
	}

	var previous string
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := lockOwnPending(tx, id, p, authz.AttachDocument, "modified")
		if err != nil {
			return err
		}
		previous = r.DocumentKey
		return tx.Model(&r).Update("document_key", key).Error
	})
	if err != nil {
		h.dropObject(ctx, key)
		return err
	}
	if previous != "" && previous != key {
		h.dropObject(ctx, previous)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document_key": key,
		"name":         fh.Filename,
		"size":         fh.Size,
	})
}

// Signed Download URL godoc
// @Summary      Get signed URL for a case request document
// @Description  The owning client, or any lawyer while the request is pending
// @Tags         files
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case request id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /case-requests/{id}/document [get]
func (h *Handler) GetDocument(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	id, err := utils.ParamUUID(c, "id", "case request")
	if err != nil {
		return err
	}
	r, err := h.lookup(c.UserContext(), h.db, id, p)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ReadDocument, authz.Resource{ClientID: r.ClientID, Pending: r.Status == models.RequestPending}); err != nil {
		return err
	}
	if r.DocumentKey == "" {
		return apperr.NotFound("case request has no document")
	}
	if h.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "document storage is not configured")
	}

	url, err := h.store.SignedURL(c.UserContext(), r.DocumentKey, documentURLTTL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"url":        url,
		"expires_in": int(documentURLTTL.Seconds()),
		"now":        time.Now().UTC(),
	})
}

// lookupOwnPending checks, without a lock, that p owns the pending request id.
func (h *Handler) lookupOwnPending(ctx context.Context, id uuid.UUID, p authz.Principal) (models.CaseRequest, error) {
	var r models.CaseRequest
	err := h.db.WithContext(ctx).Unscoped().Scopes(authz.RequestScope(p)).
		First(&r, "case_requests.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, apperr.NotFound("case request not found")
	}
	if err != nil {
		return r, err
	}
	if err := authz.Authorize(p, authz.AttachDocument, authz.Resource{ClientID: r.ClientID}); err != nil {
		return r, err
	}
	if r.Status != models.RequestPending {
		return r, apperr.InvalidState("only pending case requests can be modified")
	}
	return r, nil
}

// dropObject removes an object nothing references; failures only leak storage.
func (h *Handler) dropObject(ctx context.Context, key string) {
	if err := h.store.Delete(ctx, key); err != nil {
		h.log.Warn("delete unreferenced document", zap.String("key", key), zap.Error(err))
	}
}
