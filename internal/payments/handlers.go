package payments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/config"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
	"github.com/aldoetobex/lawsuit-backend/pkg/validation"
)

/* ================================ DTOs ================================== */

type PaymentResponse struct {
	ID                    uuid.UUID        `json:"id"`
	Case                  uuid.UUID        `json:"case"`
	CaseNumber            string           `json:"case_number"`
	Amount                decimal.Decimal  `json:"amount"`
	Status                models.PayStatus `json:"status"`
	StripePaymentIntentID *string          `json:"stripe_payment_intent_id"`
	PaidAt                *time.Time       `json:"paid_at"`
	CreatedAt             time.Time        `json:"created_at"`
}

// Body for POST /payments
type CreatePaymentRequest struct {
	CaseID uuid.UUID `json:"case" validate:"required"`
}

type IntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// Body for POST /payments/mock/complete
type mockCompleteReq struct {
	PaymentID string `json:"payment_id"`
}

func toResponse(p models.Payment) PaymentResponse {
	out := PaymentResponse{
		ID: p.ID, Case: p.CaseID, Amount: p.Amount, Status: p.Status,
		StripePaymentIntentID: p.GatewayIntentID, PaidAt: p.PaidAt, CreatedAt: p.CreatedAt,
	}
	if p.Case != nil {
		out.CaseNumber = p.Case.CaseNumber
	}
	return out
}

/* =============================== Handler ================================ */

type Handler struct {
	db  *gorm.DB
	rc  *Reconciler
	cfg config.PaymentConfig
	dev bool
	log *zap.Logger
}

func NewHandler(db *gorm.DB, rc *Reconciler, cfg config.PaymentConfig, dev bool, log *zap.Logger) *Handler {
	return &Handler{db: db, rc: rc, cfg: cfg, dev: dev, log: log.Named("payments")}
}

func withCase(db *gorm.DB) *gorm.DB { return db.Preload("Case") }

// @Summary      List payments
// @Description  Payments of the cases visible to the caller
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "pending|completed|failed"
// @Success      200  {object}  models.Page[PaymentResponse]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /payments [get]
func (h *Handler) List(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Payment{}).Scopes(authz.PaymentScope(p))
	if st := c.Query("status"); st != "" {
		q = q.Where("payments.status = ?", st)
	}
	var rows []models.Payment
	pg, err := utils.Paginate(q, page, size, &rows, withCase,
		func(db *gorm.DB) *gorm.DB { return db.Order("payments.created_at DESC") })
	if err != nil {
		return err
	}
	return c.JSON(models.Page[PaymentResponse]{
		Page: pg.Page, PageSize: pg.PageSize, Total: pg.Total, Pages: pg.Pages,
		Items: lo.Map(pg.Items, func(p models.Payment, _ int) PaymentResponse { return toResponse(p) }),
	})
}

func (h *Handler) find(c *fiber.Ctx, p authz.Principal) (models.Payment, error) {
	var pay models.Payment
	id, err := utils.ParamUUID(c, "id", "payment")
	if err != nil {
		return pay, err
	}
	err = h.db.WithContext(c.UserContext()).Scopes(authz.PaymentScope(p), withCase).
		First(&pay, "payments.id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pay, apperr.NotFound("payment not found")
	}
	return pay, err
}

// @Summary      Payment detail
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "payment id (uuid)"
// @Success      200  {object}  PaymentResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	pay, err := h.find(c, authz.MustPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(pay))
}

// @Summary      Open registration fee payment
// @Description  Returns the case's payment, creating it for the registration fee if missing
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreatePaymentRequest  true  "Case"
// @Success      200  {object}  PaymentResponse  "already existed"
// @Success      201  {object}  PaymentResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	p := authz.MustPrincipal(c)
	var in CreatePaymentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	db := h.db.WithContext(c.UserContext())
	var cs models.Case
	err := db.First(&cs, "id = ?", in.CaseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("case not found")
	}
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.CreatePayment, authz.Resource{ClientID: cs.ClientID, LawyerID: cs.LawyerID}); err != nil {
		return err
	}

	status := fiber.StatusOK
	var pay models.Payment
	err = db.First(&pay, "case_id = ?", cs.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pay = models.Payment{CaseID: cs.ID, Amount: cs.RegistrationFee, Status: models.PayPending}
		if err := db.Create(&pay).Error; err != nil {
			// lost a race; the unique case_id index kept one row
			if e := db.First(&pay, "case_id = ?", cs.ID).Error; e != nil {
				return err
			}
		} else {
			status = fiber.StatusCreated
		}
	} else if err != nil {
		return err
	}
	pay.Case = &cs
	return c.Status(status).JSON(toResponse(pay))
}

// @Summary      Create payment intent
// @Description  Case client opens a gateway intent for the registration fee; a still payable intent is returned again
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "payment id (uuid)"
// @Success      200  {object}  IntentResponse
// @Failure      400  {object}  models.ErrorResponse  "gateway error"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /payments/{id}/create_payment_intent [post]
func (h *Handler) CreatePaymentIntent(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id", "payment")
	if err != nil {
		return err
	}
	intent, err := h.rc.CreateIntent(c.UserContext(), id, authz.MustPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(IntentResponse{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID})
}

// @Summary      Confirm payment
// @Description  Checks the intent with the gateway and records the registration fee as paid
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "payment id (uuid)"
// @Success      200  {object}  map[string]string  "message"
// @Failure      400  {object}  models.ErrorResponse  "gateway error"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "payment not completed"
// @Router       /payments/{id}/confirm_payment [post]
func (h *Handler) ConfirmPayment(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id", "payment")
	if err != nil {
		return err
	}
	if err := h.rc.Confirm(c.UserContext(), id, authz.MustPrincipal(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Payment confirmed successfully"})
}

/* =============================== Webhooks =============================== */

// StripeWebhook verifies the Stripe-Signature header and completes payments on
// payment_intent.succeeded. Unknown intents are acknowledged so Stripe stops
// redelivering them.
func (h *Handler) StripeWebhook(c *fiber.Ctx) error {
	if h.cfg.WebhookSecret == "" {
		return fiber.ErrNotFound
	}
	ev, err := webhook.ConstructEventWithOptions(c.Body(), c.Get("Stripe-Signature"), h.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.log.Warn("stripe webhook rejected", zap.Error(err))
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	}

	if ev.Type == stripe.EventTypePaymentIntentSucceeded {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		done, err := h.rc.ConfirmByIntent(c.UserContext(), pi.ID, "webhook")
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			h.log.Warn("webhook for unknown intent", zap.String("intent_id", pi.ID))
		case err != nil:
			return err
		default:
			h.log.Info("stripe webhook processed",
				zap.String("event_id", ev.ID), zap.String("intent_id", pi.ID), zap.Bool("completed", done))
		}
	}
	return c.JSON(fiber.Map{"received": true})
}

// MockComplete finishes a payment without a gateway round-trip.
// Body: { "payment_id": "<uuid>" }
// Header: X-Dev-Secret: <DEV_PAYMENT_SECRET>
func (h *Handler) MockComplete(c *fiber.Ctx) error {
	if !h.dev || h.cfg.Provider != "mock" {
		return fiber.ErrNotFound
	}
	if c.Get("X-Dev-Secret") == "" || c.Get("X-Dev-Secret") != h.cfg.DevSecret {
		return fiber.NewError(http.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}
	var in mockCompleteReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	pid, err := uuid.Parse(in.PaymentID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	done, err := h.rc.CompleteMock(c.UserContext(), pid)
	if err != nil {
		return err
	}
	if !done {
		return c.JSON(fiber.Map{"ok": true, "message": "already paid (idempotent)"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
