package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/observability"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
)

// Reconciler keeps the Payment ledger in step with the gateway.
type Reconciler struct {
	db       *gorm.DB
	gw       Gateway
	currency string
	log      *zap.Logger
}

func NewReconciler(db *gorm.DB, gw Gateway, currency string, log *zap.Logger) *Reconciler {
	return &Reconciler{db: db, gw: gw, currency: strings.ToLower(currency), log: log.Named("payments")}
}

// load reads a payment with its case and checks a against the case's parties.
func (r *Reconciler) load(ctx context.Context, paymentID uuid.UUID, p authz.Principal, a authz.Action) (models.Payment, error) {
	var pay models.Payment
	err := r.db.WithContext(ctx).Preload("Case").First(&pay, "id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pay, apperr.NotFound("payment not found")
	}
	if err != nil {
		return pay, err
	}
	if pay.Case == nil {
		return pay, apperr.NotFound("payment not found")
	}
	if err := authz.Authorize(p, a, authz.Resource{ClientID: pay.Case.ClientID, LawyerID: pay.Case.LawyerID}); err != nil {
		return pay, err
	}
	return pay, nil
}

// CreateIntent returns an intent the client can pay. A stored intent that is
// still payable is handed back; one that already succeeded completes the
// payment instead; only a missing or canceled one is replaced by a new intent.
// Gateway failures surface as External errors carrying the gateway's message.
func (r *Reconciler) CreateIntent(ctx context.Context, paymentID uuid.UUID, p authz.Principal) (Intent, error) {
	pay, err := r.load(ctx, paymentID, p, authz.CreatePaymentIntent)
	if err != nil {
		return Intent{}, err
	}
	if pay.Status == models.PayCompleted {
		return Intent{}, apperr.InvalidState("payment already completed")
	}

	if pay.GatewayIntentID != nil && *pay.GatewayIntentID != "" {
		prev, err := r.gw.RetrieveIntent(ctx, *pay.GatewayIntentID)
		if err != nil {
			return Intent{}, apperr.External(err.Error())
		}
		switch {
		case prev.Status == StatusSucceeded:
			if _, err := r.complete(ctx, pay.ID, p.ID, "confirm"); err != nil {
				return Intent{}, err
			}
			return Intent{}, apperr.InvalidState("payment already completed")
		case prev.Reusable():
			return prev, nil
		}
	}

	minor := pay.Amount.Shift(2).Round(0).IntPart()
	intent, err := r.gw.CreateIntent(ctx, minor, r.currency, map[string]string{
		"payment_id":  pay.ID.String(),
		"case_number": pay.Case.CaseNumber,
	})
	if err != nil {
		r.log.Warn("create payment intent failed", zap.String("payment_id", pay.ID.String()), zap.Error(err))
		return Intent{}, apperr.External(err.Error())
	}

	if err := r.db.WithContext(ctx).Model(&pay).Update("gateway_intent_id", intent.ID).Error; err != nil {
		return Intent{}, err
	}
	r.log.Info("payment intent created",
		zap.String("payment_id", pay.ID.String()),
		zap.String("intent_id", intent.ID),
		zap.Int64("amount_minor", minor),
	)
	return intent, nil
}

// Confirm asks the gateway whether the payment's intent succeeded and, if so,
// completes the payment and marks the case fee paid in one transaction.
// Confirming an already completed payment is a no-op.
func (r *Reconciler) Confirm(ctx context.Context, paymentID uuid.UUID, p authz.Principal) error {
	pay, err := r.load(ctx, paymentID, p, authz.ConfirmPayment)
	if err != nil {
		return err
	}
	if pay.Status == models.PayCompleted {
		return nil
	}
	if pay.GatewayIntentID == nil || *pay.GatewayIntentID == "" {
		return apperr.InvalidState("payment intent not created")
	}

	intent, err := r.gw.RetrieveIntent(ctx, *pay.GatewayIntentID)
	if err != nil {
		return apperr.External(err.Error())
	}
	if intent.Status != StatusSucceeded {
		return apperr.InvalidState("payment not completed")
	}
	_, err = r.complete(ctx, pay.ID, p.ID, "confirm")
	return err
}

// ConfirmByIntent completes the payment owning intentID. It backs the gateway
// webhook, so no principal is involved.
func (r *Reconciler) ConfirmByIntent(ctx context.Context, intentID, source string) (bool, error) {
	var pay models.Payment
	err := r.db.WithContext(ctx).First(&pay, "gateway_intent_id = ?", intentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, apperr.NotFound("payment not found")
	}
	if err != nil {
		return false, err
	}
	return r.complete(ctx, pay.ID, uuid.Nil, source)
}

// complete flips a payment to completed and its case to fee paid. It reports
// false when the payment was already completed.
func (r *Reconciler) complete(ctx context.Context, paymentID, actorID uuid.UUID, source string) (bool, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return false, tx.Error
	}
	defer tx.Rollback()

	var pay models.Payment
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pay, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperr.NotFound("payment not found")
		}
		return false, err
	}
	if pay.Status == models.PayCompleted {
		return false, nil
	}

	now := time.Now()
	if err := tx.Model(&pay).Updates(map[string]any{
		"status":  models.PayCompleted,
		"paid_at": now,
	}).Error; err != nil {
		return false, err
	}
	res := tx.Model(&models.Case{}).Where("id = ?", pay.CaseID).Update("registration_fee_paid", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, apperr.NotFound("case not found")
	}
	if err := utils.LogCaseHistory(tx, pay.ID, actorID, "payment_completed",
		string(pay.Status), string(models.PayCompleted), source); err != nil {
		return false, err
	}
	if err := tx.Commit().Error; err != nil {
		return false, err
	}

	observability.PaymentConfirmed(source)
	r.log.Info("payment completed",
		zap.String("payment_id", pay.ID.String()),
		zap.String("case_id", pay.CaseID.String()),
		zap.String("source", source),
	)
	return true, nil
}

// CompleteMock finishes a payment through the mock gateway (development only).
func (r *Reconciler) CompleteMock(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	m, ok := r.gw.(*Mock)
	if !ok {
		return false, apperr.NotFound("mock gateway is not active")
	}
	var pay models.Payment
	err := r.db.WithContext(ctx).First(&pay, "id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, apperr.NotFound("payment not found")
	}
	if err != nil {
		return false, err
	}
	if pay.GatewayIntentID != nil {
		m.Succeed(*pay.GatewayIntentID)
	}
	return r.complete(ctx, pay.ID, uuid.Nil, "mock")
}
