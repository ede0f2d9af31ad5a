package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/observability"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/utils"
)

// DefaultRejectionReason is stored when a lawyer rejects without a reason.
const DefaultRejectionReason = "No reason provided"

const caseNumberAttempts = 5

// Notifier queues lifecycle emails inside the caller's transaction.
type Notifier interface {
	NotifyApproved(tx *gorm.DB, caseID uuid.UUID) error
	NotifyRejected(tx *gorm.DB, rejectionID uuid.UUID) error
	NotifyPaymentDue(tx *gorm.DB, caseID uuid.UUID) error
	Wake()
}

// Lifecycle owns the pending -> approved/rejected transition of case requests
// and the follow-up actions on an approved case.
type Lifecycle struct {
	db         *gorm.DB
	notifier   Notifier
	defaultFee decimal.Decimal
	log        *zap.Logger
	newNumber  func() string
}

func NewLifecycle(db *gorm.DB, notifier Notifier, defaultFee decimal.Decimal, log *zap.Logger) *Lifecycle {
	return &Lifecycle{
		db:         db,
		notifier:   notifier,
		defaultFee: defaultFee,
		log:        log.Named("lifecycle"),
		newNumber:  randomCaseNumber,
	}
}

// randomCaseNumber returns CASE- followed by 8 upper-case hex characters.
func randomCaseNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CASE-" + strings.ToUpper(hex[:8])
}

// allocateCaseNumber draws numbers until one is unused in the registry.
// The unique index on cases.case_number is the final guard.
func (l *Lifecycle) allocateCaseNumber(tx *gorm.DB) (string, error) {
	for i := 0; i < caseNumberAttempts; i++ {
		n := l.newNumber()
		var cnt int64
		if err := tx.Model(&models.Case{}).Where("case_number = ?", n).Count(&cnt).Error; err != nil {
			return "", err
		}
		if cnt == 0 {
			return n, nil
		}
	}
	return "", fmt.Errorf("no unique case number after %d attempts", caseNumberAttempts)
}

// lockPending loads a request, including resolved (soft-deleted) ones, under a
// row lock and checks it is still pending.
func lockPending(tx *gorm.DB, id uuid.UUID, verb string) (models.CaseRequest, error) {
	var req models.CaseRequest
	err := tx.Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return req, apperr.NotFound("case request not found")
	}
	if err != nil {
		return req, err
	}
	if req.Status != models.RequestPending {
		return req, apperr.InvalidState("only pending case requests can be " + verb)
	}
	return req, nil
}

// resolve stamps the terminal status and back-reference on a request and
// soft-deletes it so default queries no longer return it.
func resolve(tx *gorm.DB, req *models.CaseRequest, status models.RequestStatus, by uuid.UUID, ref map[string]any) error {
	now := time.Now()
	updates := map[string]any{
		"status":      status,
		"resolved_by": by,
		"resolved_at": now,
	}
	for k, v := range ref {
		updates[k] = v
	}
	if err := tx.Model(req).Updates(updates).Error; err != nil {
		return err
	}
	return tx.Delete(req).Error
}

/* ================================ Approve ================================ */

// Approve turns a pending request into a Case assigned to the approving lawyer,
// opens the registration fee Payment and queues the approval email, all in one
// transaction. fee overrides the configured default when non-nil.
func (l *Lifecycle) Approve(ctx context.Context, requestID uuid.UUID, lawyer authz.Principal, fee *decimal.Decimal) (*models.Case, error) {
	if err := authz.Authorize(lawyer, authz.ApproveRequest, authz.Resource{}); err != nil {
		return nil, err
	}
	amount := l.defaultFee
	if fee != nil {
		if fee.IsNegative() {
			return nil, apperr.Validation("registration_fee must be greater than or equal to 0")
		}
		amount = fee.Round(2)
	}

	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	req, err := lockPending(tx, requestID, "approved")
	if err != nil {
		return nil, err
	}

	number, err := l.allocateCaseNumber(tx)
	if err != nil {
		return nil, err
	}

	lawyerID := lawyer.ID
	cs := models.Case{
		CaseRequestID:   req.ID,
		CaseNumber:      number,
		ClientID:        req.ClientID,
		LawyerID:        &lawyerID,
		Title:           req.Title,
		Description:     req.Description,
		CaseType:        req.CaseType,
		Status:          models.CaseApproved,
		DocumentKey:     req.DocumentKey,
		AmountInvolved:  req.AmountInvolved,
		RegistrationFee: amount,
	}
	if err := tx.Create(&cs).Error; err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}

	pay := models.Payment{CaseID: cs.ID, Amount: amount, Status: models.PayPending}
	if err := tx.Create(&pay).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if err := resolve(tx, &req, models.RequestApproved, lawyer.ID, map[string]any{"case_id": cs.ID}); err != nil {
		return nil, fmt.Errorf("resolve request: %w", err)
	}
	if err := utils.LogCaseHistory(tx, req.ID, lawyer.ID, "approved",
		string(models.RequestPending), string(models.RequestApproved), cs.CaseNumber); err != nil {
		return nil, err
	}
	if err := l.notifier.NotifyApproved(tx, cs.ID); err != nil {
		return nil, fmt.Errorf("queue approval email: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	l.notifier.Wake()
	observability.CaseTransition("approved")
	l.log.Info("case request approved",
		zap.String("request_id", req.ID.String()),
		zap.String("case_number", cs.CaseNumber),
		zap.String("lawyer_id", lawyer.ID.String()),
	)

	cs.Payment = &pay
	return &cs, nil
}

/* ================================ Reject ================================= */

// Reject records a RejectedCase for a pending request and queues the rejection
// email in one transaction. A blank reason is stored as DefaultRejectionReason.
func (l *Lifecycle) Reject(ctx context.Context, requestID uuid.UUID, lawyer authz.Principal, reason string) (*models.RejectedCase, error) {
	if err := authz.Authorize(lawyer, authz.RejectRequest, authz.Resource{}); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}

	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	req, err := lockPending(tx, requestID, "rejected")
	if err != nil {
		return nil, err
	}

	lawyerID := lawyer.ID
	rc := models.RejectedCase{
		CaseRequestID:   req.ID,
		ClientID:        req.ClientID,
		Title:           req.Title,
		Description:     req.Description,
		CaseType:        req.CaseType,
		RejectionReason: reason,
		RejectedByID:    &lawyerID,
	}
	if err := tx.Create(&rc).Error; err != nil {
		return nil, fmt.Errorf("create rejected case: %w", err)
	}

	if err := resolve(tx, &req, models.RequestRejected, lawyer.ID, map[string]any{"rejection_id": rc.ID}); err != nil {
		return nil, fmt.Errorf("resolve request: %w", err)
	}
	if err := utils.LogCaseHistory(tx, req.ID, lawyer.ID, "rejected",
		string(models.RequestPending), string(models.RequestRejected), reason); err != nil {
		return nil, err
	}
	if err := l.notifier.NotifyRejected(tx, rc.ID); err != nil {
		return nil, fmt.Errorf("queue rejection email: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	l.notifier.Wake()
	observability.CaseTransition("rejected")
	l.log.Info("case request rejected",
		zap.String("request_id", req.ID.String()),
		zap.String("lawyer_id", lawyer.ID.String()),
	)
	return &rc, nil
}

/* ============================ Case follow-ups ============================ */

// loadCase reads a case under a row lock and checks the action against its parties.
func loadCase(tx *gorm.DB, id uuid.UUID, p authz.Principal, a authz.Action) (models.Case, error) {
	var cs models.Case
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cs, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cs, apperr.NotFound("case not found")
	}
	if err != nil {
		return cs, err
	}
	if err := authz.Authorize(p, a, authz.Resource{ClientID: cs.ClientID, LawyerID: cs.LawyerID}); err != nil {
		return cs, err
	}
	return cs, nil
}

// RemindPayment queues a registration fee reminder for an unpaid case.
func (l *Lifecycle) RemindPayment(ctx context.Context, caseID uuid.UUID, lawyer authz.Principal) error {
	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	cs, err := loadCase(tx, caseID, lawyer, authz.RemindPayment)
	if err != nil {
		return err
	}
	if cs.RegistrationFeePaid {
		return apperr.InvalidState("registration fee already paid")
	}
	if err := l.notifier.NotifyPaymentDue(tx, cs.ID); err != nil {
		return fmt.Errorf("queue payment reminder: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	l.notifier.Wake()
	return nil
}

// CaseUpdate carries the fields an assigned lawyer may change on a case.
type CaseUpdate struct {
	Status              *models.CaseStatus
	RegistrationFeePaid *bool
}

// UpdateCase applies a lawyer's edit. Marking the fee paid also completes the
// pending Payment in the same transaction; un-marking a paid fee is refused.
func (l *Lifecycle) UpdateCase(ctx context.Context, caseID uuid.UUID, lawyer authz.Principal, in CaseUpdate) (*models.Case, error) {
	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	cs, err := loadCase(tx, caseID, lawyer, authz.UpdateCase)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	markedPaid := false

	if in.Status != nil && *in.Status != cs.Status {
		switch *in.Status {
		case models.CaseApproved, models.CaseClosed:
		default:
			return nil, apperr.Validationf("status must be %s or %s", models.CaseApproved, models.CaseClosed)
		}
		updates["status"] = *in.Status
		if err := utils.LogCaseHistory(tx, cs.ID, lawyer.ID, "status_changed",
			string(cs.Status), string(*in.Status), ""); err != nil {
			return nil, err
		}
	}

	if in.RegistrationFeePaid != nil && *in.RegistrationFeePaid != cs.RegistrationFeePaid {
		if !*in.RegistrationFeePaid {
			return nil, apperr.InvalidState("registration fee already recorded as paid")
		}
		updates["registration_fee_paid"] = true
		now := time.Now()
		res := tx.Model(&models.Payment{}).
			Where("case_id = ? AND status <> ?", cs.ID, models.PayCompleted).
			Updates(map[string]any{"status": models.PayCompleted, "paid_at": now})
		if res.Error != nil {
			return nil, res.Error
		}
		if err := utils.LogCaseHistory(tx, cs.ID, lawyer.ID, "payment_completed",
			string(models.PayPending), string(models.PayCompleted), "recorded by lawyer"); err != nil {
			return nil, err
		}
		markedPaid = true
	}

	if len(updates) > 0 {
		if err := tx.Model(&cs).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	if markedPaid {
		observability.PaymentConfirmed("manual")
	}
	if err := l.db.WithContext(ctx).Preload("Payment").First(&cs, "id = ?", cs.ID).Error; err != nil {
		return nil, err
	}
	return &cs, nil
}
