// Package notify delivers lifecycle emails through a durable outbox.
//
// State transitions write a notifications row in their own transaction
// (Outbox.Notify*); the Worker drains due rows, renders the email and hands it
// to a Mailer, retrying with exponential backoff until the row is sent or has
// used up its attempts.
package notify

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

type Outbox struct {
	wake chan struct{}
	now  func() time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{
		wake: make(chan struct{}, 1),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (o *Outbox) enqueue(tx *gorm.DB, kind models.NotificationKind, subject uuid.UUID) error {
	return tx.Create(&models.Notification{
		Kind:          kind,
		SubjectID:     subject,
		Status:        models.NotificationPending,
		NextAttemptAt: o.now(),
	}).Error
}

// NotifyApproved queues the approval email for a case.
func (o *Outbox) NotifyApproved(tx *gorm.DB, caseID uuid.UUID) error {
	return o.enqueue(tx, models.NotifyCaseApproved, caseID)
}

// NotifyRejected queues the rejection email for a rejected case.
func (o *Outbox) NotifyRejected(tx *gorm.DB, rejectionID uuid.UUID) error {
	return o.enqueue(tx, models.NotifyCaseRejected, rejectionID)
}

// NotifyPaymentDue queues a registration fee reminder for a case.
func (o *Outbox) NotifyPaymentDue(tx *gorm.DB, caseID uuid.UUID) error {
	return o.enqueue(tx, models.NotifyPaymentDue, caseID)
}

// Wake asks the worker to drain now. Call it after the enqueueing
// transaction has committed; it never blocks.
func (o *Outbox) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
