package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/config"
	"github.com/aldoetobex/lawsuit-backend/internal/observability"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

// errObsolete marks a notification that no longer needs sending.
var errObsolete = errors.New("notification obsolete")

// Worker drains the notifications outbox.
type Worker struct {
	db       *gorm.DB
	outbox   *Outbox
	mailer   Mailer
	cfg      config.OutboxConfig
	currency string
	log      *zap.Logger
}

func NewWorker(db *gorm.DB, outbox *Outbox, mailer Mailer, cfg config.OutboxConfig, currency string, log *zap.Logger) *Worker {
	return &Worker{
		db:       db,
		outbox:   outbox,
		mailer:   mailer,
		cfg:      cfg,
		currency: strings.ToUpper(currency),
		log:      log.Named("notify"),
	}
}

// Run drains on every tick and whenever the outbox is woken, until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("outbox worker started", zap.Duration("interval", w.cfg.Interval))
	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("outbox drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.log.Info("outbox worker stopped")
			return nil
		case <-ticker.C:
		case <-w.outbox.wake:
		}
	}
}

// Drain delivers one batch of due notifications and reports how many it handled.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	var due []models.Notification
	err := w.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.NotificationPending, w.outbox.now()).
		Order("next_attempt_at ASC").
		Limit(w.cfg.Batch).
		Find(&due).Error
	if err != nil {
		return 0, err
	}
	for i := range due {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.deliver(ctx, &due[i])
	}
	return len(due), nil
}

func (w *Worker) deliver(ctx context.Context, n *models.Notification) {
	log := w.log.With(
		zap.String("notification_id", n.ID.String()),
		zap.String("kind", string(n.Kind)),
		zap.String("subject_id", n.SubjectID.String()),
	)

	msg, err := w.compose(ctx, n)
	if err == nil {
		err = w.mailer.Send(ctx, msg)
	}

	now := w.outbox.now()
	updates := map[string]any{}
	result := "sent"

	var perm *backoff.PermanentError
	switch {
	case err == nil:
		updates["status"] = models.NotificationSent
		updates["sent_at"] = now
		updates["last_error"] = ""
		log.Info("notification sent", zap.String("to", msg.To))
	case errors.Is(err, errObsolete):
		updates["status"] = models.NotificationSkipped
		updates["last_error"] = err.Error()
		result = "skipped"
		log.Info("notification skipped", zap.Error(err))
	default:
		attempts := n.Attempts + 1
		updates["attempts"] = attempts
		updates["last_error"] = err.Error()
		if errors.As(err, &perm) || attempts >= w.cfg.MaxAttempts {
			updates["status"] = models.NotificationFailed
			result = "failed"
			log.Error("notification failed", zap.Int("attempts", attempts), zap.Error(err))
		} else {
			next := now.Add(w.retryDelay(attempts))
			updates["next_attempt_at"] = next
			result = "retry"
			log.Warn("notification delivery failed, will retry",
				zap.Int("attempts", attempts), zap.Time("next_attempt_at", next), zap.Error(err))
		}
	}

	if err := w.db.WithContext(ctx).Model(n).Updates(updates).Error; err != nil {
		log.Error("update notification row", zap.Error(err))
		return
	}
	observability.NotificationDelivered(string(n.Kind), result)
}

// retryDelay is the exponential backoff interval after the given attempt count.
func (w *Worker) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.Interval
	b.MaxInterval = time.Hour
	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (w *Worker) money(d decimal.Decimal) string {
	return w.currency + " " + d.StringFixed(2)
}

// compose loads the subject of n and renders its email. Missing subjects are
// permanent failures; a payment reminder for a paid case is obsolete.
func (w *Worker) compose(ctx context.Context, n *models.Notification) (Message, error) {
	db := w.db.WithContext(ctx)
	switch n.Kind {
	case models.NotifyCaseApproved:
		var c models.Case
		if err := db.Preload("Client").Preload("Lawyer").First(&c, "id = ?", n.SubjectID).Error; err != nil {
			return Message{}, loadErr(err)
		}
		lawyer := ""
		if c.Lawyer != nil {
			lawyer = c.Lawyer.DisplayName()
		}
		text, html, err := approvedTpl.render(approvedData{
			Name:            c.Client.DisplayName(),
			CaseNumber:      c.CaseNumber,
			Title:           c.Title,
			CaseType:        c.CaseType,
			AmountInvolved:  w.money(c.AmountInvolved),
			RegistrationFee: w.money(c.RegistrationFee),
			LawyerName:      lawyer,
		})
		return Message{
			To:      c.Client.Email,
			Subject: fmt.Sprintf("Your Case Has Been Approved - Case #%s", c.CaseNumber),
			Text:    text,
			HTML:    html,
		}, err

	case models.NotifyCaseRejected:
		var r models.RejectedCase
		if err := db.Preload("Client").First(&r, "id = ?", n.SubjectID).Error; err != nil {
			return Message{}, loadErr(err)
		}
		text, html, err := rejectedTpl.render(rejectedData{
			Name:     r.Client.DisplayName(),
			Title:    r.Title,
			CaseType: r.CaseType,
			Reason:   r.RejectionReason,
		})
		return Message{
			To:      r.Client.Email,
			Subject: "Case Request Status - Your Case Has Been Rejected",
			Text:    text,
			HTML:    html,
		}, err

	case models.NotifyPaymentDue:
		var c models.Case
		if err := db.Preload("Client").First(&c, "id = ?", n.SubjectID).Error; err != nil {
			return Message{}, loadErr(err)
		}
		if c.RegistrationFeePaid {
			return Message{}, fmt.Errorf("%w: registration fee already paid", errObsolete)
		}
		text, html, err := paymentDueTpl.render(paymentDueData{
			Name:            c.Client.DisplayName(),
			CaseNumber:      c.CaseNumber,
			RegistrationFee: w.money(c.RegistrationFee),
		})
		return Message{
			To:      c.Client.Email,
			Subject: fmt.Sprintf("Payment Reminder - Case #%s", c.CaseNumber),
			Text:    text,
			HTML:    html,
		}, err
	}
	return Message{}, backoff.Permanent(fmt.Errorf("unknown notification kind %q", n.Kind))
}

func loadErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backoff.Permanent(fmt.Errorf("subject not found: %w", err))
	}
	return err
}
