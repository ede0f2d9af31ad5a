package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/config"
	"github.com/aldoetobex/lawsuit-backend/internal/testutil"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func setup(t *testing.T) (*gorm.DB, *Outbox, *fakeMailer, *Worker) {
	t.Helper()
	db := testutil.NewDB(t)
	ob := NewOutbox()
	m := &fakeMailer{}
	cfg := config.OutboxConfig{Interval: 10 * time.Millisecond, Batch: 10, MaxAttempts: 3}
	return db, ob, m, NewWorker(db, ob, m, cfg, "inr", zap.NewNop())
}

func enqueue(t *testing.T, db *gorm.DB, fn func(tx *gorm.DB) error) {
	t.Helper()
	require.NoError(t, db.Transaction(fn))
}

func status(t *testing.T, db *gorm.DB) models.Notification {
	t.Helper()
	var n models.Notification
	require.NoError(t, db.Order("created_at DESC").First(&n).Error)
	return n
}

func TestDrain_SendsApprovalToClient(t *testing.T) {
	db, ob, m, w := setup(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	c := testutil.MakeCase(t, db, client.ID, lawyer.ID)

	enqueue(t, db, func(tx *gorm.DB) error { return ob.NotifyApproved(tx, c.ID) })

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, client.Email, msg.To)
	assert.Contains(t, msg.Subject, c.CaseNumber)
	assert.Contains(t, msg.Text, "INR 500.00")
	assert.Contains(t, msg.Text, lawyer.DisplayName())
	assert.Contains(t, msg.HTML, "<h2>Case Approval Notification</h2>")

	row := status(t, db)
	assert.Equal(t, models.NotificationSent, row.Status)
	assert.NotNil(t, row.SentAt)

	// nothing left to do
	n, err = w.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrain_RejectionEscapesReasonInHTML(t *testing.T) {
	db, ob, m, w := setup(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	r := models.RejectedCase{
		CaseRequestID:   uuid.New(),
		ClientID:        client.ID,
		Title:           "Lease",
		CaseType:        "civil",
		RejectionReason: "<b>insufficient evidence</b>",
	}
	require.NoError(t, db.Create(&r).Error)

	enqueue(t, db, func(tx *gorm.DB) error { return ob.NotifyRejected(tx, r.ID) })
	_, err := w.Drain(context.Background())
	require.NoError(t, err)

	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].Text, "<b>insufficient evidence</b>")
	assert.Contains(t, m.sent[0].HTML, "&lt;b&gt;insufficient evidence&lt;/b&gt;")
}

func TestDrain_PaymentReminderSkippedWhenPaid(t *testing.T) {
	db, ob, m, w := setup(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	c := testutil.MakeCase(t, db, client.ID, lawyer.ID)

	enqueue(t, db, func(tx *gorm.DB) error { return ob.NotifyPaymentDue(tx, c.ID) })
	require.NoError(t, db.Model(&c).Update("registration_fee_paid", true).Error)

	_, err := w.Drain(context.Background())
	require.NoError(t, err)

	assert.Empty(t, m.sent)
	assert.Equal(t, models.NotificationSkipped, status(t, db).Status)
}

func TestDrain_RetriesThenFails(t *testing.T) {
	db, ob, m, w := setup(t)
	w.cfg.Interval = time.Minute
	m.err = errors.New("smtp: connection refused")
	client := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	c := testutil.MakeCase(t, db, client.ID, lawyer.ID)

	enqueue(t, db, func(tx *gorm.DB) error { return ob.NotifyPaymentDue(tx, c.ID) })

	_, err := w.Drain(context.Background())
	require.NoError(t, err)
	row := status(t, db)
	assert.Equal(t, models.NotificationPending, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.True(t, row.NextAttemptAt.After(time.Now().UTC()), "retry must be scheduled in the future")
	assert.Contains(t, row.LastError, "connection refused")

	// not due yet
	n, _ := w.Drain(context.Background())
	assert.Zero(t, n)

	// jump past each backoff window in turn
	for i := 1; i <= 2; i++ {
		skew := time.Duration(i) * 24 * time.Hour
		ob.now = func() time.Time { return time.Now().UTC().Add(skew) }
		n, err := w.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	row = status(t, db)
	assert.Equal(t, models.NotificationFailed, row.Status)
	assert.Equal(t, 3, row.Attempts)
}

func TestDrain_MissingSubjectFailsImmediately(t *testing.T) {
	db, ob, _, w := setup(t)
	enqueue(t, db, func(tx *gorm.DB) error { return ob.NotifyApproved(tx, uuid.New()) })

	_, err := w.Drain(context.Background())
	require.NoError(t, err)

	row := status(t, db)
	assert.Equal(t, models.NotificationFailed, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.True(t, strings.Contains(row.LastError, "subject not found"))
}

func TestEnqueue_RolledBackWithTransaction(t *testing.T) {
	db, ob, _, _ := setup(t)
	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := ob.NotifyApproved(tx, uuid.New()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int64
	db.Model(&models.Notification{}).Count(&n)
	assert.Zero(t, n)
}

func TestRun_WakeAndStop(t *testing.T) {
	db, ob, m, w := setup(t)
	w.cfg.Interval = time.Hour // only Wake can trigger the second drain

	client := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	c := testutil.MakeCase(t, db, client.ID, lawyer.ID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	enqueue(t, db, func(tx *gorm.DB) error { return ob.NotifyApproved(tx, c.ID) })
	ob.Wake()
	ob.Wake() // never blocks

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryDelay_Grows(t *testing.T) {
	w := &Worker{cfg: config.OutboxConfig{Interval: time.Second}}
	first := w.retryDelay(1)
	fifth := w.retryDelay(5)
	assert.Greater(t, fifth, first)
	assert.LessOrEqual(t, w.retryDelay(50), time.Hour+time.Hour/2)
}
