package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
)

// RequestStatus defines lifecycle states for a case request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// CaseStatus defines lifecycle states for an approved case.
type CaseStatus string

const (
	CaseApproved CaseStatus = "approved"
	CaseClosed   CaseStatus = "closed"
)

// PayStatus defines lifecycle states for a payment.
type PayStatus string

const (
	PayPending   PayStatus = "pending"
	PayCompleted PayStatus = "completed"
	PayFailed    PayStatus = "failed"
)

// NotificationKind names the email a notification row will produce.
type NotificationKind string

const (
	NotifyCaseApproved NotificationKind = "case_approved"
	NotifyCaseRejected NotificationKind = "case_rejected"
	NotifyPaymentDue   NotificationKind = "payment_due"
)

// NotificationStatus defines delivery states of an outbox row.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationSkipped NotificationStatus = "skipped" // obsolete by delivery time
)

func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

/* =============================== Entities =============================== */

// User represents a client or lawyer. Role is fixed at registration.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null" json:"role"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `gorm:"size:20" json:"phone"`
	Address      string    `gorm:"type:text" json:"address"`
	City         string    `gorm:"size:100" json:"city"`
	State        string    `gorm:"size:100" json:"state"`
	Zipcode      string    `gorm:"size:20" json:"zipcode"`
	Bio          string    `gorm:"type:text" json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error { newID(&u.ID); return nil }

// DisplayName is the first name when present, otherwise the username.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// CaseRequest is a client's petition awaiting a lawyer decision.
// Resolved requests keep their terminal status and a pointer to the derived
// record, and are soft-deleted so default queries no longer return them.
type CaseRequest struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client              User            `gorm:"foreignKey:ClientID" json:"-"`
	Title               string          `gorm:"size:255;not null" json:"title"`
	Description         string          `gorm:"type:text;not null" json:"description"`
	CaseType            string          `gorm:"size:100;not null;index" json:"case_type"`
	Status              RequestStatus   `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	DocumentKey         string          `json:"document_key,omitempty"`
	AmountInvolved      decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount_involved"`
	RequestedLawyerType string          `gorm:"size:100" json:"requested_lawyer_type,omitempty"`

	// Resolution back-references
	CaseID      *uuid.UUID `gorm:"type:uuid" json:"case_id,omitempty"`
	RejectionID *uuid.UUID `gorm:"type:uuid" json:"rejection_id,omitempty"`
	ResolvedBy  *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *CaseRequest) BeforeCreate(*gorm.DB) error { newID(&r.ID); return nil }

// Case represents an approved legal matter linking one client and one lawyer.
type Case struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CaseRequestID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"case_request"`
	CaseNumber          string          `gorm:"size:50;not null;uniqueIndex" json:"case_number"`
	ClientID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID            *uuid.UUID      `gorm:"type:uuid;index" json:"lawyer_id"`
	Title               string          `gorm:"size:255;not null" json:"title"`
	Description         string          `gorm:"type:text" json:"description"`
	CaseType            string          `gorm:"size:100;not null" json:"case_type"`
	Status              CaseStatus      `gorm:"type:varchar(20);default:'approved'" json:"status"`
	DocumentKey         string          `json:"document_key,omitempty"`
	AmountInvolved      decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount_involved"`
	RegistrationFee     decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"registration_fee"`
	RegistrationFeePaid bool            `gorm:"not null;default:false" json:"registration_fee_paid"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`

	// Relations
	Client  User       `gorm:"foreignKey:ClientID" json:"-"`
	Lawyer  *User      `gorm:"foreignKey:LawyerID" json:"-"`
	Notes   []CaseNote `json:"notes,omitempty"`
	Payment *Payment   `json:"payment,omitempty"`
}

func (c *Case) BeforeCreate(*gorm.DB) error { newID(&c.ID); return nil }

// RejectedCase is the terminal record of a declined case request.
type RejectedCase struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseRequestID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"case_request"`
	ClientID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	CaseType        string     `gorm:"size:100;not null" json:"case_type"`
	RejectionReason string     `gorm:"type:text;not null" json:"rejection_reason"`
	RejectedByID    *uuid.UUID `gorm:"type:uuid;index" json:"rejected_by"`
	RejectedAt      time.Time  `gorm:"autoCreateTime" json:"rejected_at"`

	Client     User  `gorm:"foreignKey:ClientID" json:"-"`
	RejectedBy *User `gorm:"foreignKey:RejectedByID" json:"-"`
}

func (r *RejectedCase) BeforeCreate(*gorm.DB) error { newID(&r.ID); return nil }

// CaseNote is a free-text annotation on a case.
type CaseNote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"case"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null" json:"author"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Author User `gorm:"foreignKey:AuthorID" json:"-"`
}

func (n *CaseNote) BeforeCreate(*gorm.DB) error { newID(&n.ID); return nil }

// Payment tracks the registration fee of a case through the payment gateway.
type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"case"`
	Amount          decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Status          PayStatus       `gorm:"type:varchar(20);default:'pending'" json:"status"`
	GatewayIntentID *string         `gorm:"uniqueIndex" json:"stripe_payment_intent_id"`
	PaidAt          *time.Time      `json:"paid_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Case *Case `gorm:"foreignKey:CaseID" json:"-"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error { newID(&p.ID); return nil }

// CaseHistory is an audit log entry for lifecycle changes of a request, case or payment.
type CaseHistory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityID  uuid.UUID `gorm:"type:uuid;not null;index"`  // request, case or payment id
	ActorID   uuid.UUID `gorm:"type:uuid;not null;index"`  // who performed the action
	Action    string    `gorm:"type:varchar(50);not null"` // e.g. approved, rejected, payment_completed
	OldStatus string    `gorm:"type:varchar(20)"`
	NewStatus string    `gorm:"type:varchar(20)"`
	Reason    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (h *CaseHistory) BeforeCreate(*gorm.DB) error { newID(&h.ID); return nil }

// Notification is an outbox row; it is written in the same transaction as the
// state change it announces and drained by the notify worker.
type Notification struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey"`
	Kind          NotificationKind   `gorm:"type:varchar(30);not null"`
	SubjectID     uuid.UUID          `gorm:"type:uuid;not null;index"`
	Status        NotificationStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_outbox_due,priority:1"`
	Attempts      int                `gorm:"not null;default:0"`
	NextAttemptAt time.Time          `gorm:"not null;index:idx_outbox_due,priority:2"`
	LastError     string             `gorm:"type:text"`
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (n *Notification) BeforeCreate(*gorm.DB) error { newID(&n.ID); return nil }

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &CaseRequest{}, &Case{}, &RejectedCase{}, &CaseNote{},
		&Payment{}, &CaseHistory{}, &Notification{},
	}
}
