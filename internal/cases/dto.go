package cases

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

/* ================================ Input ================================= */

// Body for POST /cases (approve by body)
type CreateCaseRequest struct {
	CaseRequestID   uuid.UUID        `json:"case_request_id" validate:"required"`
	RegistrationFee *decimal.Decimal `json:"registration_fee" validate:"omitempty,gte=0,lte=99999999.99"`
}

// Body for POST /cases/:id/approve_case
type ApproveRequest struct {
	RegistrationFee *decimal.Decimal `json:"registration_fee" validate:"omitempty,gte=0,lte=99999999.99"`
}

// Body for POST /cases/:id/reject_case
type RejectRequest struct {
	RejectionReason string `json:"rejection_reason" validate:"max=2000"`
}

// Body for PATCH /cases/:id
type UpdateCaseRequest struct {
	Status              *string `json:"status" validate:"omitempty,oneof=approved closed"`
	RegistrationFeePaid *bool   `json:"registration_fee_paid"`
}

// Body for POST /cases/:id/notes and PATCH /cases/:id/notes/:noteID
type NoteRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

/* ================================ Output ================================ */

type NoteResponse struct {
	ID         uuid.UUID `json:"id"`
	Case       uuid.UUID `json:"case"`
	Author     uuid.UUID `json:"author"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PaymentSummary struct {
	ID                    uuid.UUID        `json:"id"`
	Case                  uuid.UUID        `json:"case"`
	CaseNumber            string           `json:"case_number"`
	Amount                decimal.Decimal  `json:"amount"`
	Status                models.PayStatus `json:"status"`
	StripePaymentIntentID *string          `json:"stripe_payment_intent_id"`
	PaidAt                *time.Time       `json:"paid_at"`
	CreatedAt             time.Time        `json:"created_at"`
}

type CaseResponse struct {
	ID                  uuid.UUID         `json:"id"`
	Client              uuid.UUID         `json:"client"`
	ClientName          string            `json:"client_name"`
	Lawyer              *uuid.UUID        `json:"lawyer"`
	LawyerName          *string           `json:"lawyer_name"`
	CaseRequest         uuid.UUID         `json:"case_request"`
	CaseNumber          string            `json:"case_number"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	CaseType            string            `json:"case_type"`
	Status              models.CaseStatus `json:"status"`
	HasDocument         bool              `json:"has_document"`
	AmountInvolved      decimal.Decimal   `json:"amount_involved"`
	RegistrationFee     decimal.Decimal   `json:"registration_fee"`
	RegistrationFeePaid bool              `json:"registration_fee_paid"`
	Notes               []NoteResponse    `json:"notes"`
	Payment             *PaymentSummary   `json:"payment"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

type RejectedCaseResponse struct {
	ID              uuid.UUID  `json:"id"`
	Client          uuid.UUID  `json:"client"`
	ClientName      string     `json:"client_name"`
	CaseRequest     uuid.UUID  `json:"case_request"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	CaseType        string     `json:"case_type"`
	RejectionReason string     `json:"rejection_reason"`
	RejectedBy      *uuid.UUID `json:"rejected_by"`
	RejectedByName  *string    `json:"rejected_by_name"`
	RejectedAt      time.Time  `json:"rejected_at"`
}

type ApproveResponse struct {
	Message string       `json:"message" example:"Case approved successfully"`
	Case    CaseResponse `json:"case"`
}

type RejectResponse struct {
	Message      string               `json:"message" example:"Case rejected successfully"`
	RejectedCase RejectedCaseResponse `json:"rejected_case"`
}

/* ================================ Mapping =============================== */

func toNote(n models.CaseNote) NoteResponse {
	return NoteResponse{
		ID: n.ID, Case: n.CaseID, Author: n.AuthorID, AuthorName: n.Author.Username,
		Content: n.Content, CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
	}
}

func toPayment(p *models.Payment, caseNumber string) *PaymentSummary {
	if p == nil {
		return nil
	}
	return &PaymentSummary{
		ID: p.ID, Case: p.CaseID, CaseNumber: caseNumber, Amount: p.Amount, Status: p.Status,
		StripePaymentIntentID: p.GatewayIntentID, PaidAt: p.PaidAt, CreatedAt: p.CreatedAt,
	}
}

func toCase(c models.Case) CaseResponse {
	out := CaseResponse{
		ID: c.ID, Client: c.ClientID, ClientName: c.Client.Username,
		Lawyer: c.LawyerID, CaseRequest: c.CaseRequestID, CaseNumber: c.CaseNumber,
		Title: c.Title, Description: c.Description, CaseType: c.CaseType, Status: c.Status,
		HasDocument:    c.DocumentKey != "",
		AmountInvolved: c.AmountInvolved, RegistrationFee: c.RegistrationFee,
		RegistrationFeePaid: c.RegistrationFeePaid,
		Notes:               lo.Map(c.Notes, func(n models.CaseNote, _ int) NoteResponse { return toNote(n) }),
		Payment:             toPayment(c.Payment, c.CaseNumber),
		CreatedAt:           c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
	if c.Lawyer != nil {
		out.LawyerName = lo.ToPtr(c.Lawyer.Username)
	}
	return out
}

func toRejected(r models.RejectedCase) RejectedCaseResponse {
	out := RejectedCaseResponse{
		ID: r.ID, Client: r.ClientID, ClientName: r.Client.Username, CaseRequest: r.CaseRequestID,
		Title: r.Title, Description: r.Description, CaseType: r.CaseType,
		RejectionReason: r.RejectionReason, RejectedBy: r.RejectedByID, RejectedAt: r.RejectedAt,
	}
	if r.RejectedBy != nil {
		out.RejectedByName = lo.ToPtr(r.RejectedBy.Username)
	}
	return out
}
