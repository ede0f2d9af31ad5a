package caserequests

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
	"github.com/aldoetobex/lawsuit-backend/pkg/sanitize"
)

const previewLen = 240

// Body for POST /case-requests
type CreateRequest struct {
	Title               string          `json:"title" validate:"required,max=255"`
	Description         string          `json:"description" validate:"required,max=10000"`
	CaseType            string          `json:"case_type" validate:"required,max=100"`
	AmountInvolved      decimal.Decimal `json:"amount_involved" validate:"gte=0,lte=9999999999999.99"`
	RequestedLawyerType string          `json:"requested_lawyer_type" validate:"max=100"`
}

// Body for PATCH /case-requests/:id (partial)
type UpdateRequest struct {
	Title               *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Description         *string          `json:"description" validate:"omitempty,min=1,max=10000"`
	CaseType            *string          `json:"case_type" validate:"omitempty,min=1,max=100"`
	AmountInvolved      *decimal.Decimal `json:"amount_involved" validate:"omitempty,gte=0,lte=9999999999999.99"`
	RequestedLawyerType *string          `json:"requested_lawyer_type" validate:"omitempty,max=100"`
}

type RequestResponse struct {
	ID                  uuid.UUID            `json:"id"`
	Client              uuid.UUID            `json:"client"`
	ClientName          string               `json:"client_name"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	Preview             string               `json:"preview"`
	CaseType            string               `json:"case_type"`
	Status              models.RequestStatus `json:"status"`
	HasDocument         bool                 `json:"has_document"`
	AmountInvolved      decimal.Decimal      `json:"amount_involved"`
	RequestedLawyerType string               `json:"requested_lawyer_type"`
	CaseID              *uuid.UUID           `json:"case_id"`
	RejectionID         *uuid.UUID           `json:"rejection_id"`
	ResolvedAt          *time.Time           `json:"resolved_at"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// toResponse renders r for p. Lawyers only see the description with contact
// details redacted.
func toResponse(r models.CaseRequest, p authz.Principal) RequestResponse {
	desc := r.Description
	if p.IsLawyer() {
		desc = sanitize.RedactPII(desc)
	}
	return RequestResponse{
		ID: r.ID, Client: r.ClientID, ClientName: r.Client.Username,
		Title: r.Title, Description: desc, Preview: sanitize.Summary(sanitize.RedactPII(r.Description), previewLen),
		CaseType: r.CaseType, Status: r.Status, HasDocument: r.DocumentKey != "",
		AmountInvolved: r.AmountInvolved, RequestedLawyerType: r.RequestedLawyerType,
		CaseID: r.CaseID, RejectionID: r.RejectionID, ResolvedAt: r.ResolvedAt,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}
