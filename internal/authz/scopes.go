package authz

import (
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

func none(db *gorm.DB) *gorm.DB { return db.Where("1 = 0") }

// RequestScope: clients see their own requests, lawyers see pending ones.
func RequestScope(p Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch p.Role {
		case models.RoleClient:
			return db.Where("case_requests.client_id = ?", p.ID)
		case models.RoleLawyer:
			return db.Where("case_requests.status = ?", models.RequestPending)
		default:
			return none(db)
		}
	}
}

// CaseScope: clients see their cases, lawyers the cases assigned to them.
func CaseScope(p Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch p.Role {
		case models.RoleClient:
			return db.Where("cases.client_id = ?", p.ID)
		case models.RoleLawyer:
			return db.Where("cases.lawyer_id = ?", p.ID)
		default:
			return none(db)
		}
	}
}

// RejectionScope: clients see their rejections, lawyers the ones they issued.
func RejectionScope(p Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch p.Role {
		case models.RoleClient:
			return db.Where("rejected_cases.client_id = ?", p.ID)
		case models.RoleLawyer:
			return db.Where("rejected_cases.rejected_by_id = ?", p.ID)
		default:
			return none(db)
		}
	}
}

// PaymentScope follows CaseScope through the parent case.
func PaymentScope(p Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.Role != models.RoleClient && p.Role != models.RoleLawyer {
			return none(db)
		}
		sub := db.Session(&gorm.Session{NewDB: true}).
			Model(&models.Case{}).
			Select("cases.id").
			Scopes(CaseScope(p))
		return db.Where("payments.case_id IN (?)", sub)
	}
}
