// Package testutil opens throwaway databases and seeds fixtures for package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/pkg/database"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

var seq atomic.Int64

// NewDB returns a migrated SQLite database living in t.TempDir().
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", "", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Password is the plain-text password of every seeded user.
const Password = "Secret123!"

var hashed = func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	return string(h)
}()

// MakeUser inserts a user with a unique username and email.
func MakeUser(t *testing.T, db *gorm.DB, role models.Role) models.User {
	t.Helper()
	n := seq.Add(1)
	u := models.User{
		Username:     fmt.Sprintf("%s%d", role, n),
		Email:        fmt.Sprintf("%s%d@example.com", role, n),
		PasswordHash: hashed,
		Role:         role,
		FirstName:    fmt.Sprintf("First%d", n),
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// MakeRequest inserts a pending case request owned by clientID.
func MakeRequest(t *testing.T, db *gorm.DB, clientID uuid.UUID) models.CaseRequest {
	t.Helper()
	n := seq.Add(1)
	r := models.CaseRequest{
		ClientID:       clientID,
		Title:          fmt.Sprintf("Dispute %d", n),
		Description:    "Landlord kept the deposit; call me at 555-123-4567",
		CaseType:       "civil",
		Status:         models.RequestPending,
		AmountInvolved: decimal.RequireFromString("1200.50"),
	}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	return r
}

// MakeCase inserts an approved case for the given parties and its pending payment.
func MakeCase(t *testing.T, db *gorm.DB, clientID, lawyerID uuid.UUID) models.Case {
	t.Helper()
	req := MakeRequest(t, db, clientID)
	n := seq.Add(1)
	c := models.Case{
		CaseRequestID:   req.ID,
		CaseNumber:      fmt.Sprintf("CASE-T%07d", n),
		ClientID:        clientID,
		LawyerID:        &lawyerID,
		Title:           req.Title,
		Description:     req.Description,
		CaseType:        req.CaseType,
		Status:          models.CaseApproved,
		AmountInvolved:  req.AmountInvolved,
		RegistrationFee: decimal.RequireFromString("500.00"),
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create case: %v", err)
	}
	p := models.Payment{CaseID: c.ID, Amount: c.RegistrationFee, Status: models.PayPending}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	c.Payment = &p
	return c
}

// InjectAuth sets the locals RequireAuth would set.
func InjectAuth(u models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", u.ID.String())
		c.Locals("role", string(u.Role))
		return c.Next()
	}
}
