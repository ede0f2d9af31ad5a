package authz_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/testutil"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

func TestAuthorize(t *testing.T) {
	client := authz.Principal{ID: uuid.New(), Role: models.RoleClient}
	other := authz.Principal{ID: uuid.New(), Role: models.RoleClient}
	lawyer := authz.Principal{ID: uuid.New(), Role: models.RoleLawyer}
	stranger := authz.Principal{ID: uuid.New(), Role: models.RoleLawyer}
	admin := authz.Principal{ID: uuid.New(), Role: models.Role("admin")}

	owned := authz.Resource{ClientID: client.ID, LawyerID: &lawyer.ID}

	tests := []struct {
		name string
		p    authz.Principal
		a    authz.Action
		r    authz.Resource
		ok   bool
	}{
		{"client files request", client, authz.FileRequest, authz.Resource{}, true},
		{"lawyer cannot file request", lawyer, authz.FileRequest, authz.Resource{}, false},
		{"lawyer has no own requests", lawyer, authz.ListOwnRequests, authz.Resource{}, false},
		{"lawyer approves", lawyer, authz.ApproveRequest, authz.Resource{}, true},
		{"client cannot approve", client, authz.ApproveRequest, authz.Resource{}, false},
		{"client cannot reject", client, authz.RejectRequest, authz.Resource{}, false},
		{"owner withdraws", client, authz.WithdrawRequest, owned, true},
		{"other client cannot withdraw", other, authz.WithdrawRequest, owned, false},
		{"assigned lawyer updates case", lawyer, authz.UpdateCase, owned, true},
		{"unassigned lawyer cannot update case", stranger, authz.UpdateCase, owned, false},
		{"client cannot remind", client, authz.RemindPayment, owned, false},
		{"lawyer reads pending document", stranger, authz.ReadDocument, authz.Resource{ClientID: client.ID, Pending: true}, true},
		{"lawyer cannot read decided document", stranger, authz.ReadDocument, owned, false},
		{"owner reads document", client, authz.ReadDocument, owned, true},
		{"anyone adds note", other, authz.CreateNote, owned, true},
		{"author edits note", other, authz.UpdateNote, authz.Resource{AuthorID: other.ID}, true},
		{"non-author cannot edit note", client, authz.UpdateNote, authz.Resource{AuthorID: other.ID}, false},
		{"client pays own case", client, authz.CreatePaymentIntent, owned, true},
		{"lawyer cannot create intent", lawyer, authz.CreatePaymentIntent, owned, false},
		{"assigned lawyer confirms", lawyer, authz.ConfirmPayment, owned, true},
		{"other client cannot confirm", other, authz.ConfirmPayment, owned, false},
		{"unknown role denied", admin, authz.FileRequest, authz.Resource{}, false},
		{"anonymous denied", authz.Principal{}, authz.CreateNote, owned, false},
		{"unknown action denied", client, authz.Action("case:delete"), owned, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(tt.p, tt.a, tt.r)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindForbidden), "want Forbidden, got %v", err)
			}
		})
	}
}

func TestRequireMiddleware(t *testing.T) {
	client := models.User{ID: uuid.New(), Role: models.RoleClient}
	lawyer := models.User{ID: uuid.New(), Role: models.RoleLawyer}

	newApp := func(u *models.User) *fiber.App {
		app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
			if apperr.Is(err, apperr.KindForbidden) {
				return c.SendStatus(fiber.StatusForbidden)
			}
			return fiber.DefaultErrorHandler(c, err)
		}})
		if u != nil {
			app.Use(testutil.InjectAuth(*u))
		}
		app.Post("/x", authz.Require(authz.ApproveRequest), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		})
		return app
	}

	cases := []struct {
		name string
		u    *models.User
		want int
	}{
		{"lawyer passes", &lawyer, fiber.StatusNoContent},
		{"client forbidden", &client, fiber.StatusForbidden},
		{"anonymous unauthorized", nil, fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := newApp(tc.u).Test(httptest.NewRequest("POST", "/x", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestScopes(t *testing.T) {
	db := testutil.NewDB(t)

	alice := testutil.MakeUser(t, db, models.RoleClient)
	bob := testutil.MakeUser(t, db, models.RoleClient)
	lawyerA := testutil.MakeUser(t, db, models.RoleLawyer)
	lawyerB := testutil.MakeUser(t, db, models.RoleLawyer)

	testutil.MakeRequest(t, db, alice.ID)
	decided := testutil.MakeRequest(t, db, bob.ID)
	require.NoError(t, db.Model(&decided).Update("status", models.RequestApproved).Error)

	testutil.MakeCase(t, db, alice.ID, lawyerA.ID)
	testutil.MakeCase(t, db, bob.ID, lawyerB.ID)

	p := func(u models.User) authz.Principal { return authz.Principal{ID: u.ID, Role: u.Role} }
	count := func(model any, scope func(*gorm.DB) *gorm.DB) int64 {
		var n int64
		require.NoError(t, db.Model(model).Scopes(scope).Count(&n).Error)
		return n
	}

	// MakeCase adds a pending request of its own for each case.
	assert.EqualValues(t, 2, count(&models.CaseRequest{}, authz.RequestScope(p(alice))))
	assert.EqualValues(t, 3, count(&models.CaseRequest{}, authz.RequestScope(p(lawyerA))))

	assert.EqualValues(t, 1, count(&models.Case{}, authz.CaseScope(p(alice))))
	assert.EqualValues(t, 1, count(&models.Case{}, authz.CaseScope(p(lawyerB))))

	assert.EqualValues(t, 1, count(&models.Payment{}, authz.PaymentScope(p(bob))))
	assert.EqualValues(t, 1, count(&models.Payment{}, authz.PaymentScope(p(lawyerA))))

	ghost := authz.Principal{ID: uuid.New(), Role: models.Role("auditor")}
	assert.Zero(t, count(&models.Case{}, authz.CaseScope(ghost)))
	assert.Zero(t, count(&models.Payment{}, authz.PaymentScope(ghost)))
	assert.Zero(t, count(&models.CaseRequest{}, authz.RequestScope(ghost)))
}
