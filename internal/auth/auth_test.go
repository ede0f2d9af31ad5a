package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aldoetobex/lawsuit-backend/internal/testutil"
	"github.com/aldoetobex/lawsuit-backend/pkg/apperr"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

/* ===== helpers ===== */

func newTestApp(t *testing.T) (*fiber.App, *Handler) {
	t.Helper()
	db := testutil.NewDB(t)
	tokens := NewTokens("test-secret", time.Minute, time.Hour)
	principals := NewPrincipals(db, time.Minute)
	h := NewHandler(db, tokens, principals)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Post("/api/auth/register", h.Register)
	app.Post("/api/auth/token", h.Token)
	app.Post("/api/auth/token/refresh", h.Refresh)

	authed := app.Group("/api", RequireAuth(tokens, principals))
	authed.Get("/profile", h.Profile)
	authed.Patch("/profile", h.UpdateProfile)
	return app, h
}

func doJSON(t *testing.T, app *fiber.App, method, path, body, bearer string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

const registerBody = `{"username":"jdoe","email":"JDoe@Example.com","password":"Secret123!","password_confirm":"Secret123!","first_name":"John","role":"client"}`

/* ================== TESTS ================== */

func Test_Register_Token_Profile_Flow(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "/api/auth/register", registerBody, "")
	if resp.StatusCode != 201 {
		t.Fatalf("register got %d: %s", resp.StatusCode, body)
	}
	var prof ProfileResponse
	_ = json.Unmarshal(body, &prof)
	if prof.Email != "jdoe@example.com" || prof.Role != models.RoleClient {
		t.Fatalf("unexpected profile %+v", prof)
	}

	// login by email works as well as by username
	resp, body = doJSON(t, app, "POST", "/api/auth/token", `{"username":"jdoe@example.com","password":"Secret123!"}`, "")
	if resp.StatusCode != 200 {
		t.Fatalf("token got %d: %s", resp.StatusCode, body)
	}
	var pair TokenPair
	_ = json.Unmarshal(body, &pair)
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("missing tokens: %s", body)
	}

	resp, body = doJSON(t, app, "GET", "/api/profile", "", pair.Access)
	if resp.StatusCode != 200 {
		t.Fatalf("profile got %d: %s", resp.StatusCode, body)
	}

	// a refresh token is not accepted as an access token
	resp, _ = doJSON(t, app, "GET", "/api/profile", "", pair.Refresh)
	if resp.StatusCode != 401 {
		t.Fatalf("refresh token used as bearer must be 401, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, app, "POST", "/api/auth/token/refresh", `{"refresh":"`+pair.Refresh+`"}`, "")
	if resp.StatusCode != 200 {
		t.Fatalf("refresh got %d: %s", resp.StatusCode, body)
	}
	var acc AccessResponse
	_ = json.Unmarshal(body, &acc)
	if acc.Access == "" {
		t.Fatal("refresh returned no access token")
	}
}

func Test_Register_PasswordMismatch(t *testing.T) {
	app, _ := newTestApp(t)

	body := `{"username":"jdoe","email":"j@example.com","password":"Secret123!","password_confirm":"Other123!","role":"client"}`
	resp, b := doJSON(t, app, "POST", "/api/auth/register", body, "")
	if resp.StatusCode != 400 {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
	var out models.ValidationErrorResponse
	_ = json.Unmarshal(b, &out)
	if len(out.Errors["password_confirm"]) == 0 || out.Errors["password_confirm"][0] != "Passwords do not match" {
		t.Fatalf("unexpected errors %+v", out.Errors)
	}
}

func Test_Register_DuplicateUsername(t *testing.T) {
	app, _ := newTestApp(t)

	if resp, b := doJSON(t, app, "POST", "/api/auth/register", registerBody, ""); resp.StatusCode != 201 {
		t.Fatalf("first register got %d: %s", resp.StatusCode, b)
	}
	resp, b := doJSON(t, app, "POST", "/api/auth/register", registerBody, "")
	if resp.StatusCode != 400 {
		t.Fatalf("duplicate must be 400, got %d", resp.StatusCode)
	}
	var out models.ValidationErrorResponse
	_ = json.Unmarshal(b, &out)
	if out.Errors["username"] == nil || out.Errors["email"] == nil {
		t.Fatalf("expected username and email errors, got %+v", out.Errors)
	}
}

func Test_Register_RejectsUnknownRole(t *testing.T) {
	app, _ := newTestApp(t)

	body := strings.Replace(registerBody, `"role":"client"`, `"role":"admin"`, 1)
	if resp, _ := doJSON(t, app, "POST", "/api/auth/register", body, ""); resp.StatusCode != 400 {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func Test_Token_BadPassword(t *testing.T) {
	app, _ := newTestApp(t)
	doJSON(t, app, "POST", "/api/auth/register", registerBody, "")

	resp, b := doJSON(t, app, "POST", "/api/auth/token", `{"username":"jdoe","password":"nope"}`, "")
	if resp.StatusCode != 401 {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
	var out models.ErrorResponse
	_ = json.Unmarshal(b, &out)
	if out.Message != badCredentials || out.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected body %+v", out)
	}
}

func Test_UpdateProfile_RoleIsImmutable(t *testing.T) {
	app, h := newTestApp(t)
	doJSON(t, app, "POST", "/api/auth/register", registerBody, "")

	var u models.User
	if err := h.db.First(&u, "username = ?", "jdoe").Error; err != nil {
		t.Fatal(err)
	}
	pair, _ := h.tokens.Issue(u.ID.String(), string(u.Role))

	resp, b := doJSON(t, app, "PATCH", "/api/profile", `{"role":"lawyer","city":"Pune","phone":"+91 98765 43210"}`, pair.Access)
	if resp.StatusCode != 200 {
		t.Fatalf("patch got %d: %s", resp.StatusCode, b)
	}
	var prof ProfileResponse
	_ = json.Unmarshal(b, &prof)
	if prof.Role != models.RoleClient || prof.City != "Pune" {
		t.Fatalf("unexpected profile %+v", prof)
	}
}

func Test_RequireAuth_RejectsDeletedUser(t *testing.T) {
	app, h := newTestApp(t)
	u := testutil.MakeUser(t, h.db, models.RoleLawyer)
	pair, _ := h.tokens.Issue(u.ID.String(), string(u.Role))

	if err := h.db.Delete(&u).Error; err != nil {
		t.Fatal(err)
	}
	if resp, _ := doJSON(t, app, "GET", "/api/profile", "", pair.Access); resp.StatusCode != 401 {
		t.Fatalf("want 401 for deleted user, got %d", resp.StatusCode)
	}
}

func Test_ErrorHandler_MapsDomainKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.NotFound("case request not found"), 404, "NOT_FOUND"},
		{apperr.InvalidState("only pending case requests can be approved"), 409, "INVALID_STATE"},
		{apperr.Forbidden("nope"), 403, "FORBIDDEN"},
		{apperr.Validation("registration_fee must be >= 0"), 400, "VALIDATION_ERROR"},
		{apperr.External("card declined"), 400, "EXTERNAL_SERVICE_ERROR"},
		{fiber.ErrNotFound, 404, "NOT_FOUND"},
		{io.ErrUnexpectedEOF, 500, "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range cases {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
		app.Get("/", func(*fiber.Ctx) error { return tc.err })

		resp, _ := app.Test(httptest.NewRequest("GET", "/", nil))
		if resp.StatusCode != tc.status {
			t.Fatalf("%v: want %d, got %d", tc.err, tc.status, resp.StatusCode)
		}
		var out models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Code != tc.code || !out.Error {
			t.Fatalf("%v: unexpected body %+v", tc.err, out)
		}
	}
}

func Test_RateLimiter_Blocks(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Post("/login", rl.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(204) })

	for i := 0; i < 2; i++ {
		resp, _ := app.Test(httptest.NewRequest("POST", "/login", nil))
		if resp.StatusCode != 204 {
			t.Fatalf("request %d should pass, got %d", i, resp.StatusCode)
		}
	}
	resp, _ := app.Test(httptest.NewRequest("POST", "/login", nil))
	if resp.StatusCode != 429 || resp.Header.Get("Retry-After") != "1" {
		t.Fatalf("want 429 with Retry-After, got %d", resp.StatusCode)
	}
}

func Test_DatabaseFailureIsNotReadAsMissingRow(t *testing.T) {
	app, h := newTestApp(t)
	sqlDB, err := h.db.DB()
	if err != nil {
		t.Fatal(err)
	}
	_ = sqlDB.Close()

	// a failed uniqueness check must not fall through to "taken" or "free"
	if resp, b := doJSON(t, app, "POST", "/api/auth/register", registerBody, ""); resp.StatusCode != 500 {
		t.Fatalf("register want 500, got %d: %s", resp.StatusCode, b)
	}
	// nor may a failed user lookup pass for bad credentials
	body := `{"username":"jdoe","password":"Secret123!"}`
	if resp, b := doJSON(t, app, "POST", "/api/auth/token", body, ""); resp.StatusCode != 500 {
		t.Fatalf("token want 500, got %d: %s", resp.StatusCode, b)
	}
}
