package caserequests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/lawsuit-backend/internal/auth"
	"github.com/aldoetobex/lawsuit-backend/internal/testutil"
	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

/* ===== helpers ===== */

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Upload(_ context.Context, key string, r io.Reader, _ string, _ int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/sign/" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func newTestApp(db *gorm.DB, store *memStore, u models.User) *fiber.App {
	h := NewHandler(db, store, zap.NewNop())
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(zap.NewNop())})
	app.Use(testutil.InjectAuth(u))

	// static before :id
	app.Get("/api/case-requests/my_cases", h.MyCases)
	app.Get("/api/case-requests", h.List)
	app.Post("/api/case-requests", h.Create)
	app.Get("/api/case-requests/:id", h.Get)
	app.Patch("/api/case-requests/:id", h.Update)
	app.Delete("/api/case-requests/:id", h.Delete)
	app.Post("/api/case-requests/:id/documents", h.UploadDocument)
	app.Get("/api/case-requests/:id/document", h.GetDocument)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func upload(t *testing.T, app *fiber.App, path, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="document"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func decodePage(t *testing.T, body []byte) models.Page[RequestResponse] {
	t.Helper()
	var pg models.Page[RequestResponse]
	if err := json.Unmarshal(body, &pg); err != nil {
		t.Fatalf("decode page: %v (%s)", err, body)
	}
	return pg
}

/* ===== tests ===== */

func Test_Create_ClientOnly(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	body := `{"title":" Unpaid invoice ","description":"Vendor never paid","case_type":"commercial","amount_involved":"2500.455"}`

	resp, b := call(t, newTestApp(db, newMemStore(), client), http.MethodPost, "/api/case-requests", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
	var out RequestResponse
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "Unpaid invoice", out.Title)
	assert.Equal(t, models.RequestPending, out.Status)
	assert.Equal(t, "2500.46", out.AmountInvolved.StringFixed(2))
	assert.Equal(t, client.Username, out.ClientName)

	resp, _ = call(t, newTestApp(db, newMemStore(), lawyer), http.MethodPost, "/api/case-requests", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_Create_Validation(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)

	resp, b := call(t, newTestApp(db, newMemStore(), client), http.MethodPost, "/api/case-requests",
		`{"title":"","description":"x","case_type":"civil","amount_involved":"-5"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out models.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Contains(t, out.Errors, "title")
	assert.Contains(t, out.Errors, "amount_involved")
}

func Test_List_Visibility(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.MakeUser(t, db, models.RoleClient)
	bob := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)

	a1 := testutil.MakeRequest(t, db, alice.ID)
	testutil.MakeRequest(t, db, bob.ID)
	decided := testutil.MakeRequest(t, db, bob.ID)
	require.NoError(t, db.Model(&decided).Update("status", models.RequestRejected).Error)

	// client: own only
	_, b := call(t, newTestApp(db, newMemStore(), alice), http.MethodGet, "/api/case-requests", "")
	pg := decodePage(t, b)
	require.Len(t, pg.Items, 1)
	assert.Equal(t, a1.ID, pg.Items[0].ID)

	// lawyer: every pending request, contact details redacted
	_, b = call(t, newTestApp(db, newMemStore(), lawyer), http.MethodGet, "/api/case-requests", "")
	pg = decodePage(t, b)
	assert.EqualValues(t, 2, pg.Total)
	for _, it := range pg.Items {
		assert.Equal(t, models.RequestPending, it.Status)
		assert.NotContains(t, it.Description, "555-123-4567")
		assert.Contains(t, it.Description, "[redacted phone]")
		assert.Contains(t, it.Preview, "[redacted phone]")
	}

	// the owner still reads the original text
	_, b = call(t, newTestApp(db, newMemStore(), alice), http.MethodGet, "/api/case-requests/"+a1.ID.String(), "")
	var one RequestResponse
	require.NoError(t, json.Unmarshal(b, &one))
	assert.Contains(t, one.Description, "555-123-4567")

	// another client cannot read it
	resp, _ := call(t, newTestApp(db, newMemStore(), bob), http.MethodGet, "/api/case-requests/"+a1.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_List_FiltersAndOrdering(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	small := testutil.MakeRequest(t, db, client.ID)
	big := testutil.MakeRequest(t, db, client.ID)
	require.NoError(t, db.Model(&big).Updates(map[string]any{
		"amount_involved": "90000.00", "case_type": "criminal", "title": "Assault claim",
	}).Error)
	app := newTestApp(db, newMemStore(), client)

	_, b := call(t, app, http.MethodGet, "/api/case-requests?ordering=-amount_involved", "")
	pg := decodePage(t, b)
	require.Len(t, pg.Items, 2)
	assert.Equal(t, big.ID, pg.Items[0].ID)

	_, b = call(t, app, http.MethodGet, "/api/case-requests?ordering=amount_involved", "")
	assert.Equal(t, small.ID, decodePage(t, b).Items[0].ID)

	_, b = call(t, app, http.MethodGet, "/api/case-requests?case_type=criminal", "")
	assert.EqualValues(t, 1, decodePage(t, b).Total)

	_, b = call(t, app, http.MethodGet, "/api/case-requests?search=ASSAULT", "")
	assert.EqualValues(t, 1, decodePage(t, b).Total)
}

func Test_MyCases_IncludesResolved(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	testutil.MakeRequest(t, db, client.ID)
	resolved := testutil.MakeRequest(t, db, client.ID)
	require.NoError(t, db.Model(&resolved).Update("status", models.RequestApproved).Error)
	require.NoError(t, db.Delete(&resolved).Error)

	_, b := call(t, newTestApp(db, newMemStore(), client), http.MethodGet, "/api/case-requests", "")
	assert.EqualValues(t, 1, decodePage(t, b).Total)

	_, b = call(t, newTestApp(db, newMemStore(), client), http.MethodGet, "/api/case-requests/my_cases", "")
	assert.EqualValues(t, 2, decodePage(t, b).Total)

	// resolved requests live on in my_cases only
	resp, _ := call(t, newTestApp(db, newMemStore(), client), http.MethodGet, "/api/case-requests/"+resolved.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, newTestApp(db, newMemStore(), lawyer), http.MethodGet, "/api/case-requests/my_cases", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_Update_OwnerWhilePending(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	r := testutil.MakeRequest(t, db, client.ID)
	path := "/api/case-requests/" + r.ID.String()

	resp, b := call(t, newTestApp(db, newMemStore(), client), http.MethodPatch, path, `{"title":"Deposit dispute","amount_involved":"800"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	var out RequestResponse
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "Deposit dispute", out.Title)
	assert.Equal(t, "800.00", out.AmountInvolved.StringFixed(2))
	assert.Equal(t, r.CaseType, out.CaseType)

	resp, _ = call(t, newTestApp(db, newMemStore(), lawyer), http.MethodPatch, path, `{"title":"hijack"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.NoError(t, db.Model(&r).Update("status", models.RequestRejected).Error)
	resp, _ = call(t, newTestApp(db, newMemStore(), client), http.MethodPatch, path, `{"title":"late edit"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func Test_Delete_WithdrawsPendingAndDocument(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	store := newMemStore()
	r := testutil.MakeRequest(t, db, client.ID)
	app := newTestApp(db, store, client)

	resp := upload(t, app, "/api/case-requests/"+r.ID.String()+"/documents", "lease.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, store.objects, 1)

	resp, _ = call(t, app, http.MethodDelete, "/api/case-requests/"+r.ID.String(), "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, store.objects)

	var n int64
	db.Unscoped().Model(&models.CaseRequest{}).Where("id = ?", r.ID).Count(&n)
	assert.Zero(t, n)
}

func Test_Documents_UploadAndRead(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	other := testutil.MakeUser(t, db, models.RoleClient)
	lawyer := testutil.MakeUser(t, db, models.RoleLawyer)
	store := newMemStore()
	r := testutil.MakeRequest(t, db, client.ID)
	base := "/api/case-requests/" + r.ID.String()

	// wrong type
	resp := upload(t, newTestApp(db, store, client), base+"/documents", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// not the owner
	resp = upload(t, newTestApp(db, store, other), base+"/documents", "deed.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = upload(t, newTestApp(db, store, client), base+"/documents", "deed.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, db.First(&r, "id = ?", r.ID).Error)
	assert.True(t, strings.HasPrefix(r.DocumentKey, "case-request/"+r.ID.String()+"/"))
	assert.True(t, strings.HasSuffix(r.DocumentKey, "/deed.png"))
	assert.Contains(t, store.objects, r.DocumentKey)

	// a lawyer reads it while pending
	resp, b := call(t, newTestApp(db, store, lawyer), http.MethodGet, base+"/document", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Contains(t, out["url"], "deed.png")

	// once decided the lawyer no longer sees the request
	require.NoError(t, db.Model(&r).Update("status", models.RequestApproved).Error)
	resp, _ = call(t, newTestApp(db, store, lawyer), http.MethodGet, base+"/document", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// and the owner can no longer replace it
	resp = upload(t, newTestApp(db, store, client), base+"/documents", "deed.png", "image/png", []byte{0x89})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func Test_Documents_StorageNotConfigured(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	r := testutil.MakeRequest(t, db, client.ID)

	h := NewHandler(db, nil, zap.NewNop())
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(zap.NewNop())})
	app.Use(testutil.InjectAuth(client))
	app.Post("/api/case-requests/:id/documents", h.UploadDocument)

	resp := upload(t, app, "/api/case-requests/"+r.ID.String()+"/documents", "a.pdf", "application/pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// hookStore runs onUpload before storing, standing in for a slow network upload.
type hookStore struct {
	*memStore
	onUpload func()
}

func (s *hookStore) Upload(ctx context.Context, key string, r io.Reader, ct string, size int64) error {
	if s.onUpload != nil {
		s.onUpload()
	}
	return s.memStore.Upload(ctx, key, r, ct, size)
}

func newHookApp(db *gorm.DB, store *hookStore, u models.User) *fiber.App {
	h := NewHandler(db, store, zap.NewNop())
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(zap.NewNop())})
	app.Use(testutil.InjectAuth(u))
	app.Post("/api/case-requests/:id/documents", h.UploadDocument)
	return app
}

func Test_Documents_UploadDoesNotHoldTheDatabase(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	r := testutil.MakeRequest(t, db, client.ID)

	var queryErr error
	store := &hookStore{memStore: newMemStore(), onUpload: func() {
		// the SQLite pool has a single connection; this blocks if a tx holds it
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		var n int64
		queryErr = db.WithContext(ctx).Model(&models.CaseRequest{}).Count(&n).Error
	}}

	resp := upload(t, newHookApp(db, store, client), "/api/case-requests/"+r.ID.String()+"/documents", "a.pdf", "application/pdf", []byte("%PDF"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NoError(t, queryErr)
}

func Test_Documents_ReplaceAndLostRace(t *testing.T) {
	db := testutil.NewDB(t)
	client := testutil.MakeUser(t, db, models.RoleClient)
	r := testutil.MakeRequest(t, db, client.ID)
	path := "/api/case-requests/" + r.ID.String() + "/documents"
	store := &hookStore{memStore: newMemStore()}
	app := newHookApp(db, store, client)

	require.Equal(t, http.StatusCreated, upload(t, app, path, "v1.pdf", "application/pdf", []byte("%PDF-1")).StatusCode)
	require.NoError(t, db.First(&r, "id = ?", r.ID).Error)
	first := r.DocumentKey

	// a replacement removes the old object
	require.Equal(t, http.StatusCreated, upload(t, app, path, "v2.pdf", "application/pdf", []byte("%PDF-2")).StatusCode)
	require.NoError(t, db.First(&r, "id = ?", r.ID).Error)
	assert.NotEqual(t, first, r.DocumentKey)
	assert.NotContains(t, store.objects, first)
	require.Len(t, store.objects, 1)
	current := r.DocumentKey

	// decided while the bytes were in flight: 409 and the new object is dropped
	var decideErr error
	store.onUpload = func() {
		decideErr = db.Model(&models.CaseRequest{}).Where("id = ?", r.ID).Update("status", models.RequestApproved).Error
	}
	assert.Equal(t, http.StatusConflict, upload(t, app, path, "v3.pdf", "application/pdf", []byte("%PDF-3")).StatusCode)
	require.NoError(t, decideErr)
	assert.Len(t, store.objects, 1)
	assert.Contains(t, store.objects, current)
}
