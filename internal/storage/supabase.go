package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/lawsuit-backend/internal/config"
)

// ObjectStore keeps case documents. Handlers depend on this, not on Supabase.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

/*
Supabase wraps minimal calls to the Supabase Storage REST API.

With a legacy service_role JWT both `apikey` and `Authorization: Bearer <token>`
are required; secret API keys accept the same pair.
*/
type Supabase struct {
	baseURL string // e.g. https://<project>.supabase.co
	apiKey  string
	bucket  string
	client  *http.Client
}

// NewSupabase returns nil when storage is not configured.
func NewSupabase(cfg config.StorageConfig) *Supabase {
	if cfg.URL == "" {
		return nil
	}
	return &Supabase{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.Key,
		bucket:  cfg.Bucket,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// DocumentKey builds a fresh object key for a request's attachment:
// case-request/<requestID>/<8 hex>/<filename>. Each upload gets its own key so
// a replacement never overwrites the object the row still points at.
func DocumentKey(requestID, filename string) string {
	return path.Join("case-request", requestID, uuid.NewString()[:8], path.Base(filename))
}

func (s *Supabase) objectURL(parts ...string) string {
	return s.baseURL + "/storage/v1/object/" + strings.Join(parts, "/")
}

func (s *Supabase) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return req, nil
}

// Upload sends an object to: POST /storage/v1/object/{bucket}/{objectName}
// x-upsert lets a client replace the attachment of a pending request.
func (s *Supabase) Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error {
	req, err := s.newRequest(ctx, http.MethodPost, s.objectURL(s.bucket, key), r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("supabase upload error: %s | %s", res.Status, string(body))
	}
	return nil
}

// SignedURL creates a short-lived signed URL:
// POST /storage/v1/object/sign/{bucket}/{objectName}  body: {"expiresIn": <seconds>}
func (s *Supabase) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	body, _ := json.Marshal(map[string]int{"expiresIn": int(expiresIn.Seconds())})
	req, err := s.newRequest(ctx, http.MethodPost, s.objectURL("sign", s.bucket, key), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("supabase sign error: %s | %s", res.Status, string(b))
	}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signedURL in response")
	}

	// API returns a relative path
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}

// Delete removes an object by key; 404 counts as success.
// DELETE /storage/v1/object/{bucket}/{objectName}
func (s *Supabase) Delete(ctx context.Context, key string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, s.objectURL(s.bucket, key), nil)
	if err != nil {
		return err
	}

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("supabase delete error: %s | %s", res.Status, string(b))
	}
	return nil
}
