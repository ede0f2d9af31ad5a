package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"github.com/aldoetobex/lawsuit-backend/internal/config"
)

// StatusSucceeded is the only intent status that completes a payment.
const StatusSucceeded = string(stripe.PaymentIntentStatusSucceeded)

// Intent is a gateway-side payment attempt the client finishes in the browser.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Reusable reports whether the client can still finish paying this intent.
func (i Intent) Reusable() bool {
	return i.Status != StatusSucceeded && i.Status != string(stripe.PaymentIntentStatusCanceled)
}

// Gateway is the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (Intent, error)
	RetrieveIntent(ctx context.Context, ref string) (Intent, error)
}

// NewGateway picks the gateway configured by PAYMENT_PROVIDER.
func NewGateway(cfg config.PaymentConfig) Gateway {
	if cfg.Provider == "stripe" {
		return NewStripe(cfg.StripeKey)
	}
	return NewMock()
}

/* ================================ Stripe ================================ */

type Stripe struct {
	intents *paymentintent.Client
}

func NewStripe(key string) *Stripe {
	return &Stripe{intents: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}}
}

func (s *Stripe) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.intents.New(params)
	if err != nil {
		return Intent{}, stripeErr(err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (s *Stripe) RetrieveIntent(ctx context.Context, ref string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(ref, params)
	if err != nil {
		return Intent{}, stripeErr(err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// stripeErr keeps only the human-readable message of an API error.
func stripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return errors.New(se.Msg)
	}
	return err
}

/* ================================= Mock ================================= */

// Mock is an in-memory gateway for development and tests. Intents stay in
// requires_payment_method until Succeed is called.
type Mock struct {
	mu      sync.Mutex
	intents map[string]Intent
	// FailWith, when set, is returned by every call.
	FailWith error
}

func NewMock() *Mock { return &Mock{intents: map[string]Intent{}} }

func (m *Mock) CreateIntent(_ context.Context, amountMinor int64, currency string, _ map[string]string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return Intent{}, m.FailWith
	}
	if amountMinor < 0 || strings.TrimSpace(currency) == "" {
		return Intent{}, errors.New("invalid amount or currency")
	}
	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := Intent{ID: id, ClientSecret: id + "_secret_mock", Status: string(stripe.PaymentIntentStatusRequiresPaymentMethod)}
	m.intents[id] = in
	return in, nil
}

func (m *Mock) RetrieveIntent(_ context.Context, ref string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return Intent{}, m.FailWith
	}
	in, ok := m.intents[ref]
	if !ok {
		return Intent{}, fmt.Errorf("no such payment_intent: '%s'", ref)
	}
	return in, nil
}

// Succeed marks an intent as paid.
func (m *Mock) Succeed(ref string) {
	m.SetStatus(ref, StatusSucceeded)
}

// SetStatus forces the status of an intent.
func (m *Mock) SetStatus(ref, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := m.intents[ref]
	in.ID, in.Status = ref, status
	m.intents[ref] = in
}
