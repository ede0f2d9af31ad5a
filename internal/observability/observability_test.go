package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newApp(log *zap.Logger) *fiber.App {
	app := fiber.New()
	app.Use(requestid.New(), Metrics(), AccessLog(log))
	app.Get("/cases/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Post("/boom", func(*fiber.Ctx) error { return fiber.NewError(fiber.StatusConflict, "taken") })
	return app
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	app := newApp(zap.NewNop())

	base := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/cases/:id", "200"))
	baseConflict := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/boom", "409"))

	for _, id := range []string{"a", "b"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/cases/"+id, nil))
		if err != nil || resp.StatusCode != 200 {
			t.Fatalf("GET /cases/%s -> %v %v", id, resp, err)
		}
	}
	resp, _ := app.Test(httptest.NewRequest("POST", "/boom", nil))
	if resp.StatusCode != 409 {
		t.Fatalf("POST /boom -> %d", resp.StatusCode)
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/cases/:id", "200")); got != base+2 {
		t.Fatalf("route counter = %v; want %v", got, base+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/boom", "409")); got != baseConflict+1 {
		t.Fatalf("error status not recorded: %v", got)
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v; want 0", v)
	}
}

func TestAccessLog_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := newApp(zap.New(core))

	_, _ = app.Test(httptest.NewRequest("GET", "/cases/x", nil))
	_, _ = app.Test(httptest.NewRequest("POST", "/boom", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 2 {
		t.Fatalf("want 2 access log lines, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v, %v", entries[0].Level, entries[1].Level)
	}
	ctx := entries[0].ContextMap()
	if ctx["path"] != "/cases/:id" || ctx["request_id"] == "" {
		t.Fatalf("missing fields: %+v", ctx)
	}
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(caseTransitions.WithLabelValues("approved"))
	CaseTransition("approved")
	if testutil.ToFloat64(caseTransitions.WithLabelValues("approved")) != before+1 {
		t.Fatal("case transition not counted")
	}

	before = testutil.ToFloat64(paymentsConfirmed.WithLabelValues("webhook"))
	PaymentConfirmed("webhook")
	if testutil.ToFloat64(paymentsConfirmed.WithLabelValues("webhook")) != before+1 {
		t.Fatal("payment confirmation not counted")
	}

	before = testutil.ToFloat64(notificationsDelivered.WithLabelValues("payment_due", "skipped"))
	NotificationDelivered("payment_due", "skipped")
	if testutil.ToFloat64(notificationsDelivered.WithLabelValues("payment_due", "skipped")) != before+1 {
		t.Fatal("notification not counted")
	}
}
