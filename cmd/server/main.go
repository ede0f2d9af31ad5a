// @title           Lawsuit Management API
// @version         1.0
// @description     Clients file case requests, lawyers approve or reject them into cases, and clients pay the registration fee.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/aldoetobex/lawsuit-backend/docs"
	"github.com/aldoetobex/lawsuit-backend/internal/auth"
	"github.com/aldoetobex/lawsuit-backend/internal/authz"
	"github.com/aldoetobex/lawsuit-backend/internal/caserequests"
	"github.com/aldoetobex/lawsuit-backend/internal/cases"
	"github.com/aldoetobex/lawsuit-backend/internal/config"
	"github.com/aldoetobex/lawsuit-backend/internal/notify"
	"github.com/aldoetobex/lawsuit-backend/internal/observability"
	"github.com/aldoetobex/lawsuit-backend/internal/payments"
	"github.com/aldoetobex/lawsuit-backend/internal/storage"
	"github.com/aldoetobex/lawsuit-backend/pkg/database"
	"github.com/aldoetobex/lawsuit-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	// Storage is optional; a nil *Supabase must not leak into the interface.
	var store storage.ObjectStore
	if sb := storage.NewSupabase(cfg.Storage); sb != nil {
		store = sb
	} else {
		log.Warn("document storage disabled (SUPABASE_URL not set)")
	}

	outbox := notify.NewOutbox()
	worker := notify.NewWorker(db, outbox, notify.NewMailer(cfg.SMTP, log), cfg.Outbox, cfg.Payment.Currency, log)
	lifecycle := cases.NewLifecycle(db, outbox, cfg.DefaultRegistrationFee, log)
	reconciler := payments.NewReconciler(db, payments.NewGateway(cfg.Payment), cfg.Payment.Currency, log)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	principals := auth.NewPrincipals(db, cfg.PrincipalCacheTTL)
	limiter := auth.NewRateLimiter(cfg.AuthRateRPS, cfg.AuthRateBurst)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler(log),
		BodyLimit:    12 * 1024 * 1024, // 10MB documents plus multipart overhead
	})
	app.Use(recover.New(), requestid.New(), observability.Metrics(), observability.AccessLog(log))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		app.Get("/swagger/*", fiberSwagger.HandlerDefault)
	}

	api := app.Group("/api")

	// Auth
	authH := auth.NewHandler(db, tokens, principals)
	authRoutes := api.Group("/auth", limiter.Handler())
	authRoutes.Post("/register", authH.Register)
	authRoutes.Post("/token", authH.Token)
	authRoutes.Post("/token/refresh", authH.Refresh)

	// Payments: server-to-server endpoints carry their own verification
	payH := payments.NewHandler(db, reconciler, cfg.Payment, cfg.IsDev(), log)
	api.Post("/payments/stripe/webhook", payH.StripeWebhook)
	api.Post("/payments/mock/complete", payH.MockComplete) // 404 outside dev + mock

	secured := api.Group("", auth.RequireAuth(tokens, principals))
	secured.Get("/profile", authH.Profile)
	secured.Patch("/profile", authH.UpdateProfile)

	// Case requests
	reqH := caserequests.NewHandler(db, store, log)
	secured.Get("/case-requests", reqH.List)
	secured.Post("/case-requests", authz.Require(authz.FileRequest), reqH.Create)
	secured.Get("/case-requests/my_cases", authz.Require(authz.ListOwnRequests), reqH.MyCases)
	secured.Get("/case-requests/:id", reqH.Get)
	secured.Patch("/case-requests/:id", reqH.Update)
	secured.Delete("/case-requests/:id", reqH.Delete)
	secured.Post("/case-requests/:id/documents", reqH.UploadDocument)
	secured.Get("/case-requests/:id/document", reqH.GetDocument)

	// Cases
	caseH := cases.NewHandler(db, lifecycle, store)
	secured.Get("/cases", caseH.List)
	secured.Post("/cases", authz.Require(authz.CreateCase), caseH.Create)
	secured.Get("/cases/:id", caseH.Get)
	secured.Patch("/cases/:id", caseH.Update)
	secured.Post("/cases/:id/approve_case", authz.Require(authz.ApproveRequest), caseH.ApproveCase)
	secured.Post("/cases/:id/reject_case", authz.Require(authz.RejectRequest), caseH.RejectCase)
	secured.Post("/cases/:id/remind_payment", caseH.RemindPayment)
	secured.Get("/cases/:id/document", caseH.GetDocument)
	secured.Get("/cases/:id/notes", caseH.ListNotes)
	secured.Post("/cases/:id/notes", caseH.CreateNote)
	secured.Patch("/cases/:id/notes/:noteID", caseH.UpdateNote)

	secured.Get("/rejected-cases", caseH.ListRejected)
	secured.Get("/rejected-cases/:id", caseH.GetRejected)

	secured.Get("/payments", payH.List)
	secured.Post("/payments", payH.Create)
	secured.Get("/payments/:id", payH.Get)
	secured.Post("/payments/:id/create_payment_intent", payH.CreatePaymentIntent)
	secured.Post("/payments/:id/confirm_payment", payH.ConfirmPayment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error {
		log.Info("server running", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := app.Listen(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	return g.Wait()
}
