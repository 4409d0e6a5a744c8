package router

import (
	"nestfind-backend/internal/application/auth"
	docsvc "nestfind-backend/internal/application/documents"
	offersvc "nestfind-backend/internal/application/offers"
	txsvc "nestfind-backend/internal/application/transactions"
	verifysvc "nestfind-backend/internal/application/verification"
	"nestfind-backend/internal/config"
	"nestfind-backend/internal/domain"
	"nestfind-backend/internal/infrastructure/database"
	authhandlers "nestfind-backend/internal/interfaces/handlers/auth"
	dochandlers "nestfind-backend/internal/interfaces/handlers/documents"
	healthhandlers "nestfind-backend/internal/interfaces/handlers/health"
	offerhandlers "nestfind-backend/internal/interfaces/handlers/offers"
	"nestfind-backend/internal/interfaces/handlers/payments"
	txhandlers "nestfind-backend/internal/interfaces/handlers/transactions"
	verifyhandlers "nestfind-backend/internal/interfaces/handlers/verification"
	"nestfind-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app with all global middleware and route registration.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
	}))

	// Payment webhook mounted early (before session) so it reads the raw body.
	// Transactions service is wired after the DB opens below.
	paymentWebhook := &payments.WebhookHandler{WebhookSecret: cfg.StripeWebhookSecret}
	app.Post("/api/v1/stripe/webhook", func(c *fiber.Ctx) error {
		return paymentWebhook.HandleWebhook(c)
	})

	sessionCfg := middleware.SessionConfig{
		Secret:       cfg.SessionSecret,
		RedisURL:     cfg.RedisURL,
		IsProduction: cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(sessionHandler)

	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	healthHandlers := &healthhandlers.Handlers{DB: db, Rdb: rdb}
	app.Get("/health/json", healthHandlers.JSON)

	var userFinder auth.UserFinder
	if db != nil {
		userFinder = &auth.GormUserFinder{DB: db}
	}
	authHandlers := &authhandlers.Handlers{
		DB:         db,
		UserFinder: userFinder,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/register", authHandlers.Register)
	authGroup.Post("/login", authHandlers.Login)
	authGroup.Get("/me", authHandlers.Me)
	authGroup.Delete("/logout", authHandlers.Logout)

	// --- Protected modules (auth required) ---
	if db != nil && rdb != nil {
		documentsService := &docsvc.Service{DB: db}
		transactionsService := &txsvc.Service{DB: db, Gate: documentsService}
		offersService := &offersvc.Service{DB: db, OfferTTL: cfg.OfferTTL}
		verificationService := &verifysvc.Service{
			DB: db,
			OTP: &verifysvc.OTPStore{
				Rdb:         rdb,
				TTL:         cfg.OTPTTL,
				MaxAttempts: cfg.OTPMaxAttempts,
			},
			Sender:  verifysvc.LogSender{},
			RadiusM: cfg.VerificationRadiusM,
		}
		paymentWebhook.Transactions = transactionsService

		offerHandlers := &offerhandlers.Handlers{Service: offersService}
		offerGroup := app.Group("/api/v1/offers", middleware.RequireAuth())
		offerGroup.Post("/create-offer", middleware.RequireRole(domain.RoleBuyer), offerHandlers.CreateOffer)
		offerGroup.Post("/respond", middleware.RequireRole(domain.RoleSeller), offerHandlers.Respond)
		offerGroup.Post("/respond-counter", middleware.RequireRole(domain.RoleBuyer), offerHandlers.RespondCounter)
		offerGroup.Post("/withdraw", middleware.RequireRole(domain.RoleBuyer), offerHandlers.Withdraw)
		offerGroup.Get("/buyer", middleware.RequireRole(domain.RoleBuyer), offerHandlers.ListBuyer)
		offerGroup.Get("/seller", middleware.RequireRole(domain.RoleSeller), offerHandlers.ListSeller)

		txHandlers := &txhandlers.Handlers{Service: transactionsService}
		txGroup := app.Group("/api/v1/transactions", middleware.RequireAuth())
		txGroup.Get("/", txHandlers.List)
		txGroup.Post("/book-slot", txHandlers.BookSlot)
		txGroup.Post("/submit-party-verification",
			middleware.RequireRole(domain.RoleAgent, domain.RoleAdmin), txHandlers.SubmitPartyVerification)
		txGroup.Post("/record-seller-payment",
			middleware.RequireRole(domain.RoleAdmin), txHandlers.RecordSellerPayment)
		txGroup.Post("/submit-for-review", txHandlers.SubmitForReview)
		txGroup.Post("/approve", middleware.RequireRole(domain.RoleAdmin), txHandlers.Approve)
		txGroup.Post("/cancel", txHandlers.Cancel)
		txGroup.Get("/:id", txHandlers.Get)
		txGroup.Get("/:id/commission", txHandlers.Commission)

		verifyHandlers := &verifyhandlers.Handlers{Service: verificationService}
		verifyGroup := app.Group("/api/v1/verification",
			middleware.RequireAuth(), middleware.RequireRole(domain.RoleAgent))
		verifyGroup.Post("/start", verifyHandlers.Start)
		verifyGroup.Post("/location", verifyHandlers.SubmitLocation)
		verifyGroup.Post("/request-otp", verifyHandlers.RequestOTP)
		verifyGroup.Post("/verify-otp", verifyHandlers.VerifyOTP)
		verifyGroup.Post("/checklist", verifyHandlers.Checklist)
		verifyGroup.Post("/finalize", verifyHandlers.Finalize)

		intentHandler := &payments.IntentHandler{
			Transactions: transactionsService,
			Creator:      &payments.RealStripeCreator{SecretKey: cfg.StripeSecretKey},
		}
		paymentGroup := app.Group("/api/v1/payments", middleware.RequireAuth())
		paymentGroup.Post("/create-seller-intent",
			middleware.RequireRole(domain.RoleSeller, domain.RoleAdmin), intentHandler.CreateSellerIntent)

		docHandlers := &dochandlers.Handlers{Service: documentsService}
		docGroup := app.Group("/api/v1/documents", middleware.RequireAuth())
		docGroup.Post("/upload", docHandlers.Upload)
		docGroup.Get("/by-transaction/:id", docHandlers.ListByTransaction)
		docGroup.Post("/verify", middleware.RequireRole(domain.RoleAdmin), docHandlers.Verify)
	}

	return app, db, rdb, nil
}
