package router

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/database"
	"github.com/sahilchouksey/learnbridge/handlers"
	admin_handlers "github.com/sahilchouksey/learnbridge/handlers/admin"
	auth_handlers "github.com/sahilchouksey/learnbridge/handlers/auth"
	cart_handlers "github.com/sahilchouksey/learnbridge/handlers/cart"
	chat_handlers "github.com/sahilchouksey/learnbridge/handlers/chat"
	course_handlers "github.com/sahilchouksey/learnbridge/handlers/course"
	enrollment_handlers "github.com/sahilchouksey/learnbridge/handlers/enrollment"
	notification_handlers "github.com/sahilchouksey/learnbridge/handlers/notification"
	payment_handlers "github.com/sahilchouksey/learnbridge/handlers/payment"
	wallet_handlers "github.com/sahilchouksey/learnbridge/handlers/wallet"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services"
	"github.com/sahilchouksey/learnbridge/services/gateway"
	"github.com/sahilchouksey/learnbridge/services/storage"
	"github.com/sahilchouksey/learnbridge/utils/auth"
	"github.com/sahilchouksey/learnbridge/utils/cache"
	"github.com/sahilchouksey/learnbridge/utils/middleware"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	// Get JWT secret from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "learnbridge-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Initialize Redis cache for brute force protection and webhook dedup
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection and webhook dedup will be disabled.", err)
	}

	// Initialize brute force protection
	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	// Initialize auth middleware with DB for blacklist checking
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Initialize auth handler with brute force protection
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, bruteForceProtection)

	// Payment gateway client, selected by configuration
	provider := model.PaymentGateway(strings.ToUpper(os.Getenv("PAYMENT_GATEWAY")))
	if provider == "" {
		provider = model.GatewayRazorpay
	}
	gatewayClient, err := gateway.New(gateway.Config{
		Provider:      provider,
		KeyID:         os.Getenv("PAYMENT_KEY_ID"),
		KeySecret:     os.Getenv("PAYMENT_KEY_SECRET"),
		WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize payment gateway: %v", err)
	}

	// Object storage for course media (optional; uploads fail without it)
	var spacesClient *storage.SpacesClient
	if os.Getenv("DO_SPACES_BUCKET") != "" {
		spacesClient, err = storage.NewSpacesClient(storage.SpacesConfig{
			AccessKey: os.Getenv("DO_SPACES_KEY"),
			SecretKey: os.Getenv("DO_SPACES_SECRET"),
			Bucket:    os.Getenv("DO_SPACES_BUCKET"),
			Region:    os.Getenv("DO_SPACES_REGION"),
			Endpoint:  os.Getenv("DO_SPACES_ENDPOINT"),
			CDNURL:    os.Getenv("DO_SPACES_CDN_URL"),
		})
		if err != nil {
			log.Printf("Warning: Failed to initialize Spaces client: %v. Thumbnail uploads will be disabled.", err)
		}
	}

	// Core services
	notificationService := services.NewNotificationService(db)
	emailService := services.NewEmailService()
	revenueService := services.NewRevenueService()
	paymentService := services.NewPaymentService(
		store.Stores(),
		gatewayClient,
		revenueService,
		notificationService,
		emailService,
		redisCache,
		os.Getenv("PAYMENT_CURRENCY"),
	)
	messageBatcher := services.NewMessageNotificationBatcher(notificationService, services.NewRealScheduler())

	// Handlers
	courseHandler := course_handlers.NewCourseHandler(db, spacesClient, notificationService)
	cartHandler := cart_handlers.NewCartHandler(db)
	paymentHandler := payment_handlers.NewPaymentHandler(db, paymentService)
	webhookHandler := payment_handlers.NewWebhookHandler(paymentService, provider)
	walletHandler := wallet_handlers.NewWalletHandler(db)
	enrollmentHandler := enrollment_handlers.NewEnrollmentHandler(db)
	notificationHandler := notification_handlers.NewNotificationHandler(notificationService)
	chatHandler := chat_handlers.NewChatHandler(db, messageBatcher)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", func(c *fiber.Ctx) error { return handlers.HandleCheckHealth(c, store) })

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)

	// Profile routes (protected)
	profileGroup := api.Group("/profile", authMiddleware.Required())
	profileGroup.Get("/", authHandler.GetProfile)
	profileGroup.Put("/", authHandler.UpdateProfile)

	// Payment webhook (public, authenticated by signature, raw body)
	api.Post("/webhooks/payment", webhookHandler.HandleWebhook)

	// Courses routes
	courses := api.Group("/courses")
	courses.Get("/", courseHandler.ListCourses)
	courses.Get("/mine", authMiddleware.Required(), courseHandler.ListMyCourses)
	courses.Get("/:id", courseHandler.GetCourse)
	courses.Post("/", authMiddleware.Required(), courseHandler.CreateCourse)
	courses.Put("/:id", authMiddleware.Required(), courseHandler.UpdateCourse)
	courses.Post("/:id/publish", authMiddleware.Required(), courseHandler.PublishCourse)
	courses.Post("/:id/thumbnail", authMiddleware.Required(), courseHandler.UploadThumbnail)
	courses.Delete("/:id", authMiddleware.Required(), courseHandler.DeleteCourse)
	courses.Get("/:id/students", authMiddleware.Required(), enrollmentHandler.ListCourseStudents)
	courses.Get("/:id/access", authMiddleware.Required(), enrollmentHandler.CheckAccess)

	// Cart routes (protected)
	cart := api.Group("/cart", authMiddleware.Required())
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/items", cartHandler.AddItem)
	cart.Delete("/items/:courseID", cartHandler.RemoveItem)
	cart.Delete("/", cartHandler.ClearCart)

	// Checkout and orders (protected)
	payments := api.Group("/payments", authMiddleware.Required())
	payments.Post("/checkout", paymentHandler.Checkout)
	payments.Get("/orders", paymentHandler.ListOrders)
	payments.Get("/orders/:id", paymentHandler.GetOrder)
	payments.Post("/transactions/:id/refund", authMiddleware.RequireAdmin(), paymentHandler.RefundTransaction)

	// Wallet and transaction history (protected)
	wallet := api.Group("/wallet", authMiddleware.Required())
	wallet.Get("/", walletHandler.GetWallet)
	wallet.Get("/transactions", walletHandler.ListTransactions)
	wallet.Get("/transactions/:id", walletHandler.GetTransaction)

	// Enrollments (protected)
	enrollments := api.Group("/enrollments", authMiddleware.Required())
	enrollments.Get("/", enrollmentHandler.ListMyCourses)

	// Notifications (protected)
	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount)
	notifications.Put("/:id/read", notificationHandler.MarkAsRead)
	notifications.Put("/read-all", notificationHandler.MarkAllAsRead)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)

	// Direct messages between students and instructors (protected)
	chat := api.Group("/chat", authMiddleware.Required())
	chat.Get("/conversations", chatHandler.ListConversations)
	chat.Get("/conversations/:id/messages", chatHandler.GetMessages)
	chat.Post("/messages", chatHandler.SendMessage)

	// Admin panel
	admin := api.Group("/admin", authMiddleware.RequireAdmin())

	// Admin User Management
	admin.Get("/users", func(c *fiber.Ctx) error { return admin_handlers.ListUsers(c, store) })
	admin.Get("/users/:id", func(c *fiber.Ctx) error { return admin_handlers.GetUser(c, store) })
	admin.Put("/users/:id", func(c *fiber.Ctx) error { return admin_handlers.UpdateUser(c, store) })
	admin.Post("/users/:id/reset-password", func(c *fiber.Ctx) error { return admin_handlers.ResetUserPassword(c, store) })

	// Admin Revenue Analytics
	admin.Get("/revenue/summary", func(c *fiber.Ctx) error { return admin_handlers.GetRevenueSummary(c, store) })
	admin.Get("/revenue/courses", func(c *fiber.Ctx) error { return admin_handlers.GetRevenueByCourse(c, store) })
	admin.Get("/revenue/creators", func(c *fiber.Ctx) error { return admin_handlers.GetRevenueByCreator(c, store) })

	// Admin Settings Management
	admin.Get("/settings", func(c *fiber.Ctx) error { return admin_handlers.ListSettings(c, store) })
	admin.Get("/settings/:key", func(c *fiber.Ctx) error { return admin_handlers.GetSetting(c, store) })
	admin.Put("/settings/:key", func(c *fiber.Ctx) error { return admin_handlers.UpsertSetting(c, store) })
	admin.Delete("/settings/:key", func(c *fiber.Ctx) error { return admin_handlers.DeleteSetting(c, store) })
}
