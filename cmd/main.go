package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"clauth/internal/auth"
	"clauth/internal/cache"
	"clauth/internal/config"
	"clauth/internal/database"
	"clauth/internal/gateway"
	"clauth/internal/handlers"
	"clauth/internal/jobs"
	"clauth/internal/repository"
	"clauth/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repository
	repo := repository.NewRepository(database.GetDB())

	// Leaderboard cache (disabled when REDIS_ADDR is unset)
	leaderboards := cache.NewLeaderboardCache(cfg.Redis)

	// Payment gateway provider
	var provider gateway.Provider
	switch cfg.Gateway.Provider {
	case "stub":
		log.Println("Using stub payment provider")
		provider = gateway.NewStubProvider()
	default:
		provider = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
	}

	// Initialize services
	phaseService, err := services.NewPhaseService(repo)
	if err != nil {
		log.Fatalf("Failed to initialize phase service: %v", err)
	}
	roomService := services.NewRoomService(repo, cfg.Competition.RoomCapacity)
	submissionService := services.NewSubmissionService(repo, phaseService, roomService, cfg.Competition.EligibilityThreshold)
	rankingService := services.NewRankingService(repo, leaderboards, cfg.Competition.EligibilityThreshold)
	checkoutService := services.NewCheckoutService(repo, provider, cfg.Gateway)

	// Initialize handlers
	challengeHandler := handlers.NewChallengeHandler(phaseService, roomService, submissionService, rankingService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	webhookHandler := handlers.NewWebhookHandler(checkoutService, cfg.Gateway)
	adminHandler := handlers.NewAdminHandler(repo, phaseService, roomService, checkoutService)

	// Start the challenge finalizer job
	finalizer := jobs.NewChallengeFinalizer(repo, rankingService, cfg.Competition.WinnersCount, cfg.Competition.FinalizerInterval)
	if err := finalizer.Start(); err != nil {
		log.Fatalf("Failed to start challenge finalizer: %v", err)
	}
	defer finalizer.Stop()

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Maintenance mode gate, read once at boot
	if cfg.App.MaintenanceMode {
		router.Use(func(c *gin.Context) {
			if c.Request.URL.Path != "/health" {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "maintenance in progress"})
				c.Abort()
				return
			}
			c.Next()
		})
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Webhook endpoint (signature-verified, no session auth)
	router.POST("/webhooks/payment", webhookHandler.HandlePaymentWebhook)

	// Checkout allows both authenticated and guest callers
	router.POST("/api/checkout", auth.OptionalAuthMiddleware(), checkoutHandler.CreateCheckout)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.GET("/challenges/current", challengeHandler.CurrentChallenge)
		api.GET("/challenges/my-competition-room", challengeHandler.MyCompetitionRoom)
		api.POST("/challenges/submit-design", challengeHandler.SubmitDesign)
		api.GET("/challenges/past/:date/top-winners", challengeHandler.PastTopWinners)
		api.GET("/challenges/:id/leaderboard", challengeHandler.Leaderboard)
		api.POST("/submissions/:id/upvote", challengeHandler.ToggleUpvote)
		api.DELETE("/preorders/:id", checkoutHandler.CancelPreorder)
	}

	// Admin routes (protected + admin only)
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware())
	admin.Use(auth.AdminMiddleware())
	{
		admin.POST("/challenges", adminHandler.CreateChallenge)
		admin.GET("/challenges/:id/rooms", adminHandler.ChallengeRoomStats)
		admin.POST("/plushies", adminHandler.CreateItem)
		admin.POST("/plushies/:id/approve", adminHandler.ApproveItem)
		admin.POST("/preorders/:id/refund", adminHandler.RefundPreorder)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
