// @title           Meal Photo Backend API
// @version         1.0.0
// @description     Backend API for asynchronous meal photo recognition. Photos are accepted immediately, recognized by a background worker pool and grouped into diary meals; results are polled or pushed over a websocket and via Supabase Realtime.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"meal-photo-backend/internal/config"
	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/handlers"
	"meal-photo-backend/internal/middleware"
	"meal-photo-backend/internal/realtime"
	"meal-photo-backend/internal/recognition"
	"meal-photo-backend/internal/services"
	"meal-photo-backend/internal/storage"
	"meal-photo-backend/internal/supabase"
	"meal-photo-backend/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode
	level := slog.LevelDebug
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.NewMigrator(db).Run(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Photo storage and realtime fan-out. Each slow sink sits behind its own
	// queue so request handlers and workers never wait on it.
	hub := realtime.NewHub(logger)
	queues := []*realtime.Queue{realtime.NewQueue("websocket", hub, realtime.DefaultQueueSize, logger)}

	var store storage.Store
	if cfg.SupabaseStorageEnabled() {
		supabaseClient, err := supabase.NewClient(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize Supabase client: %v", err)
		}
		store = supabaseClient.PhotoStorage()
		queues = append(queues, realtime.NewQueue("supabase", supabaseClient.Broadcaster(), realtime.DefaultQueueSize, logger))
		log.Printf("Storing photos in Supabase bucket %q", cfg.SupabaseStorageBucket)
	} else {
		store, err = storage.NewDir(cfg.LocalStorageDir)
		if err != nil {
			log.Fatalf("Failed to initialize local storage: %v", err)
		}
		log.Printf("Warning: Supabase storage not configured, storing photos in %s", cfg.LocalStorageDir)
	}
	publishers := []realtime.Publisher{realtime.Logging(logger)}
	for _, q := range queues {
		publishers = append(publishers, q)
	}
	publisher := realtime.Multi(publishers...)

	recognizer, err := recognition.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize recognizer: %v", err)
	}
	if closer, ok := recognizer.(io.Closer); ok {
		defer closer.Close()
	}

	// Pipeline
	finalizer := services.NewFinalizer(db, publisher, logger)
	revoker := worker.NewRevoker()
	processor := worker.NewProcessor(db, store, recognizer, finalizer, revoker, publisher, logger, worker.ProcessorConfig{
		MaxDeliveries: cfg.MaxDeliveries,
	})
	pool := worker.NewPool(db, processor, logger, worker.PoolConfig{
		Workers:      cfg.WorkerCount,
		Lease:        cfg.TaskLease,
		PollInterval: cfg.PollInterval,
	})
	sweeper := worker.NewSweeper(db, finalizer, logger, worker.SweeperConfig{
		Interval:         cfg.SweepInterval,
		StuckPhotoAfter:  cfg.StuckPhotoAfter,
		DraftSettleAfter: cfg.DraftSettleAfter,
	})

	submission := services.NewSubmission(db, store, pool, publisher, logger, services.SubmissionConfig{
		DailyPhotoLimit: cfg.DailyPhotoLimit,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})
	cancellation := services.NewCancellation(db, revoker, publisher, logger)
	status := services.NewStatusService(db, logger)
	listing := services.NewListing(db)

	// Initialize handlers
	mealsHandler := handlers.NewMealsHandler(submission, listing, cfg.MaxUploadBytes, logger)
	tasksHandler := handlers.NewTasksHandler(status, logger)
	cancelHandler := handlers.NewCancelHandler(cancellation, logger)
	realtimeHandler := handlers.NewRealtimeHandler(hub, logger)

	// Setup router
	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check (no auth)
	router.GET("/health", handlers.HealthHandler)

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	// Meals
	api.POST("/meals/photos", mealsHandler.SubmitPhoto)
	api.GET("/meals", mealsHandler.ListMeals)
	api.GET("/meals/:meal_id", mealsHandler.GetMeal)

	// Status and cancellation
	api.GET("/tasks/:task_id", tasksHandler.GetTask)
	api.POST("/cancel", cancelHandler.Cancel)

	// Realtime
	api.GET("/ws", realtimeHandler.Events)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	for _, q := range queues {
		q := q
		g.Go(func() error { return q.Run(gctx) })
	}
	g.Go(func() error {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("Server stopped")
}
