package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proagenda/calendar-engine/internal/adapters/cache"
	"github.com/proagenda/calendar-engine/internal/adapters/database"
	"github.com/proagenda/calendar-engine/internal/adapters/events"
	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/api/handlers"
	"github.com/proagenda/calendar-engine/internal/api/routes"
	"github.com/proagenda/calendar-engine/internal/application/services"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/proagenda/calendar-engine/internal/infrastructure/clients/postgres"
	"github.com/proagenda/calendar-engine/internal/infrastructure/clients/redis"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
	"github.com/proagenda/calendar-engine/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, os.Getenv("APP_ENV"))

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Printf("Warning: Failed to set up OpenTelemetry: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Printf("Error shutting down OpenTelemetry: %v", err)
				}
			}()
			log.Println("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}
	defer pgClient.Close()
	log.Println("PostgreSQL client initialized successfully")

	// Initialize Redis client; the engine degrades to uncached, bus-less
	// operation without it
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Failed to initialize Redis client: %v", err)
	} else {
		defer redisClient.Close()
		log.Println("Redis client initialized successfully")
	}

	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
		eventBus = events.NewRedisEventBus(redisClient)
		log.Println("Event bus initialized successfully")
	} else {
		log.Println("Event bus disabled (Redis not available)")
	}

	// Initialize store adapters
	eventAdapter := database.NewEventAdapter(pgClient)
	appointmentAdapter := database.NewAppointmentAdapter(pgClient)
	templateAdapter := database.NewTemplateAdapter(pgClient)
	credentialAdapter := database.NewCredentialAdapter(pgClient)

	// Initialize provider adapters
	registry := calendar.NewRegistry(&cfg.Providers)
	log.Printf("Calendar providers registered: %v", registry.Sources())

	// Initialize services
	sessions := services.NewSessionManager()
	credentialService := services.NewCredentialService(credentialAdapter, registry)
	mergeService := services.NewMergeService(
		eventAdapter,
		credentialService,
		registry,
		cacheProvider,
		eventBus,
		metrics,
		cfg.Merge.FanOutBatchSize,
		cfg.Merge.InterBatchPause,
	)
	availabilityService := services.NewAvailabilityService(templateAdapter, metrics, cfg.Availability)
	bookingService := services.NewBookingService(
		appointmentAdapter,
		availabilityService,
		credentialService,
		registry,
		eventBus,
		metrics,
	)
	eventService := services.NewEventService(eventAdapter, eventBus)
	rescheduleService := services.NewRescheduleService(
		eventAdapter,
		credentialService,
		registry,
		eventBus,
		metrics,
		cfg.Scheduler.SnapInterval,
		cfg.Scheduler.MinDuration,
	)

	// Initialize handlers
	calendarHandler := handlers.NewCalendarHandler(mergeService, availabilityService, bookingService, sessions, cfg.Availability.HorizonDays)
	eventHandler := handlers.NewEventHandler(eventService)
	bookingHandler := handlers.NewBookingHandler(bookingService, mergeService, sessions, cfg.Availability.HorizonDays)
	credentialHandler := handlers.NewCredentialHandler(credentialService)
	gestureHandler := handlers.NewGestureHandler(rescheduleService, sessions)

	router := routes.NewRouter(
		calendarHandler,
		eventHandler,
		bookingHandler,
		credentialHandler,
		gestureHandler,
	)
	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Printf("Error closing event bus: %v", err)
		}
	}

	log.Println("Server stopped")
}
