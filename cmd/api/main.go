package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"fixhub/internal/adapter/api"
	"fixhub/internal/adapter/api/handler"
	apimiddleware "fixhub/internal/adapter/api/middleware"
	"fixhub/internal/adapter/api/router"
	"fixhub/internal/adapter/repository"
	"fixhub/internal/domain/service"
	"fixhub/internal/infrastructure/broadcast"
	"fixhub/internal/infrastructure/firebase"
	"fixhub/internal/infrastructure/task"
	"fixhub/internal/infrastructure/websocket"
	"fixhub/internal/usecase"
	"fixhub/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption

	// Service account from environment variable (production) or file path
	// (local development). Application default credentials otherwise.
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	conversationRepo := repository.NewFirestoreConversationRepository(firestoreClient)
	participantRepo := repository.NewFirestoreParticipantRepository(firestoreClient)

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)

	var broadcaster broadcast.Broadcaster
	switch cfg.BroadcastDriver {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		broadcaster = broadcast.NewRedisBroadcaster(redisClient)
		log.Printf("Broadcast driver: redis (%s)", cfg.RedisAddr)
	default:
		broadcaster = broadcast.NewMemoryBroadcaster()
		log.Printf("Broadcast driver: memory")
	}

	enqueuer := task.NewAsynqEnqueuer(cfg.RedisAddr)

	notifier := service.NewLogOfflineNotifier()
	notificationWorker := task.NewNotificationWorker(cfg.RedisAddr, notifier, participantRepo)
	if err := notificationWorker.Start(ctx); err != nil {
		log.Fatalf("Failed to start notification worker: %v", err)
	}

	messagingUseCase := usecase.NewMessagingUseCase(
		conversationRepo,
		participantRepo,
		broadcaster,
		enqueuer,
		cfg.OfflineThreshold,
	)

	wsManager := websocket.NewManager(messagingUseCase, broadcaster)
	go wsManager.Start()

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)
	roleMiddleware := apimiddleware.NewRoleMiddleware(participantRepo)

	conversationHandler := handler.NewConversationHandler(messagingUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware)
	healthHandler := handler.NewHealthHandler(firebaseAuthClient)

	router.SetupHealthRouter(e, healthHandler)
	router.SetupConversationRouter(e, conversationHandler, authMiddleware, roleMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
