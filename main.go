package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/crypto/bcrypt"

	"pairchat/internal/config"
	"pairchat/internal/db"
	"pairchat/internal/grpcserver"
	"pairchat/internal/handlers"
	"pairchat/internal/media"
	"pairchat/internal/middleware"
	"pairchat/internal/observability"
	"pairchat/internal/rabbitmq"
	"pairchat/internal/repositories"
	"pairchat/internal/security"
	"pairchat/internal/service"
	"pairchat/internal/telemetry"
	"pairchat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Env)

	store, err := media.NewDiskStore(cfg.UploadDir, cfg.MediaBaseURL)
	if err != nil {
		log.Fatalf("failed to prepare upload dir: %v", err)
	}

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	notifier := ws.NewNotifier(hub)

	identity := service.NewIdentity(userRepo, security.NewPasswordHasher(bcrypt.DefaultCost))
	registry := service.NewRegistry(chatRepo, userRepo, notifier)
	reads := service.NewReadTracker(messageRepo, notifier)
	ledger := service.NewLedger(registry, reads, messageRepo, notifier)
	projector := service.NewProjector(chatRepo)

	tokens := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static(cfg.MediaBaseURL, store.Dir())

	handlers.RegisterRoutes(router, handlers.Routes{
		Auth:  handlers.NewAuthHandler(identity, tokens, audit),
		Users: handlers.NewUserHandler(identity, store, audit, cfg.MaxUploadMB),
		Chats: handlers.NewChatHandler(handlers.ChatServices{
			Identity:  identity,
			Registry:  registry,
			Ledger:    ledger,
			Reads:     reads,
			Projector: projector,
		}, store, cfg.MaxUploadMB),
		RequireAuth: middleware.AuthMiddleware(tokens, identity),
	})
	router.GET("/ws/chats/:chat_id", ws.NewChatWebSocketHandler(hub, registry, tokens).Handle)
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Fatalf("failed to listen for grpc: %v", err)
	}
	healthSrv := grpcserver.New(cfg.ServiceName)
	go func() {
		if err := healthSrv.Serve(grpcLis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http server listening addr=%s env=%s", httpSrv.Addr, cfg.Env)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()
	healthSrv.SetServing(true)

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	healthSrv.Stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
