package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"support-console/internal/api"
	"support-console/internal/auth"
	"support-console/internal/badge"
	"support-console/internal/config"
	"support-console/internal/conversation"
	"support-console/internal/db"
	"support-console/internal/handlers"
	"support-console/internal/middleware"
	"support-console/internal/notifications"
	"support-console/internal/observability"
	"support-console/internal/panel"
	"support-console/internal/payouts"
	"support-console/internal/rabbitmq"
	"support-console/internal/repositories"
	"support-console/internal/telemetry"
	"support-console/internal/ws"
)

const (
	eventBadge         = "badge"
	eventNotifications = "notifications"
	eventConnection    = "connection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	var actions repositories.ActionRepository
	if cfg.DBDSN != "" {
		database, err := db.Connect(cfg.DBDSN)
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		defer database.Close()
		actions = repositories.NewActionRepo(database)
	} else {
		log.Printf("action journal in memory: empty DB_DSN")
		actions = repositories.NewMemoryActionRepo()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)
	journal := telemetry.NewJournal(actions, audit, cfg.AdminID)

	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout)
	socketHeader := http.Header{"Authorization": {"Bearer " + cfg.APIToken}}
	hub := ws.NewHub()

	var chatPanel *panel.Panel
	chatSocket := ws.NewSupervisor(ws.Config{
		Name:       "chat",
		URL:        cfg.ChatSocketURL,
		Header:     socketHeader,
		RetryDelay: cfg.RetryDelay,
	}, func(frame ws.Frame) { chatPanel.HandleFrame(frame) })
	chatPanel = panel.New(client, chatSocket, journal, panel.Options{
		Store: conversation.Options{
			RecencyWindow:  cfg.RecencyWindow,
			ReadFlushDelay: cfg.ReadFlushDelay,
			TypingTimeout:  cfg.TypingTimeout,
		},
		TypingInterval: cfg.TypingInterval,
	})
	defer chatPanel.Shutdown()
	chatSocket.OnConnected(chatPanel.Resync)

	var inbox *notifications.Inbox
	notificationSocket := ws.NewSupervisor(ws.Config{
		Name:       "notifications",
		URL:        cfg.NotificationSocketURL,
		Header:     socketHeader,
		RetryDelay: cfg.RetryDelay,
	}, func(frame ws.Frame) { inbox.HandleFrame(frame) })
	inbox = notifications.NewInbox(notificationSocket)
	notificationSocket.OnConnected(inbox.Resync)

	var mirror badge.Mirror
	if cfg.RedisURL != "" {
		redisClient, err := badge.Connect(cfg.RedisURL)
		if err != nil {
			log.Printf("badge mirror disabled: %v", err)
		} else {
			defer redisClient.Close()
			mirror = badge.NewRedisMirror(redisClient, cfg.AdminID)
		}
	}
	badges := badge.NewStore(mirror)
	if err := badges.Start(ctx); err != nil {
		log.Printf("badge mirror load failed: %v", err)
	}
	defer badges.Close()

	chatPanel.Subscribe(func(change conversation.Change) {
		if change.Kind == conversation.ChangeUnread || change.Kind == conversation.ChangeConversations {
			badges.Set(badge.SourceSupport, chatPanel.Store().TotalUnread())
		}
		hub.Broadcast(ws.EventPanelSnapshot, chatPanel.Snapshot())
	})
	chatPanel.OnToast(func(t panel.Toast) { hub.Broadcast(panel.EventToast, t) })
	inbox.Subscribe(func() {
		badges.Set(badge.SourceNotifications, inbox.Unread())
		hub.Broadcast(eventNotifications, gin.H{"notifications": inbox.List(), "unread": inbox.Unread()})
	})
	badges.Subscribe(func(total int) {
		hub.Broadcast(eventBadge, gin.H{"total": total, "counts": badges.Counts()})
	})
	for _, sup := range []*ws.Supervisor{chatSocket, notificationSocket} {
		name := sup.Name()
		sup.Subscribe(func(connected bool) {
			hub.Broadcast(eventConnection, gin.H{"socket": name, "connected": connected})
		})
	}

	payoutFlow := payouts.NewWorkflow(client, journal)
	verifier := auth.NewVerifier(cfg.UIJWTSecret)

	conversationHandler := handlers.NewConversationHandler(chatPanel)
	notificationHandler := handlers.NewNotificationHandler(inbox)
	payoutHandler := handlers.NewPayoutHandler(payoutFlow)
	actionHandler := handlers.NewActionHandler(actions)
	var notificationState handlers.SocketState
	if cfg.NotificationSocketURL != "" {
		notificationState = notificationSocket
	}
	statusHandler := handlers.NewStatusHandler(chatSocket, notificationState, badges, hub.Len)
	panelWS := ws.NewPanelWebSocketHandler(hub, verifier, cfg.AdminID, func() interface{} { return chatPanel.Snapshot() }, cfg.AllowedOrigins)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/panel", panelWS.Handle)

	authed := router.Group("/", middleware.AuthMiddleware(verifier), middleware.RequireAdmin(cfg.AdminID))

	authed.GET("/status", statusHandler.GetStatus)

	authed.GET("/conversations", conversationHandler.ListConversations)
	authed.POST("/conversations/:conversation_id/open", conversationHandler.OpenConversation)
	authed.POST("/conversations/:conversation_id/close", conversationHandler.CloseConversation)

	authed.GET("/panel", conversationHandler.GetPanel)
	authed.DELETE("/panel", conversationHandler.LeavePanel)
	authed.GET("/panel/messages", conversationHandler.GetMessages)
	authed.POST("/panel/messages", conversationHandler.PostMessage)
	authed.POST("/panel/older", conversationHandler.LoadOlder)
	authed.POST("/panel/read", conversationHandler.MarkRead)
	authed.POST("/panel/typing", conversationHandler.Typing)
	authed.GET("/panel/export.csv", conversationHandler.ExportTranscript)

	authed.GET("/notifications", notificationHandler.ListNotifications)
	authed.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	authed.POST("/notifications/:notification_id/read", notificationHandler.MarkRead)

	authed.GET("/payouts", payoutHandler.ListPayouts)
	authed.POST("/payouts/:payout_id/process", payoutHandler.ProcessPayout)
	authed.POST("/payouts/:payout_id/reject", payoutHandler.RejectPayout)
	authed.POST("/payouts/:payout_id/complete", payoutHandler.CompletePayout)
	authed.GET("/exports/payouts", payoutHandler.ExportPayouts)

	authed.GET("/actions", actionHandler.ListActions)

	handlers.RegisterDebugRoutes(authed, journal, cfg.Environment == "development")

	go chatSocket.Run(ctx)
	if cfg.NotificationSocketURL != "" {
		go notificationSocket.Run(ctx)
	} else {
		log.Printf("notification socket disabled: empty NOTIFICATION_SOCKET_URL")
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("support console listening port=%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
