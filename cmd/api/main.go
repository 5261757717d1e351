package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/callloop/postcall-gateway/internal/config"
	gateway "github.com/callloop/postcall-gateway/internal/gateways"
	"github.com/callloop/postcall-gateway/internal/handlers"
	"github.com/callloop/postcall-gateway/internal/queue"
	"github.com/callloop/postcall-gateway/internal/repository"
	"github.com/callloop/postcall-gateway/internal/services"
	xhttp "github.com/callloop/postcall-gateway/pkg/http"
	"github.com/callloop/postcall-gateway/pkg/logger"
	"github.com/callloop/postcall-gateway/pkg/pg"
	"github.com/callloop/postcall-gateway/pkg/prom"
	"github.com/callloop/postcall-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 10))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	if config.Get().PromNamespace != "" {
		if err := prom.Create(config.Get().AppName, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Warn("failed to register metrics", "error", err)
		}
		if config.Get().AppDebugMetricsAddr != "" {
			go prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
		}
	}

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	// repositories
	tenantRepo := repository.NewTenantRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	callRepo := repository.NewCallRepository(db)
	webhookCallRepo := repository.NewWebhookCallRepository(db)
	messageLogRepo := repository.NewMessageLogRepository(db)

	// outbound messaging
	whatsappClient := gateway.NewWhatsAppClient(gateway.WhatsAppConfig{
		BaseURL:       config.Get().WhatsAppBaseURL,
		SendTimeout:   config.Get().WhatsAppSendTimeout,
		HealthTimeout: config.Get().WhatsAppHealthTimeout,
		MaxConns:      config.Get().WhatsAppMaxConns,
	})

	// services
	webhookService := services.NewWebhookService(tenantRepo, settingsRepo, callRepo, webhookCallRepo, q)
	settingsService := services.NewSettingsService(tenantRepo, settingsRepo, messageLogRepo, whatsappClient)
	historyService := services.NewHistoryService(tenantRepo, callRepo, messageLogRepo)
	healthService := services.NewHealthService()

	// v1 handlers
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)
	historyHandler := handlers.NewHistoryHandler(historyService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterWebhookRoutes(g, webhookHandler)
	handlers.RegisterSettingsRoutes(g, settingsHandler)
	handlers.RegisterHistoryRoutes(g, historyHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()
	logger.Info("api started", "addr", config.Get().HttpListenAddr, "version", version, "commit", commit, "date", date)

	<-c
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
