package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/callloop/postcall-gateway/internal/automation"
	"github.com/callloop/postcall-gateway/internal/config"
	gateway "github.com/callloop/postcall-gateway/internal/gateways"
	"github.com/callloop/postcall-gateway/internal/queue"
	"github.com/callloop/postcall-gateway/internal/repository"
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

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	whatsappClient := gateway.NewWhatsAppClient(gateway.WhatsAppConfig{
		BaseURL:       config.Get().WhatsAppBaseURL,
		SendTimeout:   config.Get().WhatsAppSendTimeout,
		HealthTimeout: config.Get().WhatsAppHealthTimeout,
		MaxConns:      config.Get().WhatsAppMaxConns,
	})

	callRepo := repository.NewCallRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	messageLogRepo := repository.NewMessageLogRepository(db)
	productRepo := repository.NewProductRepository(db)

	// publisher for retry jobs
	publishQueue, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName + "-publisher",
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

	idempotencyService := automation.NewIdempotencyService(redisAdap, automation.DefaultIdempotencyConfig())
	runner := automation.NewRunner(callRepo, settingsRepo, messageLogRepo, productRepo, whatsappClient, config.Get().AutomationCatalogLimit)

	service, err := automation.NewWorkerService(redisAdap)
	if err != nil {
		logger.Error("failed to create worker service", "error", err)
		return
	}
	service.RegisterProcessor(automation.NewCallAutomationProcessor(
		runner,
		idempotencyService,
		publishQueue,
		config.Get().AutomationMaxAttempts,
		config.Get().AutomationRetryBackoff,
	))

	var sweeper *automation.Sweeper
	if config.Get().SweepEnabled {
		sweeper = automation.NewSweeper(messageLogRepo, idempotencyService, publishQueue, automation.SweeperConfig{
			Interval:   config.Get().SweepInterval,
			BatchSize:  config.Get().SweepBatchSize,
			RetryDelay: config.Get().SweepRetryDelay,
		})
		sweeper.Start()
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start worker service", "error", err)
		}
	}()
	logger.Info("worker started", "version", version, "commit", commit, "date", date)

	<-c
	if sweeper != nil {
		sweeper.Stop()
	}
	service.Stop()
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
