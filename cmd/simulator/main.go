package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SendMessageRequest mirrors the Cloud API /messages request shape. Only the
// fields the gateway sends are bound; everything else is ignored.
type SendMessageRequest struct {
	MessagingProduct string `json:"messaging_product" binding:"required"`
	To               string `json:"to" binding:"required"`
	Type             string `json:"type"`
	Text             *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image *struct {
		Link    string `json:"link"`
		Caption string `json:"caption,omitempty"`
	} `json:"image,omitempty"`
}

// MockCloudAPI simulates the WhatsApp Cloud API messages endpoint.
type MockCloudAPI struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	rng         *rand.Rand
}

func NewMockCloudAPI(successRate float64, minDelay, maxDelay time.Duration) *MockCloudAPI {
	return &MockCloudAPI{
		successRate: successRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockCloudAPI) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	delta := m.maxDelay - m.minDelay
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockCloudAPI) shouldSucceed() bool {
	return m.rng.Float64() < m.successRate
}

func (m *MockCloudAPI) randomError() (int, string, string) {
	errs := []struct {
		code    int
		subcode string
		message string
	}{
		{131026, "undeliverable", "Message undeliverable"},
		{131047, "reengagement", "Re-engagement message outside 24h window"},
		{131048, "rate_limit", "Spam rate limit hit"},
		{100, "param", "Invalid parameter"},
	}
	e := errs[m.rng.Intn(len(errs))]
	return e.code, e.subcode, e.message
}

type Handler struct {
	api *MockCloudAPI
}

func NewHandler(api *MockCloudAPI) *Handler {
	return &Handler{api: api}
}

// SendMessage handles POST /:phone_number_id/messages the way the real
// Cloud API does: 200 with a wamid on success, 4xx with an error object
// on injected failure.
func (h *Handler) SendMessage(c *gin.Context) {
	phoneNumberID := c.Param("phone_number_id")

	if c.GetHeader("Authorization") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"message": "An access token is required to request this resource.",
				"type":    "OAuthException",
				"code":    190,
			},
		})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"message": "Invalid parameter: " + err.Error(),
				"type":    "OAuthException",
				"code":    100,
			},
		})
		return
	}

	time.Sleep(h.api.randomDelay())

	if !h.api.shouldSucceed() {
		code, subcode, message := h.api.randomError()
		log.Warn().
			Str("phone_number_id", phoneNumberID).
			Str("to", req.To).
			Int("code", code).
			Str("subcode", subcode).
			Msg("injected send failure")

		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"message":    message,
				"type":       "OAuthException",
				"code":       code,
				"fbtrace_id": uuid.New().String(),
			},
		})
		return
	}

	messageID := "wamid." + uuid.New().String()
	log.Info().
		Str("phone_number_id", phoneNumberID).
		Str("to", req.To).
		Str("type", req.Type).
		Str("message_id", messageID).
		Msg("message accepted")

	c.JSON(http.StatusOK, gin.H{
		"messaging_product": "whatsapp",
		"contacts": []gin.H{
			{"input": req.To, "wa_id": req.To},
		},
		"messages": []gin.H{
			{"id": messageID},
		},
	})
}

// PhoneNumber handles GET /:phone_number_id, the credential health probe.
func (h *Handler) PhoneNumber(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"message": "An access token is required to request this resource.",
				"type":    "OAuthException",
				"code":    190,
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                     c.Param("phone_number_id"),
		"display_phone_number":   "+1 555 0100",
		"verified_name":          "Mock Business",
		"quality_rating":         "GREEN",
		"code_verification_status": "VERIFIED",
	})
}

// UpdateConfig changes the injected success rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg struct {
		SuccessRate *float64 `json:"success_rate"`
	}

	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if cfg.SuccessRate != nil && *cfg.SuccessRate >= 0 && *cfg.SuccessRate <= 1.0 {
		h.api.successRate = *cfg.SuccessRate
		log.Info().Float64("rate", *cfg.SuccessRate).Msg("updated success rate")
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Configuration updated",
		"success_rate": h.api.successRate,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	// Same path layout as graph.facebook.com/v18.0 so the gateway can be
	// pointed here via WHATSAPP_BASE_URL.
	v18 := router.Group("/v18.0")
	{
		v18.POST("/:phone_number_id/messages", handler.SendMessage)
		v18.GET("/:phone_number_id", handler.PhoneNumber)
	}

	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	successRate := getEnvFloat("SUCCESS_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 500*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("success_rate", successRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock WhatsApp Cloud API")

	api := NewMockCloudAPI(successRate, minDelay, maxDelay)
	handler := NewHandler(api)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
