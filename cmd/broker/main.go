// Command broker starts the debugging broker's HTTP adapter: it wires
// the session registry, the command surface, and a gin router exposing
// the command-surface rows of spec §6.1.
//
// Grounded on the teacher's api/cmd/main.go: environment-driven
// configuration via getEnv/getEnvInt, ordered component construction,
// gin.New() with a small middleware chain, and signal.Notify-driven
// graceful shutdown with a bounded timeout. The teacher's auth, database,
// Kubernetes, billing, and plugin-host wiring has no analogue here and is
// not carried over (out of scope per the broker's own non-goals).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/command"
	"github.com/streamspace-dev/inspector-broker/internal/logger"
	"github.com/streamspace-dev/inspector-broker/internal/registry"
	"github.com/streamspace-dev/inspector-broker/internal/server"
	"github.com/streamspace-dev/inspector-broker/internal/sourcemap"
)

func main() {
	port := getEnv("BROKER_PORT", "8000")
	logLevel := getEnv("LOG_LEVEL", "info")
	logPretty := getEnv("LOG_PRETTY", "false") == "true"
	maxSessions := getEnvInt("MAX_SESSIONS", 100)
	commandTimeout := getEnvDuration("COMMAND_TIMEOUT", 5*time.Second)
	shutdownTimeout := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)

	cacheEnabled := getEnv("CACHE_ENABLED", "false") == "true"
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	allowedHosts := parseAllowedHosts(getEnv("ALLOWED_TARGET_HOSTS", "localhost,127.0.0.1,::1"))

	logger.Initialize(logLevel, logPretty)
	logger.Log.Info().Msg("starting debugging broker")

	sourceCache, err := sourcemap.NewRedisCache(sourcemap.RedisConfig{
		Host:     redisHost,
		Port:     redisPort,
		Password: redisPassword,
		DB:       0,
		Enabled:  cacheEnabled,
	})
	if err != nil {
		logger.Log.Warn().Err(err).Msg("failed to connect to redis, continuing without source-content cache")
		sourceCache, _ = sourcemap.NewRedisCache(sourcemap.RedisConfig{Enabled: false})
	}
	defer sourceCache.Close()

	reg := registry.New(registry.Config{
		MaxSessions:    maxSessions,
		AllowedHosts:   allowedHosts,
		CommandTimeout: commandTimeout,
		Fetcher:        sourcemap.NewDefaultFetcher(nil),
		Cache:          sourceCache,
	})
	surface := command.New(reg)
	handler := server.NewHandler(surface)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(brokererr.Recovery())
	router.Use(gin.Logger())
	router.Use(brokererr.ErrorHandler())

	handler.RegisterRoutes(router.Group("/api/v1"))

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", port).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Log.Warn().Err(err).Msg("http server forced to shutdown")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
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

func parseAllowedHosts(raw string) map[string]bool {
	hosts := map[string]bool{}
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			host := raw[start:i]
			if host != "" {
				hosts[host] = true
			}
			start = i + 1
		}
	}
	return hosts
}
