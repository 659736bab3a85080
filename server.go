package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eppcloud/epp_backend/anomaly"
	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/models"
	"github.com/eppcloud/epp_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

func main() {
	logger := config.GetLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	router := gin.Default()
	router.Use(cors.New(corsConfig()))
	router.Use(tracing())
	registerRoutes(router)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Listen first, connect after: the health endpoint answers while the
	// database connection retries in the background.
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.LogError(logger, "main", "main", "http server stopped", nil, err)
			os.Exit(1)
		}
	}()

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	config.ConnectRedisWithRetry()

	detector := anomaly.NewDetector(anomaly.DefaultRules())
	models.RegisterStockEventHook(detector.HandleStockEvent)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	workflow.StartPeriodicScans(jobCtx)
	workflow.StartLedgerConsistencyCheck(jobCtx)

	logger.WithField("port", port).Info("server ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancelJobs()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "graceful shutdown failed", nil, err)
	}
}

// tracing opens one span per request so the otelgorm spans nest under it.
func tracing() gin.HandlerFunc {
	tracer := otel.Tracer("epp_backend/http")
	return func(c *gin.Context) {
		spanName := c.Request.Method + " " + c.FullPath()
		ctx, span := tracer.Start(c.Request.Context(), spanName)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func corsConfig() cors.Config {
	conf := cors.DefaultConfig()
	origins := os.Getenv("CORS_ORIGINS")
	if origins == "" {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = []string{origins}
	}
	conf.AllowHeaders = append(conf.AllowHeaders, "Authorization", "X-Correlation-Id")
	return conf
}
