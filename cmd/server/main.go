package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classify-orchestrator/internal/di"
	"classify-orchestrator/internal/infra"
	"classify-orchestrator/internal/infra/config"
	"classify-orchestrator/internal/infra/logger"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.New()
	slog.SetDefault(log)

	// 3. Initialize DB (optional: the taxonomy can come from a file)
	ctx := context.Background()
	var pool *pgxpool.Pool
	if cfg.DB.Enabled {
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
		p, err := infra.NewPostgresDB(ctx, dsn, infra.PoolConfig{MaxConns: cfg.DB.MaxConns, MinConns: cfg.DB.MinConns})
		if err != nil {
			log.Error("failed to connect to db", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		pool = p
	}

	// 4. Wire Components
	components, err := di.NewApplicationComponents(ctx, cfg, pool, log)
	if err != nil {
		log.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	// 5. Start Taxonomy Reload Worker
	if components.Worker != nil {
		components.Worker.Start()
		defer func() {
			log.Info("Stopping worker...")
			components.Worker.Stop()
		}()
	}

	// 6. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// 7. Routes
	e.POST("/v1/classify/batch", components.Handler.ClassifyBatch)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// 8. Health Checks
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		if pool != nil {
			if err := pool.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db down", "error": err.Error()})
			}
		}
		hash := components.Retriever.TaxonomyHash()
		if hash == "" {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "taxonomy not loaded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready", "taxonomy_hash": hash})
	})

	// 9. Start Server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Info("Starting server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// 10. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}
}
