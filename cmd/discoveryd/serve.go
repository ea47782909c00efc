package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/store"
	"github.com/gin-gonic/gin"
)

// serveCommand runs a minimal liveness HTTP server, grounded on
// cmd/tarsy/main.go's gin health endpoint pattern: a container
// orchestrator probes /healthz to decide whether this instance is
// ready to take work.
func serveCommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", envOr("HTTP_ADDR", ":8080"), "listen address")
	_ = fs.Parse(args)

	initLogging()
	gin.SetMode(envOr("GIN_MODE", "release"))

	var client *store.Client
	if cfg, err := store.LoadConfigFromEnv(); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c, err := store.NewClient(ctx, cfg)
		cancel()
		if err != nil {
			slog.Error("connecting to store at startup", "error", err)
			os.Exit(1)
		}
		client = c
		defer client.Close()
	} else {
		slog.Warn("DATABASE_URL not set, serving without a store connection", "error", err)
	}

	router := gin.Default()
	router.GET("/healthz", healthzHandler(client))

	slog.Info("discoveryd serve listening", "addr", *addr)
	if err := router.Run(*addr); err != nil {
		slog.Error("http server exited", "error", err)
		os.Exit(1)
	}
}

func healthzHandler(client *store.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "not configured"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status, err := client.Health(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status.Status, "open_connections": status.OpenConnections, "idle": status.Idle})
	}
}
