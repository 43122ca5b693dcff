package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradewatch/cryptobot/pkg/logger"
)

// HealthServer exposes the worker's liveness endpoint.
type HealthServer struct {
	srv     *http.Server
	started time.Time
}

// StartHealthServer serves GET /healthz on addr in a background
// goroutine. An empty addr disables the server.
func StartHealthServer(addr, workerName string) *HealthServer {
	if addr == "" {
		return nil
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	hs := &HealthServer{started: time.Now()}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"worker": workerName,
			"uptime": time.Since(hs.started).String(),
		})
	})

	hs.srv = &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := hs.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("health server: %v", err)
		}
	}()
	logger.WithField("addr", addr).Infof("health server listening")
	return hs
}

// Shutdown stops the server, waiting for in-flight requests.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h == nil || h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}
