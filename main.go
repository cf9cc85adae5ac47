package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coderev/coderev/backend/go-services/handlers"
	"github.com/coderev/coderev/backend/go-services/internal/accounts"
	"github.com/coderev/coderev/backend/go-services/internal/bootstrap"
	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/coderev/coderev/backend/go-services/internal/live"
	"github.com/coderev/coderev/backend/go-services/internal/oidc"
	"github.com/coderev/coderev/backend/go-services/internal/repository"
	"github.com/coderev/coderev/backend/go-services/internal/tokens"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
	"github.com/coderev/coderev/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v minio=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := bootstrap.Connect(ctx, cfg)
	defer svc.Close(context.Background())

	idp, err := oidc.FromConfig(ctx, cfg.Keycloak)
	if err != nil {
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	verifiers := middleware.Verifiers{tokens.NewVerifier(cfg.JWT.Secret)}
	if idp != nil {
		verifiers = append(verifiers, idp)
	}
	authn := middleware.AuthMiddleware(verifiers)

	liveMgr := live.NewManager(svc.Docs, svc.Files)
	go liveMgr.RunReaper(ctx, cfg.Live.IdleTimeout)
	accountSvc := accounts.NewService(svc.Accounts, repository.NewWorkspaces(svc.Docs))

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && svc.Redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(svc.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{
			"mongo":    svc.Mongo,
			"redis":    svc.Redis != nil,
			"oidc":     idp != nil || cfg.Keycloak.URL == "",
			"sessions": liveMgr.Len(),
		}
		status, state := http.StatusOK, "ready"
		if (cfg.MongoDB.URI != "" && !svc.Mongo) || (cfg.Keycloak.URL != "" && idp == nil) {
			status, state = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterSwagger(r)
	handlers.NewAuthHandler(cfg, accountSvc, svc.Sessions, liveMgr, idp).Register(r.Group("/"))
	handlers.NewFunctionsHandler(accountSvc, cfg.Functions.Timeout).Register(r.Group("/functions", handlers.OptionalAuth(authn)))
	handlers.NewAPIHandler(liveMgr, cfg.Live.Heartbeat).Register(r.Group("/api/v1", authn))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: it would cut off the live event stream
	}
	go func() {
		logger.Infof("starting coderev api on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	// closing the sessions ends open event streams so Shutdown can drain
	liveMgr.Shutdown()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
