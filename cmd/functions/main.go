// Command functions serves the callable functions on their own port.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coderev/coderev/backend/go-services/handlers"
	"github.com/coderev/coderev/backend/go-services/internal/accounts"
	"github.com/coderev/coderev/backend/go-services/internal/bootstrap"
	"github.com/coderev/coderev/backend/go-services/internal/config"
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

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := bootstrap.Connect(ctx, cfg)
	defer svc.Close(context.Background())
	if !svc.Mongo {
		logger.Warnf("functions running without MongoDB: generated accounts are not shared with the api")
	}

	verifiers := middleware.Verifiers{tokens.NewVerifier(cfg.JWT.Secret)}
	if idp, err := oidc.FromConfig(ctx, cfg.Keycloak); err != nil {
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	} else if idp != nil {
		verifiers = append(verifiers, idp)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS(cfg.Functions.AllowedOrigins))
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	accountSvc := accounts.NewService(svc.Accounts, repository.NewWorkspaces(svc.Docs))
	handlers.NewFunctionsHandler(accountSvc, cfg.Functions.Timeout).
		Register(r.Group("/", handlers.OptionalAuth(middleware.AuthMiddleware(verifiers))))

	srv := &http.Server{Addr: ":" + cfg.Functions.Port, Handler: r, WriteTimeout: cfg.Functions.Timeout + 5*time.Second}
	go func() {
		logger.Infof("functions listening on :%s", cfg.Functions.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
}
