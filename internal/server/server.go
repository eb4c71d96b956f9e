package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/invites/internal/config"
	"github.com/smallbiznis/invites/internal/invite"
	invitedomain "github.com/smallbiznis/invites/internal/invite/domain"
	"github.com/smallbiznis/invites/internal/kv"
	obsmiddleware "github.com/smallbiznis/invites/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invites/internal/observability/metrics"
	obstracing "github.com/smallbiznis/invites/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	kv.Module,
	invite.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(cfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	auth      *config.AuthConfigHolder
	inviteSvc invitedomain.Service
	log       *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Auth      *config.AuthConfigHolder
	InviteSvc invitedomain.Service
	Log       *zap.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		auth:      p.Auth,
		inviteSvc: p.InviteSvc,
		log:       p.Log.Named("http.server"),
	}
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	// The browser UI shares its path with the JSON listing and skips auth.
	v1.GET("/invites", s.serveUI(), s.APIKeyRequired(), s.ListInvites)

	api := v1.Group("", s.APIKeyRequired())
	{
		api.POST("/invites", s.CreateInvite)
		api.DELETE("/invites", s.DeleteInvites)
		api.GET("/invites/:code", s.GetInvite)
		api.DELETE("/invites/:code", s.DeleteInvite)

		api.POST("/reindex", s.Reindex)
		api.GET("/reindex", s.IndexStats)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
