package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vettedhq/vetted/internal/config"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	"github.com/vettedhq/vetted/internal/observability"
	obsmiddleware "github.com/vettedhq/vetted/internal/observability/logger"
	obsmetrics "github.com/vettedhq/vetted/internal/observability/metrics"
	obstracing "github.com/vettedhq/vetted/internal/observability/tracing"
	"github.com/vettedhq/vetted/internal/render"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	reportSvc reportdomain.Service
	deltaSvc  deltadomain.Service
	renderer  render.Renderer
	log       *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	ReportSvc reportdomain.Service
	DeltaSvc  deltadomain.Service
	Renderer  render.Renderer
	Log       *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		reportSvc: p.ReportSvc,
		deltaSvc:  p.DeltaSvc,
		renderer:  p.Renderer,
		log:       p.Log.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/reports", s.acquireReport)
	v1.GET("/reports/latest", s.latestReport)
	v1.GET("/reports/:id/pdf", s.reportPDF)
	v1.POST("/notifications", s.applyNotification)
	v1.GET("/subjects/reports", s.subjectReports)
}
