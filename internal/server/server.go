package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/recurring/internal/config"
	"github.com/smallbiznis/recurring/internal/observability"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"github.com/smallbiznis/recurring/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module serves the operational HTTP surface next to the scheduler.
var Module = fx.Module("http.server",
	fx.Provide(NewServer),
	fx.Invoke(run),
)

// RunTrigger starts a generation run for an explicit as-of date.
type RunTrigger interface {
	RunOnce(ctx context.Context, asOf time.Time) ([]domain.Outcome, error)
}

type ServerParams struct {
	fx.In

	Cfg       config.Config
	ObsCfg    observability.Config
	DB        *gorm.DB
	Log       *zap.Logger
	Scheduler *scheduler.Scheduler
}

type Server struct {
	engine *gin.Engine
	db     *gorm.DB
	runs   RunTrigger
	log    *zap.Logger
	addr   string
}

func NewServer(p ServerParams) *Server {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		db:   p.DB,
		runs: p.Scheduler,
		log:  p.Log.Named("http"),
		addr: p.Cfg.HTTPAddr,
	}
	s.engine = s.newEngine()
	return s
}

func (s *Server) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", s.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/internal")
	internal.POST("/runs", s.TriggerRun)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.log.Warn("healthz.db_unreachable", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func run(lc fx.Lifecycle, s *Server) {
	addr := s.addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Fatal("http.listen_failed", zap.String("addr", addr), zap.Error(err))
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
