package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/observability"
	obsmiddleware "github.com/smallbiznis/eventreg/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	obstracing "github.com/smallbiznis/eventreg/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/ratelimit"
	registrationdomain "github.com/smallbiznis/eventreg/internal/registration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
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
		Debug:    obsCfg.Debug(),
		Classify: classifyErrorForLog,
		Expected: []string{classConflict.typ, classRateLimited.typ},
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

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	catalogSvc      catalogdomain.Service
	registrationSvc registrationdomain.Service
	paymentSvc      paymentdomain.Service
	auditSvc        auditdomain.Service
	limiter         registrationLimiter
	regMetrics      *obsmetrics.RegistrationMetrics
	log             *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	CatalogSvc      catalogdomain.Service
	RegistrationSvc registrationdomain.Service
	PaymentSvc      paymentdomain.Service
	AuditSvc        auditdomain.Service             `optional:"true"`
	Limiter         *ratelimit.RegistrationLimiter  `optional:"true"`
	RegMetrics      *obsmetrics.RegistrationMetrics `optional:"true"`
	Log             *zap.Logger                     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		catalogSvc:      p.CatalogSvc,
		registrationSvc: p.RegistrationSvc,
		paymentSvc:      p.PaymentSvc,
		auditSvc:        p.AuditSvc,
		regMetrics:      p.RegMetrics,
		log:             p.Log,
	}
	if svc.log == nil {
		svc.log = zap.NewNop()
	}
	// a typed nil pointer would defeat the nil check in the middleware
	if p.Limiter.Enabled() {
		svc.limiter = p.Limiter
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	// -------- Events --------
	api.POST("/events", s.CreateEvent)
	api.GET("/events", s.ListEvents)
	api.GET("/events/:id", s.GetEvent)
	api.PATCH("/events/:id/status", s.UpdateEventStatus)

	// -------- Registrations --------
	api.POST("/events/:id/registrations",
		RegistrationRateLimit(s.limiter, s.regMetrics, s.log.Named("ratelimit")),
		s.CreateRegistration,
	)
	api.GET("/events/:id/registrations", s.ListRegistrations)
	api.POST("/registrations/bulk", s.BulkRegister)
	api.GET("/registrations/:id", s.GetRegistration)
	api.POST("/registrations/:id/cancel", s.CancelRegistration)

	// -------- Payments --------
	api.GET("/payments/:id", s.GetPayment)
	api.POST("/payments/:id/refund", s.RefundPayment)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Audit --------
	api.GET("/audit_logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
