package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tomqwilliamson/baap-notify/internal/config"
	"github.com/tomqwilliamson/baap-notify/internal/coordination"
	apperrors "github.com/tomqwilliamson/baap-notify/internal/errors"
	"github.com/tomqwilliamson/baap-notify/internal/identity"
	"github.com/tomqwilliamson/baap-notify/internal/presence"
)

// notifier is the slice of the notification service the REST handlers use.
type notifier interface {
	AnalysisComplete(module, assessmentName, duration string)
	AnalysisStarted(module, assessmentID string)
	AnalysisError(module, assessmentID, message string)
	System(title, message, notificationType string)
	Alert(assessmentID string, alert any)
	AlertAcknowledged(alertID, assessmentID, acknowledgedBy string)
	AlertComment(alertID, assessmentID string, comment any)
	DashboardUpdate(assessmentID, dashboardType string, data any)
	RecommendationUpdate(assessmentID string, recommendation any)
	ProgressUpdate(assessmentID, stage string, percentage int, message string)
	CostAnalysisUpdate(assessmentID string, costData any)
	RiskAssessmentUpdate(assessmentID string, riskData any)
}

// instanceLister reports the active service instances (nil when Redis is not configured).
type instanceLister interface {
	GetInstanceInfo(ctx context.Context) ([]coordination.InstanceInfo, error)
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	registry  *presence.Registry
	notify    notifier
	resolver  *identity.Resolver
	limits    *ConnectionLimits
	instances instanceLister
	redis     redisHealthChecker
	startTime time.Time
}

func NewServer(cfg *config.Config, registry *presence.Registry, svc notifier, resolver *identity.Resolver, opts ...func(*Server)) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		registry:  registry,
		notify:    svc,
		resolver:  resolver,
		limits:    NewConnectionLimits(cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerIP, cfg.ConnectionRateBurst),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

// WithInstances exposes the instance registry on GET /api/instances.
func WithInstances(instances instanceLister) func(*Server) {
	return func(s *Server) {
		s.instances = instances
	}
}

// WithRedisHealthCheck adds Redis to the readiness probe.
func WithRedisHealthCheck(redis redisHealthChecker) func(*Server) {
	return func(s *Server) {
		s.redis = redis
	}
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
