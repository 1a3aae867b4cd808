package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// WebSocket endpoint clients connect to
	s.echo.GET("/ws/notifications", s.handleWebSocket)

	// Notification triggers for the application layer
	s.echo.POST("/api/notifications/analysis-complete", s.handleAnalysisComplete)
	s.echo.POST("/api/notifications/analysis-started", s.handleAnalysisStarted)
	s.echo.POST("/api/notifications/analysis-error", s.handleAnalysisError)
	s.echo.POST("/api/notifications/system", s.handleSystemNotification)

	// Assessment-scoped triggers
	s.echo.POST("/api/assessments/:id/alerts", s.handleSendAlert)
	s.echo.POST("/api/assessments/:id/alerts/:alertId/acknowledge", s.handleAcknowledgeAlert)
	s.echo.POST("/api/assessments/:id/alerts/:alertId/comments", s.handleAddAlertComment)
	s.echo.POST("/api/assessments/:id/dashboard", s.handleDashboardUpdate)
	s.echo.POST("/api/assessments/:id/recommendations", s.handleRecommendationUpdate)
	s.echo.POST("/api/assessments/:id/progress", s.handleProgressUpdate)
	s.echo.POST("/api/assessments/:id/cost-analysis", s.handleCostAnalysisUpdate)
	s.echo.POST("/api/assessments/:id/risk-assessment", s.handleRiskAssessmentUpdate)

	// Presence introspection
	s.echo.GET("/api/connections", s.handleListConnections)
	s.echo.GET("/api/instances", s.handleListInstances)
}
