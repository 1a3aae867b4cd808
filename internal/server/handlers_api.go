package server

import (
	"github.com/labstack/echo/v4"

	apperrors "github.com/tomqwilliamson/baap-notify/internal/errors"
)

type analysisCompleteRequest struct {
	Module         string `json:"module"`
	AssessmentName string `json:"assessmentName"`
	Duration       string `json:"duration"`
}

func (s *Server) handleAnalysisComplete(c echo.Context) error {
	var req analysisCompleteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Module == "" {
		return apperrors.ValidationError("module is required")
	}

	s.notify.AnalysisComplete(req.Module, req.AssessmentName, req.Duration)
	return c.JSON(200, map[string]string{"status": "ok"})
}

type analysisStartedRequest struct {
	Module       string `json:"module"`
	AssessmentID string `json:"assessmentId"`
}

func (s *Server) handleAnalysisStarted(c echo.Context) error {
	var req analysisStartedRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Module == "" {
		return apperrors.ValidationError("module is required")
	}

	s.notify.AnalysisStarted(req.Module, req.AssessmentID)
	return c.JSON(200, map[string]string{"status": "ok"})
}

type analysisErrorRequest struct {
	Module       string `json:"module"`
	AssessmentID string `json:"assessmentId"`
	Message      string `json:"message"`
}

func (s *Server) handleAnalysisError(c echo.Context) error {
	var req analysisErrorRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Module == "" {
		return apperrors.ValidationError("module is required")
	}
	if req.Message == "" {
		return apperrors.ValidationError("message is required")
	}

	s.notify.AnalysisError(req.Module, req.AssessmentID, req.Message)
	return c.JSON(200, map[string]string{"status": "ok"})
}

type systemNotificationRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) handleSystemNotification(c echo.Context) error {
	var req systemNotificationRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Title == "" {
		return apperrors.ValidationError("title is required")
	}
	if req.Message == "" {
		return apperrors.ValidationError("message is required")
	}

	s.notify.System(req.Title, req.Message, req.Type)
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleSendAlert(c echo.Context) error {
	assessmentID := c.Param("id")

	var alert map[string]any
	if err := c.Bind(&alert); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(alert) == 0 {
		return apperrors.ValidationError("alert body is required").WithField("assessment_id", assessmentID)
	}

	s.notify.Alert(assessmentID, alert)
	return c.JSON(200, map[string]string{"status": "ok"})
}

type acknowledgeAlertRequest struct {
	AcknowledgedBy string `json:"acknowledgedBy"`
}

func (s *Server) handleAcknowledgeAlert(c echo.Context) error {
	assessmentID := c.Param("id")
	alertID := c.Param("alertId")

	var req acknowledgeAlertRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	s.notify.AlertAcknowledged(alertID, assessmentID, req.AcknowledgedBy)
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleAddAlertComment(c echo.Context) error {
	assessmentID := c.Param("id")
	alertID := c.Param("alertId")

	var comment map[string]any
	if err := c.Bind(&comment); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(comment) == 0 {
		return apperrors.ValidationError("comment body is required").WithField("alert_id", alertID)
	}

	s.notify.AlertComment(alertID, assessmentID, comment)
	return c.JSON(200, map[string]string{"status": "ok"})
}

type dashboardUpdateRequest struct {
	DashboardType string `json:"dashboardType"`
	Data          any    `json:"data"`
}

func (s *Server) handleDashboardUpdate(c echo.Context) error {
	assessmentID := c.Param("id")

	var req dashboardUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.DashboardType == "" {
		return apperrors.ValidationError("dashboardType is required").WithField("assessment_id", assessmentID)
	}

	s.notify.DashboardUpdate(assessmentID, req.DashboardType, req.Data)
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleRecommendationUpdate(c echo.Context) error {
	assessmentID := c.Param("id")

	var recommendation map[string]any
	if err := c.Bind(&recommendation); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(recommendation) == 0 {
		return apperrors.ValidationError("recommendation body is required").WithField("assessment_id", assessmentID)
	}

	s.notify.RecommendationUpdate(assessmentID, recommendation)
	return c.JSON(200, map[string]string{"status": "ok"})
}

type progressUpdateRequest struct {
	Stage      string `json:"stage"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

func (s *Server) handleProgressUpdate(c echo.Context) error {
	assessmentID := c.Param("id")

	var req progressUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Stage == "" {
		return apperrors.ValidationError("stage is required").WithField("assessment_id", assessmentID)
	}
	if req.Percentage < 0 || req.Percentage > 100 {
		return apperrors.ValidationError("percentage must be between 0 and 100").
			WithField("assessment_id", assessmentID).
			WithField("percentage", req.Percentage)
	}

	s.notify.ProgressUpdate(assessmentID, req.Stage, req.Percentage, req.Message)
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleCostAnalysisUpdate(c echo.Context) error {
	assessmentID := c.Param("id")

	var costData map[string]any
	if err := c.Bind(&costData); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(costData) == 0 {
		return apperrors.ValidationError("cost data is required").WithField("assessment_id", assessmentID)
	}

	s.notify.CostAnalysisUpdate(assessmentID, costData)
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleRiskAssessmentUpdate(c echo.Context) error {
	assessmentID := c.Param("id")

	var riskData map[string]any
	if err := c.Bind(&riskData); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(riskData) == 0 {
		return apperrors.ValidationError("risk data is required").WithField("assessment_id", assessmentID)
	}

	s.notify.RiskAssessmentUpdate(assessmentID, riskData)
	return c.JSON(200, map[string]string{"status": "ok"})
}

func (s *Server) handleListConnections(c echo.Context) error {
	connections := s.registry.ListConnections()
	return c.JSON(200, map[string]any{
		"connections": connections,
		"count":       len(connections),
	})
}

func (s *Server) handleListInstances(c echo.Context) error {
	if s.instances == nil {
		return apperrors.NotFoundError("instance coordination is not configured")
	}

	infos, err := s.instances.GetInstanceInfo(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to list instances", err)
	}
	return c.JSON(200, map[string]any{
		"instances": infos,
		"count":     len(infos),
	})
}
