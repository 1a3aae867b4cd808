package notify

// Outbound event names. Clients subscribe to these by name; payloads are
// delivered verbatim with a transport timestamp attached by the registry.
const (
	EventReceiveNotification  = "ReceiveNotification"
	EventReceiveAlert         = "ReceiveAlert"
	EventAlertAcknowledged    = "AlertAcknowledged"
	EventAlertCommentAdded    = "AlertCommentAdded"
	EventDashboardUpdate      = "DashboardUpdate"
	EventRecommendationUpdate = "RecommendationUpdate"
	EventProgressUpdate       = "ProgressUpdate"
	EventCostAnalysisUpdate   = "CostAnalysisUpdate"
	EventRiskAssessmentUpdate = "RiskAssessmentUpdate"
	EventAnalysisStarted      = "AnalysisStarted"
	EventAnalysisError        = "AnalysisError"
)

// Broadcaster is the slice of the registry this service needs.
type Broadcaster interface {
	BroadcastToAll(event string, payload any)
	BroadcastToGroup(assessmentID, event string, payload any)
}

// Service fans application events out to connected dashboard clients.
type Service struct {
	broadcaster Broadcaster
}

func NewService(broadcaster Broadcaster) *Service {
	return &Service{broadcaster: broadcaster}
}

// AnalysisComplete announces that an analysis module finished.
// assessmentName and duration are optional display hints.
func (s *Service) AnalysisComplete(module, assessmentName, duration string) {
	s.broadcaster.BroadcastToAll(EventReceiveNotification, map[string]any{
		"type":           "analysis",
		"module":         module,
		"assessmentName": assessmentName,
		"duration":       duration,
	})
}

// AnalysisStarted announces that a long-running analysis kicked off.
func (s *Service) AnalysisStarted(module, assessmentID string) {
	s.broadcaster.BroadcastToAll(EventAnalysisStarted, map[string]any{
		"module":       module,
		"assessmentId": assessmentID,
	})
}

// AnalysisError announces that an analysis run failed.
func (s *Service) AnalysisError(module, assessmentID, message string) {
	s.broadcaster.BroadcastToAll(EventAnalysisError, map[string]any{
		"module":       module,
		"assessmentId": assessmentID,
		"message":      message,
	})
}

// System sends a system-wide notice to every connected client.
// notificationType defaults to "system" when empty.
func (s *Service) System(title, message, notificationType string) {
	if notificationType == "" {
		notificationType = "system"
	}
	s.broadcaster.BroadcastToAll(EventReceiveNotification, map[string]any{
		"type":    notificationType,
		"title":   title,
		"message": message,
	})
}

// Alert pushes an alert to everyone watching the assessment.
// The alert body is opaque to this layer.
func (s *Service) Alert(assessmentID string, alert any) {
	s.broadcaster.BroadcastToGroup(assessmentID, EventReceiveAlert, alert)
}

// AlertAcknowledged tells the assessment's watchers an alert was handled.
func (s *Service) AlertAcknowledged(alertID, assessmentID, acknowledgedBy string) {
	s.broadcaster.BroadcastToGroup(assessmentID, EventAlertAcknowledged, map[string]any{
		"alertId":        alertID,
		"assessmentId":   assessmentID,
		"acknowledgedBy": acknowledgedBy,
	})
}

// AlertComment shares a new comment on an alert with the assessment's watchers.
func (s *Service) AlertComment(alertID, assessmentID string, comment any) {
	s.broadcaster.BroadcastToGroup(assessmentID, EventAlertCommentAdded, map[string]any{
		"alertId":      alertID,
		"assessmentId": assessmentID,
		"comment":      comment,
	})
}

// DashboardUpdate pushes fresh chart data for one dashboard of an assessment.
func (s *Service) DashboardUpdate(assessmentID, dashboardType string, data any) {
	s.broadcaster.BroadcastToGroup(assessmentID, EventDashboardUpdate, map[string]any{
		"assessmentId":  assessmentID,
		"dashboardType": dashboardType,
		"data":          data,
	})
}

// RecommendationUpdate pushes a new or changed recommendation.
func (s *Service) RecommendationUpdate(assessmentID string, recommendation any) {
	s.broadcaster.BroadcastToGroup(assessmentID, EventRecommendationUpdate, map[string]any{
		"assessmentId":   assessmentID,
		"recommendation": recommendation,
	})
}

// ProgressUpdate reports a stage and completion percentage for a running
// analysis. message is an optional human-readable detail.
func (s *Service) ProgressUpdate(assessmentID, stage string, percentage int, message string) {
	payload := map[string]any{
		"assessmentId": assessmentID,
		"stage":        stage,
		"percentage":   percentage,
	}
	if message != "" {
		payload["message"] = message
	}
	s.broadcaster.BroadcastToGroup(assessmentID, EventProgressUpdate, payload)
}

// CostAnalysisUpdate pushes refreshed cost figures.
func (s *Service) CostAnalysisUpdate(assessmentID string, costData any) {
	s.broadcaster.BroadcastToGroup(assessmentID, EventCostAnalysisUpdate, map[string]any{
		"assessmentId": assessmentID,
		"costData":     costData,
	})
}

// RiskAssessmentUpdate pushes refreshed risk figures.
func (s *Service) RiskAssessmentUpdate(assessmentID string, riskData any) {
	s.broadcaster.BroadcastToGroup(assessmentID, EventRiskAssessmentUpdate, map[string]any{
		"assessmentId": assessmentID,
		"riskData":     riskData,
	})
}
