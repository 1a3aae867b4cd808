package server

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/tomqwilliamson/baap-notify/internal/config"
	apperrors "github.com/tomqwilliamson/baap-notify/internal/errors"
	"github.com/tomqwilliamson/baap-notify/internal/identity"
	"github.com/tomqwilliamson/baap-notify/internal/presence"
)

// --- Mock implementations ---

// notifyCall records one invocation of the mock notifier.
type notifyCall struct {
	method string
	args   []any
}

type mockNotifier struct {
	calls []notifyCall
}

func (m *mockNotifier) record(method string, args ...any) {
	m.calls = append(m.calls, notifyCall{method: method, args: args})
}

func (m *mockNotifier) AnalysisComplete(module, assessmentName, duration string) {
	m.record("AnalysisComplete", module, assessmentName, duration)
}

func (m *mockNotifier) AnalysisStarted(module, assessmentID string) {
	m.record("AnalysisStarted", module, assessmentID)
}

func (m *mockNotifier) AnalysisError(module, assessmentID, message string) {
	m.record("AnalysisError", module, assessmentID, message)
}

func (m *mockNotifier) System(title, message, notificationType string) {
	m.record("System", title, message, notificationType)
}

func (m *mockNotifier) Alert(assessmentID string, alert any) {
	m.record("Alert", assessmentID, alert)
}

func (m *mockNotifier) AlertAcknowledged(alertID, assessmentID, acknowledgedBy string) {
	m.record("AlertAcknowledged", alertID, assessmentID, acknowledgedBy)
}

func (m *mockNotifier) AlertComment(alertID, assessmentID string, comment any) {
	m.record("AlertComment", alertID, assessmentID, comment)
}

func (m *mockNotifier) DashboardUpdate(assessmentID, dashboardType string, data any) {
	m.record("DashboardUpdate", assessmentID, dashboardType, data)
}

func (m *mockNotifier) RecommendationUpdate(assessmentID string, recommendation any) {
	m.record("RecommendationUpdate", assessmentID, recommendation)
}

func (m *mockNotifier) ProgressUpdate(assessmentID, stage string, percentage int, message string) {
	m.record("ProgressUpdate", assessmentID, stage, percentage, message)
}

func (m *mockNotifier) CostAnalysisUpdate(assessmentID string, costData any) {
	m.record("CostAnalysisUpdate", assessmentID, costData)
}

func (m *mockNotifier) RiskAssessmentUpdate(assessmentID string, riskData any) {
	m.record("RiskAssessmentUpdate", assessmentID, riskData)
}

// lastCall returns the most recent recorded call, or nil.
func (m *mockNotifier) lastCall() *notifyCall {
	if len(m.calls) == 0 {
		return nil
	}
	return &m.calls[len(m.calls)-1]
}

// --- Test helpers ---

func newTestServer(t *testing.T, svc notifier, opts ...func(*Server)) *Server {
	t.Helper()

	registry := presence.NewRegistry(clockwork.NewRealClock(), 100, 16)
	t.Cleanup(registry.Stop)

	e := echo.New()
	// Install error middleware for tests to match production behavior
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    &config.Config{Port: "8080"},
		registry:  registry,
		notify:    svc,
		resolver:  identity.NewResolver(""),
		limits:    NewConnectionLimits(100, 1000.0, 1000),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return apperrors.Middleware()(handler)(c)
}
