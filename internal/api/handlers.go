// Package api exposes the diagnosis pipeline over HTTP: request/response
// endpoints for on-demand evaluation and a websocket stream for continuous
// per-vehicle telemetry.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fleetsentry/fleetsentry/internal/access"
	"github.com/fleetsentry/fleetsentry/internal/alerts"
	"github.com/fleetsentry/fleetsentry/internal/diagnosis"
	"github.com/fleetsentry/fleetsentry/internal/inspection"
	"github.com/fleetsentry/fleetsentry/internal/observability"
	"github.com/fleetsentry/fleetsentry/internal/telemetry"
	"github.com/fleetsentry/fleetsentry/internal/ueba"
)

// roleHeader carries the caller's role assertion. The auth layer in front of
// this service is trusted to have verified it.
const roleHeader = "X-Fleet-Role"

// Handlers wires the pipeline components into HTTP endpoints. All state is
// injected; the package holds no globals.
type Handlers struct {
	pipeline  *diagnosis.Pipeline
	alertSvc  *alerts.Service
	verdicts  *ueba.VerdictCache
	inspector *inspection.Inspector
	obs       *observability.Telemetry
	logger    *zap.Logger

	streamInterval time.Duration
}

// New builds the handler set.
func New(
	pipeline *diagnosis.Pipeline,
	alertSvc *alerts.Service,
	verdicts *ueba.VerdictCache,
	inspector *inspection.Inspector,
	obs *observability.Telemetry,
	streamInterval time.Duration,
) *Handlers {
	if streamInterval <= 0 {
		streamInterval = 3 * time.Second
	}
	return &Handlers{
		pipeline:       pipeline,
		alertSvc:       alertSvc,
		verdicts:       verdicts,
		inspector:      inspector,
		obs:            obs,
		logger:         obs.Logger(),
		streamInterval: streamInterval,
	}
}

// Routes mounts the request/response API. The websocket stream is mounted
// separately (TelemetryStream) so it can sit outside request-timeout
// middleware.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/diagnose", h.handleDiagnose)
		r.Post("/ueba/analyze", h.handleUEBAAnalyze)
		r.Get("/alerts", h.handleListAlerts)
		r.Get("/alerts/{vehicleID}", h.handleVehicleAlert)
		r.Get("/security/ueba/{vehicleID}", h.handleVehicleUEBA)
		r.Get("/security/logs", h.handleSecurityLogs)
	})
}

// evaluation is the combined output for one telemetry sample.
type evaluation struct {
	VehicleID          string                    `json:"vehicle_id"`
	Timestamp          string                    `json:"timestamp"`
	RiskScore          float64                   `json:"risk_score"`
	RiskTier           telemetry.RiskTier        `json:"risk_tier"`
	PredictedFailure   string                    `json:"predicted_failure_type"`
	RootCauseSensor    string                    `json:"root_cause_sensor"`
	CurrentSensorValue float64                   `json:"current_sensor_value"`
	SecurityDecision   telemetry.Decision        `json:"security_decision,omitempty"`
	Recommendation     *diagnosis.Recommendation `json:"repair_recommendation,omitempty"`
	Log                []string                  `json:"logs"`
	Alert              *alerts.Alert             `json:"alert,omitempty"`
	UEBA               ueba.Verdict              `json:"ueba"`
}

// evaluate runs the full per-sample pipeline: diagnosis, alert lifecycle,
// telemetry-consistency UEBA scoring, and role redaction of the verdict.
func (h *Handlers) evaluate(r *http.Request, sample *telemetry.Sample, role string) (evaluation, error) {
	ctx, span := h.obs.StartSpan(r.Context(), "pipeline.evaluate")
	defer span.End()
	start := time.Now()

	result := h.pipeline.Run(sample)
	span.SetAttributes(
		attribute.String("vehicle.id", sample.VehicleID),
		attribute.Float64("risk.score", result.Assessment.RiskScore),
		attribute.String("risk.tier", string(result.Assessment.Tier)),
	)

	alert, err := h.alertSvc.Evaluate(ctx, result.Assessment)
	if err != nil {
		return evaluation{}, err
	}

	flags := ueba.FlagsFromSample(sample)
	hint := h.inspector.HintFor(inspection.ClientIP(r))
	verdict := ueba.Analyze(ueba.UserBehavior{}, ueba.ManagerBehavior{}, flags, ueba.WebAlerts(hint))
	h.verdicts.Put(sample.VehicleID, verdict)

	h.recordMetrics(sample, result, alert, verdict, time.Since(start))

	return evaluation{
		VehicleID:          sample.VehicleID,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		RiskScore:          result.Assessment.RiskScore,
		RiskTier:           result.Assessment.Tier,
		PredictedFailure:   result.Assessment.PredictedFailure,
		RootCauseSensor:    result.Assessment.DominantSensor,
		CurrentSensorValue: result.Assessment.CurrentSensorValue,
		SecurityDecision:   result.SecurityDecision,
		Recommendation:     result.Recommendation,
		Log:                result.Log,
		Alert:              alert,
		UEBA:               access.Redact(role, verdict),
	}, nil
}

func (h *Handlers) recordMetrics(sample *telemetry.Sample, result diagnosis.Result, alert *alerts.Alert, verdict ueba.Verdict, elapsed time.Duration) {
	m := h.obs.Metrics()
	if m == nil {
		return
	}

	m.SamplesScored.WithLabelValues(string(result.Assessment.Tier), sample.VehicleType).Inc()
	m.DiagnosisDuration.Observe(elapsed.Seconds())
	if result.SecurityDecision != "" {
		m.SecurityDecisions.WithLabelValues(string(result.SecurityDecision)).Inc()
	}
	if result.Recommendation != nil {
		m.Recommendations.WithLabelValues(string(result.Recommendation.Priority)).Inc()
	}
	if alert != nil {
		m.AlertsFired.Inc()
	}
	if active, err := h.alertSvc.Active(context.Background()); err == nil {
		m.AlertsActive.Set(float64(len(active)))
	}
	m.UEBAScore.Observe(float64(verdict.Score))
	m.UEBAVerdicts.WithLabelValues(string(verdict.Status)).Inc()
}

// handleDiagnose evaluates one telemetry sample and returns the full
// pipeline output.
func (h *Handlers) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var sample telemetry.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid telemetry payload")
		return
	}

	eval, err := h.evaluate(r, &sample, roleFrom(r))
	if err != nil {
		h.obs.RecordError(r.Context(), err, zap.String("vehicle_id", sample.VehicleID))
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// uebaRequest is the on-demand anomaly analysis payload. All sections are
// optional; absent signals are benign.
type uebaRequest struct {
	VehicleID       string               `json:"vehicle_id"`
	Role            string               `json:"role"`
	UserBehavior    ueba.UserBehavior    `json:"user_behavior"`
	ManagerBehavior ueba.ManagerBehavior `json:"manager_behavior"`
	TelemetryFlags  ueba.TelemetryFlags  `json:"telemetry_flags"`
	WebAlerts       *ueba.WebAlerts      `json:"web_alerts"`
}

// handleUEBAAnalyze runs the behavioral anomaly scorer over caller-supplied
// signals. When the caller omits web_alerts, the latest request-inspection
// hint for this client fills in.
func (h *Handlers) handleUEBAAnalyze(w http.ResponseWriter, r *http.Request) {
	var req uebaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	web := ueba.WebAlerts{}
	if req.WebAlerts != nil {
		web = *req.WebAlerts
	} else {
		web = ueba.WebAlerts(h.inspector.HintFor(inspection.ClientIP(r)))
	}

	verdict := ueba.Analyze(req.UserBehavior, req.ManagerBehavior, req.TelemetryFlags, web)
	if req.VehicleID != "" {
		h.verdicts.Put(req.VehicleID, verdict)
	}

	if m := h.obs.Metrics(); m != nil {
		m.UEBAScore.Observe(float64(verdict.Score))
		m.UEBAVerdicts.WithLabelValues(string(verdict.Status)).Inc()
	}

	role := req.Role
	if role == "" {
		role = roleFrom(r)
	}
	writeJSON(w, http.StatusOK, access.Redact(role, verdict))
}

// handleListAlerts returns every currently active alert.
func (h *Handlers) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := h.alertSvc.Active(r.Context())
	if err != nil {
		h.obs.RecordError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "alert store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": active,
		"count":  len(active),
	})
}

// handleVehicleAlert returns the active alert for one vehicle.
func (h *Handlers) handleVehicleAlert(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")

	alert, err := h.alertSvc.AlertForVehicle(r.Context(), vehicleID)
	if err != nil {
		h.obs.RecordError(r.Context(), err, zap.String("vehicle_id", vehicleID))
		writeError(w, http.StatusInternalServerError, "alert store unavailable")
		return
	}
	if alert == nil {
		writeError(w, http.StatusNotFound, "no active alert for vehicle")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// handleVehicleUEBA returns the cached verdict for a vehicle, redacted for
// the caller's role. Vehicles never analyzed report a benign verdict.
func (h *Handlers) handleVehicleUEBA(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")

	verdict, ok := h.verdicts.Get(vehicleID)
	if !ok {
		verdict = ueba.Verdict{
			Score:    0,
			Status:   ueba.StatusNormal,
			Findings: []string{"No data"},
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle_id": vehicleID,
		"ueba":       access.Redact(roleFrom(r), verdict),
	})
}

// handleSecurityLogs returns recent request-inspection records.
func (h *Handlers) handleSecurityLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": h.inspector.Recent(200),
	})
}

func roleFrom(r *http.Request) string {
	if role := r.Header.Get(roleHeader); role != "" {
		return role
	}
	return access.RoleUser
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
