// Package ueba implements the behavioral anomaly scorer: a deterministic
// additive score over categorical behavioral signals from users, operators,
// telemetry consistency checks, and upstream request inspection.
package ueba

// Status bands for the anomaly score.
type Status string

const (
	StatusNormal     Status = "NORMAL"
	StatusSuspicious Status = "SUSPICIOUS"
	StatusCritical   Status = "CRITICAL"
)

// StatusForScore derives the status band from an anomaly score.
func StatusForScore(score int) Status {
	switch {
	case score >= 75:
		return StatusCritical
	case score >= 50:
		return StatusSuspicious
	default:
		return StatusNormal
	}
}

// UserBehavior holds end-user behavioral signals. The zero value means no
// signals observed.
type UserBehavior struct {
	FailedLogins int  `json:"failed_logins"`
	IPChange     bool `json:"ip_change"`
	OddQuestions bool `json:"odd_questions"`
}

// ManagerBehavior holds dealer/operator behavioral signals.
type ManagerBehavior struct {
	UnauthorizedAccess bool `json:"unauthorized_access"`
	HighFreqOps        bool `json:"high_freq_ops"`
}

// TelemetryFlags holds telemetry-consistency signals.
type TelemetryFlags struct {
	InconsistentSensors bool `json:"inconsistent_sensors"`
	ImpossibleValues    bool `json:"impossible_values"`
	VehicleTypeMismatch bool `json:"vehicle_type_mismatch"`
	TimeSeriesAnomaly   bool `json:"time_series_anomaly"`
}

// WebAlerts is the request-inspection hint supplied per evaluation window.
type WebAlerts struct {
	Score    int      `json:"score"`
	Findings []string `json:"findings"`
}

// Verdict is the scorer output. Stateless per call; callers may cache the
// latest verdict per vehicle externally.
type Verdict struct {
	Score    int      `json:"ueba_score"`
	Status   Status   `json:"ueba_status"`
	Findings []string `json:"ueba_findings"`
}

// Point values for each condition. Fixed constants, never learned.
const (
	pointsFailedLogins       = 20
	pointsIPChange           = 10
	pointsOddQuestions       = 10
	pointsUnauthorizedAccess = 20
	pointsHighFreqOps        = 10
	pointsInconsistent       = 15
	pointsImpossible         = 15
	pointsTypeMismatch       = 10
	pointsTimeSeries         = 10
	pointsWebScore           = 15

	failedLoginLimit = 3
	webScoreLimit    = 50
	maxScore         = 100
)

// Analyze scores the behavioral signals. Purely additive, clamped to 100;
// identical inputs always yield identical verdicts.
func Analyze(user UserBehavior, manager ManagerBehavior, flags TelemetryFlags, web WebAlerts) Verdict {
	var findings []string
	score := 0

	if user.FailedLogins > failedLoginLimit {
		score += pointsFailedLogins
		findings = append(findings, "Repeated failed logins")
	}
	if user.IPChange {
		score += pointsIPChange
		findings = append(findings, "Login IP/location change")
	}
	if user.OddQuestions {
		score += pointsOddQuestions
		findings = append(findings, "Abnormal chatbot question pattern")
	}

	if manager.UnauthorizedAccess {
		score += pointsUnauthorizedAccess
		findings = append(findings, "Manager accessed unauthorized data")
	}
	if manager.HighFreqOps {
		score += pointsHighFreqOps
		findings = append(findings, "High-frequency sensitive operations")
	}

	if flags.InconsistentSensors {
		score += pointsInconsistent
		findings = append(findings, "Sensor inconsistency detected")
	}
	if flags.ImpossibleValues {
		score += pointsImpossible
		findings = append(findings, "Impossible telemetry values")
	}
	if flags.VehicleTypeMismatch {
		score += pointsTypeMismatch
		findings = append(findings, "Vehicle type vs sensor mismatch")
	}
	if flags.TimeSeriesAnomaly {
		score += pointsTimeSeries
		findings = append(findings, "Time-series anomaly detected")
	}

	if web.Score >= webScoreLimit {
		score += pointsWebScore
		findings = append(findings, "WAF-lite flagged suspicious pattern")
	}
	for _, f := range web.Findings {
		findings = append(findings, "WAF: "+f)
	}

	if score > maxScore {
		score = maxScore
	}
	if len(findings) == 0 {
		findings = []string{"No anomalies detected"}
	}

	return Verdict{
		Score:    score,
		Status:   StatusForScore(score),
		Findings: findings,
	}
}
