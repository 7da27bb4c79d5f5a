// Package diagnosis orchestrates the per-sample decision pipeline: risk
// scoring, a conditional security gate, and a root-cause knowledge-base
// lookup, expressed as an explicit finite-state machine.
package diagnosis

import (
	"fmt"

	"github.com/fleetsentry/fleetsentry/internal/scoring"
	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

// State identifies a node in the diagnosis graph.
type State int

const (
	StateStart State = iota
	StateDiagnosis
	StateSecurityCheck
	StateRootCause
	StateEnd
)

// String returns the node name used in logs.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateDiagnosis:
		return "diagnosis"
	case StateSecurityCheck:
		return "security_check"
	case StateRootCause:
		return "root_cause"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Next is the pure transition function of the graph. NORMAL-risk samples
// terminate straight after diagnosis; elevated tiers pass through the
// security gate and then, regardless of its decision, root-cause analysis.
func Next(s State, tier telemetry.RiskTier) State {
	switch s {
	case StateStart:
		return StateDiagnosis
	case StateDiagnosis:
		if tier == telemetry.TierModerate || tier == telemetry.TierHigh {
			return StateSecurityCheck
		}
		return StateEnd
	case StateSecurityCheck:
		return StateRootCause
	default:
		return StateEnd
	}
}

// Result is the full output of one pipeline invocation.
type Result struct {
	Assessment       telemetry.RiskAssessment `json:"assessment"`
	SecurityDecision telemetry.Decision       `json:"security_decision,omitempty"`
	Recommendation   *Recommendation          `json:"repair_recommendation,omitempty"`
	Log              []string                 `json:"diagnosis_log"`
}

// Pipeline runs the diagnosis graph. It is stateless across samples; a single
// instance may be shared by concurrent callers.
type Pipeline struct {
	scorer *scoring.Scorer
}

// NewPipeline builds a pipeline around the given scorer.
func NewPipeline(scorer *scoring.Scorer) *Pipeline {
	return &Pipeline{scorer: scorer}
}

// Run evaluates one sample. Each visited node appends exactly one log entry.
func (p *Pipeline) Run(sample *telemetry.Sample) Result {
	var res Result

	for state := Next(StateStart, ""); state != StateEnd; state = Next(state, res.Assessment.Tier) {
		switch state {
		case StateDiagnosis:
			res.Assessment = p.scorer.Score(sample)
			res.Log = append(res.Log, fmt.Sprintf(
				"Risk %.2f driven by %s (norm %.2f); T=%gC, Vib=%gg",
				res.Assessment.RiskScore,
				res.Assessment.DominantSensor,
				res.Assessment.DominantValue,
				sample.ValueOr("temperature", 0),
				sample.ValueOr("vibration", 0),
			))

		case StateSecurityCheck:
			if sample.ForceBlock {
				res.SecurityDecision = telemetry.DecisionBlocked
				res.Log = append(res.Log, "SECURITY ALERT: Anomalous command signature detected.")
			} else {
				res.SecurityDecision = telemetry.DecisionApproved
				res.Log = append(res.Log, "Security scan: behavior within policy limits.")
			}

		case StateRootCause:
			rec, logLine := Lookup(
				sample.ValueOr("temperature", 0),
				sample.ValueOr("vibration", 0),
				res.Assessment.DominantSensor,
			)
			res.Recommendation = rec
			res.Log = append(res.Log, logLine)
		}
	}

	return res
}
