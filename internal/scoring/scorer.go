// Package scoring turns raw vehicle telemetry into a bounded risk score with
// a dominant-cause explanation. Scoring is a pure function: no I/O, no state,
// and malformed input degrades to documented defaults instead of erroring.
package scoring

import (
	"math"
	"sort"

	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

// Vehicle-type risk multipliers. Applied after the weighted sum; the base
// weights themselves are identical for every vehicle type.
var typeMultipliers = map[string]float64{
	"EV":         1.05,
	"Petrol":     1.02,
	"Truck":      1.07,
	"Ambulance":  1.10,
	"Motorcycle": 1.03,
}

// sensorOrder fixes dominant-sensor tie-breaking to lexicographic order so
// scoring is deterministic across runs.
var sensorOrder = func() []string {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// Sampler is the subset of the telemetry sample the scorer reads.
type Sampler interface {
	ValueOr(name string, def float64) float64
}

// Scorer computes risk assessments from telemetry samples.
type Scorer struct{}

// NewScorer returns a ready scorer. The feature table is static so the
// zero value is also usable.
func NewScorer() *Scorer { return &Scorer{} }

// Normalize maps every recognized sensor to its normalized [0,1] risk value,
// substituting per-sensor defaults for absent readings.
func (s *Scorer) Normalize(sample Sampler) map[string]float64 {
	norm := make(map[string]float64, len(features))
	for name, f := range features {
		norm[name] = f.normalize(sample.ValueOr(name, f.def))
	}
	return norm
}

// Score produces the risk assessment for one sample. It never fails: missing
// or malformed sensors fall back to their defaults.
func (s *Scorer) Score(sample *telemetry.Sample) telemetry.RiskAssessment {
	norm := s.Normalize(sample)
	score, dominant, dominantVal := scoreNormalized(norm, sample.VehicleType)

	return telemetry.RiskAssessment{
		VehicleID:          sample.VehicleID,
		RiskScore:          score,
		Tier:               telemetry.TierForScore(score),
		DominantSensor:     dominant,
		DominantValue:      dominantVal,
		PredictedFailure:   FailureLabel(dominant),
		CurrentSensorValue: sample.ValueOr(dominant, 0),
	}
}

// scoreNormalized computes the weighted, clamped score plus the dominant
// sensor under the fixed lexicographic tie-break.
func scoreNormalized(norm map[string]float64, vehicleType string) (score float64, dominant string, dominantVal float64) {
	dominantVal = math.Inf(-1)
	for _, name := range sensorOrder {
		v := norm[name]
		score += v * features[name].weight
		if v > dominantVal {
			dominant, dominantVal = name, v
		}
	}

	score = clamp01(score)
	if m, ok := typeMultipliers[vehicleType]; ok {
		score = clamp01(score * m)
	}
	return score, dominant, dominantVal
}
