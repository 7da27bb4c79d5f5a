// Package telemetry defines the vehicle telemetry data model shared by the
// scoring, diagnosis, and alerting pipeline.
package telemetry

import (
	"encoding/json"
)

// RiskTier classifies a continuous risk score into an operational band.
type RiskTier string

const (
	TierNormal   RiskTier = "NORMAL"
	TierModerate RiskTier = "MODERATE_RISK"
	TierHigh     RiskTier = "HIGH_RISK"
)

// TierForScore derives the risk tier from a risk score.
func TierForScore(score float64) RiskTier {
	switch {
	case score > 0.75:
		return TierHigh
	case score > 0.45:
		return TierModerate
	default:
		return TierNormal
	}
}

// Priority ranks a repair recommendation.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Decision is the outcome of the security gate in the diagnosis pipeline.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionBlocked  Decision = "BLOCKED"
)

// Reading is a single sensor measurement. Source systems deliver either a
// bare number, a boolean flag, or a redundant dual-sensor pair
// {"sensor_1": x, "sensor_2": y}. The pair resolves to its arithmetic mean.
// Anything unparseable resolves to the absent reading; telemetry is noisy by
// nature and a bad field must never fail the whole sample.
type Reading struct {
	value   float64
	present bool
}

// NewReading builds a reading holding the given value.
func NewReading(v float64) Reading {
	return Reading{value: v, present: true}
}

// Value returns the resolved numeric value of the reading.
func (r Reading) Value() float64 { return r.value }

// Present reports whether the reading carried a usable value.
func (r Reading) Present() bool { return r.present }

// redundantPair is the wire shape of a dual-sensor reading.
type redundantPair struct {
	Sensor1 *float64 `json:"sensor_1"`
	Sensor2 *float64 `json:"sensor_2"`
}

// UnmarshalJSON accepts a number, a boolean, or a redundant pair.
func (r *Reading) UnmarshalJSON(data []byte) error {
	*r = Reading{}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		r.value = num
		r.present = true
		return nil
	}

	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		if flag {
			r.value = 1
		}
		r.present = true
		return nil
	}

	var pair redundantPair
	if err := json.Unmarshal(data, &pair); err == nil && pair.Sensor1 != nil {
		if pair.Sensor2 != nil {
			r.value = (*pair.Sensor1 + *pair.Sensor2) / 2
		} else {
			r.value = *pair.Sensor1
		}
		r.present = true
		return nil
	}

	// Unparseable field: treat as absent rather than erroring.
	return nil
}

// MarshalJSON emits the resolved value.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.present {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// Sample is one per-vehicle telemetry record. It is constructed per received
// sample, immutable once decoded, and consumed once.
type Sample struct {
	VehicleID   string
	VehicleType string
	ForceBlock  bool
	Readings    map[string]Reading
}

// Reading looks up a sensor by name.
func (s *Sample) Reading(name string) (Reading, bool) {
	r, ok := s.Readings[name]
	if !ok || !r.present {
		return Reading{}, false
	}
	return r, true
}

// ValueOr returns the sensor value, or def when the sensor is absent.
func (s *Sample) ValueOr(name string, def float64) float64 {
	if r, ok := s.Reading(name); ok {
		return r.Value()
	}
	return def
}

// Flag reports a boolean sensor; absent flags are false.
func (s *Sample) Flag(name string) bool {
	r, ok := s.Reading(name)
	return ok && r.Value() != 0
}

// UnmarshalJSON decodes a flat telemetry object. Identity fields are pulled
// out; every other key becomes a sensor reading. Unknown or malformed keys
// never fail the decode.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var vehicleID, chassisNumber string
	s.Readings = make(map[string]Reading, len(raw))
	for key, val := range raw {
		switch key {
		case "vehicle_id":
			_ = json.Unmarshal(val, &vehicleID)
		case "chassis_number":
			_ = json.Unmarshal(val, &chassisNumber)
		case "vehicle_type":
			var vt string
			if err := json.Unmarshal(val, &vt); err == nil {
				s.VehicleType = vt
			}
		case "force_block":
			var fb bool
			if err := json.Unmarshal(val, &fb); err == nil {
				s.ForceBlock = fb
			}
		default:
			var r Reading
			if err := r.UnmarshalJSON(val); err == nil && r.present {
				s.Readings[key] = r
			}
		}
	}

	// vehicle_id wins over the legacy chassis_number alias.
	switch {
	case vehicleID != "":
		s.VehicleID = vehicleID
	case chassisNumber != "":
		s.VehicleID = chassisNumber
	default:
		s.VehicleID = "UNKNOWN"
	}
	return nil
}

// RiskAssessment is the scored view of one sample. Created fresh per sample
// and never merged across samples.
type RiskAssessment struct {
	VehicleID          string   `json:"vehicle_id"`
	RiskScore          float64  `json:"risk_score"`
	Tier               RiskTier `json:"risk_tier"`
	DominantSensor     string   `json:"root_cause_sensor"`
	DominantValue      float64  `json:"dominant_normalized_value"`
	PredictedFailure   string   `json:"predicted_failure_type"`
	CurrentSensorValue float64  `json:"current_sensor_value"`
}
