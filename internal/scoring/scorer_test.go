package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

func decodeSample(t *testing.T, payload string) *telemetry.Sample {
	t.Helper()
	var s telemetry.Sample
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		t.Fatalf("sample decode failed: %v", err)
	}
	return &s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// =============================================================================
// Score Bounds and Baseline Tests
// =============================================================================

// TestScore_EmptySampleIsBaseline verifies that a sample with no sensors
// scores zero: every per-sensor default normalizes to no risk.
func TestScore_EmptySampleIsBaseline(t *testing.T) {
	s := decodeSample(t, `{"vehicle_id": "V1"}`)

	a := NewScorer().Score(s)
	if a.RiskScore != 0 {
		t.Errorf("empty sample should score 0, got %v", a.RiskScore)
	}
	if a.Tier != telemetry.TierNormal {
		t.Errorf("expected NORMAL tier, got %v", a.Tier)
	}
}

// TestScore_HealthySensorsStayBaseline verifies explicitly healthy readings
// do not raise the score above the baseline.
func TestScore_HealthySensorsStayBaseline(t *testing.T) {
	s := decodeSample(t, `{
		"vehicle_id": "V2",
		"vehicle_type": "EV",
		"battery_soh_percent": 100,
		"ev_voltage_stability": 1.0
	}`)

	a := NewScorer().Score(s)
	if a.RiskScore != 0 {
		t.Errorf("healthy readings should score 0, got %v", a.RiskScore)
	}
	if a.Tier != telemetry.TierNormal {
		t.Errorf("expected NORMAL tier, got %v", a.Tier)
	}
}

// TestScore_SingleSensorContribution verifies one saturated sensor
// contributes exactly its weight.
func TestScore_SingleSensorContribution(t *testing.T) {
	s := decodeSample(t, `{"vehicle_id": "V1", "temperature": 110}`)

	a := NewScorer().Score(s)
	if !approx(a.RiskScore, 0.15) {
		t.Errorf("saturated temperature should score 0.15, got %v", a.RiskScore)
	}
	if a.DominantSensor != "temperature" {
		t.Errorf("expected dominant temperature, got %q", a.DominantSensor)
	}
	if a.DominantValue != 1 {
		t.Errorf("expected normalized 1.0, got %v", a.DominantValue)
	}
	if a.PredictedFailure != "Engine Overheating" {
		t.Errorf("unexpected failure label %q", a.PredictedFailure)
	}
	if a.CurrentSensorValue != 110 {
		t.Errorf("expected raw value 110, got %v", a.CurrentSensorValue)
	}
}

// TestScore_ClampedToOne verifies the score never exceeds 1 even when many
// sensors saturate.
func TestScore_ClampedToOne(t *testing.T) {
	s := decodeSample(t, `{
		"vehicle_id": "V1",
		"vehicle_type": "Truck",
		"temperature": 1000,
		"vibration": 100,
		"vibration_rms_A_rms": 100,
		"oil_quality_contaminants_V_oil": 0,
		"battery_soh_percent": 0,
		"brake_pad_wear_percent": 100,
		"transmission_fluid_temp_C": 500,
		"fuel_pressure_kPa": 0,
		"truck_axle_load_imbalance": 1,
		"truck_brake_air_pressure": 0,
		"truck_exhaust_temp_C": 2000
	}`)

	a := NewScorer().Score(s)
	if a.RiskScore != 1 {
		t.Errorf("score should clamp to 1, got %v", a.RiskScore)
	}
	if a.Tier != telemetry.TierHigh {
		t.Errorf("expected HIGH_RISK, got %v", a.Tier)
	}
}

// TestScore_NormalizedValuesBounded verifies every normalized sensor value
// stays inside [0,1] for extreme raw inputs.
func TestScore_NormalizedValuesBounded(t *testing.T) {
	s := decodeSample(t, `{
		"vehicle_id": "V1",
		"temperature": -10000,
		"fuel_pressure_kPa": 1e9,
		"petrol_fuel_trim": -1e6,
		"ev_cell_delta_V": 1e6
	}`)

	for name, v := range NewScorer().Normalize(s) {
		if v < 0 || v > 1 {
			t.Errorf("normalized %s = %v outside [0,1]", name, v)
		}
	}
}

// TestScore_MonotoneInRiskierDirection verifies that moving any single sensor
// in its riskier direction, with every other reading held fixed, never lowers
// the score. Each sequence is ordered benign to risky and covers one
// normalization shape, including both sides of a centered deviation signal.
func TestScore_MonotoneInRiskierDirection(t *testing.T) {
	cases := []struct {
		sensor string
		values []float64
	}{
		{"temperature", []float64{80, 90, 100, 120}},
		{"vibration", []float64{0, 2, 4, 8}},
		{"battery_soh_percent", []float64{100, 80, 50, 0}},
		{"oil_quality_contaminants_V_oil", []float64{1, 0.6, 0.3, 0}},
		{"fuel_pressure_kPa", []float64{350, 300, 200, 50}},
		{"petrol_fuel_trim", []float64{0, 5, 15, 40}},
		{"petrol_fuel_trim", []float64{0, -5, -15, -40}},
		{"petrol_air_fuel_ratio", []float64{14.7, 16, 20, 30}},
		{"ambulance_high_rpm_flag", []float64{0, 1}},
	}

	scorer := NewScorer()
	for _, tc := range cases {
		prev := math.Inf(-1)
		for _, raw := range tc.values {
			payload := fmt.Sprintf(`{
				"vehicle_id": "V1",
				"vehicle_type": "Truck",
				"transmission_fluid_temp_C": 100,
				%q: %v
			}`, tc.sensor, raw)
			got := scorer.Score(decodeSample(t, payload)).RiskScore
			if got < prev {
				t.Errorf("%s: raw %v dropped score from %v to %v", tc.sensor, raw, prev, got)
			}
			prev = got
		}
	}
}

// =============================================================================
// Vehicle Type Multiplier Tests
// =============================================================================

// TestScore_TypeMultiplier verifies the multiplier applies after the
// weighted sum.
func TestScore_TypeMultiplier(t *testing.T) {
	base := decodeSample(t, `{"vehicle_id": "V1", "truck_axle_load_imbalance": 1}`)
	truck := decodeSample(t, `{"vehicle_id": "V1", "vehicle_type": "Truck", "truck_axle_load_imbalance": 1}`)

	scorer := NewScorer()
	got := scorer.Score(base).RiskScore
	if !approx(got, 0.10) {
		t.Fatalf("untyped score should be 0.10, got %v", got)
	}

	got = scorer.Score(truck).RiskScore
	if !approx(got, 0.107) {
		t.Errorf("Truck multiplier 1.07 should yield 0.107, got %v", got)
	}
}

// TestScore_UnknownTypeNoMultiplier verifies unrecognized vehicle types get
// no multiplier.
func TestScore_UnknownTypeNoMultiplier(t *testing.T) {
	s := decodeSample(t, `{"vehicle_id": "V1", "vehicle_type": "Hovercraft", "temperature": 110}`)

	if got := NewScorer().Score(s).RiskScore; !approx(got, 0.15) {
		t.Errorf("unknown type should not scale the score, got %v", got)
	}
}

// =============================================================================
// Determinism Tests
// =============================================================================

// TestScore_Deterministic verifies identical samples always yield identical
// assessments, including the dominant sensor on ties.
func TestScore_Deterministic(t *testing.T) {
	payload := `{
		"vehicle_id": "V1",
		"temperature": 110,
		"vibration": 6,
		"oil_quality_contaminants_V_oil": 0
	}`

	scorer := NewScorer()
	first := scorer.Score(decodeSample(t, payload))
	for i := 0; i < 50; i++ {
		got := scorer.Score(decodeSample(t, payload))
		if got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}

	// All three sensors normalize to 1.0; lexicographic order picks oil.
	if first.DominantSensor != "oil_quality_contaminants_V_oil" {
		t.Errorf("tie-break should pick oil_quality_contaminants_V_oil, got %q", first.DominantSensor)
	}
}

// TestScore_TierMatchesScore verifies the reported tier is always derived
// from the reported score.
func TestScore_TierMatchesScore(t *testing.T) {
	payloads := []string{
		`{"vehicle_id": "V1"}`,
		`{"vehicle_id": "V1", "temperature": 100}`,
		`{"vehicle_id": "V1", "temperature": 110, "oil_quality_contaminants_V_oil": 0, "vibration": 6, "brake_pad_wear_percent": 80}`,
		`{"vehicle_id": "V1", "vehicle_type": "Ambulance", "temperature": 1000, "oil_quality_contaminants_V_oil": 0, "vibration_rms_A_rms": 50, "battery_soh_percent": 0, "transmission_fluid_temp_C": 300, "brake_pad_wear_percent": 100}`,
	}

	scorer := NewScorer()
	for _, p := range payloads {
		a := scorer.Score(decodeSample(t, p))
		if want := telemetry.TierForScore(a.RiskScore); a.Tier != want {
			t.Errorf("tier %v does not match score %v (want %v)", a.Tier, a.RiskScore, want)
		}
	}
}

// TestScore_MissingDominantRawValue verifies the raw current value reports 0
// when the dominant sensor was never present in the sample.
func TestScore_MissingDominantRawValue(t *testing.T) {
	a := NewScorer().Score(decodeSample(t, `{"vehicle_id": "V1"}`))
	if a.CurrentSensorValue != 0 {
		t.Errorf("absent dominant sensor should report raw 0, got %v", a.CurrentSensorValue)
	}
}

// =============================================================================
// Failure Label Tests
// =============================================================================

// TestSensors verifies the recognized-sensor listing is sorted and every
// sensor carries a failure hypothesis.
func TestSensors(t *testing.T) {
	names := Sensors()
	if len(names) != len(features) {
		t.Fatalf("expected %d sensors, got %d", len(features), len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("sensor order not strictly sorted at %q >= %q", names[i-1], names[i])
		}
	}
	for _, name := range names {
		if FailureLabel(name) == genericFailureLabel {
			t.Errorf("sensor %q has no failure hypothesis", name)
		}
	}
}

// TestFailureLabel verifies known sensors map to their hypothesis and
// unknown sensors fall back to the generic label.
func TestFailureLabel(t *testing.T) {
	if got := FailureLabel("ev_battery_temp_C"); got != "EV Battery Thermal Risk" {
		t.Errorf("unexpected label %q", got)
	}
	if got := FailureLabel("flux_capacitor"); got != genericFailureLabel {
		t.Errorf("unknown sensor should get generic label, got %q", got)
	}
}
