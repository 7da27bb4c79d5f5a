package ueba

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

// =============================================================================
// Score Band Tests
// =============================================================================

// TestStatusForScore verifies the status band thresholds are inclusive.
func TestStatusForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Status
	}{
		{0, StatusNormal},
		{49, StatusNormal},
		{50, StatusSuspicious},
		{74, StatusSuspicious},
		{75, StatusCritical},
		{100, StatusCritical},
	}

	for _, tt := range tests {
		if got := StatusForScore(tt.score); got != tt.want {
			t.Errorf("StatusForScore(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

// =============================================================================
// Analyze Tests
// =============================================================================

// TestAnalyze_NoSignals verifies the benign baseline verdict.
func TestAnalyze_NoSignals(t *testing.T) {
	v := Analyze(UserBehavior{}, ManagerBehavior{}, TelemetryFlags{}, WebAlerts{})

	if v.Score != 0 {
		t.Errorf("expected score 0, got %d", v.Score)
	}
	if v.Status != StatusNormal {
		t.Errorf("expected NORMAL, got %v", v.Status)
	}
	if len(v.Findings) != 1 || v.Findings[0] != "No anomalies detected" {
		t.Errorf("expected benign placeholder finding, got %v", v.Findings)
	}
}

// TestAnalyze_FailedLogins verifies the failed-login threshold is strict.
func TestAnalyze_FailedLogins(t *testing.T) {
	v := Analyze(UserBehavior{FailedLogins: 3}, ManagerBehavior{}, TelemetryFlags{}, WebAlerts{})
	if v.Score != 0 {
		t.Errorf("3 failed logins should not score, got %d", v.Score)
	}

	v = Analyze(UserBehavior{FailedLogins: 5}, ManagerBehavior{}, TelemetryFlags{}, WebAlerts{})
	if v.Score != 20 {
		t.Errorf("expected score 20, got %d", v.Score)
	}
	if v.Status != StatusNormal {
		t.Errorf("20 points should stay NORMAL, got %v", v.Status)
	}
	if len(v.Findings) != 1 || v.Findings[0] != "Repeated failed logins" {
		t.Errorf("unexpected findings %v", v.Findings)
	}
}

// TestAnalyze_Additive verifies signals accumulate into the higher bands.
func TestAnalyze_Additive(t *testing.T) {
	v := Analyze(
		UserBehavior{FailedLogins: 5, IPChange: true},                 // 20 + 10
		ManagerBehavior{UnauthorizedAccess: true},                     // 20
		TelemetryFlags{ImpossibleValues: true},                        // 15
		WebAlerts{Score: 60, Findings: []string{"SQLi-like pattern"}}, // 15
	)

	if v.Score != 80 {
		t.Errorf("expected score 80, got %d", v.Score)
	}
	if v.Status != StatusCritical {
		t.Errorf("expected CRITICAL, got %v", v.Status)
	}

	joined := strings.Join(v.Findings, "|")
	if !strings.Contains(joined, "WAF: SQLi-like pattern") {
		t.Errorf("web findings should be prefixed and carried through, got %v", v.Findings)
	}
	if !strings.Contains(joined, "Manager accessed unauthorized data") {
		t.Errorf("manager finding missing from %v", v.Findings)
	}
}

// TestAnalyze_WebScoreThreshold verifies the inspection score only counts at
// or above the limit.
func TestAnalyze_WebScoreThreshold(t *testing.T) {
	v := Analyze(UserBehavior{}, ManagerBehavior{}, TelemetryFlags{}, WebAlerts{Score: 49})
	if v.Score != 0 {
		t.Errorf("sub-threshold web score should not count, got %d", v.Score)
	}

	v = Analyze(UserBehavior{}, ManagerBehavior{}, TelemetryFlags{}, WebAlerts{Score: 50})
	if v.Score != 15 {
		t.Errorf("expected 15, got %d", v.Score)
	}
}

// TestAnalyze_ClampsAtHundred verifies the score never exceeds 100.
func TestAnalyze_ClampsAtHundred(t *testing.T) {
	v := Analyze(
		UserBehavior{FailedLogins: 10, IPChange: true, OddQuestions: true},
		ManagerBehavior{UnauthorizedAccess: true, HighFreqOps: true},
		TelemetryFlags{InconsistentSensors: true, ImpossibleValues: true, VehicleTypeMismatch: true, TimeSeriesAnomaly: true},
		WebAlerts{Score: 90},
	)

	if v.Score != 100 {
		t.Errorf("expected clamp at 100, got %d", v.Score)
	}
	if v.Status != StatusCritical {
		t.Errorf("expected CRITICAL, got %v", v.Status)
	}
}

// TestAnalyze_Deterministic verifies identical inputs yield identical
// verdicts, findings order included.
func TestAnalyze_Deterministic(t *testing.T) {
	in := func() Verdict {
		return Analyze(
			UserBehavior{FailedLogins: 4, OddQuestions: true},
			ManagerBehavior{HighFreqOps: true},
			TelemetryFlags{VehicleTypeMismatch: true},
			WebAlerts{Score: 55, Findings: []string{"a", "b"}},
		)
	}

	first := in()
	for i := 0; i < 20; i++ {
		got := in()
		if got.Score != first.Score || got.Status != first.Status ||
			strings.Join(got.Findings, "|") != strings.Join(first.Findings, "|") {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

// TestVerdictJSON verifies the wire field names.
func TestVerdictJSON(t *testing.T) {
	data, err := json.Marshal(Verdict{Score: 55, Status: StatusSuspicious, Findings: []string{"x"}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, want := range []string{`"ueba_score":55`, `"ueba_status":"SUSPICIOUS"`, `"ueba_findings":["x"]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("missing %s in %s", want, data)
		}
	}
}

// =============================================================================
// Telemetry Flag Derivation Tests
// =============================================================================

func decodeSample(t *testing.T, payload string) *telemetry.Sample {
	t.Helper()
	var s telemetry.Sample
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		t.Fatalf("sample decode failed: %v", err)
	}
	return &s
}

// TestFlagsFromSample verifies consistency flags derive from sample contents.
func TestFlagsFromSample(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    TelemetryFlags
	}{
		{
			"benign",
			`{"vehicle_id": "V1", "temperature": 90}`,
			TelemetryFlags{},
		},
		{
			"impossible temperature",
			`{"vehicle_id": "V1", "temperature": 900}`,
			TelemetryFlags{ImpossibleValues: true},
		},
		{
			"ev with petrol sensor",
			`{"vehicle_id": "V1", "vehicle_type": "EV", "petrol_knock_index": 0.4}`,
			TelemetryFlags{VehicleTypeMismatch: true},
		},
		{
			"petrol with ev sensor",
			`{"vehicle_id": "V1", "vehicle_type": "Petrol", "ev_battery_temp_C": 35}`,
			TelemetryFlags{VehicleTypeMismatch: true},
		},
		{
			"extreme vibration",
			`{"vehicle_id": "V1", "vibration": 20}`,
			TelemetryFlags{InconsistentSensors: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlagsFromSample(decodeSample(t, tt.payload)); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Verdict Cache Tests
// =============================================================================

// TestVerdictCache verifies latest-wins semantics and miss behavior.
func TestVerdictCache(t *testing.T) {
	c := NewVerdictCache()

	if _, ok := c.Get("V1"); ok {
		t.Error("empty cache should miss")
	}

	c.Put("V1", Verdict{Score: 20, Status: StatusNormal})
	c.Put("V1", Verdict{Score: 80, Status: StatusCritical})

	v, ok := c.Get("V1")
	if !ok || v.Score != 80 {
		t.Errorf("expected latest verdict, got ok=%v %+v", ok, v)
	}
}

// TestVerdictCache_Concurrent exercises the cache under parallel writers and
// readers; the race detector covers correctness.
func TestVerdictCache_Concurrent(t *testing.T) {
	c := NewVerdictCache()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("V1", Verdict{Score: j})
				c.Get("V1")
			}
		}()
	}
	wg.Wait()

	if _, ok := c.Get("V1"); !ok {
		t.Error("cache should hold the vehicle after concurrent writes")
	}
}
