package ueba

import (
	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

// Physically possible engine temperature bounds; anything outside is a
// sensor fault or fabricated data, not weather.
const (
	minPlausibleTempC = -50
	maxPlausibleTempC = 200
)

// FlagsFromSample derives telemetry-consistency signals from a raw sample:
// impossible physical values, sensors that contradict the declared vehicle
// type, and readings beyond any plausible operating envelope.
func FlagsFromSample(sample *telemetry.Sample) TelemetryFlags {
	var flags TelemetryFlags

	if t, ok := sample.Reading("temperature"); ok {
		if t.Value() < minPlausibleTempC || t.Value() > maxPlausibleTempC {
			flags.ImpossibleValues = true
		}
	}

	if sample.VehicleType == "EV" {
		if v, ok := sample.Reading("petrol_knock_index"); ok && v.Value() != 0 {
			flags.VehicleTypeMismatch = true
		}
	}
	if sample.VehicleType == "Petrol" {
		if v, ok := sample.Reading("ev_battery_temp_C"); ok && v.Value() != 0 {
			flags.VehicleTypeMismatch = true
		}
	}

	if sample.ValueOr("vibration", 0) > 15 || sample.ValueOr("truck_axle_load_imbalance", 0) > 0.9 {
		flags.InconsistentSensors = true
	}

	return flags
}
