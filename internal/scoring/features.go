package scoring

// feature describes one recognized sensor: its static weight, the default
// used when the sample omits it, the failure hypothesis it maps to, and the
// transform that normalizes the raw value into [0,1] with higher meaning
// riskier. Weights are fixed constants shared by all vehicle types; only the
// vehicle-type multiplier varies.
type feature struct {
	weight    float64
	def       float64
	label     string
	normalize func(v float64) float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// above maps values rising past a floor: (v-floor)/span.
func above(floor, span float64) func(float64) float64 {
	return func(v float64) float64 { return clamp01((v - floor) / span) }
}

// below maps values falling under a ceiling: (ceil-v)/span.
func below(ceil, span float64) func(float64) float64 {
	return func(v float64) float64 { return clamp01((ceil - v) / span) }
}

// ratio maps v/limit.
func ratio(limit float64) func(float64) float64 {
	return func(v float64) float64 { return clamp01(v / limit) }
}

// deviation maps |v-center|/span.
func deviation(center, span float64) func(float64) float64 {
	return func(v float64) float64 {
		d := v - center
		if d < 0 {
			d = -d
		}
		return clamp01(d / span)
	}
}

// inverse maps 1-v for unit-scale quality signals where lower raw is worse.
func inverse() func(float64) float64 {
	return func(v float64) float64 { return clamp01(1 - v) }
}

// flag maps any non-zero reading to full risk.
func flag() func(float64) float64 {
	return func(v float64) float64 {
		if v != 0 {
			return 1
		}
		return 0
	}
}

// features is the static per-sensor configuration. Never mutated at runtime.
var features = map[string]feature{
	"temperature": {
		weight: 0.15, def: 0, label: "Engine Overheating",
		normalize: above(85, 25),
	},
	"vibration": {
		weight: 0.10, def: 0, label: "Engine mount / accessory imbalance",
		normalize: ratio(6),
	},
	"oil_quality_contaminants_V_oil": {
		weight: 0.20, def: 1, label: "Engine Seizure Risk due to oil contamination",
		normalize: inverse(),
	},
	"vibration_rms_A_rms": {
		weight: 0.15, def: 0, label: "Drivetrain imbalance / bearing fatigue",
		normalize: ratio(8),
	},
	"brake_pad_wear_percent": {
		weight: 0.10, def: 0, label: "Brake Fade Risk from worn pads",
		normalize: ratio(100),
	},
	"battery_soh_percent": {
		weight: 0.10, def: 100, label: "Electrical system instability (battery SOH low)",
		normalize: below(100, 100),
	},
	"transmission_fluid_temp_C": {
		weight: 0.15, def: 0, label: "Transmission Overheating",
		normalize: above(80, 60),
	},
	"fuel_pressure_kPa": {
		weight: 0.05, def: 350, label: "Fuel delivery instability (low rail pressure)",
		normalize: below(350, 250),
	},
	"ev_battery_temp_C": {
		weight: 0.12, def: 0, label: "EV Battery Thermal Risk",
		normalize: above(40, 35),
	},
	"ev_voltage_stability": {
		weight: 0.10, def: 1, label: "EV Voltage Instability",
		normalize: inverse(),
	},
	"petrol_knock_index": {
		weight: 0.12, def: 0, label: "Engine Knock Detected",
		normalize: ratio(1),
	},
	"petrol_fuel_trim": {
		weight: 0.08, def: 0, label: "Fuel Trim Out of Range",
		normalize: deviation(0, 25),
	},
	"truck_axle_load_imbalance": {
		weight: 0.10, def: 0, label: "Axle Load Imbalance",
		normalize: ratio(1),
	},
	"truck_brake_air_pressure": {
		weight: 0.12, def: 90, label: "Brake Air Pressure Low",
		normalize: below(90, 40),
	},
	"ambulance_high_rpm_flag": {
		weight: 0.08, def: 0, label: "High Duty RPM Pattern",
		normalize: flag(),
	},
	"motorcycle_vibration": {
		weight: 0.08, def: 0, label: "Motorcycle Vibration High",
		normalize: ratio(6),
	},
	"motorcycle_lean_angle_deg": {
		weight: 0.05, def: 0, label: "Aggressive Lean Angle",
		normalize: ratio(60),
	},
	"motorcycle_regulator_temp_C": {
		weight: 0.06, def: 0, label: "Regulator Overheating",
		normalize: above(70, 50),
	},
	"motorcycle_methane_ppm": {
		weight: 0.04, def: 0, label: "Methane Detected Near Bike",
		normalize: ratio(50),
	},
	"petrol_air_fuel_ratio": {
		weight: 0.06, def: 14.7, label: "Air-Fuel Ratio Out of Range",
		normalize: deviation(14.7, 10),
	},
	"petrol_injector_duty_cycle": {
		weight: 0.06, def: 0, label: "Injector Duty Cycle High",
		normalize: ratio(100),
	},
	"petrol_cranking_latency_ms": {
		weight: 0.04, def: 0, label: "Slow Cranking Detected",
		normalize: ratio(800),
	},
	"petrol_delta_fuel_pressure_kPa": {
		weight: 0.05, def: 0, label: "Fuel Pressure Delta Abnormal",
		normalize: deviation(0, 80),
	},
	"truck_exhaust_temp_C": {
		weight: 0.08, def: 0, label: "High Exhaust Temp",
		normalize: above(450, 400),
	},
	"truck_thermal_variance": {
		weight: 0.05, def: 0, label: "Thermal Variance High",
		normalize: ratio(1),
	},
	"truck_turbo_boost_kPa": {
		weight: 0.05, def: 0, label: "Turbo Boost Over Spec",
		normalize: above(180, 80),
	},
	"ambulance_suspension_load": {
		weight: 0.05, def: 0, label: "Suspension Load High",
		normalize: ratio(1),
	},
	"ambulance_cabin_co2_ppm": {
		weight: 0.05, def: 400, label: "Cabin CO2 Elevated",
		normalize: above(800, 2000),
	},
	"ambulance_o2_tank_percent": {
		weight: 0.08, def: 100, label: "O2 Tank Low",
		normalize: below(50, 50),
	},
	"ambulance_fridge_temp_C": {
		weight: 0.04, def: 0, label: "Fridge Temperature High",
		normalize: above(8, 12),
	},
	"ambulance_suction_pressure_kPa": {
		weight: 0.05, def: 70, label: "Suction Pressure Low",
		normalize: below(70, 40),
	},
	"ambulance_iv_flow_rate_ml_min": {
		weight: 0.04, def: 40, label: "IV Flow Rate Low",
		normalize: below(10, 40),
	},
	"ev_igbt_temp_C": {
		weight: 0.06, def: 0, label: "IGBT Temperature High",
		normalize: above(80, 70),
	},
	"ev_stator_temp_C": {
		weight: 0.05, def: 0, label: "Stator Temperature High",
		normalize: above(90, 70),
	},
	"ev_rotor_alignment_error": {
		weight: 0.05, def: 0, label: "Rotor Alignment Error",
		normalize: ratio(0.5),
	},
	"ev_bearing_vibration": {
		weight: 0.05, def: 0, label: "Bearing Vibration High",
		normalize: ratio(6),
	},
	"ev_cell_delta_V": {
		weight: 0.04, def: 0, label: "Cell Voltage Delta High",
		normalize: ratio(0.2),
	},
	"ev_internal_resistance_mOhm": {
		weight: 0.04, def: 2, label: "Internal Resistance Rising",
		normalize: above(6, 20),
	},
	"ev_contactor_temp_C": {
		weight: 0.04, def: 0, label: "Contactor Temperature High",
		normalize: above(70, 50),
	},
}

// genericFailureLabel covers dominant sensors without a dedicated hypothesis.
const genericFailureLabel = "General Instability Detected"

// FailureLabel returns the failure hypothesis for a sensor.
func FailureLabel(sensor string) string {
	if f, ok := features[sensor]; ok {
		return f.label
	}
	return genericFailureLabel
}

// Sensors returns the recognized sensor names in lexicographic order.
func Sensors() []string {
	return append([]string(nil), sensorOrder...)
}
