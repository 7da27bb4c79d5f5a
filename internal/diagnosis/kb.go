package diagnosis

import (
	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

// Recommendation is an engineering fix pulled from the static knowledge base.
// Recommendations are never synthesized at runtime.
type Recommendation struct {
	Issue    string             `json:"issue"`
	Action   string             `json:"action"`
	Priority telemetry.Priority `json:"priority"`
}

// kbEntry couples a recommendation with the root-cause log line emitted when
// the entry is selected.
type kbEntry struct {
	rec Recommendation
	log string
}

// Combined-signature entries, checked before the per-sensor table.
var (
	kbOverheatInstability = kbEntry{
		rec: Recommendation{
			Issue:    "Thermostat Gasket Failure & Loose Engine Mounts",
			Action:   "Replace Head Gasket (Part #HG-99) and tighten mounts to 50Nm.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: Correlated Heat+Vib to specific gasket failure.",
	}
	kbOverheatOnly = kbEntry{
		rec: Recommendation{
			Issue:    "Coolant Leak or Radiator Blockage",
			Action:   "Top up coolant and inspect radiator fins.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Identified potential coolant system leak.",
	}
)

// sensorKB dispatches on the dominant sensor once the combined signatures
// have been ruled out.
var sensorKB = map[string]kbEntry{
	"oil_quality_contaminants_V_oil": {
		rec: Recommendation{
			Issue:    "Oil Contamination / Viscosity Loss",
			Action:   "Schedule oil flush and filter replacement; sample oil for lab test.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Low oil quality linked to lubrication risk.",
	},
	"brake_pad_wear_percent": {
		rec: Recommendation{
			Issue:    "Brake Pad Wear Near Limit",
			Action:   "Replace front pads and inspect rotors; recalibrate brake bias.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Brake wear approaching limits.",
	},
	"battery_soh_percent": {
		rec: Recommendation{
			Issue:    "Battery State-of-Health Degraded",
			Action:   "Run load test; clean terminals; plan pre-emptive replacement.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Battery SOH degradation noted.",
	},
	"transmission_fluid_temp_C": {
		rec: Recommendation{
			Issue:    "Transmission Fluid Overheating",
			Action:   "Inspect cooler; flush transmission fluid; check pump operation.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: Transmission fluid overheating pattern.",
	},
	"fuel_pressure_kPa": {
		rec: Recommendation{
			Issue:    "Low Fuel Rail Pressure",
			Action:   "Inspect fuel pump and filter; check for injector leakage.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Fuel pressure below nominal.",
	},
	"ev_battery_temp_C": {
		rec: Recommendation{
			Issue:    "EV Battery Thermal Stress",
			Action:   "Reduce load, check coolant loop, schedule pack thermal inspection.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: EV battery thermal elevation.",
	},
	"ev_voltage_stability": {
		rec: Recommendation{
			Issue:    "EV Voltage Instability",
			Action:   "Inspect inverter DC link and HV cabling; run BMS diagnostics.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: EV voltage instability detected.",
	},
	"petrol_knock_index": {
		rec: Recommendation{
			Issue:    "Petrol Engine Knock Risk",
			Action:   "Check fuel quality, timing advance, and knock sensor harness.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Petrol knock pattern observed.",
	},
	"petrol_fuel_trim": {
		rec: Recommendation{
			Issue:    "Fuel Trim Deviation",
			Action:   "Inspect O2 sensors, vacuum leaks, and injector balance.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Fuel trim deviation detected.",
	},
	"truck_axle_load_imbalance": {
		rec: Recommendation{
			Issue:    "Axle Load Imbalance",
			Action:   "Redistribute cargo; inspect suspension and load cells.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Axle load imbalance risk.",
	},
	"truck_brake_air_pressure": {
		rec: Recommendation{
			Issue:    "Brake Air Pressure Low",
			Action:   "Inspect compressor, lines, and check for leaks; top up air.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: Truck brake air pressure low.",
	},
	"ambulance_high_rpm_flag": {
		rec: Recommendation{
			Issue:    "High Duty Cycle Risk",
			Action:   "Increase cooldown intervals; prioritize urgent maintenance slot.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: Ambulance high-RPM duty pattern.",
	},
	"motorcycle_vibration": {
		rec: Recommendation{
			Issue:    "Motorcycle vibration spike",
			Action:   "Inspect chain tension, engine mounts, and tires.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Motorcycle vibration elevated.",
	},
	"motorcycle_lean_angle_deg": {
		rec: Recommendation{
			Issue:    "Aggressive lean angle detected",
			Action:   "Advise rider caution; inspect tire wear and traction control.",
			Priority: telemetry.PriorityLow,
		},
		log: "RCA: High lean angle pattern.",
	},
	"motorcycle_regulator_temp_C": {
		rec: Recommendation{
			Issue:    "Regulator/rectifier overheating",
			Action:   "Check cooling airflow and connector corrosion.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Regulator temp high.",
	},
	"motorcycle_methane_ppm": {
		rec: Recommendation{
			Issue:    "Methane presence near motorcycle",
			Action:   "Inspect fuel system for leaks; ensure ventilation.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Methane detection elevated.",
	},
	"petrol_air_fuel_ratio": {
		rec: Recommendation{
			Issue:    "Air-Fuel ratio out of range",
			Action:   "Check O2 sensors, MAF, vacuum leaks; adjust fueling.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: AFR deviation.",
	},
	"petrol_injector_duty_cycle": {
		rec: Recommendation{
			Issue:    "Injector duty high",
			Action:   "Check fuel pump, filter, and injector balance.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Injector duty elevated.",
	},
	"petrol_cranking_latency_ms": {
		rec: Recommendation{
			Issue:    "Cranking latency high",
			Action:   "Test battery, starter relay, and fuel prime pressure.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Slow crank detected.",
	},
	"petrol_delta_fuel_pressure_kPa": {
		rec: Recommendation{
			Issue:    "Fuel pressure delta abnormal",
			Action:   "Inspect regulator and rail sensor; verify pump output.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Fuel pressure delta issue.",
	},
	"truck_exhaust_temp_C": {
		rec: Recommendation{
			Issue:    "Exhaust temperature high",
			Action:   "Check DPF regen status and turbo health.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Truck exhaust temp high.",
	},
	"truck_thermal_variance": {
		rec: Recommendation{
			Issue:    "Thermal variance high",
			Action:   "Inspect cooling distribution and clogged fins.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Thermal variance elevated.",
	},
	"truck_turbo_boost_kPa": {
		rec: Recommendation{
			Issue:    "Turbo boost over spec",
			Action:   "Check wastegate, boost leaks, and turbo control valve.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Turbo boost high.",
	},
	"ambulance_suspension_load": {
		rec: Recommendation{
			Issue:    "Suspension load high",
			Action:   "Redistribute load; inspect shocks and air springs.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Suspension load elevated.",
	},
	"ambulance_cabin_co2_ppm": {
		rec: Recommendation{
			Issue:    "Cabin CO2 elevated",
			Action:   "Improve ventilation; check HVAC filters.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Cabin CO2 high.",
	},
	"ambulance_o2_tank_percent": {
		rec: Recommendation{
			Issue:    "O2 tank low",
			Action:   "Refill/replace O2 tank; verify regulators.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: O2 level low.",
	},
	"ambulance_fridge_temp_C": {
		rec: Recommendation{
			Issue:    "Fridge temperature high",
			Action:   "Check compressor and seals; move perishables.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Fridge temp high.",
	},
	"ambulance_suction_pressure_kPa": {
		rec: Recommendation{
			Issue:    "Suction pressure low",
			Action:   "Inspect tubing, pump, and filter; verify power.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: Suction pressure low.",
	},
	"ambulance_iv_flow_rate_ml_min": {
		rec: Recommendation{
			Issue:    "IV flow rate low",
			Action:   "Check IV line for kinks; confirm pump settings.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: IV flow low.",
	},
	"ev_igbt_temp_C": {
		rec: Recommendation{
			Issue:    "IGBT temperature high",
			Action:   "Check inverter cooling loop; derate power.",
			Priority: telemetry.PriorityCritical,
		},
		log: "RCA: IGBT temp high.",
	},
	"ev_stator_temp_C": {
		rec: Recommendation{
			Issue:    "Stator temperature high",
			Action:   "Inspect coolant flow and motor load.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Stator temp high.",
	},
	"ev_rotor_alignment_error": {
		rec: Recommendation{
			Issue:    "Rotor alignment error",
			Action:   "Run alignment calibration; inspect encoder.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Rotor alignment error.",
	},
	"ev_bearing_vibration": {
		rec: Recommendation{
			Issue:    "Bearing vibration high",
			Action:   "Inspect bearings and lubrication.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Bearing vibration high.",
	},
	"ev_cell_delta_V": {
		rec: Recommendation{
			Issue:    "Cell voltage delta high",
			Action:   "Balance cells; run BMS diagnostics.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Cell delta high.",
	},
	"ev_internal_resistance_mOhm": {
		rec: Recommendation{
			Issue:    "Internal resistance rising",
			Action:   "Assess pack aging; plan replacement.",
			Priority: telemetry.PriorityMedium,
		},
		log: "RCA: Internal resistance elevated.",
	},
	"ev_contactor_temp_C": {
		rec: Recommendation{
			Issue:    "Contactor temperature high",
			Action:   "Inspect contactor duty cycle and cooling.",
			Priority: telemetry.PriorityHigh,
		},
		log: "RCA: Contactor temp high.",
	},
}

const noMatchLog = "RCA: No failure pattern match."

// Lookup resolves a failure signature to a repair recommendation. Precedence
// is fixed: the combined heat+vibration signature first, then overheating
// alone, then the dominant-sensor table. A nil recommendation with the
// explanatory log line means no pattern matched; it is not an error.
func Lookup(temperatureC, vibrationG float64, dominantSensor string) (*Recommendation, string) {
	switch {
	case temperatureC > 95 && vibrationG > 4:
		rec := kbOverheatInstability.rec
		return &rec, kbOverheatInstability.log
	case temperatureC > 95:
		rec := kbOverheatOnly.rec
		return &rec, kbOverheatOnly.log
	}

	if entry, ok := sensorKB[dominantSensor]; ok {
		rec := entry.rec
		return &rec, entry.log
	}
	return nil, noMatchLog
}
