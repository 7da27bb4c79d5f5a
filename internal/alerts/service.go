// Package alerts manages the active-alert lifecycle: threshold-gated alert
// creation with at-most-one active alert per vehicle under concurrent access.
package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsentry/fleetsentry/internal/telemetry"
)

// DefaultThreshold is the risk score at which an alert fires.
const DefaultThreshold = 0.85

// Alert is the per-vehicle active alert record. An alert survives until a
// newer qualifying evaluation for the same vehicle replaces it; there is no
// auto-expiry.
type Alert struct {
	ID                 string    `json:"id"`
	VehicleID          string    `json:"vehicle_id"`
	PredictedFailure   string    `json:"predicted_failure_type"`
	RootCauseSensor    string    `json:"root_cause_sensor"`
	CurrentSensorValue float64   `json:"current_sensor_value"`
	RiskScore          float64   `json:"risk_score"`
	CreatedAt          time.Time `json:"created_at"`

	// Seq orders writes for one vehicle; a stale evaluation must never
	// clobber a newer alert.
	Seq uint64 `json:"seq"`
}

// Store is the active-alert collection. Upsert must be atomic per vehicle
// and must reject writes whose Seq is older than the stored alert's.
type Store interface {
	Upsert(ctx context.Context, alert Alert) error
	Get(ctx context.Context, vehicleID string) (Alert, bool, error)
	Active(ctx context.Context) ([]Alert, error)
	NextSeq(vehicleID string) uint64
}

// MemoryStore keeps alerts in process memory. Default store when Redis is
// not configured.
type MemoryStore struct {
	mu     sync.RWMutex
	byVeh  map[string]Alert
	seqs   map[string]uint64
	seqsMu sync.Mutex
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byVeh: make(map[string]Alert),
		seqs:  make(map[string]uint64),
	}
}

// NextSeq issues the next per-vehicle write sequence number.
func (s *MemoryStore) NextSeq(vehicleID string) uint64 {
	s.seqsMu.Lock()
	s.seqs[vehicleID]++
	n := s.seqs[vehicleID]
	s.seqsMu.Unlock()
	return n
}

// Upsert replaces the vehicle's alert unless a newer write already landed.
func (s *MemoryStore) Upsert(_ context.Context, alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byVeh[alert.VehicleID]; ok && existing.Seq > alert.Seq {
		return nil
	}
	s.byVeh[alert.VehicleID] = alert
	return nil
}

// Get returns the active alert for a vehicle.
func (s *MemoryStore) Get(_ context.Context, vehicleID string) (Alert, bool, error) {
	s.mu.RLock()
	a, ok := s.byVeh[vehicleID]
	s.mu.RUnlock()
	return a, ok, nil
}

// Active returns all active alerts ordered by vehicle id.
func (s *MemoryStore) Active(_ context.Context) ([]Alert, error) {
	s.mu.RLock()
	out := make([]Alert, 0, len(s.byVeh))
	for _, a := range s.byVeh {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sortAlerts(out)
	return out, nil
}

func sortAlerts(list []Alert) {
	sort.Slice(list, func(i, j int) bool { return list[i].VehicleID < list[j].VehicleID })
}

// Service gates alert creation on the configured risk threshold.
type Service struct {
	threshold float64
	store     Store
}

// NewService builds an alert service. A zero threshold selects the default.
func NewService(store Store, threshold float64) *Service {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Service{threshold: threshold, store: store}
}

// Threshold returns the firing threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Evaluate fires an alert when the assessment's risk score meets the
// threshold, upserting so at most one alert per vehicle stays active. A nil
// alert with nil error means the score did not qualify.
func (s *Service) Evaluate(ctx context.Context, a telemetry.RiskAssessment) (*Alert, error) {
	if a.RiskScore < s.threshold {
		return nil, nil
	}

	alert := Alert{
		ID:                 uuid.NewString(),
		VehicleID:          a.VehicleID,
		PredictedFailure:   a.PredictedFailure,
		RootCauseSensor:    a.DominantSensor,
		CurrentSensorValue: a.CurrentSensorValue,
		RiskScore:          a.RiskScore,
		CreatedAt:          time.Now().UTC(),
		Seq:                s.store.NextSeq(a.VehicleID),
	}

	if err := s.store.Upsert(ctx, alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// AlertForVehicle is a read-only lookup over the live collection.
func (s *Service) AlertForVehicle(ctx context.Context, vehicleID string) (*Alert, error) {
	a, ok, err := s.store.Get(ctx, vehicleID)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// Active lists every currently active alert.
func (s *Service) Active(ctx context.Context) ([]Alert, error) {
	return s.store.Active(ctx)
}
