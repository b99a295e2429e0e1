// Package partner tracks the pool of delivery partners: availability,
// last known location and in-flight job capacity. Location and availability
// are single-writer (the partner's own update channel); capacity counters are
// the only cross-order mutation point and change under the registry lock.
package partner

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mergeeats/core/core/model"
)

// ErrNotFound is returned for unknown partner ids.
var ErrNotFound = errors.New("partner: not found")

// ErrAtCapacity is returned when a reservation would exceed the partner's
// concurrent job limit.
var ErrAtCapacity = errors.New("partner: at capacity")

// Config holds the deployment-tunable partner-pool parameters.
type Config struct {
	// LocationStalenessSeconds rejects dispatch decisions based on location
	// readings older than this.
	LocationStalenessSeconds int `json:"location_staleness_seconds"`
	// DefaultCapacity is the concurrent job limit for new partners: one
	// non-merged job or one merged bundle.
	DefaultCapacity int `json:"default_capacity"`
}

func (c *Config) SetDefaults() {
	if c.LocationStalenessSeconds <= 0 {
		c.LocationStalenessSeconds = 120
	}
	if c.DefaultCapacity <= 0 {
		c.DefaultCapacity = 1
	}
}

// Registry is the in-memory partner pool.
type Registry struct {
	mu       sync.RWMutex
	partners map[string]*model.DeliveryPartner
	cfg      Config
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	cfg.SetDefaults()
	return &Registry{partners: make(map[string]*model.DeliveryPartner), cfg: cfg, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// Register adds a partner if unknown and returns its state.
func (r *Registry) Register(id string) model.DeliveryPartner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.ensureLocked(id)
}

func (r *Registry) ensureLocked(id string) *model.DeliveryPartner {
	p, ok := r.partners[id]
	if !ok {
		p = &model.DeliveryPartner{
			ID:              id,
			Status:          model.PartnerOffline,
			Capacity:        r.cfg.DefaultCapacity,
			RegistrationsAt: r.now(),
		}
		r.partners[id] = p
	}
	return p
}

// UpdateLocation records a location reading. Readings older than the one
// already held are ignored.
func (r *Registry) UpdateLocation(id string, loc model.GeoPoint, at time.Time) {
	if at.IsZero() {
		at = r.now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.ensureLocked(id)
	if at.Before(p.LocationAt) {
		return
	}
	p.Location = loc
	p.LocationAt = at
}

// SetStatus updates the partner's availability status.
func (r *Registry) SetStatus(id string, st model.PartnerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(id).Status = st
}

// Get returns a snapshot of the partner.
func (r *Registry) Get(id string) (model.DeliveryPartner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.partners[id]
	if !ok {
		return model.DeliveryPartner{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return *p, nil
}

// List returns all partners ordered by id.
func (r *Registry) List() []model.DeliveryPartner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]model.DeliveryPartner, 0, len(r.partners))
	for _, p := range r.partners {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Candidates returns partners eligible for a delivery offer around center:
// available, under capacity, and holding a location reading that is within
// radiusKM and not stale.
func (r *Registry) Candidates(center model.GeoPoint, radiusKM float64) []model.DeliveryPartner {
	staleness := time.Duration(r.cfg.LocationStalenessSeconds) * time.Second
	cutoff := r.now().Add(-staleness)

	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []model.DeliveryPartner
	for _, p := range r.partners {
		if !p.Status.AvailableForDelivery() || !p.UnderCapacity() {
			continue
		}
		if p.LocationAt.IsZero() || p.LocationAt.Before(cutoff) {
			continue
		}
		if p.Location.DistanceKM(center) > radiusKM {
			continue
		}
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Location.DistanceKM(center) < res[j].Location.DistanceKM(center)
	})
	return res
}

// TryReserve increments the partner's active job count, failing at capacity.
func (r *Registry) TryReserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if !p.UnderCapacity() {
		return fmt.Errorf("%s: %w", id, ErrAtCapacity)
	}
	p.ActiveJobs++
	p.LastAssignedAt = r.now()
	return nil
}

// Release decrements the partner's active job count after a terminal
// assignment outcome. completed marks the job as delivered.
func (r *Registry) Release(id string, completed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok {
		return
	}
	if p.ActiveJobs > 0 {
		p.ActiveJobs--
	}
	if completed {
		p.CompletedJobs++
	}
}
