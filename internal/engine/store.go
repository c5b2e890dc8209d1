package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

const stripeCount = 64

// Store holds the engine's authoritative in-memory state.
//
// Locking: record mutations hold the global lock in read mode plus a
// per-record stripe, so events for the same vehicle serialize while
// different allocations proceed in parallel. Snapshot takes the global lock
// in write mode, which excludes every in-flight mutation and guarantees the
// copy never observes a half-applied transition.
type Store struct {
	mu      sync.RWMutex
	stripes [stripeCount]sync.Mutex

	allocations  map[uuid.UUID]*model.Allocation
	stockpiles   map[uuid.UUID]*model.Stockpile
	transporters map[uuid.UUID]*model.Transporter
	orders       map[string]*model.Order
	sightings    []model.UnallocatedSighting
}

func NewStore() *Store {
	return &Store{
		allocations:  make(map[uuid.UUID]*model.Allocation),
		stockpiles:   make(map[uuid.UUID]*model.Stockpile),
		transporters: make(map[uuid.UUID]*model.Transporter),
		orders:       make(map[string]*model.Order),
	}
}

// Snapshot is a point-in-time copy of all engine state, safe to read
// without further locking.
type Snapshot struct {
	TakenAt      time.Time
	Allocations  []model.Allocation
	Stockpiles   []model.Stockpile
	Transporters []model.Transporter
	Orders       []model.Order
	Sightings    []model.UnallocatedSighting
}

func (s *Store) stripe(id uuid.UUID) *sync.Mutex {
	return &s.stripes[int(id[0])%stripeCount]
}

func (s *Store) PutAllocation(a *model.Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[a.ID] = a
}

// GetAllocation returns a copy; the caller cannot mutate stored state
// through it.
func (s *Store) GetAllocation(id uuid.UUID) (model.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[id]
	if !ok {
		return model.Allocation{}, ErrNotFound
	}
	lock := s.stripe(id)
	lock.Lock()
	defer lock.Unlock()
	return cloneAllocation(a), nil
}

// MutateAllocation applies fn to the stored allocation under its record
// lock. fn returning an error leaves the record untouched only if fn itself
// did not modify it first; mutators are expected to validate before writing.
func (s *Store) MutateAllocation(id uuid.UUID, fn func(*model.Allocation) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[id]
	if !ok {
		return ErrNotFound
	}
	lock := s.stripe(id)
	lock.Lock()
	defer lock.Unlock()
	return fn(a)
}

// OpenAllocationID finds the non-terminal allocation for a normalized
// vehicle registration, if one exists.
func (s *Store) OpenAllocationID(vehicleReg string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, a := range s.allocations {
		if a.VehicleReg != vehicleReg {
			continue
		}
		lock := s.stripe(id)
		lock.Lock()
		open := !a.Status.Terminal()
		lock.Unlock()
		if open {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (s *Store) PutStockpile(p *model.Stockpile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stockpiles[p.ID] = p
}

func (s *Store) MutateStockpile(id uuid.UUID, fn func(*model.Stockpile) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.stockpiles[id]
	if !ok {
		return ErrNotFound
	}
	lock := s.stripe(id)
	lock.Lock()
	defer lock.Unlock()
	return fn(p)
}

func (s *Store) PutTransporter(t *model.Transporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transporters[t.ID] = t
}

func (s *Store) PutOrder(o *model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.Ref] = o
}

func (s *Store) GetOrder(ref string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[ref]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return *o, nil
}

func (s *Store) AddSighting(sg model.UnallocatedSighting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sightings = append(s.sightings, sg)
}

// Snapshot deep-copies everything under the exclusive lock. Evaluation and
// reporting run against the copy, so a few seconds of staleness is possible
// but a torn read is not.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TakenAt:      time.Now(),
		Allocations:  make([]model.Allocation, 0, len(s.allocations)),
		Stockpiles:   make([]model.Stockpile, 0, len(s.stockpiles)),
		Transporters: make([]model.Transporter, 0, len(s.transporters)),
		Orders:       make([]model.Order, 0, len(s.orders)),
		Sightings:    append([]model.UnallocatedSighting(nil), s.sightings...),
	}
	for _, a := range s.allocations {
		snap.Allocations = append(snap.Allocations, cloneAllocation(a))
	}
	for _, p := range s.stockpiles {
		snap.Stockpiles = append(snap.Stockpiles, *p)
	}
	for _, t := range s.transporters {
		snap.Transporters = append(snap.Transporters, *t)
	}
	for _, o := range s.orders {
		snap.Orders = append(snap.Orders, *o)
	}

	sort.Slice(snap.Allocations, func(i, j int) bool {
		return snap.Allocations[i].CreatedAt.Before(snap.Allocations[j].CreatedAt)
	})
	sort.Slice(snap.Stockpiles, func(i, j int) bool {
		return snap.Stockpiles[i].Name < snap.Stockpiles[j].Name
	})
	sort.Slice(snap.Transporters, func(i, j int) bool {
		return snap.Transporters[i].Name < snap.Transporters[j].Name
	})
	sort.Slice(snap.Orders, func(i, j int) bool {
		return snap.Orders[i].Ref < snap.Orders[j].Ref
	})
	return snap
}

func cloneAllocation(a *model.Allocation) model.Allocation {
	c := *a
	c.Measurements = append([]model.Measurement(nil), a.Measurements...)
	c.Journey = append([]model.JourneyEntry(nil), a.Journey...)
	c.Visits = make([]model.SiteVisit, len(a.Visits))
	for i, v := range a.Visits {
		c.Visits[i] = model.SiteVisit{
			Site:       v.Site,
			ArrivedAt:  cloneTime(v.ArrivedAt),
			DepartedAt: cloneTime(v.DepartedAt),
		}
	}
	c.DriverRef = cloneString(a.DriverRef)
	c.StockpileID = cloneUUID(a.StockpileID)
	c.VarianceKg = cloneFloat(a.VarianceKg)
	c.VariancePct = cloneFloat(a.VariancePct)
	c.Flagged = cloneBool(a.Flagged)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
