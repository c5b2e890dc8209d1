package model

import "github.com/google/uuid"

// Stockpile is a named storage area for one product with bounded capacity.
// CurrentTonnes only moves through ledger credits and debits and always
// stays within [0, CapacityTonnes].
type Stockpile struct {
	ID                   uuid.UUID
	Name                 string
	Product              string
	CapacityTonnes       float64
	CurrentTonnes        float64
	PendingInboundTonnes float64
	VesselRef            *string
}

func (s *Stockpile) AvailableTonnes() float64 {
	return s.CapacityTonnes - s.CurrentTonnes
}

// Utilisation is the filled fraction of capacity. Capacity is validated
// positive at configuration time, but a zero guard is kept so a bad record
// degrades to 0 instead of NaN.
func (s *Stockpile) Utilisation() float64 {
	if s.CapacityTonnes <= 0 {
		return 0
	}
	return s.CurrentTonnes / s.CapacityTonnes
}
