package engine

import (
	"fmt"

	"github.com/nurpe/weighbridge-allocations/internal/model"
)

// CreditResult reports what a credit actually did. Applied may be less than
// requested when the pile was close to capacity; OverflowTonnes is the
// clamped remainder, surfaced so callers can log it for audit.
type CreditResult struct {
	Applied        float64
	OverflowTonnes float64
}

// credit increases the pile's current tonnage, clamped at capacity, and
// releases the same amount from pending inbound if it was counted there.
// Callers hold the record lock.
func credit(p *model.Stockpile, tonnes float64) (CreditResult, error) {
	if tonnes < 0 {
		return CreditResult{}, fmt.Errorf("%w: credit amount must not be negative, got %.3f", ErrInvalidInput, tonnes)
	}
	applied := tonnes
	overflow := 0.0
	if p.CurrentTonnes+tonnes > p.CapacityTonnes {
		applied = p.CapacityTonnes - p.CurrentTonnes
		overflow = tonnes - applied
	}
	p.CurrentTonnes += applied

	released := tonnes
	if released > p.PendingInboundTonnes {
		released = p.PendingInboundTonnes
	}
	p.PendingInboundTonnes -= released

	return CreditResult{Applied: applied, OverflowTonnes: overflow}, nil
}

// debit decreases current tonnage for outbound loading, clamped at zero.
func debit(p *model.Stockpile, tonnes float64) (float64, error) {
	if tonnes < 0 {
		return 0, fmt.Errorf("%w: debit amount must not be negative, got %.3f", ErrInvalidInput, tonnes)
	}
	applied := tonnes
	if applied > p.CurrentTonnes {
		applied = p.CurrentTonnes
	}
	p.CurrentTonnes -= applied
	return applied, nil
}

// AggregateUtilisation is total current over total capacity across a set of
// piles. Tonnage-weighted on purpose: averaging per-pile percentages would
// let a small nearly-full pile skew the fleet view.
func AggregateUtilisation(piles []model.Stockpile) float64 {
	var current, capacity float64
	for i := range piles {
		current += piles[i].CurrentTonnes
		capacity += piles[i].CapacityTonnes
	}
	if capacity <= 0 {
		return 0
	}
	return current / capacity
}
