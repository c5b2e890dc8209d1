package model

import (
	"time"

	"github.com/google/uuid"
)

// Measurement is one weighbridge reading taken at one site for one
// allocation. Net is always derived as gross minus tare at construction;
// it is never accepted from a caller. Measurements are immutable once
// captured: a correction is a new reading, not an overwrite.
type Measurement struct {
	ID           uuid.UUID
	AllocationID uuid.UUID
	Site         string
	GrossKg      float64
	TareKg       float64
	NetKg        float64
	TicketRef    string
	CapturedAt   time.Time
}
